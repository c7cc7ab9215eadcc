// Copyright (c) 2025 The subsidy developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package state

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru"

	"github.com/subsidynet/subsidy/kv"
	"github.com/subsidynet/subsidy/subsidy"
)

const readCacheSize = 2048

// Error is the error caused by state access failure.
type Error struct {
	cause error
}

func (e *Error) Error() string {
	return fmt.Sprintf("state: %v", e.cause)
}

// Cause returns the wrapped access failure.
func (e *Error) Cause() error {
	return e.cause
}

type journalEntry struct {
	key     subsidy.Bytes32
	prev    []byte
	hadPrev bool
}

// State manages the persisted protocol state.
// Values are keyed by 32-byte keys and staged in memory until Stage().Commit().
// It is not safe for concurrent use; owning services serialize access.
type State struct {
	kv      kv.GetPutter
	cache   *lru.Cache // committed raw values
	changes map[subsidy.Bytes32][]byte
	journal []journalEntry
}

// New create state object backed by the given key-value store.
func New(kv kv.GetPutter) (*State, error) {
	cache, err := lru.New(readCacheSize)
	if err != nil {
		return nil, &Error{err}
	}
	return &State{
		kv:      kv,
		cache:   cache,
		changes: make(map[subsidy.Bytes32][]byte),
	}, nil
}

// GetRaw returns the raw value for the given key, nil if the key is absent.
func (s *State) GetRaw(key subsidy.Bytes32) ([]byte, error) {
	if raw, ok := s.changes[key]; ok {
		return raw, nil
	}
	if cached, ok := s.cache.Get(key); ok {
		return cached.([]byte), nil
	}
	raw, err := s.kv.Get(key.Bytes())
	if err != nil {
		if s.kv.IsNotFound(err) {
			s.cache.Add(key, []byte(nil))
			return nil, nil
		}
		return nil, &Error{err}
	}
	s.cache.Add(key, raw)
	return raw, nil
}

// SetRaw stages the raw value for the given key. Empty value means deletion.
func (s *State) SetRaw(key subsidy.Bytes32, raw []byte) {
	prev, hadPrev := s.changes[key]
	s.journal = append(s.journal, journalEntry{key, prev, hadPrev})
	s.changes[key] = raw
}

// NewCheckpoint marks the current mutation point, which can be reverted to.
func (s *State) NewCheckpoint() int {
	return len(s.journal)
}

// RevertTo reverts mutations applied after the checkpoint.
func (s *State) RevertTo(checkpoint int) {
	for len(s.journal) > checkpoint {
		last := s.journal[len(s.journal)-1]
		if last.hadPrev {
			s.changes[last.key] = last.prev
		} else {
			delete(s.changes, last.key)
		}
		s.journal = s.journal[:len(s.journal)-1]
	}
}

// Stage snapshots staged changes for committing.
func (s *State) Stage() *Stage {
	changes := make(map[subsidy.Bytes32][]byte, len(s.changes))
	for k, v := range s.changes {
		changes[k] = v
	}
	return &Stage{
		state:   s,
		changes: changes,
	}
}

// Stage holds a consistent set of changes ready to be committed atomically.
type Stage struct {
	state   *State
	changes map[subsidy.Bytes32][]byte
}

// Commit writes all staged changes in one batch.
// On success the owning state's journal is reset.
func (st *Stage) Commit() error {
	batch := st.state.kv.NewBatch()
	for key, raw := range st.changes {
		if len(raw) == 0 {
			if err := batch.Delete(key.Bytes()); err != nil {
				return &Error{err}
			}
		} else {
			if err := batch.Put(key.Bytes(), raw); err != nil {
				return &Error{err}
			}
		}
	}
	if err := batch.Write(); err != nil {
		return &Error{err}
	}
	for key, raw := range st.changes {
		st.state.cache.Add(key, raw)
		delete(st.state.changes, key)
	}
	st.state.journal = st.state.journal[:0]
	return nil
}
