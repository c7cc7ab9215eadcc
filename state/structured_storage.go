// Copyright (c) 2025 The subsidy developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package state

import (
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/subsidynet/subsidy/subsidy"
)

// StructuredStorage storage data type should implement this.
type StructuredStorage interface {
	Encode() ([]byte, error)
	Decode([]byte) error
}

// GetStructuredStorage loads and decodes the value stored at the given key.
// If val implements StructuredStorage, its Decode is used (and is passed nil
// for an absent key), otherwise RLP decoding applies and an absent key leaves
// val untouched.
func (s *State) GetStructuredStorage(key subsidy.Bytes32, val interface{}) error {
	raw, err := s.GetRaw(key)
	if err != nil {
		return err
	}
	if ss, ok := val.(StructuredStorage); ok {
		if err := ss.Decode(raw); err != nil {
			return &Error{err}
		}
		return nil
	}
	if len(raw) == 0 {
		return nil
	}
	if err := rlp.DecodeBytes(raw, val); err != nil {
		return &Error{err}
	}
	return nil
}

// SetStructuredStorage encodes and stages the value at the given key.
// An encoding of zero length deletes the key.
func (s *State) SetStructuredStorage(key subsidy.Bytes32, val interface{}) error {
	var (
		raw []byte
		err error
	)
	if ss, ok := val.(StructuredStorage); ok {
		raw, err = ss.Encode()
	} else {
		raw, err = rlp.EncodeToBytes(val)
	}
	if err != nil {
		return &Error{err}
	}
	s.SetRaw(key, raw)
	return nil
}
