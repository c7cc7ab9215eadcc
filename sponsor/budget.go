// Copyright (c) 2025 The subsidy developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package sponsor

import (
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/subsidynet/subsidy/state"
	"github.com/subsidynet/subsidy/subsidy"
)

var (
	availableKey = subsidy.Keccak256([]byte("budget-available"))
	reservedKey  = subsidy.Keccak256([]byte("budget-reserved"))
	nonceKey     = subsidy.Keccak256([]byte("request-nonce"))
	pendingKey   = subsidy.Keccak256([]byte("pending-requests"))
	haltedKey    = subsidy.Keccak256([]byte("engine-halted"))
)

func reservationKey(id subsidy.Bytes32) subsidy.Bytes32 {
	return subsidy.Keccak256([]byte("r"), id.Bytes())
}

func settledKey(id subsidy.Bytes32) subsidy.Bytes32 {
	return subsidy.Keccak256([]byte("s"), id.Bytes())
}

// budget is the persisted sponsor fund accounting.
// Invariant: available + reserved total changes only via deposits, withdrawals
// and finalized settlements, never via validation alone.
type budget struct {
	state *state.State
}

func (b *budget) available() (*big.Int, error) {
	v := new(big.Int)
	if err := b.state.GetStructuredStorage(availableKey, v); err != nil {
		return nil, err
	}
	return v, nil
}

func (b *budget) setAvailable(v *big.Int) error {
	return b.state.SetStructuredStorage(availableKey, v)
}

func (b *budget) reservedTotal() (*big.Int, error) {
	v := new(big.Int)
	if err := b.state.GetStructuredStorage(reservedKey, v); err != nil {
		return nil, err
	}
	return v, nil
}

func (b *budget) setReservedTotal(v *big.Int) error {
	return b.state.SetStructuredStorage(reservedKey, v)
}

func (b *budget) getReservation(id subsidy.Bytes32) (*reservation, error) {
	var r reservation
	if err := b.state.GetStructuredStorage(reservationKey(id), &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (b *budget) setReservation(id subsidy.Bytes32, r *reservation) error {
	return b.state.SetStructuredStorage(reservationKey(id), r)
}

func (b *budget) deleteReservation(id subsidy.Bytes32) error {
	return b.state.SetStructuredStorage(reservationKey(id), &reservation{})
}

func (b *budget) isSettled(id subsidy.Bytes32) (bool, error) {
	var flag uint8
	if err := b.state.GetStructuredStorage(settledKey(id), &flag); err != nil {
		return false, err
	}
	return flag != 0, nil
}

func (b *budget) markSettled(id subsidy.Bytes32) error {
	return b.state.SetStructuredStorage(settledKey(id), uint8(1))
}

func (b *budget) isHalted() (bool, error) {
	var flag uint8
	if err := b.state.GetStructuredStorage(haltedKey, &flag); err != nil {
		return false, err
	}
	return flag != 0, nil
}

func (b *budget) setHalted(halted bool) error {
	if !halted {
		b.state.SetRaw(haltedKey, nil)
		return nil
	}
	return b.state.SetStructuredStorage(haltedKey, uint8(1))
}

// paramOverride returns the stored override for the given parameter key,
// or nil when none is set.
func (b *budget) paramOverride(key subsidy.Bytes32) (*big.Int, error) {
	raw, err := b.state.GetRaw(key)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}
	v := new(big.Int)
	if err := rlp.DecodeBytes(raw, v); err != nil {
		return nil, err
	}
	return v, nil
}

func (b *budget) setParamOverride(key subsidy.Bytes32, v *big.Int) error {
	return b.state.SetStructuredStorage(key, v)
}

func (b *budget) nextNonce() (uint64, error) {
	var nonce uint64
	if err := b.state.GetStructuredStorage(nonceKey, &nonce); err != nil {
		return 0, err
	}
	if err := b.state.SetStructuredStorage(nonceKey, nonce+1); err != nil {
		return 0, err
	}
	return nonce, nil
}

func (b *budget) pendingIDs() ([]subsidy.Bytes32, error) {
	var ids []subsidy.Bytes32
	if err := b.state.GetStructuredStorage(pendingKey, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func (b *budget) setPendingIDs(ids []subsidy.Bytes32) error {
	return b.state.SetStructuredStorage(pendingKey, ids)
}

func (b *budget) addPending(id subsidy.Bytes32) error {
	ids, err := b.pendingIDs()
	if err != nil {
		return err
	}
	return b.setPendingIDs(append(ids, id))
}

func (b *budget) removePending(id subsidy.Bytes32) error {
	ids, err := b.pendingIDs()
	if err != nil {
		return err
	}
	for i, pending := range ids {
		if pending == id {
			return b.setPendingIDs(append(ids[:i:i], ids[i+1:]...))
		}
	}
	return nil
}
