// Copyright (c) 2025 The subsidy developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package ledger

import (
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"
)

// stakeEntry is the per-account staking record.
// Principal and Reward are never negative.
type stakeEntry struct {
	Principal *big.Int
	Reward    *big.Int
}

func newStakeEntry() *stakeEntry {
	return &stakeEntry{new(big.Int), new(big.Int)}
}

func (e *stakeEntry) IsEmpty() bool {
	return e.Principal.Sign() == 0 && e.Reward.Sign() == 0
}

// Encode implements state.StructuredStorage.
func (e *stakeEntry) Encode() ([]byte, error) {
	if e.IsEmpty() {
		return nil, nil
	}
	return rlp.EncodeToBytes(e)
}

// Decode implements state.StructuredStorage.
func (e *stakeEntry) Decode(data []byte) error {
	if len(data) == 0 {
		*e = stakeEntry{new(big.Int), new(big.Int)}
		return nil
	}
	return rlp.DecodeBytes(data, e)
}
