// Copyright (c) 2025 The subsidy developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package staking

import (
	"github.com/ethereum/go-ethereum/common/math"

	"github.com/subsidynet/subsidy/subsidy"
)

// Account is the staking view of an account.
type Account struct {
	Principal *math.HexOrDecimal256 `json:"principal"`
	Reward    *math.HexOrDecimal256 `json:"reward"`
}

// AmountRequest carries the value of a stake or unstake call.
type AmountRequest struct {
	Amount *math.HexOrDecimal256 `json:"amount"`
}

// RewardRequest carries a reward grant from an authorized caller.
type RewardRequest struct {
	Caller subsidy.Address       `json:"caller"`
	Amount *math.HexOrDecimal256 `json:"amount"`
}

// Totals are the ledger-wide conservation counters.
type Totals struct {
	TotalStaked   *math.HexOrDecimal256 `json:"totalStaked"`
	TotalUnstaked *math.HexOrDecimal256 `json:"totalUnstaked"`
}
