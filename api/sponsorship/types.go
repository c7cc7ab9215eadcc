// Copyright (c) 2025 The subsidy developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package sponsorship

import (
	"github.com/ethereum/go-ethereum/common/math"

	"github.com/subsidynet/subsidy/subsidy"
)

// ValidateRequest asks for sponsorship of an operation with a declared cost.
type ValidateRequest struct {
	Caller        subsidy.Address       `json:"caller"`
	Account       subsidy.Address       `json:"account"`
	EstimatedCost *math.HexOrDecimal256 `json:"estimatedCost"`
}

// Decision mirrors the engine's validation outcome.
type Decision struct {
	Approved  bool                  `json:"approved"`
	RequestID subsidy.Bytes32       `json:"requestID"`
	Reason    string                `json:"reason,omitempty"`
	Allowance *math.HexOrDecimal256 `json:"allowance,omitempty"`
}

// BeginRequest hands control to the sponsored operation.
type BeginRequest struct {
	Caller subsidy.Address `json:"caller"`
}

// SettleRequest reports the operation outcome for reconciliation.
type SettleRequest struct {
	Caller     subsidy.Address       `json:"caller"`
	ActualCost *math.HexOrDecimal256 `json:"actualCost"`
	Succeeded  bool                  `json:"succeeded"`
}

// Settlement mirrors the engine's settlement outcome.
type Settlement struct {
	Finalized bool                  `json:"finalized"`
	Reverted  bool                  `json:"reverted"`
	Charged   *math.HexOrDecimal256 `json:"charged"`
	Refunded  *math.HexOrDecimal256 `json:"refunded"`
}

// FundRequest moves sponsor funds in or out of the budget.
type FundRequest struct {
	Caller subsidy.Address       `json:"caller"`
	Amount *math.HexOrDecimal256 `json:"amount"`
}

// Budget is the sponsor funding view.
type Budget struct {
	Available *math.HexOrDecimal256 `json:"available"`
	Reserved  *math.HexOrDecimal256 `json:"reserved"`
	Pending   int                   `json:"pending"`
	Halted    bool                  `json:"halted"`
}
