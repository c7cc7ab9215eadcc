// Copyright (c) 2025 The subsidy developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package sponsor

import (
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/subsidynet/subsidy/subsidy"
)

// Status of an in-flight sponsorship request.
type Status uint8

const (
	// StatusApproved means funds are reserved and the sponsored operation
	// has not started yet.
	StatusApproved Status = iota + 1
	// StatusExecuting means control was handed to the sponsored operation.
	StatusExecuting
)

func (s Status) String() string {
	switch s {
	case StatusApproved:
		return "approved"
	case StatusExecuting:
		return "executing"
	default:
		return "unknown"
	}
}

// Decision is the outcome of request validation.
type Decision struct {
	Approved  bool            `json:"approved"`
	RequestID subsidy.Bytes32 `json:"requestID"`
	Reason    string          `json:"reason,omitempty"`
	Allowance *big.Int        `json:"allowance,omitempty"`
}

// Settlement is the outcome of settling a request.
type Settlement struct {
	Finalized bool     `json:"finalized"`
	Reverted  bool     `json:"reverted"`
	Charged   *big.Int `json:"charged"`
	Refunded  *big.Int `json:"refunded"`
}

// RequestInfo is the externally visible view of an in-flight request.
type RequestInfo struct {
	RequestID subsidy.Bytes32 `json:"requestID"`
	Account   subsidy.Address `json:"account"`
	Amount    *big.Int        `json:"amount"`
	Status    string          `json:"status"`
	CreatedAt uint64          `json:"createdAt"`
}

// reservation is the persisted record of an approved request.
type reservation struct {
	Account   subsidy.Address
	Amount    *big.Int
	Status    Status
	CreatedAt uint64
}

func (r *reservation) IsEmpty() bool {
	return r.Status == 0
}

// Encode implements state.StructuredStorage.
func (r *reservation) Encode() ([]byte, error) {
	if r.IsEmpty() {
		return nil, nil
	}
	return rlp.EncodeToBytes(r)
}

// Decode implements state.StructuredStorage.
func (r *reservation) Decode(data []byte) error {
	if len(data) == 0 {
		*r = reservation{Amount: new(big.Int)}
		return nil
	}
	return rlp.DecodeBytes(data, r)
}
