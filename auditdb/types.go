// Copyright (c) 2025 The subsidy developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package auditdb

import (
	"math/big"

	"github.com/subsidynet/subsidy/subsidy"
)

// Kind classifies audit events.
type Kind string

const (
	KindStake       Kind = "stake"
	KindUnstake     Kind = "unstake"
	KindRewardSet   Kind = "reward-set"
	KindReservation Kind = "reservation"
	KindSettlement  Kind = "settlement"
	KindReverted    Kind = "reverted"
	KindExpired     Kind = "expired"
	KindDeposit     Kind = "deposit"
	KindWithdraw    Kind = "withdraw"
)

// Event is one audit record.
type Event struct {
	Sequence  uint64          `json:"sequence"`
	Timestamp uint64          `json:"timestamp"`
	Kind      Kind            `json:"kind"`
	Account   subsidy.Address `json:"account"`
	RequestID subsidy.Bytes32 `json:"requestID"`
	Amount    *big.Int        `json:"amount"`
	Balance   *big.Int        `json:"balance"`
	Flagged   bool            `json:"flagged"`
}

// Options to limit the results of a filter query.
type Options struct {
	Offset uint64 `json:"offset"`
	Limit  uint64 `json:"limit"`
}

// EventFilter filters audit events.
type EventFilter struct {
	Account     *subsidy.Address `json:"account,omitempty"`
	Kind        *Kind            `json:"kind,omitempty"`
	FlaggedOnly bool             `json:"flaggedOnly,omitempty"`
	Options     *Options         `json:"options,omitempty"`
}

const eventTableSchema = `CREATE TABLE IF NOT EXISTS event (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	ts INTEGER NOT NULL,
	kind TEXT NOT NULL,
	account BLOB NOT NULL,
	requestId BLOB,
	amount BLOB,
	balance BLOB,
	flagged INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS event_account ON event(account);
CREATE INDEX IF NOT EXISTS event_kind ON event(kind);`
