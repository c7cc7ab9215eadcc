// Copyright (c) 2025 The subsidy developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package oracle

import (
	"math/big"

	"github.com/pkg/errors"

	"github.com/subsidynet/subsidy/subsidy"
)

// ErrLedgerUnavailable indicates the eligibility source could not be read.
// It is propagated, never swallowed: an indeterminate result must not default
// to approval.
var ErrLedgerUnavailable = errors.New("ledger unavailable")

// RewardReader reads reward balances from a ledger snapshot.
type RewardReader interface {
	GetReward(account subsidy.Address) (*big.Int, error)
}

// Oracle translates ledger state into sponsorship decisions.
// It holds no hidden state; decisions are pure with respect to the reader
// passed in, so they can be re-evaluated deterministically.
type Oracle struct {
	requestCap *big.Int
}

// New create an oracle with the given per-request allowance cap.
// A nil cap means uncapped.
func New(requestCap *big.Int) *Oracle {
	if requestCap != nil {
		requestCap = new(big.Int).Set(requestCap)
	}
	return &Oracle{requestCap}
}

// IsEligible reports whether the account qualifies for sponsorship and the
// maximum sponsorable amount: min(reward, per-request cap).
func (o *Oracle) IsEligible(reader RewardReader, account subsidy.Address) (bool, *big.Int, error) {
	reward, err := reader.GetReward(account)
	if err != nil {
		return false, nil, errors.Wrap(ErrLedgerUnavailable, err.Error())
	}
	if reward.Sign() <= 0 {
		return false, new(big.Int), nil
	}

	allowance := new(big.Int).Set(reward)
	if o.requestCap != nil && allowance.Cmp(o.requestCap) > 0 {
		allowance.Set(o.requestCap)
	}
	return true, allowance, nil
}
