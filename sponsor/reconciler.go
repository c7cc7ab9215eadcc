// Copyright (c) 2025 The subsidy developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package sponsor

import (
	"math/big"
)

const rateDivisor = 10000

// Reconciler decides how a reservation is split between charge and refund
// once the sponsored operation reports back.
type Reconciler struct {
	ceiling *big.Int // actual cost above this is treated as a fraud/bug signal
	rateBps uint64   // share of the charged amount debited from the account's reward, in basis points
}

// NewReconciler create a reconciler.
// A nil ceiling disables the hard-ceiling guard; rateBps of 10000 debits
// rewards 1:1 with the charged amount, 0 disables reward consumption.
func NewReconciler(ceiling *big.Int, rateBps uint64) *Reconciler {
	if ceiling != nil {
		ceiling = new(big.Int).Set(ceiling)
	}
	return &Reconciler{ceiling, rateBps}
}

// outcome describes how reserved funds are released.
type outcome struct {
	charge      *big.Int
	refund      *big.Int
	rewardDebit *big.Int
	reverted    bool
}

// reconcile maps (reserved, actualCost, succeeded) to a settlement outcome.
//
// Failure of the sponsored operation refunds the full reservation: the
// sponsor does not pay for work that did not happen. An undeterminable or
// ceiling-exceeding cost consumes the full reservation instead of refunding,
// as a conservative fallback.
func (r *Reconciler) reconcile(reserved *big.Int, actualCost *big.Int, succeeded bool) *outcome {
	zero := new(big.Int)

	if actualCost == nil || actualCost.Sign() < 0 || (r.ceiling != nil && actualCost.Cmp(r.ceiling) > 0) {
		return &outcome{
			charge:      new(big.Int).Set(reserved),
			refund:      zero,
			rewardDebit: zero,
			reverted:    true,
		}
	}

	if !succeeded {
		return &outcome{
			charge:      zero,
			refund:      new(big.Int).Set(reserved),
			rewardDebit: zero,
		}
	}

	charge := new(big.Int).Set(actualCost)
	if charge.Cmp(reserved) > 0 {
		charge.Set(reserved)
	}
	refund := new(big.Int).Sub(reserved, charge)

	debit := new(big.Int).Mul(charge, new(big.Int).SetUint64(r.rateBps))
	debit.Div(debit, big.NewInt(rateDivisor))

	return &outcome{
		charge:      charge,
		refund:      refund,
		rewardDebit: debit,
	}
}
