// Copyright (c) 2025 The subsidy developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package ledger

import (
	"math/big"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/subsidynet/subsidy/auditdb"
	"github.com/subsidynet/subsidy/log"
	"github.com/subsidynet/subsidy/metrics"
	"github.com/subsidynet/subsidy/state"
	"github.com/subsidynet/subsidy/subsidy"
)

var (
	logger = log.WithContext("pkg", "ledger")

	metricStaked   = metrics.LazyLoadCounter("ledger_staked_ops_count")
	metricUnstaked = metrics.LazyLoadCounter("ledger_unstaked_ops_count")
)

// Error kinds of ledger operations.
var (
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrUnauthorized        = errors.New("unauthorized")
)

var (
	totalStakedKey   = subsidy.Keccak256([]byte("total-staked"))
	totalUnstakedKey = subsidy.Keccak256([]byte("total-unstaked"))
)

func entryKey(addr subsidy.Address) subsidy.Bytes32 {
	return subsidy.Keccak256([]byte("e"), addr.Bytes())
}

// ValueMover moves underlying value between an account and the staking pool.
// Implementations are external collaborators; the ledger only requires the
// movement to be atomic.
type ValueMover interface {
	TransferToPool(account subsidy.Address, amount *big.Int) error
	TransferFromPool(account subsidy.Address, amount *big.Int) error
}

// Authority tells whether a caller may mutate reward balances.
type Authority interface {
	Authorized(caller subsidy.Address) bool
}

// Ledger owns per-account staked principal and reward balances.
//
// Invariants: principal and reward are never negative; the sum of all
// principal equals total ever staked minus total ever unstaked.
type Ledger struct {
	mu    sync.Mutex
	state *state.State
	mover ValueMover
	auth  Authority
	audit auditdb.Writer

	now func() uint64
}

// New create a ledger over the given state.
func New(st *state.State, mover ValueMover, auth Authority, audit auditdb.Writer) *Ledger {
	return &Ledger{
		state: st,
		mover: mover,
		auth:  auth,
		audit: audit,
		now:   func() uint64 { return uint64(time.Now().Unix()) },
	}
}

func (l *Ledger) getEntry(account subsidy.Address) (*stakeEntry, error) {
	entry := newStakeEntry()
	if err := l.state.GetStructuredStorage(entryKey(account), entry); err != nil {
		return nil, err
	}
	return entry, nil
}

func (l *Ledger) setEntry(account subsidy.Address, entry *stakeEntry) error {
	return l.state.SetStructuredStorage(entryKey(account), entry)
}

func (l *Ledger) getTotal(key subsidy.Bytes32) (*big.Int, error) {
	total := new(big.Int)
	if err := l.state.GetStructuredStorage(key, total); err != nil {
		return nil, err
	}
	return total, nil
}

func (l *Ledger) addTotal(key subsidy.Bytes32, amount *big.Int) error {
	total, err := l.getTotal(key)
	if err != nil {
		return err
	}
	return l.state.SetStructuredStorage(key, total.Add(total, amount))
}

// Stake locks amount of the account's external value into the pool and
// increases the account's principal. No state is mutated when the external
// transfer fails.
func (l *Ledger) Stake(account subsidy.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	checkpoint := l.state.NewCheckpoint()

	entry, err := l.getEntry(account)
	if err != nil {
		return err
	}
	entry.Principal.Add(entry.Principal, amount)
	if err := l.setEntry(account, entry); err != nil {
		l.state.RevertTo(checkpoint)
		return err
	}
	if err := l.addTotal(totalStakedKey, amount); err != nil {
		l.state.RevertTo(checkpoint)
		return err
	}

	if err := l.mover.TransferToPool(account, amount); err != nil {
		l.state.RevertTo(checkpoint)
		logger.Info("stake transfer failed", "account", account, "error", err)
		return errors.WithMessage(err, "transfer to pool")
	}

	if err := l.state.Stage().Commit(); err != nil {
		l.state.RevertTo(checkpoint)
		return err
	}

	metricStaked().Add(1)
	logger.Info("staked", "account", account, "amount", amount, "principal", entry.Principal)
	l.logEvent(auditdb.KindStake, account, amount, entry.Principal)
	return nil
}

// Unstake releases amount of staked principal back to the account.
// The principal is decremented before value leaves the pool.
func (l *Ledger) Unstake(account subsidy.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	checkpoint := l.state.NewCheckpoint()

	entry, err := l.getEntry(account)
	if err != nil {
		return err
	}
	if entry.Principal.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}

	// decrement first, then transfer
	entry.Principal.Sub(entry.Principal, amount)
	if err := l.setEntry(account, entry); err != nil {
		l.state.RevertTo(checkpoint)
		return err
	}
	if err := l.addTotal(totalUnstakedKey, amount); err != nil {
		l.state.RevertTo(checkpoint)
		return err
	}

	if err := l.mover.TransferFromPool(account, amount); err != nil {
		l.state.RevertTo(checkpoint)
		logger.Info("unstake transfer failed", "account", account, "error", err)
		return errors.WithMessage(err, "transfer from pool")
	}

	if err := l.state.Stage().Commit(); err != nil {
		l.state.RevertTo(checkpoint)
		return err
	}

	metricUnstaked().Add(1)
	logger.Info("unstaked", "account", account, "amount", amount, "principal", entry.Principal)
	l.logEvent(auditdb.KindUnstake, account, amount, entry.Principal)
	return nil
}

// Principal returns the account's staked principal, zero for unknown accounts.
func (l *Ledger) Principal(account subsidy.Address) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, err := l.getEntry(account)
	if err != nil {
		return nil, err
	}
	return entry.Principal, nil
}

// GetReward returns the account's reward balance, zero for unknown accounts.
func (l *Ledger) GetReward(account subsidy.Address) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, err := l.getEntry(account)
	if err != nil {
		return nil, err
	}
	return entry.Reward, nil
}

// SetReward overwrites the account's reward balance.
// Restricted to the designated authority.
func (l *Ledger) SetReward(caller subsidy.Address, account subsidy.Address, amount *big.Int) error {
	if !l.auth.Authorized(caller) {
		logger.Warn("reward mutation denied", "caller", caller, "account", account)
		return ErrUnauthorized
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	checkpoint := l.state.NewCheckpoint()

	entry, err := l.getEntry(account)
	if err != nil {
		return err
	}
	entry.Reward = new(big.Int).Set(amount)
	if err := l.setEntry(account, entry); err != nil {
		l.state.RevertTo(checkpoint)
		return err
	}
	if err := l.state.Stage().Commit(); err != nil {
		l.state.RevertTo(checkpoint)
		return err
	}

	logger.Info("reward set", "account", account, "reward", amount)
	l.logEvent(auditdb.KindRewardSet, account, amount, entry.Principal)
	return nil
}

// ConsumeReward decrements an account's reward balance, clamping at zero.
// Returns the amount actually consumed. Only authorized callers may consume.
func (l *Ledger) ConsumeReward(caller, account subsidy.Address, amount *big.Int) (*big.Int, error) {
	if !l.auth.Authorized(caller) {
		logger.Warn("reward mutation denied", "caller", caller, "account", account)
		return nil, ErrUnauthorized
	}
	if amount == nil || amount.Sign() < 0 {
		return nil, ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	checkpoint := l.state.NewCheckpoint()

	entry, err := l.getEntry(account)
	if err != nil {
		return nil, err
	}
	consumed := new(big.Int).Set(amount)
	if entry.Reward.Cmp(amount) < 0 {
		consumed.Set(entry.Reward)
	}
	entry.Reward = new(big.Int).Sub(entry.Reward, consumed)
	if err := l.setEntry(account, entry); err != nil {
		l.state.RevertTo(checkpoint)
		return nil, err
	}
	if err := l.state.Stage().Commit(); err != nil {
		l.state.RevertTo(checkpoint)
		return nil, err
	}

	logger.Debug("reward consumed", "account", account, "consumed", consumed, "remaining", entry.Reward)
	l.logEvent(auditdb.KindRewardSet, account, entry.Reward, entry.Principal)
	return consumed, nil
}

// TotalStaked returns the total value ever staked.
func (l *Ledger) TotalStaked() (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.getTotal(totalStakedKey)
}

// TotalUnstaked returns the total value ever unstaked.
func (l *Ledger) TotalUnstaked() (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.getTotal(totalUnstakedKey)
}

func (l *Ledger) logEvent(kind auditdb.Kind, account subsidy.Address, amount, balance *big.Int) {
	if l.audit == nil {
		return
	}
	if err := l.audit.Log(&auditdb.Event{
		Timestamp: l.now(),
		Kind:      kind,
		Account:   account,
		Amount:    new(big.Int).Set(amount),
		Balance:   new(big.Int).Set(balance),
	}); err != nil {
		logger.Warn("audit append failed", "kind", kind, "error", err)
	}
}
