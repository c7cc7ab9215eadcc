// Copyright (c) 2025 The subsidy developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package sponsor

import (
	"encoding/binary"
	"io"
	"math/big"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/subsidynet/subsidy/auditdb"
	"github.com/subsidynet/subsidy/log"
	"github.com/subsidynet/subsidy/metrics"
	"github.com/subsidynet/subsidy/oracle"
	"github.com/subsidynet/subsidy/state"
	"github.com/subsidynet/subsidy/subsidy"
)

var (
	logger = log.WithContext("pkg", "sponsor")

	metricValidations = metrics.LazyLoadCounterVec("sponsor_validations_count", []string{"outcome"})
	metricSettlements = metrics.LazyLoadCounterVec("sponsor_settlements_count", []string{"outcome"})
)

// Error kinds of engine operations.
var (
	ErrUnauthorized             = errors.New("unauthorized")
	ErrInvalidAmount            = errors.New("invalid amount")
	ErrInsufficientSponsorFunds = errors.New("insufficient sponsor funds")
	ErrDuplicateSettlement      = errors.New("duplicate settlement")
	ErrUnknownRequest           = errors.New("unknown request")
	ErrHalted                   = errors.New("engine halted, approvals suspended")
)

// Rejection reasons reported in decisions.
const (
	ReasonIneligible        = "ineligible"
	ReasonExceedsAllowance  = "declared cost exceeds allowance"
	ReasonSponsorFunds      = "insufficient sponsor funds"
	ReasonLedgerUnavailable = "ledger unavailable"
	ReasonHalted            = "approvals suspended"
)

// RewardConsumer debits an account's reward balance through the ledger's
// authorized mutation path.
type RewardConsumer interface {
	ConsumeReward(caller, account subsidy.Address, amount *big.Int) (*big.Int, error)
}

// Authority tells whether a caller may drive validation and settlement,
// or manage the sponsor budget.
type Authority interface {
	Authorized(caller subsidy.Address) bool
}

// Options tune engine policy.
type Options struct {
	RequestCap         *big.Int      // per-request allowance cap, nil for default
	SettlementCeiling  *big.Int      // hard ceiling on actual cost, nil for default
	ConsumptionRateBps uint64        // reward debit rate in basis points of the charged amount
	MaxPendingLifetime time.Duration // pending reservations older than this are releasable
}

// Engine drives the sponsorship request state machine:
//
//	Received → Validating → {Approved, Rejected} → Executing → Settling → {Finalized, Reverted}
//
// It owns the sponsor budget and enforces at most one reservation per
// request id. Rejections touch no funds.
type Engine struct {
	mu         sync.Mutex
	state      *state.State
	budget     *budget
	oracle     *oracle.Oracle
	reader     oracle.RewardReader
	rewards    RewardConsumer
	auth       Authority
	audit      auditdb.Writer
	reconciler *Reconciler

	maxPending time.Duration
	halted     bool
	now        func() time.Time
}

// New create an engine over the given state.
func New(
	st *state.State,
	reader oracle.RewardReader,
	rewards RewardConsumer,
	auth Authority,
	audit auditdb.Writer,
	opts Options,
) *Engine {
	if opts.RequestCap == nil {
		opts.RequestCap = subsidy.InitialRequestCap
	}
	if opts.SettlementCeiling == nil {
		opts.SettlementCeiling = subsidy.InitialSettlementCeiling
	}
	if opts.ConsumptionRateBps == 0 {
		opts.ConsumptionRateBps = subsidy.InitialConsumptionRate.Uint64()
	}
	if opts.MaxPendingLifetime == 0 {
		opts.MaxPendingLifetime = subsidy.MaxPendingLifetime
	}

	b := &budget{st}
	// stored overrides take precedence over constructor options
	if v, err := b.paramOverride(subsidy.KeyRequestCap); err != nil {
		logger.Warn("failed to load stored parameter", "key", "request-cap", "error", err)
	} else if v != nil {
		opts.RequestCap = v
	}
	if v, err := b.paramOverride(subsidy.KeySettlementCeiling); err != nil {
		logger.Warn("failed to load stored parameter", "key", "settlement-ceiling", "error", err)
	} else if v != nil {
		opts.SettlementCeiling = v
	}
	if v, err := b.paramOverride(subsidy.KeyConsumptionRate); err != nil {
		logger.Warn("failed to load stored parameter", "key", "consumption-rate", "error", err)
	} else if v != nil {
		opts.ConsumptionRateBps = v.Uint64()
	}

	// an unreadable halt latch fails safe
	halted, err := b.isHalted()
	if err != nil {
		logger.Error("failed to load halt latch, suspending approvals", "error", err)
		halted = true
	}
	if halted {
		logger.Warn("engine starts halted, manual resume required")
	}

	return &Engine{
		state:      st,
		budget:     b,
		oracle:     oracle.New(opts.RequestCap),
		reader:     reader,
		rewards:    rewards,
		auth:       auth,
		audit:      audit,
		reconciler: NewReconciler(opts.SettlementCeiling, opts.ConsumptionRateBps),
		maxPending: opts.MaxPendingLifetime,
		halted:     halted,
		now:        time.Now,
	}
}

// SetParam stores an override for one of the engine parameter keys and
// applies it to subsequent decisions. The override survives restarts.
func (e *Engine) SetParam(caller subsidy.Address, key subsidy.Bytes32, value *big.Int) error {
	if !e.auth.Authorized(caller) {
		return ErrUnauthorized
	}
	if value == nil || value.Sign() <= 0 {
		return ErrInvalidAmount
	}
	switch key {
	case subsidy.KeyRequestCap, subsidy.KeyConsumptionRate, subsidy.KeySettlementCeiling:
	default:
		return errors.New("unknown parameter key")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	checkpoint := e.state.NewCheckpoint()
	if err := e.budget.setParamOverride(key, value); err != nil {
		e.state.RevertTo(checkpoint)
		return err
	}
	if err := e.state.Stage().Commit(); err != nil {
		e.state.RevertTo(checkpoint)
		return err
	}

	switch key {
	case subsidy.KeyRequestCap:
		e.oracle = oracle.New(value)
	case subsidy.KeyConsumptionRate:
		e.reconciler = NewReconciler(e.reconciler.ceiling, value.Uint64())
	case subsidy.KeySettlementCeiling:
		e.reconciler = NewReconciler(value, e.reconciler.rateBps)
	}
	logger.Info("parameter updated", "key", key, "value", value)
	return nil
}

// Validate decides sponsorship for the given account and declared cost.
// On approval the estimated cost is reserved from the sponsor budget under a
// fresh request id. Rejection is terminal and touches no funds.
func (e *Engine) Validate(caller, account subsidy.Address, estimatedCost *big.Int) (*Decision, error) {
	if !e.auth.Authorized(caller) {
		return nil, ErrUnauthorized
	}
	if estimatedCost == nil || estimatedCost.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.halted {
		metricValidations().AddWithLabel(1, map[string]string{"outcome": "rejected"})
		return &Decision{Reason: ReasonHalted}, nil
	}

	eligible, allowance, err := e.oracle.IsEligible(e.reader, account)
	if err != nil {
		// indeterminate eligibility never defaults to approval
		logger.Warn("eligibility check failed", "account", account, "error", err)
		metricValidations().AddWithLabel(1, map[string]string{"outcome": "error"})
		return &Decision{Reason: ReasonLedgerUnavailable}, err
	}
	if !eligible {
		metricValidations().AddWithLabel(1, map[string]string{"outcome": "rejected"})
		return &Decision{Reason: ReasonIneligible}, nil
	}
	if estimatedCost.Cmp(allowance) > 0 {
		metricValidations().AddWithLabel(1, map[string]string{"outcome": "rejected"})
		return &Decision{Reason: ReasonExceedsAllowance, Allowance: allowance}, nil
	}

	checkpoint := e.state.NewCheckpoint()

	available, err := e.budget.available()
	if err != nil {
		return nil, err
	}
	if available.Cmp(estimatedCost) < 0 {
		metricValidations().AddWithLabel(1, map[string]string{"outcome": "rejected"})
		return &Decision{Reason: ReasonSponsorFunds, Allowance: allowance}, nil
	}

	nonce, err := e.budget.nextNonce()
	if err != nil {
		e.state.RevertTo(checkpoint)
		return nil, err
	}
	requestID := subsidy.Blake2bFn(func(w io.Writer) {
		w.Write(account.Bytes())
		binary.Write(w, binary.BigEndian, nonce)
	})

	reservedTotal, err := e.budget.reservedTotal()
	if err != nil {
		e.state.RevertTo(checkpoint)
		return nil, err
	}
	if err := e.budget.setAvailable(available.Sub(available, estimatedCost)); err != nil {
		e.state.RevertTo(checkpoint)
		return nil, err
	}
	if err := e.budget.setReservedTotal(reservedTotal.Add(reservedTotal, estimatedCost)); err != nil {
		e.state.RevertTo(checkpoint)
		return nil, err
	}
	if err := e.budget.setReservation(requestID, &reservation{
		Account:   account,
		Amount:    new(big.Int).Set(estimatedCost),
		Status:    StatusApproved,
		CreatedAt: uint64(e.now().Unix()),
	}); err != nil {
		e.state.RevertTo(checkpoint)
		return nil, err
	}
	if err := e.budget.addPending(requestID); err != nil {
		e.state.RevertTo(checkpoint)
		return nil, err
	}
	if err := e.state.Stage().Commit(); err != nil {
		e.state.RevertTo(checkpoint)
		return nil, err
	}

	metricValidations().AddWithLabel(1, map[string]string{"outcome": "approved"})
	logger.Info("request approved",
		"requestID", requestID,
		"account", account,
		"reserved", estimatedCost,
		"available", available,
	)
	e.logEvent(&auditdb.Event{
		Kind:      auditdb.KindReservation,
		Account:   account,
		RequestID: requestID,
		Amount:    new(big.Int).Set(estimatedCost),
		Balance:   new(big.Int).Set(available),
	})

	return &Decision{
		Approved:  true,
		RequestID: requestID,
		Allowance: allowance,
	}, nil
}

// Begin hands control to the sponsored operation. Once begun, the
// reservation is no longer releasable by the expiry cleanup.
func (e *Engine) Begin(caller subsidy.Address, requestID subsidy.Bytes32) error {
	if !e.auth.Authorized(caller) {
		return ErrUnauthorized
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	res, err := e.budget.getReservation(requestID)
	if err != nil {
		return err
	}
	if res.IsEmpty() {
		return ErrUnknownRequest
	}

	checkpoint := e.state.NewCheckpoint()

	res.Status = StatusExecuting
	if err := e.budget.setReservation(requestID, res); err != nil {
		e.state.RevertTo(checkpoint)
		return err
	}
	if err := e.state.Stage().Commit(); err != nil {
		e.state.RevertTo(checkpoint)
		return err
	}
	return nil
}

// Settle reconciles the reservation against the actual cost.
// Every request id settles at most once; repeated attempts fail with
// ErrDuplicateSettlement and are a no-op on the budget.
func (e *Engine) Settle(caller subsidy.Address, requestID subsidy.Bytes32, actualCost *big.Int, succeeded bool) (*Settlement, error) {
	if !e.auth.Authorized(caller) {
		return nil, ErrUnauthorized
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	settled, err := e.budget.isSettled(requestID)
	if err != nil {
		return nil, err
	}
	if settled {
		return nil, ErrDuplicateSettlement
	}

	res, err := e.budget.getReservation(requestID)
	if err != nil {
		return nil, err
	}
	if res.IsEmpty() {
		return nil, ErrUnknownRequest
	}

	out := e.reconciler.reconcile(res.Amount, actualCost, succeeded)

	checkpoint := e.state.NewCheckpoint()

	if err := e.releaseReservation(requestID, res, out.refund); err != nil {
		e.state.RevertTo(checkpoint)
		e.persistHaltLocked()
		return nil, err
	}
	if err := e.budget.removePending(requestID); err != nil {
		e.state.RevertTo(checkpoint)
		return nil, err
	}
	if err := e.budget.markSettled(requestID); err != nil {
		e.state.RevertTo(checkpoint)
		return nil, err
	}
	if err := e.state.Stage().Commit(); err != nil {
		e.state.RevertTo(checkpoint)
		return nil, err
	}

	outcome := "finalized"
	if out.reverted {
		outcome = "reverted"
		logger.Warn("settlement reverted, full reservation charged",
			"requestID", requestID,
			"account", res.Account,
			"actualCost", actualCost,
			"charged", out.charge,
		)
	} else {
		logger.Info("settled",
			"requestID", requestID,
			"account", res.Account,
			"charged", out.charge,
			"refunded", out.refund,
		)
	}
	metricSettlements().AddWithLabel(1, map[string]string{"outcome": outcome})

	kind := auditdb.KindSettlement
	if out.reverted {
		kind = auditdb.KindReverted
	}
	e.logEvent(&auditdb.Event{
		Kind:      kind,
		Account:   res.Account,
		RequestID: requestID,
		Amount:    new(big.Int).Set(out.charge),
		Flagged:   out.reverted,
	})

	if out.rewardDebit.Sign() > 0 && e.rewards != nil {
		if _, err := e.rewards.ConsumeReward(caller, res.Account, out.rewardDebit); err != nil {
			// the charge stands; reward debit failure is surfaced to audit
			logger.Error("reward consumption failed", "requestID", requestID, "account", res.Account, "error", err)
		}
	}

	return &Settlement{
		Finalized: !out.reverted,
		Reverted:  out.reverted,
		Charged:   out.charge,
		Refunded:  out.refund,
	}, nil
}

// releaseReservation refunds the given portion to available, drops the
// reservation and updates the reserved total. The caller commits.
func (e *Engine) releaseReservation(requestID subsidy.Bytes32, res *reservation, refund *big.Int) error {
	available, err := e.budget.available()
	if err != nil {
		return err
	}
	reservedTotal, err := e.budget.reservedTotal()
	if err != nil {
		return err
	}

	reservedTotal.Sub(reservedTotal, res.Amount)
	if reservedTotal.Sign() < 0 {
		e.haltLocked("reserved total went negative", requestID)
		return errors.New("budget accounting invariant violated")
	}

	if err := e.budget.setAvailable(available.Add(available, refund)); err != nil {
		return err
	}
	if err := e.budget.setReservedTotal(reservedTotal); err != nil {
		return err
	}
	return e.budget.deleteReservation(requestID)
}

// ExpireStale releases reservations that were approved but never began
// executing within the pending lifetime. Returns the number released.
func (e *Engine) ExpireStale() (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ids, err := e.budget.pendingIDs()
	if err != nil {
		return 0, err
	}

	deadline := uint64(e.now().Add(-e.maxPending).Unix())
	released := 0
	for _, id := range ids {
		res, err := e.budget.getReservation(id)
		if err != nil {
			return released, err
		}
		if res.IsEmpty() || res.Status != StatusApproved || res.CreatedAt > deadline {
			continue
		}

		checkpoint := e.state.NewCheckpoint()
		if err := e.releaseReservation(id, res, res.Amount); err != nil {
			e.state.RevertTo(checkpoint)
			e.persistHaltLocked()
			return released, err
		}
		if err := e.budget.removePending(id); err != nil {
			e.state.RevertTo(checkpoint)
			return released, err
		}
		if err := e.state.Stage().Commit(); err != nil {
			e.state.RevertTo(checkpoint)
			return released, err
		}

		released++
		logger.Info("stale reservation released", "requestID", id, "account", res.Account, "amount", res.Amount)
		e.logEvent(&auditdb.Event{
			Kind:      auditdb.KindExpired,
			Account:   res.Account,
			RequestID: id,
			Amount:    new(big.Int).Set(res.Amount),
		})
	}
	return released, nil
}

// Deposit adds sponsor funds to the available budget.
func (e *Engine) Deposit(caller subsidy.Address, amount *big.Int) error {
	if !e.auth.Authorized(caller) {
		return ErrUnauthorized
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	checkpoint := e.state.NewCheckpoint()

	available, err := e.budget.available()
	if err != nil {
		return err
	}
	if err := e.budget.setAvailable(available.Add(available, amount)); err != nil {
		e.state.RevertTo(checkpoint)
		return err
	}
	if err := e.state.Stage().Commit(); err != nil {
		e.state.RevertTo(checkpoint)
		return err
	}

	logger.Info("budget deposit", "amount", amount, "available", available)
	e.logEvent(&auditdb.Event{
		Kind:    auditdb.KindDeposit,
		Amount:  new(big.Int).Set(amount),
		Balance: new(big.Int).Set(available),
	})
	return nil
}

// Withdraw removes sponsor funds from the available budget.
// Reserved funds cannot be withdrawn.
func (e *Engine) Withdraw(caller subsidy.Address, amount *big.Int) error {
	if !e.auth.Authorized(caller) {
		return ErrUnauthorized
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	checkpoint := e.state.NewCheckpoint()

	available, err := e.budget.available()
	if err != nil {
		return err
	}
	if available.Cmp(amount) < 0 {
		return ErrInsufficientSponsorFunds
	}
	if err := e.budget.setAvailable(available.Sub(available, amount)); err != nil {
		e.state.RevertTo(checkpoint)
		return err
	}
	if err := e.state.Stage().Commit(); err != nil {
		e.state.RevertTo(checkpoint)
		return err
	}

	logger.Info("budget withdrawal", "amount", amount, "available", available)
	e.logEvent(&auditdb.Event{
		Kind:    auditdb.KindWithdraw,
		Amount:  new(big.Int).Set(amount),
		Balance: new(big.Int).Set(available),
	})
	return nil
}

// Available returns the unreserved sponsor budget.
func (e *Engine) Available() (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.budget.available()
}

// ReservedTotal returns the sum of all outstanding reservations.
func (e *Engine) ReservedTotal() (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.budget.reservedTotal()
}

// PendingCount returns the number of in-flight reservations.
func (e *Engine) PendingCount() (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ids, err := e.budget.pendingIDs()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, id := range ids {
		res, err := e.budget.getReservation(id)
		if err != nil {
			return 0, err
		}
		if !res.IsEmpty() {
			n++
		}
	}
	return n, nil
}

// GetRequest returns the in-flight reservation for the given id, or
// ErrUnknownRequest if none exists.
func (e *Engine) GetRequest(requestID subsidy.Bytes32) (*RequestInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	res, err := e.budget.getReservation(requestID)
	if err != nil {
		return nil, err
	}
	if res.IsEmpty() {
		return nil, ErrUnknownRequest
	}
	return &RequestInfo{
		RequestID: requestID,
		Account:   res.Account,
		Amount:    res.Amount,
		Status:    res.Status.String(),
		CreatedAt: res.CreatedAt,
	}, nil
}

// Halted reports whether approvals are suspended.
func (e *Engine) Halted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.halted
}

// Resume lifts the halt latch after manual reconciliation.
func (e *Engine) Resume(caller subsidy.Address) error {
	if !e.auth.Authorized(caller) {
		return ErrUnauthorized
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	checkpoint := e.state.NewCheckpoint()
	if err := e.budget.setHalted(false); err != nil {
		e.state.RevertTo(checkpoint)
		return err
	}
	if err := e.state.Stage().Commit(); err != nil {
		e.state.RevertTo(checkpoint)
		return err
	}
	e.halted = false
	logger.Warn("engine resumed")
	return nil
}

// persistHaltLocked stores the halt latch so a restart stays suspended.
// Called with no staged mutations outstanding; callers must hold e.mu.
func (e *Engine) persistHaltLocked() {
	if !e.halted {
		return
	}
	if err := e.budget.setHalted(true); err != nil {
		logger.Error("failed to persist halt latch", "error", err)
		return
	}
	if err := e.state.Stage().Commit(); err != nil {
		logger.Error("failed to persist halt latch", "error", err)
	}
}

// haltLocked suspends further approvals until manual reconciliation.
// Callers must hold e.mu.
func (e *Engine) haltLocked(reason string, requestID subsidy.Bytes32) {
	e.halted = true
	logger.Error("engine halted", "reason", reason, "requestID", requestID)
	e.logEvent(&auditdb.Event{
		Kind:      auditdb.KindReverted,
		RequestID: requestID,
		Flagged:   true,
	})
}

func (e *Engine) logEvent(ev *auditdb.Event) {
	if e.audit == nil {
		return
	}
	ev.Timestamp = uint64(e.now().Unix())
	if ev.Amount == nil {
		ev.Amount = new(big.Int)
	}
	if ev.Balance == nil {
		ev.Balance = new(big.Int)
	}
	if err := e.audit.Log(ev); err != nil {
		logger.Warn("audit append failed", "kind", ev.Kind, "error", err)
	}
}
