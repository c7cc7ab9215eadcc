// Copyright (c) 2025 The subsidy developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package ledger_test

import (
	"context"
	"math/big"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/subsidynet/subsidy/auditdb"
	"github.com/subsidynet/subsidy/kv"
	"github.com/subsidynet/subsidy/ledger"
	"github.com/subsidynet/subsidy/lvldb"
	"github.com/subsidynet/subsidy/state"
	"github.com/subsidynet/subsidy/subsidy"
)

type mockMover struct {
	toPool   *big.Int
	fromPool *big.Int
	failNext bool
}

func newMockMover() *mockMover {
	return &mockMover{toPool: new(big.Int), fromPool: new(big.Int)}
}

func (m *mockMover) TransferToPool(_ subsidy.Address, amount *big.Int) error {
	if m.failNext {
		m.failNext = false
		return errors.New("transfer rejected")
	}
	m.toPool.Add(m.toPool, amount)
	return nil
}

func (m *mockMover) TransferFromPool(_ subsidy.Address, amount *big.Int) error {
	if m.failNext {
		m.failNext = false
		return errors.New("transfer rejected")
	}
	m.fromPool.Add(m.fromPool, amount)
	return nil
}

type mockAuthority struct {
	controller subsidy.Address
}

func (a *mockAuthority) Authorized(caller subsidy.Address) bool {
	return caller == a.controller
}

var controller = subsidy.BytesToAddress([]byte("controller"))

func newTestLedger(t *testing.T, db kv.GetPutter) (*ledger.Ledger, *mockMover) {
	st, err := state.New(db)
	assert.Nil(t, err)
	mover := newMockMover()
	return ledger.New(st, mover, &mockAuthority{controller}, nil), mover
}

func TestStakeUnstake(t *testing.T) {
	db, _ := lvldb.NewMem()
	defer db.Close()
	l, mover := newTestLedger(t, db)

	acc := subsidy.BytesToAddress([]byte("acc1"))

	assert.Nil(t, l.Stake(acc, big.NewInt(100)))
	principal, err := l.Principal(acc)
	assert.Nil(t, err)
	assert.Equal(t, big.NewInt(100), principal)
	assert.Equal(t, big.NewInt(100), mover.toPool)

	assert.Nil(t, l.Unstake(acc, big.NewInt(40)))
	principal, _ = l.Principal(acc)
	assert.Equal(t, big.NewInt(60), principal)
	assert.Equal(t, big.NewInt(40), mover.fromPool)

	total, err := l.TotalStaked()
	assert.Nil(t, err)
	assert.Equal(t, big.NewInt(100), total)
	total, err = l.TotalUnstaked()
	assert.Nil(t, err)
	assert.Equal(t, big.NewInt(40), total)
}

func TestStakeInvalidAmount(t *testing.T) {
	db, _ := lvldb.NewMem()
	defer db.Close()
	l, _ := newTestLedger(t, db)

	acc := subsidy.BytesToAddress([]byte("acc1"))

	assert.Equal(t, ledger.ErrInvalidAmount, l.Stake(acc, big.NewInt(0)))
	assert.Equal(t, ledger.ErrInvalidAmount, l.Stake(acc, big.NewInt(-5)))
	assert.Equal(t, ledger.ErrInvalidAmount, l.Stake(acc, nil))
	assert.Equal(t, ledger.ErrInvalidAmount, l.Unstake(acc, big.NewInt(0)))
}

func TestUnstakeExceedingPrincipal(t *testing.T) {
	db, _ := lvldb.NewMem()
	defer db.Close()
	l, _ := newTestLedger(t, db)

	acc := subsidy.BytesToAddress([]byte("acc1"))
	assert.Nil(t, l.Stake(acc, big.NewInt(50)))

	err := l.Unstake(acc, big.NewInt(51))
	assert.Equal(t, ledger.ErrInsufficientBalance, err)

	// balance unchanged
	principal, _ := l.Principal(acc)
	assert.Equal(t, big.NewInt(50), principal)
}

func TestStakeTransferFailureIsAtomic(t *testing.T) {
	db, _ := lvldb.NewMem()
	defer db.Close()
	l, mover := newTestLedger(t, db)

	acc := subsidy.BytesToAddress([]byte("acc1"))
	mover.failNext = true
	assert.Error(t, l.Stake(acc, big.NewInt(100)))

	principal, _ := l.Principal(acc)
	assert.Equal(t, 0, principal.Sign())
	total, _ := l.TotalStaked()
	assert.Equal(t, 0, total.Sign())
}

func TestUnstakeTransferFailureIsAtomic(t *testing.T) {
	db, _ := lvldb.NewMem()
	defer db.Close()
	l, mover := newTestLedger(t, db)

	acc := subsidy.BytesToAddress([]byte("acc1"))
	assert.Nil(t, l.Stake(acc, big.NewInt(100)))

	mover.failNext = true
	assert.Error(t, l.Unstake(acc, big.NewInt(60)))

	principal, _ := l.Principal(acc)
	assert.Equal(t, big.NewInt(100), principal)
}

type flakyDB struct {
	kv.GetPutter
	failNext bool
}

func (f *flakyDB) NewBatch() kv.Batch {
	if f.failNext {
		f.failNext = false
		return &failingBatch{f.GetPutter.NewBatch()}
	}
	return f.GetPutter.NewBatch()
}

type failingBatch struct{ kv.Batch }

func (b *failingBatch) Write() error { return errors.New("write rejected") }

func TestCommitFailureLeavesNoStagedState(t *testing.T) {
	db, _ := lvldb.NewMem()
	defer db.Close()
	fdb := &flakyDB{GetPutter: db}
	l, _ := newTestLedger(t, fdb)

	acc := subsidy.BytesToAddress([]byte("acc1"))
	fdb.failNext = true
	assert.Error(t, l.Stake(acc, big.NewInt(100)))

	// the failed stake is not visible to reads
	principal, err := l.Principal(acc)
	assert.Nil(t, err)
	assert.Equal(t, 0, principal.Sign())

	// and does not bleed into the next successful commit
	assert.Nil(t, l.Stake(acc, big.NewInt(40)))
	principal, _ = l.Principal(acc)
	assert.Equal(t, big.NewInt(40), principal)
	total, _ := l.TotalStaked()
	assert.Equal(t, big.NewInt(40), total)
}

func TestRewards(t *testing.T) {
	db, _ := lvldb.NewMem()
	defer db.Close()
	l, _ := newTestLedger(t, db)

	acc := subsidy.BytesToAddress([]byte("acc1"))

	// default zero for unknown accounts
	reward, err := l.GetReward(acc)
	assert.Nil(t, err)
	assert.Equal(t, 0, reward.Sign())

	intruder := subsidy.BytesToAddress([]byte("intruder"))
	assert.Equal(t, ledger.ErrUnauthorized, l.SetReward(intruder, acc, big.NewInt(50)))

	assert.Nil(t, l.SetReward(controller, acc, big.NewInt(50)))
	reward, _ = l.GetReward(acc)
	assert.Equal(t, big.NewInt(50), reward)

	// overwrite, not accumulate
	assert.Nil(t, l.SetReward(controller, acc, big.NewInt(20)))
	reward, _ = l.GetReward(acc)
	assert.Equal(t, big.NewInt(20), reward)

	assert.Equal(t, ledger.ErrInvalidAmount, l.SetReward(controller, acc, big.NewInt(-1)))
}

func TestConsumeReward(t *testing.T) {
	db, _ := lvldb.NewMem()
	defer db.Close()
	l, _ := newTestLedger(t, db)

	acc := subsidy.BytesToAddress([]byte("acc1"))
	assert.Nil(t, l.SetReward(controller, acc, big.NewInt(50)))

	intruder := subsidy.BytesToAddress([]byte("intruder"))
	_, err := l.ConsumeReward(intruder, acc, big.NewInt(10))
	assert.Equal(t, ledger.ErrUnauthorized, err)

	consumed, err := l.ConsumeReward(controller, acc, big.NewInt(10))
	assert.Nil(t, err)
	assert.Equal(t, big.NewInt(10), consumed)
	reward, _ := l.GetReward(acc)
	assert.Equal(t, big.NewInt(40), reward)

	// clamps at zero
	consumed, err = l.ConsumeReward(controller, acc, big.NewInt(100))
	assert.Nil(t, err)
	assert.Equal(t, big.NewInt(40), consumed)
	reward, _ = l.GetReward(acc)
	assert.Equal(t, 0, reward.Sign())
}

func TestConservation(t *testing.T) {
	db, _ := lvldb.NewMem()
	defer db.Close()
	l, _ := newTestLedger(t, db)

	accounts := []subsidy.Address{
		subsidy.BytesToAddress([]byte("a1")),
		subsidy.BytesToAddress([]byte("a2")),
		subsidy.BytesToAddress([]byte("a3")),
	}

	assert.Nil(t, l.Stake(accounts[0], big.NewInt(100)))
	assert.Nil(t, l.Stake(accounts[1], big.NewInt(200)))
	assert.Nil(t, l.Stake(accounts[2], big.NewInt(300)))
	assert.Nil(t, l.Unstake(accounts[1], big.NewInt(150)))
	assert.Nil(t, l.Stake(accounts[0], big.NewInt(50)))
	assert.Nil(t, l.Unstake(accounts[2], big.NewInt(300)))

	sum := new(big.Int)
	for _, acc := range accounts {
		principal, err := l.Principal(acc)
		assert.Nil(t, err)
		assert.True(t, principal.Sign() >= 0)
		sum.Add(sum, principal)
	}

	staked, _ := l.TotalStaked()
	unstaked, _ := l.TotalUnstaked()
	assert.Equal(t, sum, new(big.Int).Sub(staked, unstaked))
}

func TestPersistenceAcrossReopen(t *testing.T) {
	db, _ := lvldb.NewMem()
	defer db.Close()

	l, _ := newTestLedger(t, db)
	acc := subsidy.BytesToAddress([]byte("acc1"))
	assert.Nil(t, l.Stake(acc, big.NewInt(75)))
	assert.Nil(t, l.SetReward(controller, acc, big.NewInt(30)))

	// fresh ledger over the same kv sees committed balances
	l2, _ := newTestLedger(t, db)
	principal, err := l2.Principal(acc)
	assert.Nil(t, err)
	assert.Equal(t, big.NewInt(75), principal)
	reward, err := l2.GetReward(acc)
	assert.Nil(t, err)
	assert.Equal(t, big.NewInt(30), reward)

	staked, _ := l2.TotalStaked()
	unstaked, _ := l2.TotalUnstaked()
	assert.Equal(t, big.NewInt(75), new(big.Int).Sub(staked, unstaked))
}

func TestAuditEvents(t *testing.T) {
	db, _ := lvldb.NewMem()
	defer db.Close()
	adb, err := auditdb.NewMem()
	assert.Nil(t, err)
	defer adb.Close()

	st, _ := state.New(db)
	l := ledger.New(st, newMockMover(), &mockAuthority{controller}, adb)

	acc := subsidy.BytesToAddress([]byte("acc1"))
	assert.Nil(t, l.Stake(acc, big.NewInt(100)))
	assert.Nil(t, l.Unstake(acc, big.NewInt(10)))
	assert.Nil(t, l.SetReward(controller, acc, big.NewInt(5)))

	events, err := adb.Filter(context.Background(), nil)
	assert.Nil(t, err)
	assert.Len(t, events, 3)
	assert.Equal(t, auditdb.KindStake, events[0].Kind)
	assert.Equal(t, auditdb.KindUnstake, events[1].Kind)
	assert.Equal(t, auditdb.KindRewardSet, events[2].Kind)
	assert.Equal(t, big.NewInt(90), events[1].Balance)
}
