// Copyright (c) 2025 The subsidy developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package sponsor

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/subsidynet/subsidy/lvldb"
	"github.com/subsidynet/subsidy/state"
	"github.com/subsidynet/subsidy/subsidy"
)

type openAuthority struct{}

func (openAuthority) Authorized(subsidy.Address) bool { return true }

type fixedRewards struct {
	reward *big.Int
}

func (r fixedRewards) GetReward(subsidy.Address) (*big.Int, error) {
	return new(big.Int).Set(r.reward), nil
}

func TestHaltLatch(t *testing.T) {
	db, _ := lvldb.NewMem()
	defer db.Close()
	st, err := state.New(db)
	assert.Nil(t, err)

	reader := fixedRewards{big.NewInt(50)}
	e := New(st, reader, nil, openAuthority{}, nil, Options{})

	caller := subsidy.BytesToAddress([]byte("caller"))
	acc := subsidy.BytesToAddress([]byte("acc1"))

	assert.Nil(t, e.Deposit(caller, big.NewInt(1000)))
	decision, err := e.Validate(caller, acc, big.NewInt(30))
	assert.Nil(t, err)
	assert.True(t, decision.Approved)

	// corrupt the reserved total below the outstanding reservation, so
	// releasing it would drive the total negative
	assert.Nil(t, e.budget.setReservedTotal(big.NewInt(5)))
	assert.Nil(t, e.state.Stage().Commit())

	_, err = e.Settle(caller, decision.RequestID, big.NewInt(25), true)
	assert.Error(t, err)
	assert.True(t, e.Halted())

	// approvals are suspended while halted
	decision, err = e.Validate(caller, acc, big.NewInt(10))
	assert.Nil(t, err)
	assert.False(t, decision.Approved)
	assert.Equal(t, ReasonHalted, decision.Reason)

	// the latch survives a restart
	st2, _ := state.New(db)
	reopened := New(st2, reader, nil, openAuthority{}, nil, Options{})
	assert.True(t, reopened.Halted())

	// resume lifts it for this instance and for later restarts
	assert.Nil(t, e.Resume(caller))
	assert.False(t, e.Halted())
	decision, err = e.Validate(caller, acc, big.NewInt(10))
	assert.Nil(t, err)
	assert.True(t, decision.Approved)

	st3, _ := state.New(db)
	resumed := New(st3, reader, nil, openAuthority{}, nil, Options{})
	assert.False(t, resumed.Halted())
}
