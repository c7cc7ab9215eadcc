// Copyright (c) 2025 The subsidy developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package oracle_test

import (
	"math/big"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/subsidynet/subsidy/oracle"
	"github.com/subsidynet/subsidy/subsidy"
)

type snapshot struct {
	rewards map[subsidy.Address]*big.Int
	err     error
}

func (s *snapshot) GetReward(account subsidy.Address) (*big.Int, error) {
	if s.err != nil {
		return nil, s.err
	}
	if reward, ok := s.rewards[account]; ok {
		return reward, nil
	}
	return new(big.Int), nil
}

func TestIsEligible(t *testing.T) {
	acc := subsidy.BytesToAddress([]byte("acc"))
	other := subsidy.BytesToAddress([]byte("other"))
	snap := &snapshot{rewards: map[subsidy.Address]*big.Int{
		acc: big.NewInt(50),
	}}

	o := oracle.New(big.NewInt(100))

	eligible, allowance, err := o.IsEligible(snap, acc)
	assert.Nil(t, err)
	assert.True(t, eligible)
	assert.Equal(t, big.NewInt(50), allowance)

	eligible, allowance, err = o.IsEligible(snap, other)
	assert.Nil(t, err)
	assert.False(t, eligible)
	assert.Equal(t, 0, allowance.Sign())
}

func TestAllowanceCapped(t *testing.T) {
	acc := subsidy.BytesToAddress([]byte("acc"))
	snap := &snapshot{rewards: map[subsidy.Address]*big.Int{
		acc: big.NewInt(500),
	}}

	o := oracle.New(big.NewInt(100))
	eligible, allowance, err := o.IsEligible(snap, acc)
	assert.Nil(t, err)
	assert.True(t, eligible)
	assert.Equal(t, big.NewInt(100), allowance)

	// uncapped
	o = oracle.New(nil)
	_, allowance, _ = o.IsEligible(snap, acc)
	assert.Equal(t, big.NewInt(500), allowance)
}

func TestLedgerUnavailable(t *testing.T) {
	acc := subsidy.BytesToAddress([]byte("acc"))
	snap := &snapshot{err: errors.New("db closed")}

	o := oracle.New(big.NewInt(100))
	eligible, _, err := o.IsEligible(snap, acc)
	assert.False(t, eligible)
	assert.Equal(t, oracle.ErrLedgerUnavailable, errors.Cause(err))
}

func TestDeterministicReEvaluation(t *testing.T) {
	acc := subsidy.BytesToAddress([]byte("acc"))
	snap := &snapshot{rewards: map[subsidy.Address]*big.Int{
		acc: big.NewInt(50),
	}}

	o := oracle.New(big.NewInt(100))
	_, first, err := o.IsEligible(snap, acc)
	assert.Nil(t, err)
	_, second, err := o.IsEligible(snap, acc)
	assert.Nil(t, err)
	assert.Equal(t, first, second)
}
