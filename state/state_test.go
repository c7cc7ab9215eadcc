// Copyright (c) 2025 The subsidy developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package state_test

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/subsidynet/subsidy/lvldb"
	"github.com/subsidynet/subsidy/state"
	"github.com/subsidynet/subsidy/subsidy"
)

func TestStateRawRoundTrip(t *testing.T) {
	db, _ := lvldb.NewMem()
	defer db.Close()

	st, err := state.New(db)
	assert.Nil(t, err)

	key := subsidy.Blake2b([]byte("key"))
	st.SetRaw(key, []byte("value"))

	raw, err := st.GetRaw(key)
	assert.Nil(t, err)
	assert.Equal(t, []byte("value"), raw)

	assert.Nil(t, st.Stage().Commit())

	// reopen on the same kv
	st2, err := state.New(db)
	assert.Nil(t, err)
	raw, err = st2.GetRaw(key)
	assert.Nil(t, err)
	assert.Equal(t, []byte("value"), raw)
}

func TestStateCheckpointRevert(t *testing.T) {
	db, _ := lvldb.NewMem()
	defer db.Close()

	st, _ := state.New(db)

	key := subsidy.Blake2b([]byte("key"))
	st.SetRaw(key, []byte("before"))

	cp := st.NewCheckpoint()
	st.SetRaw(key, []byte("after"))
	other := subsidy.Blake2b([]byte("other"))
	st.SetRaw(other, []byte("x"))

	st.RevertTo(cp)

	raw, err := st.GetRaw(key)
	assert.Nil(t, err)
	assert.Equal(t, []byte("before"), raw)

	raw, err = st.GetRaw(other)
	assert.Nil(t, err)
	assert.Nil(t, raw)
}

func TestStructuredStorage(t *testing.T) {
	db, _ := lvldb.NewMem()
	defer db.Close()

	st, _ := state.New(db)

	key := subsidy.Blake2b([]byte("amount"))
	assert.Nil(t, st.SetStructuredStorage(key, big.NewInt(12345)))

	var amount big.Int
	assert.Nil(t, st.GetStructuredStorage(key, &amount))
	assert.Equal(t, big.NewInt(12345), &amount)

	// absent key leaves value untouched
	var absent big.Int
	assert.Nil(t, st.GetStructuredStorage(subsidy.Blake2b([]byte("absent")), &absent))
	assert.Equal(t, 0, absent.Sign())
}

func TestStageCommitAtomic(t *testing.T) {
	db, _ := lvldb.NewMem()
	defer db.Close()

	st, _ := state.New(db)

	k1 := subsidy.Blake2b([]byte("k1"))
	k2 := subsidy.Blake2b([]byte("k2"))
	st.SetRaw(k1, []byte("v1"))
	st.SetRaw(k2, []byte("v2"))

	assert.Nil(t, st.Stage().Commit())

	got, err := db.Get(k1.Bytes())
	assert.Nil(t, err)
	assert.Equal(t, []byte("v1"), got)
	got, err = db.Get(k2.Bytes())
	assert.Nil(t, err)
	assert.Equal(t, []byte("v2"), got)
}
