// Copyright (c) 2025 The subsidy developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package lvldb

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/subsidynet/subsidy/kv"
)

func TestLevelDB(t *testing.T) {
	db, err := NewMem()
	assert.Nil(t, err)
	defer db.Close()

	key := []byte("key")
	value := []byte("value")

	assert.Nil(t, db.Put(key, value))

	got, err := db.Get(key)
	assert.Nil(t, err)
	assert.Equal(t, value, got)

	has, err := db.Has(key)
	assert.Nil(t, err)
	assert.True(t, has)

	_, err = db.Get([]byte("absent"))
	assert.True(t, db.IsNotFound(err))

	assert.Nil(t, db.Delete(key))
	has, err = db.Has(key)
	assert.Nil(t, err)
	assert.False(t, has)
}

func TestLevelDBBatch(t *testing.T) {
	db, err := NewMem()
	assert.Nil(t, err)
	defer db.Close()

	batch := db.NewBatch()
	assert.Nil(t, batch.Put([]byte("k1"), []byte("v1")))
	assert.Nil(t, batch.Put([]byte("k2"), []byte("v2")))
	assert.Equal(t, 2, batch.Len())
	assert.Nil(t, batch.Write())

	got, err := db.Get([]byte("k1"))
	assert.Nil(t, err)
	assert.Equal(t, []byte("v1"), got)
}

func TestLevelDBIterator(t *testing.T) {
	db, err := NewMem()
	assert.Nil(t, err)
	defer db.Close()

	assert.Nil(t, db.Put([]byte("a1"), []byte("1")))
	assert.Nil(t, db.Put([]byte("a2"), []byte("2")))
	assert.Nil(t, db.Put([]byte("b1"), []byte("3")))

	it := db.NewIterator(kv.Range{From: []byte("a"), To: []byte("b")})
	defer it.Release()

	var n int
	for it.Next() {
		n++
	}
	assert.Nil(t, it.Error())
	assert.Equal(t, 2, n)
}
