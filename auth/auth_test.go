// Copyright (c) 2025 The subsidy developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package auth_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/subsidynet/subsidy/auth"
	"github.com/subsidynet/subsidy/subsidy"
)

func TestAuthority(t *testing.T) {
	a := subsidy.BytesToAddress([]byte("a"))
	b := subsidy.BytesToAddress([]byte("b"))

	authority := auth.New(a)
	assert.True(t, authority.Authorized(a))
	assert.False(t, authority.Authorized(b))

	authority.Add(b)
	assert.True(t, authority.Authorized(b))

	authority.Revoke(a)
	assert.False(t, authority.Authorized(a))
}
