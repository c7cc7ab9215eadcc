// Copyright (c) 2025 The subsidy developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package auth maintains the set of addresses allowed to drive privileged
// operations, such as reward grants and request settlement.
package auth

import (
	"sync"

	"github.com/subsidynet/subsidy/subsidy"
)

// Authority is an address allowlist.
type Authority struct {
	mu      sync.RWMutex
	allowed map[subsidy.Address]bool
}

// New create an authority with the given initial callers.
func New(callers ...subsidy.Address) *Authority {
	allowed := make(map[subsidy.Address]bool, len(callers))
	for _, c := range callers {
		allowed[c] = true
	}
	return &Authority{allowed: allowed}
}

// Authorized reports whether the caller is on the allowlist.
func (a *Authority) Authorized(caller subsidy.Address) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.allowed[caller]
}

// Add puts a caller on the allowlist.
func (a *Authority) Add(caller subsidy.Address) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.allowed[caller] = true
}

// Revoke removes a caller from the allowlist.
func (a *Authority) Revoke(caller subsidy.Address) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.allowed, caller)
}
