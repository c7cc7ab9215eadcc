// Copyright (c) 2025 The subsidy developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package subsidy

import (
	"math/big"
	"time"
)

// Constants of the sponsorship protocol.
const (
	// MaxPendingLifetime bounds how long an approved reservation may stay
	// pending before the cleanup path releases it.
	MaxPendingLifetime = 10 * time.Minute
)

// Keys of governance params.
var (
	KeyRequestCap        = BytesToBytes32([]byte("request-cap"))
	KeyConsumptionRate   = BytesToBytes32([]byte("consumption-rate"))
	KeySettlementCeiling = BytesToBytes32([]byte("settlement-ceiling"))

	InitialRequestCap      = big.NewInt(1e18)  // max sponsorable amount per request
	InitialConsumptionRate = big.NewInt(10000) // basis points of charged cost deducted from reward, 10000 = 1:1

	// actual cost above this is treated as fraud/bug
	InitialSettlementCeiling = new(big.Int).Mul(big.NewInt(10), big.NewInt(1e18))
)
