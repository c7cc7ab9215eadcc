// Copyright (c) 2025 The subsidy developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package main

import (
	cli "gopkg.in/urfave/cli.v1"

	"github.com/subsidynet/subsidy/log"
)

var (
	dataDirFlag = cli.StringFlag{
		Name:  "data-dir",
		Value: defaultDataDir(),
		Usage: "directory for databases",
	}
	apiAddrFlag = cli.StringFlag{
		Name:  "api-addr",
		Value: "localhost:8669",
		Usage: "API service listening address",
	}
	apiCorsFlag = cli.StringFlag{
		Name:  "api-cors",
		Value: "",
		Usage: "comma separated list of domains from which to accept cross origin requests to API",
	}
	apiAuditLimitFlag = cli.Uint64Flag{
		Name:  "api-audit-limit",
		Value: 100,
		Usage: "limit the number of events returned by /audit API",
	}
	controllersFlag = cli.StringFlag{
		Name:  "controllers",
		Usage: "comma separated list of addresses allowed to drive privileged operations",
	}
	requestCapFlag = cli.StringFlag{
		Name:  "request-cap",
		Usage: "per-request sponsorship allowance cap",
	}
	settlementCeilingFlag = cli.StringFlag{
		Name:  "settlement-ceiling",
		Usage: "hard ceiling on reported actual cost",
	}
	consumptionRateFlag = cli.Uint64Flag{
		Name:  "consumption-rate",
		Value: 10000,
		Usage: "reward consumption rate in basis points of the charged amount",
	}
	expiryIntervalFlag = cli.Uint64Flag{
		Name:  "expiry-interval",
		Value: 60,
		Usage: "seconds between stale reservation cleanup runs",
	}
	verbosityFlag = cli.Uint64Flag{
		Name:  "verbosity",
		Value: log.LegacyLevelInfo,
		Usage: "log verbosity (0-5)",
	}
	jsonLogsFlag = cli.BoolFlag{
		Name:  "json-logs",
		Usage: "output logs in JSON format",
	}
	enableMetricsFlag = cli.BoolFlag{
		Name:  "enable-metrics",
		Usage: "enables metrics collection",
	}
	metricsAddrFlag = cli.StringFlag{
		Name:  "metrics-addr",
		Value: "localhost:2112",
		Usage: "metrics service listening address",
	}
)
