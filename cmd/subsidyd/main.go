// Copyright (c) 2025 The subsidy developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"time"

	cli "gopkg.in/urfave/cli.v1"

	"github.com/subsidynet/subsidy/api"
	"github.com/subsidynet/subsidy/co"
	"github.com/subsidynet/subsidy/ledger"
	"github.com/subsidynet/subsidy/log"
	"github.com/subsidynet/subsidy/sponsor"
	"github.com/subsidynet/subsidy/state"
	"github.com/subsidynet/subsidy/subsidy"
)

var (
	version   = "1.0.0"
	gitCommit string
	gitTag    string

	logger = log.WithContext("pkg", "main")
)

func fullVersion() string {
	versionMeta := "release"
	if gitTag == "" {
		versionMeta = "dev"
	}
	return fmt.Sprintf("%s-%.8s-%s", version, gitCommit, versionMeta)
}

func main() {
	app := cli.App{
		Version:   fullVersion(),
		Name:      "subsidyd",
		Usage:     "stake-backed transaction fee sponsorship service",
		Copyright: "2025 The subsidy developers",
		Flags: []cli.Flag{
			dataDirFlag,
			apiAddrFlag,
			apiCorsFlag,
			apiAuditLimitFlag,
			controllersFlag,
			requestCapFlag,
			settlementCeilingFlag,
			consumptionRateFlag,
			expiryIntervalFlag,
			verbosityFlag,
			jsonLogsFlag,
			enableMetricsFlag,
			metricsAddrFlag,
		},
		Action: defaultAction,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// custody stands in for the external token vault. Principal moved in or out
// of the pool is held off-process; transfers are recorded here only.
type custody struct{}

func (custody) TransferToPool(account subsidy.Address, amount *big.Int) error {
	logger.Debug("principal moved to pool", "account", account, "amount", amount)
	return nil
}

func (custody) TransferFromPool(account subsidy.Address, amount *big.Int) error {
	logger.Debug("principal moved from pool", "account", account, "amount", amount)
	return nil
}

func defaultAction(ctx *cli.Context) error {
	defer func() { log.Info("exited") }()

	initLogger(ctx)
	dataDir := makeInstanceDir(ctx)

	mainDB := openMainDB(dataDir)
	defer func() { log.Info("closing main database..."); mainDB.Close() }()

	auditDB := openAuditDB(dataDir)
	defer func() { log.Info("closing audit database..."); auditDB.Close() }()

	metricsSrv := startMetricsServer(ctx)
	if metricsSrv != nil {
		defer func() { metricsSrv.Shutdown(context.Background()) }()
	}

	authority := parseControllers(ctx)

	ledgerState, err := state.New(mainDB)
	if err != nil {
		fatalf("create ledger state: %v", err)
	}
	l := ledger.New(ledgerState, custody{}, authority, auditDB)

	engineState, err := state.New(mainDB)
	if err != nil {
		fatalf("create engine state: %v", err)
	}
	engine := sponsor.New(engineState, l, l, authority, auditDB, sponsor.Options{
		RequestCap:         parseBigFlag(ctx, requestCapFlag),
		SettlementCeiling:  parseBigFlag(ctx, settlementCeilingFlag),
		ConsumptionRateBps: ctx.Uint64(consumptionRateFlag.Name),
	})

	handler := api.New(l, engine, auditDB, api.Options{
		AllowedOrigins: ctx.String(apiCorsFlag.Name),
		AuditLimit:     ctx.Uint64(apiAuditLimitFlag.Name),
	})
	apiSrv, apiURL := startAPIServer(ctx, handler)
	defer func() { log.Info("stopping API server..."); apiSrv.Shutdown(context.Background()) }()

	printStartupMessage(dataDir, apiURL)

	done := handleExitSignal()

	var goes co.Goes
	goes.Go(func() {
		expiryLoop(engine, time.Duration(ctx.Uint64(expiryIntervalFlag.Name))*time.Second, done)
	})
	<-done
	goes.Wait()
	return nil
}

// expiryLoop periodically releases reservations that never began executing.
// The interval is clamped to at least one second; time.NewTicker panics on
// non-positive durations.
func expiryLoop(engine *sponsor.Engine, interval time.Duration, done <-chan struct{}) {
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			released, err := engine.ExpireStale()
			if err != nil {
				logger.Error("stale reservation cleanup failed", "error", err)
				continue
			}
			if released > 0 {
				logger.Info("stale reservations released", "count", released)
			}
		case <-done:
			return
		}
	}
}

func printStartupMessage(dataDir string, apiURL string) {
	fmt.Printf(`Starting %v
    Version     %v
    Data dir    %v
    API portal  %v
`,
		"subsidyd",
		fullVersion(),
		dataDir,
		apiURL)
}
