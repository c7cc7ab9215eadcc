// Copyright (c) 2025 The subsidy developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package main

import (
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net"
	"net/http"
	"os"
	"os/signal"
	"os/user"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	cli "gopkg.in/urfave/cli.v1"

	"github.com/subsidynet/subsidy/auditdb"
	"github.com/subsidynet/subsidy/auth"
	"github.com/subsidynet/subsidy/log"
	"github.com/subsidynet/subsidy/lvldb"
	"github.com/subsidynet/subsidy/metrics"
	"github.com/subsidynet/subsidy/subsidy"
)

func fatal(args ...interface{}) {
	var w io.Writer
	if runtime.GOOS == "windows" {
		// The SameFile check below doesn't work on Windows.
		// stdout is unlikely to get redirected though, so just print there.
		w = os.Stdout
	} else {
		outf, _ := os.Stdout.Stat()
		errf, _ := os.Stderr.Stat()
		if outf != nil && errf != nil && os.SameFile(outf, errf) {
			w = os.Stderr
		} else {
			w = io.MultiWriter(os.Stdout, os.Stderr)
		}
	}
	fmt.Fprint(w, "Fatal: ")
	fmt.Fprintln(w, args...)
	os.Exit(1)
}

func fatalf(format string, args ...interface{}) {
	fatal(fmt.Sprintf(format, args...))
}

func defaultDataDir() string {
	// Try to place the data folder in the user's home dir
	if home := homeDir(); home != "" {
		switch runtime.GOOS {
		case "darwin":
			return filepath.Join(home, "Library", "Application Support", "org.subsidynet.subsidy")
		case "windows":
			return filepath.Join(home, "AppData", "Roaming", "org.subsidynet.subsidy")
		default:
			return filepath.Join(home, ".org.subsidynet.subsidy")
		}
	}
	return ""
}

func homeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

func initLogger(ctx *cli.Context) {
	level := new(slog.LevelVar)
	level.Set(log.FromLegacyLevel(int(ctx.Uint64(verbosityFlag.Name))))

	var logger log.Logger
	if ctx.Bool(jsonLogsFlag.Name) {
		logger = log.NewLogger(log.JSONHandlerWithLevel(os.Stderr, level))
	} else {
		useColor := isatty.IsTerminal(os.Stderr.Fd()) && os.Getenv("TERM") != "dumb"
		logger = log.NewLogger(log.NewTerminalHandlerWithLevel(os.Stderr, level, useColor))
	}
	log.SetDefault(logger)
}

func makeInstanceDir(ctx *cli.Context) string {
	dataDir := ctx.String(dataDirFlag.Name)
	if dataDir == "" {
		fatalf("unable to infer default data dir, use -%s to specify one", dataDirFlag.Name)
	}
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		fatalf("create data dir at '%v': %v", dataDir, err)
	}
	return dataDir
}

func openMainDB(dataDir string) *lvldb.LevelDB {
	dir := filepath.Join(dataDir, "main.db")
	db, err := lvldb.New(dir, lvldb.Options{})
	if err != nil {
		fatalf("open main database at '%v': %v", dir, err)
	}
	return db
}

func openAuditDB(dataDir string) *auditdb.AuditDB {
	path := filepath.Join(dataDir, "audit.db")
	db, err := auditdb.New(path)
	if err != nil {
		fatalf("open audit database at '%v': %v", path, err)
	}
	return db
}

func parseControllers(ctx *cli.Context) *auth.Authority {
	raw := strings.TrimSpace(ctx.String(controllersFlag.Name))
	if raw == "" {
		fatalf("no controllers given, use -%s to specify at least one", controllersFlag.Name)
	}
	var callers []subsidy.Address
	for _, s := range strings.Split(raw, ",") {
		addr, err := subsidy.ParseAddress(strings.TrimSpace(s))
		if err != nil {
			fatalf("parse controller address '%v': %v", s, err)
		}
		callers = append(callers, *addr)
	}
	return auth.New(callers...)
}

func parseBigFlag(ctx *cli.Context, flag cli.StringFlag) *big.Int {
	raw := strings.TrimSpace(ctx.String(flag.Name))
	if raw == "" {
		return nil
	}
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		fatalf("parse -%s: invalid number '%v'", flag.Name, raw)
	}
	return v
}

func startAPIServer(ctx *cli.Context, handler http.HandlerFunc) (*http.Server, string) {
	addr := ctx.String(apiAddrFlag.Name)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		fatalf("listen API addr '%v': %v", addr, err)
	}
	srv := &http.Server{Handler: handler, ReadHeaderTimeout: time.Second * 10}
	go func() {
		srv.Serve(listener)
	}()
	return srv, "http://" + listener.Addr().String() + "/"
}

func startMetricsServer(ctx *cli.Context) *http.Server {
	if !ctx.Bool(enableMetricsFlag.Name) {
		return nil
	}
	metrics.InitializePrometheusMetrics()

	addr := ctx.String(metricsAddrFlag.Name)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		fatalf("listen metrics addr '%v': %v", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.HTTPHandler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: time.Second * 10}
	go func() {
		srv.Serve(listener)
	}()
	log.Info("metrics server started", "addr", "http://"+listener.Addr().String()+"/metrics")
	return srv
}

func handleExitSignal() <-chan struct{} {
	done := make(chan struct{})
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		log.Info("exit signal received", "signal", "interrupt")
		close(done)
	}()
	return done
}
