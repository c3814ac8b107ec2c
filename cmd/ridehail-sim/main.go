// Command ridehail-sim runs the block-stepped ridehail market simulation
// engine from an INI-style configuration file, following §6.4.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/realmfikri/ridehail-sim/engine"
	"github.com/realmfikri/ridehail-sim/internal/simconfig"
	"github.com/realmfikri/ridehail-sim/observe"
	"github.com/realmfikri/ridehail-sim/sequence"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("ridehail-sim", flag.ContinueOnError)
	addr := fs.String("addr", envString("RIDEHAIL_ADDR", ":8080"), "HTTP listen address for the observer server")
	enableAdmin := fs.Bool("enable-admin", false, "enable admin endpoints like pprof")
	serve := fs.Bool("serve", false, "start the HTTP/WebSocket observer server instead of exiting after the run")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	positional := fs.Args()
	if len(positional) < 1 {
		fmt.Fprintln(os.Stderr, "usage: ridehail-sim <config-path> [overrides key=value...]")
		return 2
	}
	configPath := positional[0]
	overrides := positional[1:]

	logger := slog.Default()

	cfg, err := simconfig.Load(configPath)
	if err != nil {
		logger.Error("invalid configuration", "err", err)
		return 2
	}
	for _, kv := range overrides {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			logger.Error("invalid override, expected key=value", "override", kv)
			return 2
		}
		if err := cfg.ApplyOverride(parts[0], parts[1]); err != nil {
			logger.Error("invalid override", "override", kv, "err", err)
			return 2
		}
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration after overrides", "err", err)
		return 2
	}

	if cfg.Default.RunSequence {
		return runSequence(*cfg, logger)
	}
	return runSingle(*cfg, logger, *addr, *serve, *enableAdmin)
}

func runSingle(cfg simconfig.Config, logger *slog.Logger, addr string, serve, enableAdmin bool) int {
	eng, err := engine.New(cfg)
	if err != nil {
		logger.Error("failed to create engine", "err", err)
		return 1
	}

	recorder := observe.NewPrometheusRecorder(prometheus.DefaultRegisterer)
	eng.WithRecorder(recorder)

	hub := observe.NewHub()
	runner := &observe.Runner{
		Engine:              eng,
		Hub:                 hub,
		Recorder:            recorder,
		TimeBlocks:          cfg.Default.TimeBlocks,
		AnimateUpdatePeriod: cfg.Animation.AnimateUpdatePeriod,
		Paced:               cfg.Default.Animate,
		TickInterval:        50 * time.Millisecond,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var httpServer *http.Server
	if serve || cfg.Default.Animate {
		srv := observe.NewServer(hub, eng).WithLogger(logger)
		if enableAdmin {
			srv = srv.WithAdminEnabled()
		}
		httpServer = &http.Server{Addr: addr, Handler: srv.Routes()}
		go func() {
			logger.Info("starting observer server", "addr", addr)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("observer server stopped unexpectedly", "err", err)
			}
		}()

		signals := make(chan os.Signal, 1)
		signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-signals
			logger.Info("shutting down")
			cancel()
		}()
	}

	results := runner.Run(ctx)

	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}

	encoded, err := json.MarshalIndent(results.AsMap(), "", "  ")
	if err != nil {
		logger.Error("failed to encode results", "err", err)
		return 1
	}
	fmt.Println(string(encoded))
	return 0
}

func runSequence(cfg simconfig.Config, logger *slog.Logger) int {
	plan := sequence.NewPlanFromConfig(cfg)
	rows, err := plan.Run()
	if err != nil {
		logger.Error("sequence run failed", "err", err)
		return 1
	}
	type outRow struct {
		VehicleCount int                    `json:"vehicleCount"`
		RequestRate  float64                `json:"requestRate"`
		Repeat       int                    `json:"repeat"`
		Results      map[string]interface{} `json:"results"`
	}
	out := make([]outRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, outRow{
			VehicleCount: r.VehicleCount,
			RequestRate:  r.RequestRate,
			Repeat:       r.Repeat,
			Results:      r.Results.AsMap(),
		})
	}
	encoded, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		logger.Error("failed to encode sequence results", "err", err)
		return 1
	}
	fmt.Println(string(encoded))
	return 0
}

func envString(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
