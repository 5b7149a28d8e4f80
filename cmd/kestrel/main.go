// Kestrel - UPI fraud screening that blocks while you sleep.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opensource-finance/kestrel/internal/api"
	"github.com/opensource-finance/kestrel/internal/blocklist"
	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/config"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/retrain"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/opensource-finance/kestrel/internal/scoring"
	"github.com/opensource-finance/kestrel/internal/screening"
	"github.com/opensource-finance/kestrel/internal/sweep"
	"github.com/opensource-finance/kestrel/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	var opts config.Options
	if _, err := config.Parse(&opts, os.Args[1:]); err != nil {
		if config.IsHelp(err) {
			fmt.Println(err)
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	cfg, err := config.Load(&opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(2)
	}

	config.SetupLogging(cfg.Logging, os.Stdout)

	slog.Info("starting kestrel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	blocks := blocklist.New(repo, cacheImpl, cfg.Screening.BlockCacheTTL)
	params := rules.ParamsFromConfig(cfg)

	screeningRules, err := newEngine(params, blocks, rules.ScreeningRules())
	if err != nil {
		slog.Error("failed to initialize screening rules", "error", err)
		os.Exit(1)
	}
	sweepRules, err := newEngine(params, nil, rules.SweepRowRules())
	if err != nil {
		slog.Error("failed to initialize sweep rules", "error", err)
		os.Exit(1)
	}
	slog.Info("rule engines initialized",
		"screening_rules", screeningRules.RulesCount(),
		"sweep_row_rules", sweepRules.RulesCount(),
	)

	scorer := scoring.NewScorer()
	if err := scorer.LoadLatest(ctx, repo); err != nil {
		// Screening still runs on rules alone
		slog.Warn("model artifact not loaded", "error", err)
	}
	trainer := scoring.NewTrainer(repo, scorer, cfg.Retrain)

	trigger := retrain.NewTrigger(cfg.Retrain.Threshold, busImpl)
	retrainWorker := worker.NewWorker(busImpl, trainer, worker.Config{
		Timeout: cfg.Retrain.Timeout,
		Reload: func(ctx context.Context) error {
			return scorer.LoadLatest(ctx, repo)
		},
	})
	if err := retrainWorker.Start(); err != nil {
		slog.Error("failed to start retrain worker", "error", err)
		os.Exit(1)
	}
	slog.Info("retrain worker started", "threshold", trigger.Threshold())

	pipeline := screening.NewPipeline(screeningRules, scorer, blocks, repo, trigger)

	detector := sweep.NewDetector(repo, sweepRules, cfg.Sweep)
	if cfg.Sweep.Interval > 0 {
		go detector.Schedule(ctx, cfg.Sweep.Interval)
	}

	srv := api.NewServer(cfg.Server, api.Deps{
		Screener: pipeline,
		Records:  repo,
		Blocks:   blocks,
		Sweeper:  detector,
		Retrain:  trigger,
		Counter:  trigger,
		Worker:   retrainWorker,
		Cache:    cacheImpl,
		Bus:      busImpl,
		Version:  Version,
	}, cfg.Screening.RateLimitPerMinute)

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("kestrel is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	<-ctx.Done()
	slog.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	// Stop the worker after the server so no new signals arrive
	if err := retrainWorker.Stop(); err != nil {
		slog.Error("failed to stop retrain worker", "error", err)
	}

	slog.Info("kestrel shutdown complete")
}

func newEngine(params rules.Params, blocks rules.BlockChecker, set []*domain.RuleConfig) (*rules.Engine, error) {
	engine, err := rules.NewEngine(params, blocks)
	if err != nil {
		return nil, err
	}
	if err := engine.LoadRules(set); err != nil {
		return nil, err
	}
	return engine, nil
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  +-------------------------------------------+")
	fmt.Println("  |                 KESTREL                   |")
	fmt.Println("  |       UPI Fraud Screening Engine          |")
	fmt.Println("  +-------------------------------------------+")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /api/check_fraud     - Screen a transaction")
	fmt.Println("    GET  /flagged             - Browse flagged records")
	fmt.Println("    GET  /transactions        - Browse transactions")
	fmt.Println("    GET  /blocked             - List blocked senders")
	fmt.Println("    POST /blocked             - Block a sender")
	fmt.Println("    GET  /blocked/{upi_id}    - Look up a blocked sender")
	fmt.Println("    POST /sweeps              - Run the batch sweep")
	fmt.Println("    POST /model/retrain       - Request a retrain")
	fmt.Println("    GET  /health              - Health check")
	fmt.Println("    GET  /metrics             - Prometheus metrics")
	fmt.Println()
}
