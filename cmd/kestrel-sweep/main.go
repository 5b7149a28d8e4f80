// Kestrel - UPI fraud screening that blocks while you sleep.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

// Command kestrel-sweep runs the batch pattern sweep once against the
// configured record store and prints the report.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/opensource-finance/kestrel/internal/config"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/opensource-finance/kestrel/internal/sweep"
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
	config.SetupLogging(cfg.Logging, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()

	engine, err := rules.NewEngine(rules.ParamsFromConfig(cfg), nil)
	if err != nil {
		slog.Error("failed to initialize rule engine", "error", err)
		os.Exit(1)
	}
	if err := engine.LoadRules(rules.SweepRowRules()); err != nil {
		slog.Error("failed to load sweep rules", "error", err)
		os.Exit(1)
	}

	report, err := sweep.NewDetector(repo, engine, cfg.Sweep).Run(ctx)
	if err != nil {
		slog.Error("sweep failed", "error", err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		slog.Error("failed to write report", "error", err)
		os.Exit(1)
	}
}
