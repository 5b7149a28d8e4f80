// Kestrel - UPI fraud screening that blocks while you sleep.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

// Command kestrel-seed generates synthetic transactions and loads demo
// data into the record store.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opensource-finance/kestrel/internal/blocklist"
	"github.com/opensource-finance/kestrel/internal/config"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/seed"
)

var opts struct {
	config.Options

	Generate generateCommand `command:"generate" description:"Write synthetic transactions as CSV"`
	Import   importCommand   `command:"import" description:"Append transactions from a CSV file"`
	Block    blockCommand    `command:"block" description:"Block the sample senders"`
}

var ctx context.Context

func main() {
	var stop context.CancelFunc
	ctx, stop = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := config.Parse(&opts, os.Args[1:]); err != nil {
		if config.IsHelp(err) {
			fmt.Println(err)
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type generateCommand struct {
	Count int    `short:"n" long:"count" description:"Number of transactions" default:"500"`
	Seed  int64  `long:"seed" description:"Random seed" default:"1"`
	Days  int    `long:"days" description:"Length of the timestamp window in days" default:"30"`
	Out   string `short:"o" long:"out" description:"Output file, - for stdout" default:"-"`
}

func (c *generateCommand) Execute(args []string) error {
	setupLogging()

	cfg := seed.DefaultConfig()
	cfg.Count = c.Count
	cfg.Seed = c.Seed
	cfg.Days = c.Days

	recs, err := seed.NewGenerator(cfg).Generate(ctx)
	if err != nil {
		return err
	}

	var w io.Writer = os.Stdout
	if c.Out != "-" {
		f, err := os.Create(c.Out)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", c.Out, err)
		}
		defer f.Close()
		w = f
	}

	if err := seed.WriteCSV(w, recs); err != nil {
		return err
	}
	slog.Info("transactions generated", "count", len(recs), "out", c.Out)
	return nil
}

type importCommand struct {
	Args struct {
		File string `positional-arg-name:"file" description:"CSV file to import"`
	} `positional-args:"yes" required:"yes"`
}

func (c *importCommand) Execute(args []string) error {
	setupLogging()

	f, err := os.Open(c.Args.File)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", c.Args.File, err)
	}
	defer f.Close()

	txs, err := seed.ReadCSV(f, time.Now().UTC())
	if err != nil {
		return err
	}

	repo, err := openRepository()
	if err != nil {
		return err
	}
	defer repo.Close()

	return seed.Import(ctx, repo, txs)
}

type blockCommand struct{}

func (c *blockCommand) Execute(args []string) error {
	setupLogging()

	repo, err := openRepository()
	if err != nil {
		return err
	}
	defer repo.Close()

	return seed.BlockSamples(ctx, blocklist.New(repo, nil, 0))
}

func openRepository() (*repository.SQLRepository, error) {
	cfg, err := config.Load(&opts.Options)
	if err != nil {
		return nil, err
	}
	return repository.New(cfg.Repository)
}

func setupLogging() {
	cfg, err := config.Load(&opts.Options)
	if err != nil {
		return
	}
	config.SetupLogging(cfg.Logging, os.Stderr)
}
