package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/pulkyeet/flashloan-arb/internal/arbitrage"
	"github.com/pulkyeet/flashloan-arb/internal/backtest"
	"github.com/pulkyeet/flashloan-arb/internal/config"
	"github.com/pulkyeet/flashloan-arb/internal/dex"
	"github.com/pulkyeet/flashloan-arb/internal/eth"
	"github.com/pulkyeet/flashloan-arb/internal/storage"
)

func main() {
	var (
		configPath = flag.String("config", "config.yaml", "path to config file")
		startBlock = flag.Uint64("start", 0, "start block number")
		endBlock   = flag.Uint64("end", 0, "end block number")
		step       = flag.Uint64("step", 1, "replay every n-th block")
		workers    = flag.Int("workers", 4, "blocks replayed concurrently")
		journalDSN = flag.String("journal", "", "record replayed cycles to this sqlite file")
	)
	flag.Parse()

	if *startBlock == 0 || *startBlock >= *endBlock {
		fmt.Println("Error: need 0 < start block < end block")
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := config.NewLogger(cfg.Log, os.Stderr)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Hour)
	defer cancel()

	// historical state needs an archive node
	client, err := eth.Dial(ctx, cfg.RPC.HTTP, cfg.RPC.RPS, nil)
	if err != nil {
		log.Fatalf("failed to connect to rpc: %v", err)
	}
	defer client.Close()

	registry, err := dex.NewRegistry(client, 0)
	if err != nil {
		log.Fatalf("failed to create registry: %v", err)
	}
	tokenA, tokenB, err := cfg.Pair()
	if err != nil {
		log.Fatalf("bad token pair: %v", err)
	}
	base, quote, err := registry.ResolvePair(ctx, tokenA, tokenB)
	if err != nil {
		log.Fatalf("failed to resolve tokens: %v", err)
	}

	var templates [2]*arbitrage.Venue
	for i, vc := range cfg.Venues {
		if templates[i], err = vc.Venue(); err != nil {
			log.Fatalf("venue %s: %v", vc.Name, err)
		}
	}
	reader := dex.NewReader(client, registry)
	quoter := dex.NewQuoter(client)

	venuesAt := func(block uint64) (*arbitrage.Venue, *arbitrage.Venue) {
		r, q := reader.AtBlock(block), quoter.AtBlock(block)
		pinned := func(t *arbitrage.Venue) *arbitrage.Venue {
			v := *t
			v.Reader, v.Quoter = r, q
			return &v
		}
		return pinned(templates[0]), pinned(templates[1])
	}

	var reporters []arbitrage.Reporter
	if *journalDSN != "" {
		journal, err := storage.NewJournal(*journalDSN)
		if err != nil {
			log.Fatalf("failed to open journal: %v", err)
		}
		defer journal.Close()
		reporters = append(reporters, journal)
	}

	runner, err := backtest.NewRunner(backtest.Config{
		Engine: arbitrage.EngineConfig{
			ThresholdPct: cfg.Strategy.PriceDifference,
			MaxSlippage:  cfg.Strategy.Slippage(),
			Sizer:        arbitrage.DefaultSizer(),
			CallTimeout:  cfg.Timeouts.Call,
		},
		Step:    *step,
		Workers: *workers,
	}, venuesAt, base, quote, logger, reporters...)
	if err != nil {
		log.Fatalf("failed to create runner: %v", err)
	}

	report, err := runner.RunBacktest(ctx, *startBlock, *endBlock)
	if err != nil {
		log.Fatalf("backtest failed: %v", err)
	}
	if err := report.Print(os.Stdout); err != nil {
		log.Fatalf("failed to print report: %v", err)
	}
}
