package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/pulkyeet/flashloan-arb/internal/arbitrage"
	"github.com/pulkyeet/flashloan-arb/internal/config"
	"github.com/pulkyeet/flashloan-arb/internal/dex"
	"github.com/pulkyeet/flashloan-arb/internal/eth"
	"github.com/pulkyeet/flashloan-arb/internal/report"
)

// scan runs one dry decision cycle and prints what the bot would have done
func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	blockNum := flag.Uint64("block", 0, "block to scan, 0 for latest")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := config.NewLogger(cfg.Log, os.Stderr)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

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

	reader := dex.NewReader(client, registry)
	quoter := dex.NewQuoter(client)
	if *blockNum > 0 {
		reader = reader.AtBlock(*blockNum)
		quoter = quoter.AtBlock(*blockNum)
	}

	var venues [2]*arbitrage.Venue
	for i, vc := range cfg.Venues {
		v, err := vc.Venue()
		if err != nil {
			log.Fatalf("venue %s: %v", vc.Name, err)
		}
		v.Reader, v.Quoter = reader, quoter
		venues[i] = v
	}

	engine, err := arbitrage.NewEngine(arbitrage.EngineConfig{
		ThresholdPct: cfg.Strategy.PriceDifference,
		MaxSlippage:  cfg.Strategy.Slippage(),
		Sizer:        arbitrage.DefaultSizer(),
		CallTimeout:  cfg.Timeouts.Call,
		DryRun:       true,
	}, venues[0], venues[1], base, quote, nil,
		arbitrage.WithLogger(logger),
		arbitrage.WithReporter(report.NewConsole(true)))
	if err != nil {
		log.Fatalf("failed to create engine: %v", err)
	}

	at := "latest"
	if *blockNum > 0 {
		at = fmt.Sprintf("block %d", *blockNum)
	}
	fmt.Printf("scanning %s/%s on %s and %s at %s...\n\n",
		base.Symbol, quote.Symbol, venues[0].Name, venues[1].Name, at)

	r, err := engine.RunCycle(ctx, "scan "+at)
	if err != nil {
		log.Fatalf("scan failed: %v", err)
	}

	fmt.Printf("\noutcome: %s\n", r.Outcome)
	if r.Outcome == arbitrage.OutcomeAccepted {
		fmt.Printf("would borrow %s %s via %s\n",
			arbitrage.FromUnits(r.Decision.Amount, base.Decimals), base.Symbol, r.Divergence.Intent.Direction)
	}
}
