package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/pulkyeet/flashloan-arb/internal/arbitrage"
	"github.com/pulkyeet/flashloan-arb/internal/config"
	"github.com/pulkyeet/flashloan-arb/internal/dex"
	"github.com/pulkyeet/flashloan-arb/internal/eth"
	"github.com/pulkyeet/flashloan-arb/internal/metrics"
	"github.com/pulkyeet/flashloan-arb/internal/report"
	"github.com/pulkyeet/flashloan-arb/internal/storage"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	verbose := flag.Bool("verbose", false, "print cycles that found nothing")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if cfg.RPC.WS == "" {
		log.Fatal("websocket url not set (rpc.ws or WS_URL), swap events need a subscription")
	}
	logger := config.NewLogger(cfg.Log, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	client, err := eth.Dial(ctx, cfg.RPC.HTTP, cfg.RPC.RPS, m)
	if err != nil {
		log.Fatalf("failed to connect to rpc: %v", err)
	}
	defer client.Close()

	wsClient, err := eth.Dial(ctx, cfg.RPC.WS, 0, m)
	if err != nil {
		log.Fatalf("failed to connect to websocket: %v", err)
	}
	defer wsClient.Close()

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

	var submitter arbitrage.Submitter
	var account *dex.Account
	if cfg.Strategy.Execute {
		settlement, err := newSettlement(ctx, client, cfg, logger)
		if err != nil {
			log.Fatalf("failed to set up settlement: %v", err)
		}
		submitter = settlement
		account = dex.NewAccount(client, settlement.From())
		logger.Info("execution enabled", "from", settlement.From().Hex(), "contract", cfg.ArbitrageContract)
	} else {
		logger.Warn("execute is off, opportunities are reported but never dispatched")
	}

	reader := dex.NewReader(client, registry)
	quoter := dex.NewQuoter(client)
	var venues [2]*arbitrage.Venue
	for i, vc := range cfg.Venues {
		v, err := vc.Venue()
		if err != nil {
			log.Fatalf("venue %s: %v", vc.Name, err)
		}
		v.Reader, v.Quoter, v.Submitter = reader, quoter, submitter
		venues[i] = v
	}

	journal, err := storage.NewJournal(cfg.Journal.DSN)
	if err != nil {
		log.Fatalf("failed to open journal: %v", err)
	}
	defer journal.Close()

	engineCfg := arbitrage.EngineConfig{
		ThresholdPct:  cfg.Strategy.PriceDifference,
		MaxSlippage:   cfg.Strategy.Slippage(),
		Sizer:         arbitrage.DefaultSizer(),
		CallTimeout:   cfg.Timeouts.Call,
		SubmitTimeout: cfg.Timeouts.Submit,
		DryRun:        !cfg.Strategy.Execute,
		GasBudget:     cfg.GasBudget(),
	}
	opts := []arbitrage.Option{
		arbitrage.WithLogger(logger),
		arbitrage.WithMetrics(m),
		arbitrage.WithReporter(report.NewConsole(*verbose)),
		arbitrage.WithReporter(journal),
	}

	// a nil *dex.Account must not become a non-nil interface
	var balances arbitrage.BalanceReader
	if account != nil {
		balances = account
	}
	engine, err := arbitrage.NewEngine(engineCfg, venues[0], venues[1], base, quote, balances, opts...)
	if err != nil {
		log.Fatalf("failed to create engine: %v", err)
	}

	if cfg.Metrics.Addr != "" {
		srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: metrics.Handler(reg), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server stopped", "err", err)
			}
		}()
		defer srv.Close()
		logger.Info("serving metrics", "addr", cfg.Metrics.Addr)
	}

	watcher := dex.NewSwapWatcher(wsClient, registry, cfg.SwapEvents(), logger)
	scheduler := arbitrage.NewScheduler(engine, watcher, logger)

	err = scheduler.Run(ctx)
	logger.Info("stopped", "dropped_notifications", engine.Dropped())
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("scheduler: %v", err)
	}
}

func newSettlement(ctx context.Context, client *eth.Client, cfg *config.Config, logger *slog.Logger) (*dex.Settlement, error) {
	key, err := cfg.SigningKey()
	if err != nil {
		return nil, err
	}
	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain id: %w", err)
	}
	return dex.NewSettlement(client, dex.SettlementConfig{
		Contract: common.HexToAddress(cfg.ArbitrageContract),
		Key:      key,
		ChainID:  chainID,
		GasLimit: cfg.Strategy.GasLimit,
		GasPrice: cfg.GasPrice(),
	}, logger)
}
