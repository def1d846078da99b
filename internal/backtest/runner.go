// Package backtest replays the decision pipeline against historical blocks.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/pulkyeet/flashloan-arb/internal/arbitrage"
	"github.com/pulkyeet/flashloan-arb/internal/metrics"
	"golang.org/x/sync/errgroup"
)

// VenuesAt builds both venues with every read pinned to one block
type VenuesAt func(block uint64) (venue1, venue2 *arbitrage.Venue)

type Config struct {
	Engine arbitrage.EngineConfig
	// sample every Step-th block, default 1
	Step uint64
	// blocks replayed concurrently, default 4
	Workers      int
	BlockTimeout time.Duration
	// progress lines, nil means stdout
	Progress io.Writer
}

type Runner struct {
	cfg         Config
	venuesAt    VenuesAt
	base, quote arbitrage.Token
	reporters   []arbitrage.Reporter
	metrics     *metrics.Metrics
	logger      *slog.Logger

	mu sync.Mutex
}

func NewRunner(cfg Config, venuesAt VenuesAt, base, quote arbitrage.Token, logger *slog.Logger, reporters ...arbitrage.Reporter) (*Runner, error) {
	if venuesAt == nil {
		return nil, errors.New("venue builder is required")
	}
	if cfg.Step == 0 {
		cfg.Step = 1
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.BlockTimeout <= 0 {
		cfg.BlockTimeout = 2 * time.Minute
	}
	if cfg.Progress == nil {
		cfg.Progress = os.Stdout
	}
	if logger == nil {
		logger = slog.Default()
	}
	// a replay only ever observes
	cfg.Engine.DryRun = true
	cfg.Engine.GasBudget = nil

	return &Runner{
		cfg:       cfg,
		venuesAt:  venuesAt,
		base:      base,
		quote:     quote,
		reporters: reporters,
		metrics:   metrics.New(nil),
		logger:    logger,
	}, nil
}

// RunBacktest replays every Step-th block in [startBlock, endBlock]. A block that
// fails to replay is recorded and skipped; only ctx cancellation aborts the run.
func (r *Runner) RunBacktest(ctx context.Context, startBlock, endBlock uint64) (*BacktestReport, error) {
	if endBlock < startBlock {
		return nil, fmt.Errorf("end block %d before start block %d", endBlock, startBlock)
	}

	var blocks []uint64
	for b := startBlock; b <= endBlock; b += r.cfg.Step {
		blocks = append(blocks, b)
	}
	results := make([]*BlockResult, len(blocks))

	fmt.Fprintf(r.cfg.Progress, "\nstarting backtest: blocks %d-%d (%d samples)\n", startBlock, endBlock, len(blocks))
	startTime := time.Now()
	done := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)
	for i, block := range blocks {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			blockCtx, cancel := context.WithTimeout(gctx, r.cfg.BlockTimeout)
			result, err := r.ProcessBlock(blockCtx, block)
			cancel()
			if err != nil {
				r.logger.Warn("block replay failed", "block", block, "err", err)
				result = &BlockResult{BlockNumber: block, Err: err}
			}
			results[i] = result

			r.mu.Lock()
			done++
			if done%10 == 0 || done == len(blocks) {
				fmt.Fprintf(r.cfg.Progress, "processed %d/%d blocks (%.1f%%) - elapsed: %s\n",
					done, len(blocks), float64(done)/float64(len(blocks))*100,
					time.Since(startTime).Round(time.Second))
			}
			r.mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report := &BacktestReport{
		StartBlock: startBlock,
		EndBlock:   endBlock,
		Results:    results,
	}
	report.CalculateMetrics()
	return report, nil
}

// ProcessBlock runs one dry cycle against the state at blockNum
func (r *Runner) ProcessBlock(ctx context.Context, blockNum uint64) (*BlockResult, error) {
	v1, v2 := r.venuesAt(blockNum)

	opts := []arbitrage.Option{
		arbitrage.WithLogger(r.logger.With("block", blockNum)),
		arbitrage.WithMetrics(r.metrics),
	}
	for _, rep := range r.reporters {
		opts = append(opts, arbitrage.WithReporter(rep))
	}

	engine, err := arbitrage.NewEngine(r.cfg.Engine, v1, v2, r.base, r.quote, nil, opts...)
	if err != nil {
		return nil, fmt.Errorf("engine at %d: %w", blockNum, err)
	}
	cycle, err := engine.RunCycle(ctx, fmt.Sprintf("block %d", blockNum))
	if err != nil {
		return nil, err
	}
	return &BlockResult{BlockNumber: blockNum, Cycle: cycle}, nil
}
