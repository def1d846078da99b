package arbitrage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/pulkyeet/flashloan-arb/internal/metrics"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// Reporter receives every finished cycle
type Reporter interface {
	Report(ctx context.Context, r *CycleReport) error
}

// EngineConfig tunes one engine. Zero timeouts disable the bound.
type EngineConfig struct {
	ThresholdPct decimal.Decimal
	MaxSlippage  decimal.Decimal
	Sizer        Sizer

	CallTimeout   time.Duration
	SubmitTimeout time.Duration

	// stop after acceptance, never dispatch
	DryRun bool
	// native units that must be available before dispatch, nil disables the check
	GasBudget *big.Int
}

// Engine runs decision cycles for one pair across two venues, at most one at a time.
type Engine struct {
	cfg     EngineConfig
	base    Token
	quote   Token
	venues  [2]*Venue
	account BalanceReader

	reporters []Reporter
	metrics   *metrics.Metrics
	logger    *slog.Logger

	executing atomic.Bool
	dropped   atomic.Uint64
	inflight  sync.WaitGroup
}

type Option func(*Engine)

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithReporter(r Reporter) Option {
	return func(e *Engine) { e.reporters = append(e.reporters, r) }
}

// NewEngine wires an engine. account may be nil, in which case no balances are read
// and the gas check is skipped. A dry-run engine needs no submitters.
func NewEngine(cfg EngineConfig, venue1, venue2 *Venue, base, quote Token, account BalanceReader, opts ...Option) (*Engine, error) {
	if venue1 == nil || venue2 == nil {
		return nil, errors.New("two venues are required")
	}
	for _, v := range []*Venue{venue1, venue2} {
		if v.Reader == nil || v.Quoter == nil || (v.Submitter == nil && !cfg.DryRun) {
			return nil, fmt.Errorf("venue %s is missing a capability", v.Name)
		}
	}
	if cfg.ThresholdPct.Sign() <= 0 {
		return nil, errors.New("threshold must be positive")
	}
	if cfg.Sizer.MaxFraction.IsZero() {
		cfg.Sizer = DefaultSizer()
	}

	e := &Engine{
		cfg:     cfg,
		base:    base,
		quote:   quote,
		venues:  [2]*Venue{venue1, venue2},
		account: account,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.metrics == nil {
		e.metrics = metrics.New(nil)
	}
	return e, nil
}

// Trigger starts a cycle in the background unless one is already in flight, in which
// case the notification is dropped and counted. It never blocks.
func (e *Engine) Trigger(ctx context.Context, n SwapNotification) bool {
	e.metrics.Notifications.WithLabelValues(n.Venue).Inc()

	if !e.executing.CompareAndSwap(false, true) {
		e.dropped.Add(1)
		e.metrics.NotificationsDropped.Inc()
		e.logger.Debug("cycle in flight, notification dropped", "venue", n.Venue, "block", n.BlockNumber)
		return false
	}

	e.inflight.Add(1)
	go func() {
		defer e.inflight.Done()
		defer e.executing.Store(false)
		e.cycle(ctx, n.Venue)
	}()
	return true
}

// RunCycle runs one cycle on the caller's goroutine
func (e *Engine) RunCycle(ctx context.Context, trigger string) (*CycleReport, error) {
	if !e.executing.CompareAndSwap(false, true) {
		e.dropped.Add(1)
		e.metrics.NotificationsDropped.Inc()
		return nil, ErrCycleInFlight
	}
	defer e.executing.Store(false)

	return e.cycle(ctx, trigger), nil
}

// Wait blocks until the background cycle, if any, has finished
func (e *Engine) Wait() {
	e.inflight.Wait()
}

// Dropped is the number of notifications ignored because a cycle was running
func (e *Engine) Dropped() uint64 {
	return e.dropped.Load()
}

func (e *Engine) InFlight() bool {
	return e.executing.Load()
}

func (e *Engine) Venues() [2]*Venue {
	return e.venues
}

func (e *Engine) cycle(ctx context.Context, trigger string) *CycleReport {
	report := &CycleReport{
		ID:        uuid.New(),
		Trigger:   trigger,
		StartedAt: time.Now(),
		Base:      e.base,
		Quote:     e.quote,
	}
	log := e.logger.With("cycle", report.ID.String())
	log.Debug("swap detected, checking price", "trigger", trigger)

	report.Outcome, report.Err = e.evaluate(ctx, log, report)
	e.finish(ctx, log, report)
	return report
}

// evaluate runs price -> divergence -> liquidity -> sizing -> quoting -> dispatch
func (e *Engine) evaluate(ctx context.Context, log *slog.Logger, report *CycleReport) (Outcome, error) {
	if err := e.fetchPrices(ctx, report); err != nil {
		return classify(err), err
	}

	div, err := DetectDivergence(report.Prices[0], report.Prices[1], e.cfg.ThresholdPct)
	if err != nil {
		return classify(err), err
	}
	report.Divergence = div
	log.Info("percentage difference", "pct", div.Display.String())

	if div.Intent == nil {
		return OutcomeNoOpportunity, nil
	}
	buy, sell := div.Intent.BuyVenue, div.Intent.SellVenue
	log.Info("arbitrage opportunity detected", "buy", buy.Name, "sell", sell.Name,
		report.Prices[0].Venue.Name, report.Prices[0].Rate.StringFixed(8),
		report.Prices[1].Venue.Name, report.Prices[1].Rate.StringFixed(8))

	buyLiq, err := e.readLiquidity(ctx, buy)
	if err != nil {
		return classify(err), err
	}
	sellLiq, err := e.readLiquidity(ctx, sell)
	if err != nil {
		return classify(err), err
	}

	size, err := e.cfg.Sizer.Size(SizingInput{
		ReserveBuy:    buyLiq.ReserveQuote,
		ReserveSell:   sellLiq.ReserveQuote,
		DivergencePct: div.AbsPct(),
		CombinedFee:   buy.FeeFraction().Add(sell.FeeFraction()),
		MaxSlippage:   e.cfg.MaxSlippage,
	})
	if err != nil {
		return classify(err), err
	}
	report.Size = size
	log.Debug("determining profitability", "size", size.StringFixed(0), "token", e.quote.Symbol)

	decision := EvaluateProfitability(ctx, ProfitabilityRequest{
		Intent:        div.Intent,
		Base:          e.base,
		Quote:         e.quote,
		DivergencePct: div.AbsPct(),
		Size:          size.Ceil().BigInt(),
		CallTimeout:   e.cfg.CallTimeout,
	})
	report.Decision = decision
	if !decision.Profitable {
		return classify(decision.Reason), decision.Reason
	}

	params := TradeParams{
		AmountIn:   decision.Amount,
		BuyFeePPM:  buy.FeePPM,
		SellFeePPM: sell.FeePPM,
		RouterPath: [2]common.Address{buy.Contracts.Router, sell.Contracts.Router},
		TokenPath:  [2]common.Address{e.base.Address, e.quote.Address},
	}
	report.Params = &params

	if e.cfg.DryRun {
		log.Info("profitable, dry run so not dispatching", "amount", decision.Amount.String())
		return OutcomeAccepted, nil
	}

	if err := e.checkGas(ctx); err != nil {
		return classify(err), err
	}

	log.Info("attempting arbitrage", "amount", decision.Amount.String(), "buy", buy.Name, "sell", sell.Name)
	trade, err := e.dispatch(ctx, log, buy, params)
	report.Trade = trade
	if err != nil {
		return classify(err), err
	}
	return OutcomeExecuted, nil
}

// fetchPrices reads both venues concurrently; both must land before detection runs
func (e *Engine) fetchPrices(ctx context.Context, report *CycleReport) error {
	g, gctx := errgroup.WithContext(ctx)
	for i, v := range e.venues {
		g.Go(func() error {
			callCtx, cancel := withTimeout(gctx, e.cfg.CallTimeout)
			defer cancel()

			q, err := FetchPrice(callCtx, v, e.base, e.quote)
			if err != nil {
				return asKind(err, ErrPriceUnavailable)
			}
			report.Prices[i] = q
			return nil
		})
	}
	return g.Wait()
}

func (e *Engine) readLiquidity(ctx context.Context, v *Venue) (*LiquiditySnapshot, error) {
	callCtx, cancel := withTimeout(ctx, e.cfg.CallTimeout)
	defer cancel()

	snap, err := ReadLiquidity(callCtx, v, e.base, e.quote)
	if err != nil {
		return nil, asKind(err, ErrNoLiquidity)
	}
	return snap, nil
}

func (e *Engine) checkGas(ctx context.Context) error {
	if e.cfg.GasBudget == nil || e.account == nil {
		return nil
	}
	callCtx, cancel := withTimeout(ctx, e.cfg.CallTimeout)
	defer cancel()

	bal, err := e.account.NativeBalance(callCtx)
	if err != nil {
		return fmt.Errorf("native balance: %w", err)
	}
	if bal.Cmp(e.cfg.GasBudget) < 0 {
		return fmt.Errorf("balance %s < budget %s: %w", bal, e.cfg.GasBudget, ErrInsufficientGas)
	}
	return nil
}

// dispatch submits the trade with before/after accounting. After-balances are read
// on every path so a failed settlement is still accounted for.
func (e *Engine) dispatch(ctx context.Context, log *slog.Logger, buy *Venue, params TradeParams) (*TradeOutcome, error) {
	out := &TradeOutcome{}
	out.BaseBefore, out.NativeBefore = e.readBalances(ctx, log)

	submitCtx, cancel := withTimeout(ctx, e.cfg.SubmitTimeout)
	receipt, err := buy.Submitter.Submit(submitCtx, params)
	cancel()
	out.Receipt = receipt

	out.BaseAfter, out.NativeAfter = e.readBalances(ctx, log)
	if out.NativeBefore != nil && out.NativeAfter != nil {
		out.GasSpent = new(big.Int).Sub(out.NativeBefore, out.NativeAfter)
	}
	if out.BaseBefore != nil && out.BaseAfter != nil {
		out.NetPnL = new(big.Int).Sub(out.BaseAfter, out.BaseBefore)
	}

	if err != nil {
		return out, fmt.Errorf("submit: %w", err)
	}
	log.Info("trade complete", "tx", receipt.TxHash.Hex(), "gas_used", receipt.GasUsed)
	return out, nil
}

func (e *Engine) readBalances(ctx context.Context, log *slog.Logger) (base, native *big.Int) {
	if e.account == nil {
		return nil, nil
	}

	callCtx, cancel := withTimeout(ctx, e.cfg.CallTimeout)
	defer cancel()

	base, err := e.account.TokenBalance(callCtx, e.base)
	if err != nil {
		log.Warn("token balance unavailable", "token", e.base.Symbol, "err", err)
		base = nil
	}
	native, err = e.account.NativeBalance(callCtx)
	if err != nil {
		log.Warn("native balance unavailable", "err", err)
		native = nil
	}
	return base, native
}

func (e *Engine) finish(ctx context.Context, log *slog.Logger, report *CycleReport) {
	report.Duration = time.Since(report.StartedAt)

	e.metrics.Cycles.WithLabelValues(string(report.Outcome)).Inc()
	e.metrics.CycleDuration.Observe(report.Duration.Seconds())
	if report.Divergence != nil {
		e.metrics.LastDivergence.WithLabelValues(e.base.Symbol + "/" + e.quote.Symbol).
			Set(report.Divergence.Pct.InexactFloat64())
	}

	attrs := []any{"outcome", report.Outcome, "duration", report.Duration.Round(time.Millisecond)}
	switch report.Outcome {
	case OutcomeExecuted, OutcomeAccepted, OutcomeNoOpportunity:
		log.Info("cycle finished", attrs...)
	case OutcomeError, OutcomeSettlementReverted:
		log.Error("cycle failed", append(attrs, "reason", report.Reason())...)
	default:
		log.Info("cycle rejected", append(attrs, "reason", report.Reason())...)
	}

	for _, r := range e.reporters {
		if err := r.Report(ctx, report); err != nil {
			log.Warn("reporter failed", "err", err)
		}
	}
}

// asKind tags err with kind unless it already carries a known cycle error
func asKind(err, kind error) error {
	if classify(err) != OutcomeError {
		return err
	}
	return fmt.Errorf("%w: %w", kind, err)
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
