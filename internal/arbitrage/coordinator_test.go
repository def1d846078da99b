package arbitrage

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/pulkyeet/flashloan-arb/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	router1 = common.HexToAddress("0xaaaa000000000000000000000000000000000001")
	router2 = common.HexToAddress("0xaaaa000000000000000000000000000000000002")
)

type engineFixture struct {
	v1, v2     *Venue
	r1, r2     *fakeReader
	q1, q2     *fakeQuoter
	s1, s2     *fakeSubmitter
	account    *fakeAccount
	reporter   *captureReporter
	metrics    *metrics.Metrics
	cfg        EngineConfig
	useAccount bool
}

// venue1's pool gives 102.515625 quote per base and venue2's gives 100, so quote
// is cheaper on venue1 and the engine buys there
func newEngineFixture() *engineFixture {
	f := &engineFixture{
		r1:       &fakeReader{raw: sqrtOf(81, 93), reserveBase: big.NewInt(10_000), reserveQuote: big.NewInt(1_000_000)},
		r2:       &fakeReader{raw: sqrtOf(80, 93), reserveBase: big.NewInt(12_000), reserveQuote: big.NewInt(1_200_000)},
		q1:       &fakeQuoter{exactOutput: big.NewInt(990)},
		q2:       &fakeQuoter{exactInput: big.NewInt(1005)},
		account:  &fakeAccount{token: big.NewInt(1_000), native: big.NewInt(1_000_000)},
		reporter: &captureReporter{},
		metrics:  metrics.New(prometheus.NewRegistry()),
		cfg: EngineConfig{
			ThresholdPct:  dec("1"),
			MaxSlippage:   dec("0.005"),
			CallTimeout:   time.Second,
			SubmitTimeout: time.Second,
		},
		useAccount: true,
	}
	f.s1 = &fakeSubmitter{
		receipt:  &TradeReceipt{TxHash: common.HexToHash("0x01"), BlockNumber: 100, GasUsed: 210_000},
		onSubmit: func() { f.account.settle(15, -2_100) },
	}
	f.s2 = &fakeSubmitter{}

	f.v1 = &Venue{Name: "venue1", FeePPM: 3000, Contracts: VenueContracts{Router: router1}, Reader: f.r1, Quoter: f.q1, Submitter: f.s1}
	f.v2 = &Venue{Name: "venue2", FeePPM: 3000, Contracts: VenueContracts{Router: router2}, Reader: f.r2, Quoter: f.q2, Submitter: f.s2}
	return f
}

func (f *engineFixture) engine(t *testing.T) *Engine {
	t.Helper()
	var account BalanceReader
	if f.useAccount {
		account = f.account
	}
	e, err := NewEngine(f.cfg, f.v1, f.v2, testBase, testQuote, account,
		WithMetrics(f.metrics), WithReporter(f.reporter))
	require.NoError(t, err)
	return e
}

func (f *engineFixture) cycles(outcome Outcome) float64 {
	return testutil.ToFloat64(f.metrics.Cycles.WithLabelValues(string(outcome)))
}

func TestEngine_Executed(t *testing.T) {
	f := newEngineFixture()
	e := f.engine(t)

	report, err := e.RunCycle(context.Background(), "test")
	require.NoError(t, err)
	require.Equal(t, OutcomeExecuted, report.Outcome, "reason: %s", report.Reason())

	assert.Equal(t, DirectionBuyFirst, report.Divergence.Intent.Direction)
	assert.True(t, dec("8000").Equal(report.Size), "size %s", report.Size)
	assert.True(t, report.Decision.Profitable)

	require.Equal(t, 1, f.s1.count())
	assert.Zero(t, f.s2.count())
	params := f.s1.params[0]
	assert.Equal(t, big.NewInt(990), params.AmountIn)
	assert.Equal(t, [2]common.Address{router1, router2}, params.RouterPath)
	assert.Equal(t, [2]common.Address{testBase.Address, testQuote.Address}, params.TokenPath)
	assert.Equal(t, [2]uint32{3000, 3000}, params.FeePath())

	require.NotNil(t, report.Trade)
	assert.Equal(t, big.NewInt(15), report.Trade.NetPnL)
	assert.Equal(t, big.NewInt(2_100), report.Trade.GasSpent)
	assert.Equal(t, uint64(210_000), report.Trade.Receipt.GasUsed)

	assert.Equal(t, 1, f.reporter.count())
	assert.Equal(t, 1.0, f.cycles(OutcomeExecuted))
	assert.False(t, e.InFlight())
}

func TestEngine_Outcomes(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(f *engineFixture)
		want    Outcome
		wantErr error
	}{
		{
			name:   "equal prices",
			mutate: func(f *engineFixture) { f.r2.raw = sqrtOf(81, 93) },
			want:   OutcomeNoOpportunity,
		},
		{
			name:    "price read fails",
			mutate:  func(f *engineFixture) { f.r2.rawErr = errors.New("connection reset") },
			want:    OutcomePriceUnavailable,
			wantErr: ErrPriceUnavailable,
		},
		{
			name:    "empty pool",
			mutate:  func(f *engineFixture) { f.r1.reserveQuote = big.NewInt(0) },
			want:    OutcomeNoLiquidity,
			wantErr: ErrNoLiquidity,
		},
		{
			name:    "reserve read fails",
			mutate:  func(f *engineFixture) { f.r2.reserveErr = errors.New("rate limited") },
			want:    OutcomeNoLiquidity,
			wantErr: ErrNoLiquidity,
		},
		{
			name: "fees eat the edge",
			mutate: func(f *engineFixture) {
				f.v1.FeePPM, f.v2.FeePPM = 10_000, 20_000
			},
			want:    OutcomeUnprofitableMultiplier,
			wantErr: ErrUnprofitableMultiplier,
		},
		{
			name:    "sell leg short",
			mutate:  func(f *engineFixture) { f.q2.exactInput = big.NewInt(980) },
			want:    OutcomeInsufficientReturn,
			wantErr: ErrInsufficientReturn,
		},
		{
			name:    "quote reverts",
			mutate:  func(f *engineFixture) { f.q1.err = errors.New("execution reverted") },
			want:    OutcomeNoLiquidity,
			wantErr: ErrNoLiquidity,
		},
		{
			name:    "gas budget not covered",
			mutate:  func(f *engineFixture) { f.cfg.GasBudget = big.NewInt(2_000_000) },
			want:    OutcomeInsufficientGas,
			wantErr: ErrInsufficientGas,
		},
		{
			name:   "dry run",
			mutate: func(f *engineFixture) { f.cfg.DryRun = true },
			want:   OutcomeAccepted,
		},
		{
			name:   "gas budget covered",
			mutate: func(f *engineFixture) { f.cfg.GasBudget = big.NewInt(500_000) },
			want:   OutcomeExecuted,
		},
		{
			name:   "no account",
			mutate: func(f *engineFixture) { f.useAccount = false; f.cfg.GasBudget = big.NewInt(1) },
			want:   OutcomeExecuted,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newEngineFixture()
			tt.mutate(f)
			e := f.engine(t)

			report, err := e.RunCycle(context.Background(), "test")
			require.NoError(t, err)
			assert.Equal(t, tt.want, report.Outcome, "reason: %s", report.Reason())
			if tt.wantErr != nil {
				assert.ErrorIs(t, report.Err, tt.wantErr)
			}
			if tt.want != OutcomeExecuted {
				assert.Zero(t, f.s1.count())
			}
			assert.Zero(t, f.s2.count())
			assert.Equal(t, 1.0, f.cycles(tt.want))
			assert.Equal(t, 1, f.reporter.count())
		})
	}
}

func TestEngine_NoOpportunitySkipsLiquidity(t *testing.T) {
	f := newEngineFixture()
	f.r2.raw = sqrtOf(81, 93)
	e := f.engine(t)

	report, err := e.RunCycle(context.Background(), "test")
	require.NoError(t, err)
	assert.NoError(t, report.Err)
	assert.Zero(t, f.r1.reserveCalls.Load())
	assert.Zero(t, f.q1.calls.Load())
	assert.Equal(t, "0", report.Divergence.Display.String())
}

// quotes consistent with the pool prices: the cycle must borrow base on the venue
// that gives the most quote for it and sell that quote where it fetches the most base
func TestEngine_BuysWhereQuoteIsCheap(t *testing.T) {
	deep := func(raw *big.Int) *fakeReader {
		return &fakeReader{raw: raw, reserveBase: big.NewInt(10_000_000_000), reserveQuote: big.NewInt(1_000_000_000_000)}
	}
	q1 := &poolQuoter{rate: dec("100")}
	q2 := &poolQuoter{rate: dec("102.515625")}
	v1 := &Venue{Name: "venue1", FeePPM: 3000, Reader: deep(sqrtOf(80, 93)), Quoter: q1}
	v2 := &Venue{Name: "venue2", FeePPM: 3000, Reader: deep(sqrtOf(81, 93)), Quoter: q2}

	e, err := NewEngine(EngineConfig{
		ThresholdPct: dec("1"),
		MaxSlippage:  dec("0.005"),
		CallTimeout:  time.Second,
		DryRun:       true,
	}, v1, v2, testBase, testQuote, nil)
	require.NoError(t, err)

	report, err := e.RunCycle(context.Background(), "test")
	require.NoError(t, err)
	require.NoError(t, report.Err)
	require.Equal(t, OutcomeAccepted, report.Outcome)

	intent := report.Divergence.Intent
	assert.Equal(t, DirectionBuySecond, intent.Direction)
	assert.Same(t, v2, intent.BuyVenue)
	assert.Same(t, v1, intent.SellVenue)
	assert.Positive(t, report.Decision.Margin().Sign())

	// the same size routed the other way loses money
	ctx := context.Background()
	size := big.NewInt(8_000_000_000)
	required, err := q1.QuoteExactOutput(ctx, v1, testBase, testQuote, 3000, size)
	require.NoError(t, err)
	returned, err := q2.QuoteExactInput(ctx, v2, testQuote, testBase, 3000, size)
	require.NoError(t, err)
	assert.Negative(t, returned.Cmp(required))
}

func TestEngine_SettlementReverted(t *testing.T) {
	f := newEngineFixture()
	f.s1.err = fmt.Errorf("tx 0x01: %w", ErrSettlementReverted)
	f.s1.onSubmit = func() { f.account.settle(0, -900) }
	e := f.engine(t)

	report, err := e.RunCycle(context.Background(), "test")
	require.NoError(t, err)
	assert.Equal(t, OutcomeSettlementReverted, report.Outcome)

	// balances are re-read after a failed dispatch
	require.NotNil(t, report.Trade)
	assert.Equal(t, 2, f.account.reads)
	assert.Equal(t, big.NewInt(900), report.Trade.GasSpent)
	assert.Zero(t, report.Trade.NetPnL.Sign())
}

func TestEngine_SubmitError(t *testing.T) {
	f := newEngineFixture()
	f.s1.receipt = nil
	f.s1.err = errors.New("nonce too low")
	e := f.engine(t)

	report, err := e.RunCycle(context.Background(), "test")
	require.NoError(t, err)
	assert.Equal(t, OutcomeError, report.Outcome)
	assert.Contains(t, report.Reason(), "nonce too low")
	assert.Equal(t, 2, f.account.reads)
}

func TestEngine_SingleFlight(t *testing.T) {
	f := newEngineFixture()
	f.r1.gate = make(chan struct{})
	f.r1.entered = make(chan struct{}, 1)
	e := f.engine(t)
	ctx := context.Background()

	assert.True(t, e.Trigger(ctx, SwapNotification{Venue: "venue1", BlockNumber: 1}))
	assert.False(t, e.Trigger(ctx, SwapNotification{Venue: "venue2", BlockNumber: 1}))

	<-f.r1.entered
	assert.True(t, e.InFlight())
	_, err := e.RunCycle(ctx, "manual")
	assert.ErrorIs(t, err, ErrCycleInFlight)

	close(f.r1.gate)
	e.Wait()

	assert.EqualValues(t, 1, f.r1.priceCalls.Load())
	assert.EqualValues(t, 1, f.r2.priceCalls.Load())
	assert.Equal(t, 1, f.s1.count())
	assert.Equal(t, 1, f.reporter.count())
	assert.Equal(t, uint64(2), e.Dropped())
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.NotificationsDropped))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Notifications.WithLabelValues("venue2")))

	// guard is released once the cycle ends
	assert.False(t, e.InFlight())
	report, err := e.RunCycle(ctx, "manual")
	require.NoError(t, err)
	assert.Equal(t, OutcomeExecuted, report.Outcome)
}

func TestEngine_GuardReleasedAfterRejection(t *testing.T) {
	f := newEngineFixture()
	f.q2.exactInput = big.NewInt(1)
	e := f.engine(t)

	for i := 0; i < 3; i++ {
		assert.True(t, e.Trigger(context.Background(), SwapNotification{Venue: "venue1"}))
		e.Wait()
	}
	assert.Equal(t, 3.0, f.cycles(OutcomeInsufficientReturn))
	assert.Zero(t, e.Dropped())
}

func TestEngine_CallTimeout(t *testing.T) {
	f := newEngineFixture()
	f.r1.gate = make(chan struct{})
	f.cfg.CallTimeout = 20 * time.Millisecond
	e := f.engine(t)

	report, err := e.RunCycle(context.Background(), "test")
	require.NoError(t, err)
	assert.Equal(t, OutcomePriceUnavailable, report.Outcome)
	assert.ErrorIs(t, report.Err, context.DeadlineExceeded)
}

func TestNewEngine_Validates(t *testing.T) {
	f := newEngineFixture()

	_, err := NewEngine(f.cfg, f.v1, nil, testBase, testQuote, nil)
	assert.Error(t, err)

	f.v2.Quoter = nil
	_, err = NewEngine(f.cfg, f.v1, f.v2, testBase, testQuote, nil)
	assert.Error(t, err)

	f = newEngineFixture()
	f.v1.Submitter = nil
	_, err = NewEngine(f.cfg, f.v1, f.v2, testBase, testQuote, nil)
	assert.Error(t, err)

	f.cfg.DryRun = true
	_, err = NewEngine(f.cfg, f.v1, f.v2, testBase, testQuote, nil)
	assert.NoError(t, err, "a dry run never dispatches")

	f = newEngineFixture()
	f.cfg.ThresholdPct = dec("0")
	_, err = NewEngine(f.cfg, f.v1, f.v2, testBase, testQuote, nil)
	assert.Error(t, err)
}
