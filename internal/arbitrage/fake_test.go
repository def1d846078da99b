package arbitrage

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

var (
	testBase  = Token{Address: common.HexToAddress("0x1000000000000000000000000000000000000001"), Symbol: "BASE", Decimals: 18}
	testQuote = Token{Address: common.HexToAddress("0x2000000000000000000000000000000000000002"), Symbol: "QUOTE", Decimals: 18}

	q96 = new(big.Int).Lsh(big.NewInt(1), 96)
)

// sqrtOf returns num * 2^shift, i.e. a sqrtPriceX96 of num / 2^(96-shift)
func sqrtOf(num int64, shift uint) *big.Int {
	return new(big.Int).Lsh(big.NewInt(num), shift)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type fakeReader struct {
	raw          *big.Int
	rawErr       error
	reserveBase  *big.Int
	reserveQuote *big.Int
	reserveErr   error

	// when set, RawPrice blocks until it is closed
	gate    chan struct{}
	entered chan struct{}

	priceCalls   atomic.Int32
	reserveCalls atomic.Int32
}

func (f *fakeReader) RawPrice(ctx context.Context, v *Venue, base, quote Token) (*big.Int, error) {
	f.priceCalls.Add(1)
	if f.entered != nil {
		select {
		case f.entered <- struct{}{}:
		default:
		}
	}
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.raw, f.rawErr
}

func (f *fakeReader) Reserves(ctx context.Context, v *Venue, base, quote Token) (*big.Int, *big.Int, error) {
	f.reserveCalls.Add(1)
	return f.reserveBase, f.reserveQuote, f.reserveErr
}

type fakeQuoter struct {
	exactOutput *big.Int
	exactInput  *big.Int
	err         error
	calls       atomic.Int32
}

func (f *fakeQuoter) QuoteExactOutput(ctx context.Context, v *Venue, in, out Token, feePPM uint32, amountOut *big.Int) (*big.Int, error) {
	f.calls.Add(1)
	return f.exactOutput, f.err
}

func (f *fakeQuoter) QuoteExactInput(ctx context.Context, v *Venue, in, out Token, feePPM uint32, amountIn *big.Int) (*big.Int, error) {
	f.calls.Add(1)
	return f.exactInput, f.err
}

// poolQuoter prices both legs off a constant pool rate, quote per base, with the fee taken on input
type poolQuoter struct {
	rate decimal.Decimal
}

func (q *poolQuoter) outPerIn(in Token) decimal.Decimal {
	if in == testBase {
		return q.rate
	}
	return decimal.NewFromInt(1).DivRound(q.rate, 36)
}

func feeKept(feePPM uint32) decimal.Decimal {
	return decimal.NewFromInt(1).Sub(decimal.New(int64(feePPM), -6))
}

func (q *poolQuoter) QuoteExactOutput(ctx context.Context, v *Venue, in, out Token, feePPM uint32, amountOut *big.Int) (*big.Int, error) {
	need := decimal.NewFromBigInt(amountOut, 0).
		DivRound(q.outPerIn(in), 36).
		DivRound(feeKept(feePPM), 36)
	return need.Ceil().BigInt(), nil
}

func (q *poolQuoter) QuoteExactInput(ctx context.Context, v *Venue, in, out Token, feePPM uint32, amountIn *big.Int) (*big.Int, error) {
	got := decimal.NewFromBigInt(amountIn, 0).Mul(q.outPerIn(in)).Mul(feeKept(feePPM))
	return got.Floor().BigInt(), nil
}

type fakeSubmitter struct {
	mu      sync.Mutex
	params  []TradeParams
	receipt *TradeReceipt
	err     error
	// applied to the account when called, to mimic the trade's effect
	onSubmit func()
}

func (f *fakeSubmitter) Submit(ctx context.Context, p TradeParams) (*TradeReceipt, error) {
	f.mu.Lock()
	f.params = append(f.params, p)
	f.mu.Unlock()
	if f.onSubmit != nil {
		f.onSubmit()
	}
	return f.receipt, f.err
}

func (f *fakeSubmitter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.params)
}

type fakeAccount struct {
	mu     sync.Mutex
	token  *big.Int
	native *big.Int
	reads  int
}

func (f *fakeAccount) TokenBalance(ctx context.Context, t Token) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	return new(big.Int).Set(f.token), nil
}

func (f *fakeAccount) NativeBalance(ctx context.Context) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.native == nil {
		return nil, errors.New("node unavailable")
	}
	return new(big.Int).Set(f.native), nil
}

func (f *fakeAccount) settle(tokenDelta, nativeDelta int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.token.Add(f.token, big.NewInt(tokenDelta))
	f.native.Add(f.native, big.NewInt(nativeDelta))
}

type captureReporter struct {
	mu      sync.Mutex
	reports []*CycleReport
}

func (c *captureReporter) Report(ctx context.Context, r *CycleReport) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reports = append(c.reports, r)
	return nil
}

func (c *captureReporter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.reports)
}

type fakeSub struct {
	errc chan error
	once sync.Once
	done chan struct{}
}

func newFakeSub() *fakeSub {
	return &fakeSub{errc: make(chan error, 1), done: make(chan struct{})}
}

func (s *fakeSub) Err() <-chan error { return s.errc }
func (s *fakeSub) Unsubscribe()      { s.once.Do(func() { close(s.done) }) }

type fakeSource struct {
	mu    sync.Mutex
	sinks map[string]chan<- SwapNotification
	subs  map[string]*fakeSub
	err   error
}

func newFakeSource() *fakeSource {
	return &fakeSource{sinks: map[string]chan<- SwapNotification{}, subs: map[string]*fakeSub{}}
}

func (f *fakeSource) SubscribeSwaps(ctx context.Context, v *Venue, base, quote Token, sink chan<- SwapNotification) (ethereum.Subscription, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	sub := newFakeSub()
	f.sinks[v.Name] = sink
	f.subs[v.Name] = sub
	return sub, nil
}

func (f *fakeSource) sink(venue string) chan<- SwapNotification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sinks[venue]
}

func (f *fakeSource) sub(venue string) *fakeSub {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subs[venue]
}

func (f *fakeSource) subscribed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sinks)
}
