package dex

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pulkyeet/flashloan-arb/internal/arbitrage"
	"github.com/pulkyeet/flashloan-arb/internal/eth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLogSub struct {
	logs chan<- types.Log
	errc chan error
}

func (s *fakeLogSub) Err() <-chan error { return s.errc }
func (s *fakeLogSub) Unsubscribe()      {}

type fakeLogs struct {
	mu      sync.Mutex
	subs    []*fakeLogSub
	queries []ethereum.FilterQuery
}

func (f *fakeLogs) SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := &fakeLogSub{logs: ch, errc: make(chan error, 1)}
	f.subs = append(f.subs, s)
	f.queries = append(f.queries, q)
	return s, nil
}

func (f *fakeLogs) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func (f *fakeLogs) latest() *fakeLogSub {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subs[len(f.subs)-1]
}

func newTestWatcher(t *testing.T) (*SwapWatcher, *fakeLogs) {
	t.Helper()
	chain := newFakeChain()
	chain.on(factoryAddr, factoryABI, "getPool", poolAddr)
	reg, err := NewRegistry(chain, 8)
	require.NoError(t, err)

	logs := &fakeLogs{}
	w := NewSwapWatcher(logs, reg, []string{eth.KnownDEXes["uniswap"].SwapEvent, eth.KnownDEXes["pancakeswap"].SwapEvent}, nil)
	w.backoff = 10 * time.Millisecond
	return w, logs
}

func receive(t *testing.T, sink <-chan arbitrage.SwapNotification) arbitrage.SwapNotification {
	t.Helper()
	select {
	case n := <-sink:
		return n
	case <-time.After(time.Second):
		t.Fatal("no notification")
		return arbitrage.SwapNotification{}
	}
}

func TestSwapWatcher_Forwards(t *testing.T) {
	w, logs := newTestWatcher(t)
	sink := make(chan arbitrage.SwapNotification, 4)

	sub, err := w.SubscribeSwaps(context.Background(), testVenue(), weth, usdc, sink)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	require.Equal(t, 1, logs.count())
	q := logs.queries[0]
	assert.Equal(t, []common.Address{poolAddr}, q.Addresses)
	require.Len(t, q.Topics, 1)
	assert.Len(t, q.Topics[0], 2)

	hash := common.HexToHash("0xabc")
	logs.latest().logs <- types.Log{BlockNumber: 10, TxHash: common.HexToHash("0xdead"), Removed: true}
	logs.latest().logs <- types.Log{BlockNumber: 11, TxHash: hash}

	n := receive(t, sink)
	assert.Equal(t, "uniswap", n.Venue)
	assert.Equal(t, uint64(11), n.BlockNumber)
	assert.Equal(t, hash, n.TxHash)
}

func TestSwapWatcher_Resubscribes(t *testing.T) {
	w, logs := newTestWatcher(t)
	sink := make(chan arbitrage.SwapNotification, 4)

	sub, err := w.SubscribeSwaps(context.Background(), testVenue(), weth, usdc, sink)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	logs.latest().errc <- errors.New("websocket closed")
	require.Eventually(t, func() bool { return logs.count() == 2 }, time.Second, 5*time.Millisecond)

	logs.latest().logs <- types.Log{BlockNumber: 12}
	assert.Equal(t, uint64(12), receive(t, sink).BlockNumber)
}

func TestSwapWatcher_NoPool(t *testing.T) {
	chain := newFakeChain()
	chain.on(factoryAddr, factoryABI, "getPool", common.Address{})
	reg, err := NewRegistry(chain, 8)
	require.NoError(t, err)

	w := NewSwapWatcher(&fakeLogs{}, reg, nil, nil)
	_, err = w.SubscribeSwaps(context.Background(), testVenue(), weth, usdc, make(chan arbitrage.SwapNotification))
	assert.ErrorIs(t, err, arbitrage.ErrPriceUnavailable)
}
