package dex

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
	"github.com/pulkyeet/flashloan-arb/internal/arbitrage"
	"github.com/pulkyeet/flashloan-arb/internal/eth"
)

const maxResubscribeBackoff = 30 * time.Second

type LogSubscriber interface {
	SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error)
}

// SwapWatcher implements arbitrage.SwapSource over eth_subscribe("logs").
// Dropped websocket subscriptions are re-established with backoff.
type SwapWatcher struct {
	subscriber LogSubscriber
	registry   *Registry
	topics     []common.Hash
	backoff    time.Duration
	logger     *slog.Logger
}

// NewSwapWatcher listens for any of the given Swap event signatures
func NewSwapWatcher(subscriber LogSubscriber, registry *Registry, signatures []string, logger *slog.Logger) *SwapWatcher {
	if logger == nil {
		logger = slog.Default()
	}
	topics := make([]common.Hash, 0, len(signatures))
	for _, sig := range signatures {
		topics = append(topics, eth.SwapTopic(sig))
	}
	if len(topics) == 0 {
		topics = append(topics, eth.SwapTopic(""))
	}
	return &SwapWatcher{
		subscriber: subscriber,
		registry:   registry,
		topics:     topics,
		backoff:    maxResubscribeBackoff,
		logger:     logger,
	}
}

func (w *SwapWatcher) SubscribeSwaps(ctx context.Context, v *arbitrage.Venue, base, quote arbitrage.Token, sink chan<- arbitrage.SwapNotification) (ethereum.Subscription, error) {
	pool, err := w.registry.PoolAddress(ctx, v, base, quote)
	if err != nil {
		return nil, fmt.Errorf("pool for %s: %w", v.Name, err)
	}

	query := ethereum.FilterQuery{
		Addresses: []common.Address{pool},
		Topics:    [][]common.Hash{w.topics},
	}

	// first attempt is synchronous so a bad endpoint fails startup
	first, err := w.subscribe(ctx, v.Name, query, sink)
	if err != nil {
		return nil, err
	}

	return event.ResubscribeErr(w.backoff, func(ctx context.Context, lastErr error) (event.Subscription, error) {
		if first != nil {
			sub := first
			first = nil
			return sub, nil
		}
		w.logger.Warn("swap subscription dropped, resubscribing", "venue", v.Name, "err", lastErr)
		return w.subscribe(ctx, v.Name, query, sink)
	}), nil
}

func (w *SwapWatcher) subscribe(ctx context.Context, venue string, query ethereum.FilterQuery, sink chan<- arbitrage.SwapNotification) (event.Subscription, error) {
	logs := make(chan types.Log, 16)
	sub, err := w.subscriber.SubscribeFilterLogs(ctx, query, logs)
	if err != nil {
		return nil, fmt.Errorf("subscribe logs: %w", err)
	}

	return event.NewSubscription(func(quit <-chan struct{}) error {
		defer sub.Unsubscribe()
		for {
			select {
			case l := <-logs:
				if l.Removed {
					continue
				}
				n := arbitrage.SwapNotification{Venue: venue, BlockNumber: l.BlockNumber, TxHash: l.TxHash}
				select {
				case sink <- n:
				case <-quit:
					return nil
				}
			case err := <-sub.Err():
				return err
			case <-quit:
				return nil
			}
		}
	}), nil
}
