package arbitrage

import (
	"context"
	"fmt"
	"log/slog"
)

// Scheduler feeds both venues' swap notifications into the engine
type Scheduler struct {
	engine *Engine
	source SwapSource
	logger *slog.Logger
	buffer int
}

func NewScheduler(engine *Engine, source SwapSource, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{engine: engine, source: source, logger: logger, buffer: 64}
}

// Run subscribes to both venues and triggers a cycle per notification until ctx is
// cancelled or a subscription fails. It waits for the in-flight cycle before returning.
func (s *Scheduler) Run(ctx context.Context) error {
	defer s.engine.Wait()

	sink := make(chan SwapNotification, s.buffer)
	errs := make(chan error, len(s.engine.venues))
	done := make(chan struct{})
	defer close(done)

	for _, v := range s.engine.venues {
		sub, err := s.source.SubscribeSwaps(ctx, v, s.engine.base, s.engine.quote, sink)
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", v.Name, err)
		}
		defer sub.Unsubscribe()

		go func() {
			select {
			case err, ok := <-sub.Err():
				if ok && err != nil {
					errs <- fmt.Errorf("%s subscription: %w", v.Name, err)
				}
			case <-done:
			}
		}()
	}

	s.logger.Info("waiting for swap event...",
		"pair", s.engine.base.Symbol+"/"+s.engine.quote.Symbol,
		"venues", []string{s.engine.venues[0].Name, s.engine.venues[1].Name})

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errs:
			return err
		case n := <-sink:
			s.engine.Trigger(ctx, n)
		}
	}
}
