package monitor

import (
	"context"
	"slices"
	"sync"
	"time"

	"crypto-call-bot-go/internal/market"

	"go.uber.org/zap"
)

// subscription owns the candle stream of one pair on one exchange and fans
// every new candle out to the calls watching that pair. A single goroutine
// (run) reads the stream, so calls see candles in arrival order.
type subscription struct {
	session *exchangeSession
	pair    string
	logger  *zap.Logger

	mu    sync.Mutex
	calls []*Call

	// Only touched by the goroutine that handles candles.
	lastOpen time.Time
	seen     bool
}

func newSubscription(session *exchangeSession, pair string) *subscription {
	return &subscription{
		session: session,
		pair:    pair,
		logger:  session.logger.With(zap.String("pair", pair)),
	}
}

func (s *subscription) add(call *Call) {
	s.mu.Lock()
	s.calls = append(s.calls, call)
	s.mu.Unlock()
}

func (s *subscription) snapshot() []*Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.calls)
}

func (s *subscription) remove(closed []*Call) {
	s.mu.Lock()
	s.calls = slices.DeleteFunc(s.calls, func(c *Call) bool {
		return slices.Contains(closed, c)
	})
	s.mu.Unlock()
}

// prime evaluates a synthetic tick at the last trade price so a call added
// between candles is not left without a price until the next candle closes.
func (s *subscription) prime(ctx context.Context) {
	price, err := s.session.provider.LastPrice(ctx, s.pair)
	if err != nil {
		s.logger.Warn("Failed to load last price, waiting for the first candle", zap.Error(err))
		return
	}
	s.handle(ctx, market.Candle{
		OpenTime: s.session.deps.now(),
		Open:     price,
		High:     price,
		Low:      price,
		Close:    price,
	})
}

// handle evaluates one candle against every call and drops the calls that
// closed. A candle with the same open time as the previous one is ignored.
func (s *subscription) handle(ctx context.Context, candle market.Candle) {
	if s.seen && candle.OpenTime.Equal(s.lastOpen) {
		return
	}
	s.lastOpen = candle.OpenTime
	s.seen = true

	// Persistence of a transition that started must finish even during shutdown.
	ctx = context.WithoutCancel(ctx)
	tick := tickFromCandle(candle)

	var closed []*Call
	for _, call := range s.snapshot() {
		open, err := call.Update(ctx, tick)
		if err != nil {
			s.logger.Error("Failed to update call", zap.Uint64("call_id", call.ID()), zap.Error(err))
		}
		if !open {
			closed = append(closed, call)
		}
	}
	if len(closed) > 0 {
		s.remove(closed)
	}
}

// run reads the stream until the subscription has no calls left or the
// session is stopped. Stream errors are retried after the session's retry delay.
func (s *subscription) run(ctx context.Context) {
	defer s.session.wg.Done()

	interval := s.session.interval
	s.logger.Info("Watching candles", zap.String("interval", interval))
	for {
		candles, err := s.session.provider.WatchCandles(ctx, s.pair, interval)
		if err != nil {
			if ctx.Err() != nil {
				s.logger.Info("Stopped watching candles")
				return
			}
			s.logger.Warn("Failed to watch candles, retrying...",
				zap.Duration("retry_after", s.session.retryDelay), zap.Error(err))
			select {
			case <-time.After(s.session.retryDelay):
				continue
			case <-ctx.Done():
				s.logger.Info("Stopped watching candles")
				return
			}
		}

		for _, candle := range candles {
			s.handle(ctx, candle)
		}

		if s.session.release(s) {
			s.unwatch(ctx)
			s.logger.Info("Closed all calls, stopped watching candles")
			return
		}
	}
}

func (s *subscription) unwatch(ctx context.Context) {
	if s.session.unwatcher == nil {
		return
	}
	if err := s.session.unwatcher.UnwatchCandles(ctx, s.pair, s.session.interval); err != nil {
		s.logger.Warn("Failed to unwatch candles", zap.Error(err))
	}
}
