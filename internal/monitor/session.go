package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"crypto-call-bot-go/internal/market"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// exchangeSession owns the provider of one exchange and the subscriptions of
// every pair watched on it.
type exchangeSession struct {
	name         string
	provider     market.Provider
	unwatcher    market.Unwatcher
	deps         *deps
	logger       *zap.Logger
	interval     string
	retryDelay   time.Duration
	directoryTTL time.Duration
	investment   decimal.Decimal

	dirMu     sync.RWMutex
	directory map[string]struct{}
	loadedAt  time.Time

	mu      sync.Mutex
	subs    map[string]*subscription
	stopped bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// In-flight AddCall/register operations, guarded by Monitor.mu.
	pending int
}

type sessionOptions struct {
	interval     string
	retryDelay   time.Duration
	directoryTTL time.Duration
	investment   decimal.Decimal
}

func newExchangeSession(name string, provider market.Provider, d *deps, opts sessionOptions) *exchangeSession {
	ctx, cancel := context.WithCancel(context.Background())
	s := &exchangeSession{
		name:         name,
		provider:     provider,
		deps:         d,
		logger:       d.logger.With(zap.String("exchange", name)),
		interval:     opts.interval,
		retryDelay:   opts.retryDelay,
		directoryTTL: opts.directoryTTL,
		investment:   opts.investment,
		subs:         make(map[string]*subscription),
		ctx:          ctx,
		cancel:       cancel,
	}
	if u, ok := provider.(market.Unwatcher); ok {
		s.unwatcher = u
	}
	return s
}

// checkPair rejects pairs that are not actively trading. The directory is
// reloaded by whichever caller finds it stale.
func (s *exchangeSession) checkPair(ctx context.Context, pair string) error {
	s.dirMu.RLock()
	directory, loadedAt := s.directory, s.loadedAt
	s.dirMu.RUnlock()

	if directory == nil || s.deps.now().Sub(loadedAt) > s.directoryTTL {
		pairs, err := s.provider.ActivePairs(ctx)
		if err != nil {
			return fmt.Errorf("failed to load markets of %s: %w", s.name, err)
		}
		directory = make(map[string]struct{}, len(pairs))
		for _, p := range pairs {
			directory[p] = struct{}{}
		}

		s.dirMu.Lock()
		s.directory, s.loadedAt = directory, s.deps.now()
		s.dirMu.Unlock()
		s.logger.Info("Loaded market directory", zap.Int("pairs", len(directory)))
	}

	if _, ok := directory[pair]; !ok {
		return fmt.Errorf("%w: %s is not trading at %s", ErrInvalidPair, pair, s.name)
	}
	return nil
}

// AddCall validates the terms and the pair, creates the call and starts watching it.
func (s *exchangeSession) AddCall(ctx context.Context, terms Terms) (*Call, error) {
	if err := terms.validate(); err != nil {
		return nil, err
	}
	if err := s.checkPair(ctx, terms.Pair); err != nil {
		return nil, err
	}
	call, err := createCall(ctx, s.deps, s.name, terms, s.investment)
	if err != nil {
		return nil, err
	}
	if err := s.register(ctx, call); err != nil {
		return nil, err
	}
	return call, nil
}

// registerCall starts watching a call loaded from the store.
func (s *exchangeSession) registerCall(ctx context.Context, call *Call) error {
	if err := s.checkPair(ctx, call.Pair()); err != nil {
		return err
	}
	return s.register(ctx, call)
}

func (s *exchangeSession) register(ctx context.Context, call *Call) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrSessionStopped
	}
	if sub, ok := s.subs[call.Pair()]; ok {
		sub.add(call)
		s.mu.Unlock()
		return nil
	}
	sub := newSubscription(s, call.Pair())
	sub.add(call)
	s.subs[call.Pair()] = sub
	s.mu.Unlock()

	sub.prime(ctx)
	if s.release(sub) {
		// The first tick already closed every call.
		return nil
	}
	s.start(sub)
	return nil
}

func (s *exchangeSession) start(sub *subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.wg.Add(1)
	go sub.run(s.ctx)
}

// release drops sub from the session if it has no calls left. It reports
// whether the subscription was dropped; a call registered concurrently keeps it alive.
func (s *exchangeSession) release(sub *subscription) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub.mu.Lock()
	defer sub.mu.Unlock()

	if len(sub.calls) > 0 {
		return false
	}
	if s.subs[sub.pair] == sub {
		delete(s.subs, sub.pair)
	}
	return true
}

// calls returns every call held by the session, closed calls not yet pruned included.
func (s *exchangeSession) calls() []*Call {
	s.mu.Lock()
	subs := make([]*subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	var calls []*Call
	for _, sub := range subs {
		calls = append(calls, sub.snapshot()...)
	}
	return calls
}

// Size returns the number of watched pairs.
func (s *exchangeSession) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Stop cancels every subscription, waits for them to finish and closes the
// provider. It is safe to call more than once.
func (s *exchangeSession) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()

	s.mu.Lock()
	s.subs = make(map[string]*subscription)
	s.mu.Unlock()

	if err := s.provider.Close(); err != nil {
		return fmt.Errorf("failed to close %s provider: %w", s.name, err)
	}
	s.logger.Info("Stopped exchange session")
	return nil
}
