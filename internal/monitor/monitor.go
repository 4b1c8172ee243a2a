// Package monitor tracks calls against live candle streams. A Monitor holds
// one exchange session per exchange, a session holds one subscription per
// watched pair, and a subscription feeds every call on that pair.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"crypto-call-bot-go/internal/config"
	"crypto-call-bot-go/internal/market"
	"crypto-call-bot-go/internal/models"
	"crypto-call-bot-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ProviderFactory builds a market-data provider for an exchange name.
// *market.Registry implements it.
type ProviderFactory interface {
	New(name string) (market.Provider, error)
}

// Monitor is the entry point for creating, looking up and closing calls.
type Monitor struct {
	providers ProviderFactory
	deps      *deps
	opts      sessionOptions
	logger    *zap.Logger

	mu       sync.Mutex
	sessions map[string]*exchangeSession
	stopped  bool
}

// NewMonitor creates a monitor. Sessions are created on first use of an exchange.
func NewMonitor(cfg config.Monitor, providers ProviderFactory, st Store, notifier Notifier, logger *zap.Logger) (*Monitor, error) {
	investment, err := decimal.NewFromString(cfg.Investment)
	if err != nil {
		return nil, fmt.Errorf("invalid monitor investment %q: %w", cfg.Investment, err)
	}
	if !investment.IsPositive() {
		return nil, fmt.Errorf("monitor investment must be greater than 0, got %s", cfg.Investment)
	}
	if cfg.Interval == "" {
		return nil, errors.New("monitor interval is required")
	}

	logger = logger.Named("monitor")
	return &Monitor{
		providers: providers,
		deps: &deps{
			store:    st,
			notifier: notifier,
			logger:   logger,
			now:      time.Now,
		},
		opts: sessionOptions{
			interval:     cfg.Interval,
			retryDelay:   cfg.RetryDelay,
			directoryTTL: cfg.DirectoryTTL,
			investment:   investment,
		},
		logger:   logger,
		sessions: make(map[string]*exchangeSession),
	}, nil
}

// acquire returns the session of an exchange, creating it if needed, and
// counts the caller as in flight until it calls done.
func (m *Monitor) acquire(exchange string) (*exchangeSession, error) {
	name := strings.ToLower(strings.TrimSpace(exchange))

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return nil, ErrSessionStopped
	}

	s, ok := m.sessions[name]
	if !ok {
		provider, err := m.providers.New(name)
		if err != nil {
			return nil, fmt.Errorf("failed to create provider for %q: %w", exchange, err)
		}
		s = newExchangeSession(name, provider, m.deps, m.opts)
		m.sessions[name] = s
		m.logger.Info("Created exchange session", zap.String("exchange", name))
	}
	s.pending++
	return s, nil
}

// done ends an in-flight operation on s. When it failed and left the session
// without any subscription or other operation, the session is torn down.
func (m *Monitor) done(s *exchangeSession, failed bool) {
	m.mu.Lock()
	s.pending--
	drop := failed && s.pending == 0 && s.Size() == 0 && m.sessions[s.name] == s
	if drop {
		delete(m.sessions, s.name)
	}
	m.mu.Unlock()

	if drop {
		m.logger.Info("Removing idle exchange session", zap.String("exchange", s.name))
		if err := s.Stop(); err != nil {
			m.logger.Warn("Failed to stop exchange session", zap.String("exchange", s.name), zap.Error(err))
		}
	}
}

// AddCall creates a call on an exchange and starts watching it. On failure no
// idle exchange session is left behind.
func (m *Monitor) AddCall(ctx context.Context, exchange, pair string, entryPrice, stopLoss decimal.Decimal, takeProfits []TakeProfitSpec) (*Call, error) {
	terms := Terms{
		Pair:        NormalizePair(pair),
		EntryPrice:  entryPrice,
		StopLoss:    stopLoss,
		TakeProfits: takeProfits,
	}
	if err := terms.validate(); err != nil {
		return nil, err
	}

	s, err := m.acquire(exchange)
	if err != nil {
		return nil, err
	}
	call, err := s.AddCall(ctx, terms)
	m.done(s, err != nil)
	if err != nil {
		return nil, err
	}
	return call, nil
}

// Get returns the live call when it is being watched, or loads it from the store.
func (m *Monitor) Get(ctx context.Context, id uint64) (*Call, error) {
	for _, s := range m.sessionList() {
		for _, c := range s.calls() {
			if c.ID() == id {
				return c, nil
			}
		}
	}

	record, err := m.deps.store.GetCall(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("call %d: %w", id, ErrCallNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load call %d: %w", id, err)
	}
	takeProfits, err := m.deps.store.TakeProfits(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load take profits of call %d: %w", id, err)
	}
	return newCall(record, takeProfits, m.deps), nil
}

// GetOpenCalls returns every watched call that is not closed, ordered by ID.
func (m *Monitor) GetOpenCalls() []*Call {
	var open []*Call
	for _, s := range m.sessionList() {
		for _, c := range s.calls() {
			if c.Status() != models.StatusClosed {
				open = append(open, c)
			}
		}
	}
	slices.SortFunc(open, func(a, b *Call) int {
		switch {
		case a.ID() < b.ID():
			return -1
		case a.ID() > b.ID():
			return 1
		}
		return 0
	})
	return open
}

// CloseCall force-closes a call.
func (m *Monitor) CloseCall(ctx context.Context, id uint64) (*Call, error) {
	call, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := call.Close(ctx); err != nil {
		return call, err
	}
	return call, nil
}

// Initialize starts watching every call left open in the store. Calls that
// can no longer be watched are cancelled; other failures leave the call for
// the next start.
func (m *Monitor) Initialize(ctx context.Context) error {
	records, err := m.deps.store.OpenCalls(ctx)
	if err != nil {
		return fmt.Errorf("failed to load open calls: %w", err)
	}

	loaded := 0
	for _, record := range records {
		l := m.logger.With(zap.Uint64("call_id", record.ID), zap.String("exchange", record.Exchange), zap.String("pair", record.Pair))

		takeProfits, err := m.deps.store.TakeProfits(ctx, record.ID)
		if err != nil {
			l.Error("Failed to load take profits", zap.Error(err))
			continue
		}
		call := newCall(record, takeProfits, m.deps)

		if err := m.register(ctx, call); err != nil {
			if IsValidation(err) {
				l.Warn("Call can no longer be watched, cancelling", zap.Error(err))
				if err := call.Cancel(ctx); err != nil {
					l.Error("Failed to cancel call", zap.Error(err))
				}
				continue
			}
			l.Error("Failed to register call", zap.Error(err))
			continue
		}
		loaded++
	}

	m.logger.Info("Loaded open calls", zap.Int("loaded", loaded), zap.Int("stored", len(records)))
	return nil
}

func (m *Monitor) register(ctx context.Context, call *Call) error {
	s, err := m.acquire(call.Exchange())
	if err != nil {
		return err
	}
	err = s.registerCall(ctx, call)
	m.done(s, err != nil)
	return err
}

// Stop stops every exchange session and waits for all of them.
func (m *Monitor) Stop() error {
	m.mu.Lock()
	m.stopped = true
	sessions := make([]*exchangeSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*exchangeSession)
	m.mu.Unlock()

	var g errgroup.Group
	for _, s := range sessions {
		g.Go(s.Stop)
	}
	return g.Wait()
}

// Exchanges returns the names of the exchanges with a running session.
func (m *Monitor) Exchanges() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.sessions))
	for name := range m.sessions {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (m *Monitor) sessionList() []*exchangeSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	sessions := make([]*exchangeSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	return sessions
}
