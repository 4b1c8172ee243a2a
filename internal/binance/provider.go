package binance

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"crypto-call-bot-go/internal/config"
	"crypto-call-bot-go/internal/market"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const ExchangeName = "binance"

// Provider serves spot market data from Binance: the REST API for the symbol
// directory and last prices, one kline websocket per watched pair.
type Provider struct {
	rest        RestClientInterface
	wsURL       string
	readTimeout time.Duration
	dialer      *websocket.Dialer
	logger      *zap.Logger

	mu      sync.Mutex
	streams map[string]*klineStream
}

var (
	_ market.Provider  = (*Provider)(nil)
	_ market.Unwatcher = (*Provider)(nil)
)

// NewProvider creates a Binance market-data provider.
func NewProvider(cfg *config.Binance, rest RestClientInterface, logger *zap.Logger) *Provider {
	return &Provider{
		rest:        rest,
		wsURL:       cfg.WsURL,
		readTimeout: cfg.ReadTimeout,
		dialer:      &websocket.Dialer{HandshakeTimeout: 15 * time.Second},
		logger:      logger.Named("binance"),
		streams:     make(map[string]*klineStream),
	}
}

// Name implements market.Provider.
func (p *Provider) Name() string {
	return ExchangeName
}

// ActivePairs implements market.Provider.
func (p *Provider) ActivePairs(ctx context.Context) ([]string, error) {
	info, err := p.rest.GetExchangeInfo(ctx)
	if err != nil {
		return nil, err
	}
	pairs := make([]string, 0, len(info.Symbols))
	for _, s := range info.Symbols {
		if s.Active() {
			pairs = append(pairs, s.BaseAsset+"/"+s.QuoteAsset)
		}
	}
	p.logger.Debug("Loaded exchange directory", zap.Int("active_pairs", len(pairs)))
	return pairs, nil
}

// LastPrice implements market.Provider.
func (p *Provider) LastPrice(ctx context.Context, pair string) (decimal.Decimal, error) {
	raw, err := p.rest.GetTickerPrice(ctx, Symbol(pair))
	if err != nil {
		return decimal.Zero, err
	}
	price, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid price %q for %s: %w", raw, pair, err)
	}
	return price, nil
}

// WatchCandles implements market.Provider. Binance delivers one closed kline
// per message, so the batch always holds a single candle.
func (p *Provider) WatchCandles(ctx context.Context, pair, interval string) ([]market.Candle, error) {
	key := streamKey(pair, interval)
	stream, err := p.stream(ctx, key, pair, interval)
	if err != nil {
		return nil, err
	}

	candle, err := stream.next(ctx)
	if err != nil {
		p.drop(key, stream)
		return nil, err
	}
	return []market.Candle{candle}, nil
}

// UnwatchCandles implements market.Unwatcher.
func (p *Provider) UnwatchCandles(_ context.Context, pair, interval string) error {
	key := streamKey(pair, interval)
	p.mu.Lock()
	stream, ok := p.streams[key]
	delete(p.streams, key)
	p.mu.Unlock()

	if ok {
		stream.close()
		p.logger.Info("Closed kline stream", zap.String("pair", pair), zap.String("interval", interval))
	}
	return nil
}

// Close implements market.Provider.
func (p *Provider) Close() error {
	p.mu.Lock()
	streams := p.streams
	p.streams = make(map[string]*klineStream)
	p.mu.Unlock()

	for _, s := range streams {
		s.close()
	}
	return nil
}

func (p *Provider) stream(ctx context.Context, key, pair, interval string) (*klineStream, error) {
	p.mu.Lock()
	stream, ok := p.streams[key]
	p.mu.Unlock()
	if ok {
		return stream, nil
	}

	stream, err := dialKlineStream(ctx, p.dialer, p.wsURL, Symbol(pair), interval, p.readTimeout)
	if err != nil {
		return nil, err
	}
	p.logger.Info("Opened kline stream", zap.String("pair", pair), zap.String("interval", interval))

	p.mu.Lock()
	p.streams[key] = stream
	p.mu.Unlock()
	return stream, nil
}

// drop forgets a broken stream so the next watch redials.
func (p *Provider) drop(key string, stream *klineStream) {
	stream.close()
	p.mu.Lock()
	if p.streams[key] == stream {
		delete(p.streams, key)
	}
	p.mu.Unlock()
}

// Symbol converts "BTC/USDT" into the exchange symbol "BTCUSDT".
func Symbol(pair string) string {
	return strings.ToUpper(strings.ReplaceAll(pair, "/", ""))
}

func streamKey(pair, interval string) string {
	return Symbol(pair) + "@" + interval
}
