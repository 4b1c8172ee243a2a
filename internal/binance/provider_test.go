package binance

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"crypto-call-bot-go/internal/config"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeRest struct {
	info   *ExchangeInfoResponse
	prices map[string]string
	err    error
}

func (f *fakeRest) GetServerTime(context.Context) (int64, error) { return 0, f.err }

func (f *fakeRest) GetExchangeInfo(context.Context) (*ExchangeInfoResponse, error) {
	return f.info, f.err
}

func (f *fakeRest) GetTickerPrice(_ context.Context, symbol string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.prices[symbol], nil
}

// klineServer serves the given messages on every websocket connection and
// then holds it open until the client leaves.
type klineServer struct {
	*httptest.Server
	mu    sync.Mutex
	paths []string
}

func newKlineServer(t *testing.T, messages ...string) *klineServer {
	t.Helper()
	ks := &klineServer{}
	upgrader := websocket.Upgrader{}
	ks.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ks.mu.Lock()
		ks.paths = append(ks.paths, r.URL.Path)
		ks.mu.Unlock()

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, m := range messages {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(m)); err != nil {
				return
			}
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(ks.Close)
	return ks
}

func (ks *klineServer) wsURL() string {
	return "ws" + strings.TrimPrefix(ks.URL, "http")
}

func (ks *klineServer) dialedPaths() []string {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	return append([]string(nil), ks.paths...)
}

const (
	openKline   = `{"e":"kline","E":1,"s":"BTCUSDT","k":{"t":1700000000000,"T":1700000059999,"i":"1m","o":"100","c":"101","h":"102","l":"99","v":"5","x":false}}`
	closedKline = `{"e":"kline","E":2,"s":"BTCUSDT","k":{"t":1700000000000,"T":1700000059999,"i":"1m","o":"100","c":"101.5","h":"103","l":"98","v":"7","x":true}}`
)

func newTestProvider(rest RestClientInterface, wsURL string) *Provider {
	return NewProvider(&config.Binance{WsURL: wsURL, ReadTimeout: 5 * time.Second}, rest, zap.NewNop())
}

func TestProviderActivePairs(t *testing.T) {
	rest := &fakeRest{info: &ExchangeInfoResponse{Symbols: []SymbolInfo{
		{Symbol: "BTCUSDT", Status: "TRADING", BaseAsset: "BTC", QuoteAsset: "USDT", IsSpotTradingAllowed: true},
		{Symbol: "ETHBTC", Status: "TRADING", BaseAsset: "ETH", QuoteAsset: "BTC", IsSpotTradingAllowed: true},
		{Symbol: "XYZUSDT", Status: "HALT", BaseAsset: "XYZ", QuoteAsset: "USDT", IsSpotTradingAllowed: true},
		{Symbol: "ABCUSDT", Status: "TRADING", BaseAsset: "ABC", QuoteAsset: "USDT", IsSpotTradingAllowed: false},
	}}}
	p := newTestProvider(rest, "ws://unused")

	pairs, err := p.ActivePairs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"BTC/USDT", "ETH/BTC"}, pairs)

	rest.err = errors.New("down")
	_, err = p.ActivePairs(context.Background())
	assert.Error(t, err)
}

func TestProviderLastPrice(t *testing.T) {
	rest := &fakeRest{prices: map[string]string{"BTCUSDT": "64000.5", "ETHBTC": "garbage"}}
	p := newTestProvider(rest, "ws://unused")

	price, err := p.LastPrice(context.Background(), "BTC/USDT")
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("64000.5").Equal(price))

	_, err = p.LastPrice(context.Background(), "ETH/BTC")
	assert.Error(t, err)
}

func TestProviderWatchCandles(t *testing.T) {
	ks := newKlineServer(t, `not json`, openKline, closedKline)
	p := newTestProvider(&fakeRest{}, ks.wsURL())
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	candles, err := p.WatchCandles(ctx, "BTC/USDT", "1m")
	require.NoError(t, err)
	require.Len(t, candles, 1)

	c := candles[0]
	assert.Equal(t, time.UnixMilli(1700000000000), c.OpenTime)
	assert.True(t, decimal.NewFromInt(103).Equal(c.High))
	assert.True(t, decimal.NewFromInt(98).Equal(c.Low))
	assert.True(t, decimal.RequireFromString("101.5").Equal(c.Close))
	assert.Equal(t, []string{"/btcusdt@kline_1m"}, ks.dialedPaths())
}

func TestProviderWatchCandlesCancel(t *testing.T) {
	ks := newKlineServer(t)
	p := newTestProvider(&fakeRest{}, ks.wsURL())
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := p.WatchCandles(ctx, "BTC/USDT", "1m")
		done <- err
	}()

	require.Eventually(t, func() bool { return len(ks.dialedPaths()) == 1 }, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("WatchCandles did not return after cancel")
	}

	p.mu.Lock()
	assert.Empty(t, p.streams, "a failed stream is dropped")
	p.mu.Unlock()
}

func TestProviderUnwatchCandles(t *testing.T) {
	ks := newKlineServer(t, closedKline)
	p := newTestProvider(&fakeRest{}, ks.wsURL())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := p.WatchCandles(ctx, "BTC/USDT", "1m")
	require.NoError(t, err)

	p.mu.Lock()
	assert.Len(t, p.streams, 1)
	p.mu.Unlock()

	require.NoError(t, p.UnwatchCandles(ctx, "BTC/USDT", "1m"))
	require.NoError(t, p.UnwatchCandles(ctx, "BTC/USDT", "1m"))

	p.mu.Lock()
	assert.Empty(t, p.streams)
	p.mu.Unlock()
	assert.NoError(t, p.Close())
}

func TestSymbol(t *testing.T) {
	assert.Equal(t, "BTCUSDT", Symbol("BTC/USDT"))
	assert.Equal(t, "ETHBTC", Symbol("eth/btc"))
}
