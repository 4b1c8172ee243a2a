// Package market defines the exchange market-data capabilities the monitor consumes.
package market

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Candle is one closed OHLCV interval for a pair.
type Candle struct {
	OpenTime time.Time
	Open     decimal.Decimal
	High     decimal.Decimal
	Low      decimal.Decimal
	Close    decimal.Decimal
	Volume   decimal.Decimal
}

// Provider is the market-data capability of one exchange. Pairs are written
// as "BASE/QUOTE", e.g. "BTC/USDT".
type Provider interface {
	// Name returns the exchange name the provider was registered under.
	Name() string

	// ActivePairs returns the pairs currently trading on the spot market.
	ActivePairs(ctx context.Context) ([]string, error)

	// LastPrice returns the most recent trade price of a pair.
	LastPrice(ctx context.Context, pair string) (decimal.Decimal, error)

	// WatchCandles blocks until the next batch of closed candles for the pair
	// arrives. The first call opens the stream; an error leaves the provider
	// ready to reconnect on the next call.
	WatchCandles(ctx context.Context, pair, interval string) ([]Candle, error)

	// Close releases every connection held by the provider.
	Close() error
}

// Unwatcher is implemented by providers that can stop a single candle stream.
// Without it, a stream nobody watches anymore is simply left to the provider.
type Unwatcher interface {
	UnwatchCandles(ctx context.Context, pair, interval string) error
}
