package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"crypto-call-bot-go/internal/market"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

// klineEvent is the payload of a <symbol>@kline_<interval> stream message.
type klineEvent struct {
	EventType string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	K         struct {
		StartTime int64  `json:"t"`
		EndTime   int64  `json:"T"`
		Interval  string `json:"i"`
		Open      string `json:"o"`
		Close     string `json:"c"`
		High      string `json:"h"`
		Low       string `json:"l"`
		Volume    string `json:"v"`
		IsClosed  bool   `json:"x"`
	} `json:"k"`
}

// klineStream is one websocket connection to a single kline stream.
// Only one goroutine reads from it at a time.
type klineStream struct {
	conn        *websocket.Conn
	readTimeout time.Duration

	closeOnce sync.Once
}

func dialKlineStream(ctx context.Context, dialer *websocket.Dialer, wsURL, symbol, interval string, readTimeout time.Duration) (*klineStream, error) {
	url := fmt.Sprintf("%s/%s@kline_%s", strings.TrimRight(wsURL, "/"), strings.ToLower(symbol), interval)
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", url, err)
	}
	return &klineStream{conn: conn, readTimeout: readTimeout}, nil
}

// next blocks until a closed kline arrives. Updates of the still-open kline
// are skipped.
func (s *klineStream) next(ctx context.Context) (market.Candle, error) {
	// Unblock ReadMessage when the caller gives up.
	stop := context.AfterFunc(ctx, s.close)
	defer stop()

	for {
		if s.readTimeout > 0 {
			_ = s.conn.SetReadDeadline(time.Now().Add(s.readTimeout))
		}
		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return market.Candle{}, ctx.Err()
			}
			return market.Candle{}, fmt.Errorf("kline stream read failed: %w", err)
		}

		var ev klineEvent
		if err := json.Unmarshal(msg, &ev); err != nil {
			continue
		}
		if ev.EventType != "kline" || !ev.K.IsClosed {
			continue
		}
		candle, err := ev.candle()
		if err != nil {
			continue
		}
		return candle, nil
	}
}

func (s *klineStream) close() {
	s.closeOnce.Do(func() {
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = s.conn.Close()
	})
}

func (ev *klineEvent) candle() (market.Candle, error) {
	var err error
	parse := func(name, raw string) decimal.Decimal {
		if err != nil {
			return decimal.Zero
		}
		v, perr := decimal.NewFromString(raw)
		if perr != nil {
			err = fmt.Errorf("invalid kline %s %q for %s: %w", name, raw, ev.Symbol, perr)
		}
		return v
	}

	c := market.Candle{
		OpenTime: time.UnixMilli(ev.K.StartTime),
		Open:     parse("open", ev.K.Open),
		High:     parse("high", ev.K.High),
		Low:      parse("low", ev.K.Low),
		Close:    parse("close", ev.K.Close),
		Volume:   parse("volume", ev.K.Volume),
	}
	return c, err
}
