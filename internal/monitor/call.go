package monitor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"crypto-call-bot-go/internal/market"
	"crypto-call-bot-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Store is the persistence the monitor needs.
type Store interface {
	InsertCall(ctx context.Context, call *models.Call, takeProfits []*models.TakeProfit) error
	GetCall(ctx context.Context, id uint64) (*models.Call, error)
	TakeProfits(ctx context.Context, callID uint64) ([]*models.TakeProfit, error)
	OpenCalls(ctx context.Context) ([]*models.Call, error)
	SaveCall(ctx context.Context, call *models.Call, takeProfits []*models.TakeProfit) error
}

// Notifier delivers user-visible messages. A failed post is logged and dropped.
type Notifier interface {
	Post(ctx context.Context, text string) error
}

// Tick is the part of a candle a call is evaluated against.
type Tick struct {
	OpenTime time.Time
	Low      decimal.Decimal
	High     decimal.Decimal
	Close    decimal.Decimal
}

func tickFromCandle(c market.Candle) Tick {
	return Tick{OpenTime: c.OpenTime, Low: c.Low, High: c.High, Close: c.Close}
}

// deps are the collaborators shared by every call of a monitor.
type deps struct {
	store    Store
	notifier Notifier
	logger   *zap.Logger
	now      func() time.Time
}

// Call is the live state machine of one tracked position.
// All methods are safe for concurrent use; each mutation runs under the call's lock.
type Call struct {
	deps *deps

	mu          sync.Mutex
	record      *models.Call
	takeProfits []*models.TakeProfit
	price       decimal.Decimal
	sign        string
}

func newCall(record *models.Call, takeProfits []*models.TakeProfit, d *deps) *Call {
	return &Call{
		deps:        d,
		record:      record,
		takeProfits: takeProfits,
		sign:        quoteSign(record.Pair),
	}
}

// createCall persists a new call and returns its live state machine.
func createCall(ctx context.Context, d *deps, exchange string, terms Terms, investment decimal.Decimal) (*Call, error) {
	if err := terms.validate(); err != nil {
		return nil, err
	}

	record := &models.Call{
		Pair:       terms.Pair,
		Exchange:   exchange,
		EntryPrice: terms.EntryPrice.Round(models.Scale),
		StopLoss:   terms.StopLoss.Round(models.Scale),
		Investment: investment.Round(models.Scale),
		Amount:     decimal.Zero,
		Result:     decimal.Zero,
		Status:     models.StatusAcquiring,
		CreatedAt:  d.now(),
	}

	amounts := terms.allocate(record.Investment)
	takeProfits := make([]*models.TakeProfit, len(terms.TakeProfits))
	for i, tp := range terms.TakeProfits {
		takeProfits[i] = &models.TakeProfit{
			Amount:      amounts[i],
			TargetPrice: tp.Target.Round(models.Scale),
			Result:      decimal.Zero,
		}
	}

	if err := d.store.InsertCall(ctx, record, takeProfits); err != nil {
		return nil, fmt.Errorf("failed to insert call: %w", err)
	}
	d.logger.Info("Created call",
		zap.Uint64("call_id", record.ID),
		zap.String("exchange", exchange),
		zap.String("pair", record.Pair),
		zap.String("entry_price", record.EntryPrice.String()),
		zap.Int("take_profits", len(takeProfits)))
	return newCall(record, takeProfits, d), nil
}

// ID returns the persistent identifier of the call.
func (c *Call) ID() uint64 {
	return c.record.ID
}

// Pair returns the trading pair, e.g. "BTC/USDT".
func (c *Call) Pair() string {
	return c.record.Pair
}

// Exchange returns the exchange name the call is watched on.
func (c *Call) Exchange() string {
	return c.record.Exchange
}

// Status returns the current lifecycle state.
func (c *Call) Status() models.CallStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.record.Status
}

// Price returns the last observed close price, zero before the first tick.
func (c *Call) Price() decimal.Decimal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.price
}

// Update evaluates one tick and reports whether the call is still open.
// State changes are persisted before returning; a persistence error is
// returned but the in-memory transition stands.
func (c *Call) Update(ctx context.Context, tick Tick) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r := c.record
	if r.Status == models.StatusClosed {
		return false, nil
	}
	c.price = tick.Close

	var events []string
	if r.Status == models.StatusAcquiring && tick.Low.LessThanOrEqual(r.EntryPrice) {
		events = append(events, c.activate(tick))
	}

	if r.Status == models.StatusActive {
		if tick.Low.LessThanOrEqual(r.StopLoss) {
			events = append(events, c.stopLoss(tick))
		} else {
			open := 0
			for _, tp := range c.takeProfits {
				if tp.Triggered() {
					continue
				}
				if tick.High.GreaterThanOrEqual(tp.TargetPrice) {
					events = append(events, c.takeProfit(tp, tick))
				} else {
					open++
				}
			}
			if open == 0 {
				closedAt := tick.OpenTime
				r.ClosedAt = &closedAt
				r.Status = models.StatusClosed
				events = append(events, "Closed as all target prices have been reached.")
			}
		}
	}

	if len(events) == 0 {
		return true, nil
	}

	err := c.save(ctx)
	c.post(ctx, strings.Join(events, "\n"))
	return r.Status != models.StatusClosed, err
}

// activate fills the position at the requested entry, or lower when the
// candle never traded up to it.
func (c *Call) activate(tick Tick) string {
	r := c.record
	fill := decimal.Min(r.EntryPrice, tick.High)

	bought := decimal.Zero
	for _, tp := range c.takeProfits {
		bought = bought.Add(tp.Amount)
	}

	activatedAt := tick.OpenTime
	r.ActivatedAt = &activatedAt
	r.EntryPrice = fill
	r.Amount = bought
	r.Investment = bought.Mul(fill).Round(models.Scale)
	r.Result = r.Investment.Neg()
	r.Status = models.StatusActive

	c.deps.logger.Info("Call activated",
		zap.Uint64("call_id", r.ID),
		zap.String("fill_price", fill.String()),
		zap.String("amount", bought.String()))
	return fmt.Sprintf("Buy in at %s %s.", c.sign, formatDecimal(fill))
}

func (c *Call) stopLoss(tick Tick) string {
	r := c.record
	r.Result = r.Result.Add(r.Amount.Mul(r.StopLoss)).Round(models.Scale)
	r.Amount = decimal.Zero

	triggeredAt := tick.OpenTime
	closedAt := tick.OpenTime
	r.StopLossTriggeredAt = &triggeredAt
	r.ClosedAt = &closedAt
	r.Status = models.StatusClosed

	c.deps.logger.Info("Stop loss triggered",
		zap.Uint64("call_id", r.ID),
		zap.String("stop_loss", r.StopLoss.String()),
		zap.String("result", r.Result.String()))
	return "Closed by stop loss."
}

func (c *Call) takeProfit(tp *models.TakeProfit, tick Tick) string {
	r := c.record
	tp.Result = tp.Amount.Mul(tp.TargetPrice.Sub(r.EntryPrice)).Round(models.Scale)
	r.Result = r.Result.Add(tp.Amount.Mul(tp.TargetPrice)).Round(models.Scale)
	r.Amount = r.Amount.Sub(tp.Amount)

	triggeredAt := tick.OpenTime
	tp.TriggeredAt = &triggeredAt

	c.deps.logger.Info("Take profit triggered",
		zap.Uint64("call_id", r.ID),
		zap.String("target_price", tp.TargetPrice.String()),
		zap.String("amount", tp.Amount.String()))
	return fmt.Sprintf("Take profit %s %s triggered.", c.sign, formatDecimal(tp.TargetPrice))
}

// AdjustStopLoss moves the stop loss to an absolute price, or, when percent is
// set, to value percent below the current price. It returns the new stop loss.
func (c *Call) AdjustStopLoss(ctx context.Context, value decimal.Decimal, percent bool) (decimal.Decimal, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r := c.record
	if r.Status == models.StatusClosed {
		return decimal.Zero, fmt.Errorf("call %d: %w", r.ID, ErrCallClosed)
	}

	stopLoss := value
	if percent {
		if !c.price.IsPositive() {
			return decimal.Zero, fmt.Errorf("call %d: %w", r.ID, ErrNoPrice)
		}
		factor := decimal.NewFromInt(1).Sub(value.Div(decimal.NewFromInt(100)))
		stopLoss = c.price.Mul(factor)
	}
	stopLoss = stopLoss.Round(models.Scale)
	if !stopLoss.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: stop loss must be greater than 0", ErrInvalidStopLoss)
	}

	r.StopLoss = stopLoss
	err := c.save(ctx)
	c.post(ctx, fmt.Sprintf("Update stop loss to: %s %s", c.sign, formatDecimal(stopLoss)))
	return stopLoss, err
}

// Close force-closes the call. An active position is realized at the current
// price, so it cannot be closed before a price has been observed.
func (c *Call) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	r := c.record
	if r.Status == models.StatusClosed {
		return fmt.Errorf("call %d: %w", r.ID, ErrCallClosed)
	}
	if r.Status == models.StatusActive {
		if !c.price.IsPositive() {
			return fmt.Errorf("call %d: %w", r.ID, ErrNoPrice)
		}
		r.Result = r.Result.Add(r.Amount.Mul(c.price)).Round(models.Scale)
		r.Amount = decimal.Zero
	}
	closedAt := c.deps.now()
	r.ClosedAt = &closedAt
	r.Status = models.StatusClosed

	c.deps.logger.Info("Call closed manually", zap.Uint64("call_id", r.ID), zap.String("result", r.Result.String()))
	err := c.save(ctx)
	c.post(ctx, fmt.Sprintf("Call %d closed at %s %s.", r.ID, c.sign, formatDecimal(c.price)))
	return err
}

// Cancel closes the call without realizing anything. Used for calls that can
// no longer be watched.
func (c *Call) Cancel(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	r := c.record
	if r.Status == models.StatusClosed {
		return nil
	}
	closedAt := c.deps.now()
	r.ClosedAt = &closedAt
	r.Amount = decimal.Zero
	r.Status = models.StatusClosed

	c.deps.logger.Warn("Call cancelled", zap.Uint64("call_id", r.ID), zap.String("pair", r.Pair))
	return c.save(ctx)
}

// Overview renders the call for a chat message, with comment below the headline.
func (c *Call) Overview(comment string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.overview(comment)
}

// Snapshot returns a consistent copy of the call state.
func (c *Call) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

func (c *Call) save(ctx context.Context) error {
	if err := c.deps.store.SaveCall(ctx, c.record, c.takeProfits); err != nil {
		c.deps.logger.Error("Failed to save call", zap.Uint64("call_id", c.record.ID), zap.Error(err))
		return fmt.Errorf("failed to save call %d: %w", c.record.ID, err)
	}
	return nil
}

func (c *Call) post(ctx context.Context, comment string) {
	if c.deps.notifier == nil {
		return
	}
	if err := c.deps.notifier.Post(ctx, c.overview(comment)); err != nil {
		c.deps.logger.Warn("Dropped call notification", zap.Uint64("call_id", c.record.ID), zap.Error(err))
	}
}
