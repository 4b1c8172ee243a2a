package monitor

import (
	"fmt"
	"strings"
	"time"

	"crypto-call-bot-go/internal/models"

	"github.com/shopspring/decimal"
)

var quoteSigns = map[string]string{
	"USDT": "₮",
	"BTC":  "₿",
	"ETH":  "Ξ",
	"EUR":  "€",
	"USD":  "$",
	"USDC": "$",
	"BUSD": "$",
}

// quoteSign returns the currency sign of the quote asset, or the asset itself.
func quoteSign(pair string) string {
	_, quote, _ := strings.Cut(pair, "/")
	if sign, ok := quoteSigns[quote]; ok {
		return sign
	}
	return quote
}

// formatDecimal renders d with at most 10 fractional digits and no trailing zeros.
func formatDecimal(d decimal.Decimal) string {
	s := d.StringFixed(models.Scale)
	if strings.Contains(s, ".") {
		s = strings.TrimRight(s, "0")
		s = strings.TrimSuffix(s, ".")
	}
	return s
}

func percentOf(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return part.Div(whole).Mul(decimal.NewFromInt(100))
}

// TakeProfitSnapshot is a copy of one take-profit batch.
type TakeProfitSnapshot struct {
	TargetPrice decimal.Decimal `json:"target_price"`
	Amount      decimal.Decimal `json:"amount"`
	Result      decimal.Decimal `json:"result"`
	TriggeredAt *time.Time      `json:"triggered_at,omitempty"`
}

// Snapshot is a point-in-time copy of a call including its transient price.
type Snapshot struct {
	ID                  uint64               `json:"id"`
	Pair                string               `json:"pair"`
	Exchange            string               `json:"exchange"`
	Status              string               `json:"status"`
	EntryPrice          decimal.Decimal      `json:"entry_price"`
	StopLoss            decimal.Decimal      `json:"stop_loss"`
	Investment          decimal.Decimal      `json:"investment"`
	Amount              decimal.Decimal      `json:"amount"`
	Result              decimal.Decimal      `json:"result"`
	Price               decimal.Decimal      `json:"price"`
	Value               decimal.Decimal      `json:"value"`
	CreatedAt           time.Time            `json:"created_at"`
	ActivatedAt         *time.Time           `json:"activated_at,omitempty"`
	StopLossTriggeredAt *time.Time           `json:"stop_loss_triggered_at,omitempty"`
	ClosedAt            *time.Time           `json:"closed_at,omitempty"`
	TakeProfits         []TakeProfitSnapshot `json:"take_profits"`
}

func (c *Call) snapshot() Snapshot {
	r := c.record
	s := Snapshot{
		ID:                  r.ID,
		Pair:                r.Pair,
		Exchange:            r.Exchange,
		Status:              r.Status.Name(),
		EntryPrice:          r.EntryPrice,
		StopLoss:            r.StopLoss,
		Investment:          r.Investment,
		Amount:              r.Amount,
		Result:              r.Result,
		Price:               c.price,
		Value:               c.price.Mul(r.Amount).Round(models.Scale),
		CreatedAt:           r.CreatedAt,
		ActivatedAt:         copyTime(r.ActivatedAt),
		StopLossTriggeredAt: copyTime(r.StopLossTriggeredAt),
		ClosedAt:            copyTime(r.ClosedAt),
		TakeProfits:         make([]TakeProfitSnapshot, len(c.takeProfits)),
	}
	for i, tp := range c.takeProfits {
		s.TakeProfits[i] = TakeProfitSnapshot{
			TargetPrice: tp.TargetPrice,
			Amount:      tp.Amount,
			Result:      tp.Result,
			TriggeredAt: copyTime(tp.TriggeredAt),
		}
	}
	return s
}

const overviewLabelWidth = 11

func (c *Call) overview(comment string) string {
	r := c.record
	value := c.price.Mul(r.Amount)
	total := r.Result.Add(value)
	percentage := percentOf(total, r.Investment).StringFixed(2) + "%"

	square := "🟥"
	if !total.IsNegative() {
		square = "🟩"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Call %d: %s %s %s %s", r.ID, square, c.sign, formatDecimal(total), percentage)
	if comment != "" {
		b.WriteString("\n" + comment)
	}

	status := r.Status.Name()
	if r.Status == models.StatusClosed && r.StopLossTriggeredAt != nil {
		status += " (Stop Loss)"
	}
	stopLossPercentage := decimal.NewFromInt(100).Sub(percentOf(r.StopLoss, r.EntryPrice))

	b.WriteString("\n```\n")
	fmt.Fprintf(&b, "Call ID       %d\n", r.ID)
	fmt.Fprintf(&b, "Pair          %s\n", r.Pair)
	fmt.Fprintf(&b, "Exchange      %s\n", r.Exchange)
	fmt.Fprintf(&b, "Status        %s\n", status)
	fmt.Fprintf(&b, "Entry Price   %s %s\n", c.sign, formatDecimal(r.EntryPrice))
	fmt.Fprintf(&b, "Stop Loss     %s %s %s%%\n", c.sign, formatDecimal(r.StopLoss), stopLossPercentage.StringFixed(2))
	fmt.Fprintf(&b, "Investment    %s %s\n", c.sign, formatDecimal(r.Investment))
	fmt.Fprintf(&b, "Amount Coins  %s\n", formatDecimal(r.Amount))
	fmt.Fprintf(&b, "Current Price %s %s\n", c.sign, formatDecimal(c.price))
	fmt.Fprintf(&b, "Current Value %s %s\n", c.sign, formatDecimal(value))
	fmt.Fprintf(&b, "Result*       %s %s %s\n", c.sign, formatDecimal(total), percentage)
	b.WriteString("\nProfits")
	for _, tp := range c.takeProfits {
		var state string
		switch {
		case tp.Triggered():
			state = "Closed"
		case r.Status == models.StatusClosed:
			state = "Cancelled"
		case r.ActivatedAt != nil:
			state = "Open"
		}
		target := percentOf(tp.TargetPrice, r.EntryPrice).Sub(decimal.NewFromInt(100))
		fmt.Fprintf(&b, "\n%*s %s %s (%s) %s%%", overviewLabelWidth, state,
			c.sign, formatDecimal(tp.TargetPrice), formatDecimal(tp.Amount), target.StringFixed(2))
	}
	b.WriteString("\n```\n")
	return b.String()
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
