package monitor

import (
	"fmt"
	"strings"

	"crypto-call-bot-go/internal/models"

	"github.com/shopspring/decimal"
)

// TakeProfitSpec requests one take-profit batch: sell Size (a fraction of the
// bought amount, 0 < Size <= 1) once the price reaches Target.
type TakeProfitSpec struct {
	Target decimal.Decimal
	Size   decimal.Decimal
}

// Terms are the static terms of a new call.
type Terms struct {
	Pair        string
	EntryPrice  decimal.Decimal
	StopLoss    decimal.Decimal
	TakeProfits []TakeProfitSpec
}

// NormalizePair turns user input like " btc/usdt" into "BTC/USDT".
func NormalizePair(pair string) string {
	return strings.ToUpper(strings.TrimSpace(pair))
}

func (t Terms) validate() error {
	base, quote, ok := strings.Cut(t.Pair, "/")
	if !ok || base == "" || quote == "" {
		return fmt.Errorf("%w: %q is not written as BASE/QUOTE", ErrInvalidPair, t.Pair)
	}
	if !t.EntryPrice.IsPositive() {
		return fmt.Errorf("%w: entry price must be greater than 0", ErrInvalidTerms)
	}
	if !t.StopLoss.IsPositive() {
		return fmt.Errorf("%w: stop loss must be greater than 0", ErrInvalidStopLoss)
	}
	if len(t.TakeProfits) == 0 {
		return fmt.Errorf("%w: at least one take profit is required", ErrInvalidTerms)
	}

	total := decimal.Zero
	for i, tp := range t.TakeProfits {
		if !tp.Target.IsPositive() {
			return fmt.Errorf("%w: take profit %d target must be greater than 0", ErrInvalidTerms, i+1)
		}
		if !tp.Size.IsPositive() {
			return fmt.Errorf("%w: take profit %d size must be greater than 0", ErrInvalidTerms, i+1)
		}
		total = total.Add(tp.Size)
	}
	if !total.Round(models.Scale).Equal(decimal.NewFromInt(1)) {
		return fmt.Errorf("%w: take profit sizes add up to %s%%, expected 100%%",
			ErrInvalidTerms, total.Mul(decimal.NewFromInt(100)).String())
	}
	return nil
}

// allocate splits the amount bought with investment at the entry price over the
// batches. The last batch takes the rounding remainder so the batches always
// add up to the bought amount exactly.
func (t Terms) allocate(investment decimal.Decimal) []decimal.Decimal {
	amount := investment.DivRound(t.EntryPrice, models.Scale)
	amounts := make([]decimal.Decimal, len(t.TakeProfits))
	rest := amount
	for i, tp := range t.TakeProfits {
		if i == len(t.TakeProfits)-1 {
			amounts[i] = rest
			break
		}
		amounts[i] = amount.Mul(tp.Size).Truncate(models.Scale)
		rest = rest.Sub(amounts[i])
	}
	return amounts
}
