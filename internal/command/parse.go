// Package command implements the chat commands that create, inspect and close calls.
package command

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"crypto-call-bot-go/internal/monitor"

	"github.com/shopspring/decimal"
)

// ErrUsage is returned when a command has the wrong number of arguments.
var ErrUsage = errors.New("wrong number of arguments")

var hundred = decimal.NewFromInt(100)

// AddCall holds the parsed arguments of /addcall.
type AddCall struct {
	Exchange    string
	Pair        string
	EntryPrice  decimal.Decimal
	StopLoss    decimal.Decimal
	TakeProfits []monitor.TakeProfitSpec
}

// ParseAddCall parses "<exchange> <pair> <entry> <stoploss> <tp> [<tp> ...]".
func ParseAddCall(args []string) (AddCall, error) {
	if len(args) < 5 {
		return AddCall{}, ErrUsage
	}

	entry, err := parseDecimal("entry price", args[2])
	if err != nil {
		return AddCall{}, err
	}
	stopLoss, err := ParseStopLoss(args[3], entry)
	if err != nil {
		return AddCall{}, err
	}
	takeProfits, err := ParseTakeProfits(args[4:], entry)
	if err != nil {
		return AddCall{}, err
	}

	return AddCall{
		Exchange:    strings.ToLower(args[0]),
		Pair:        monitor.NormalizePair(args[1]),
		EntryPrice:  entry,
		StopLoss:    stopLoss,
		TakeProfits: takeProfits,
	}, nil
}

// ParseStopLoss parses a stop loss given as a price or as "N%" below entry.
func ParseStopLoss(raw string, entry decimal.Decimal) (decimal.Decimal, error) {
	if pct, ok := strings.CutSuffix(raw, "%"); ok {
		v, err := parseDecimal("stop loss", pct)
		if err != nil {
			return decimal.Zero, err
		}
		return entry.Mul(decimal.NewFromInt(1).Sub(v.Div(hundred))), nil
	}
	return parseDecimal("stop loss", raw)
}

// ParseTakeProfits parses take-profit batches written as "[size@]target".
// The target is a price or "N%" above entry; the size is a percentage of the
// bought amount. Batches without a size share the amount equally.
func ParseTakeProfits(raw []string, entry decimal.Decimal) ([]monitor.TakeProfitSpec, error) {
	if len(raw) == 0 {
		return nil, ErrUsage
	}

	equal := decimal.NewFromInt(1).DivRound(decimal.NewFromInt(int64(len(raw))), 16)
	specs := make([]monitor.TakeProfitSpec, 0, len(raw))
	for _, arg := range raw {
		size := equal
		target := arg
		if s, t, ok := strings.Cut(arg, "@"); ok {
			v, err := parseDecimal("batch size", s)
			if err != nil {
				return nil, err
			}
			size = v.Div(hundred)
			target = t
		}

		var price decimal.Decimal
		if pct, ok := strings.CutSuffix(target, "%"); ok {
			v, err := parseDecimal("take profit", pct)
			if err != nil {
				return nil, err
			}
			price = entry.Mul(decimal.NewFromInt(1).Add(v.Div(hundred)))
		} else {
			v, err := parseDecimal("take profit", target)
			if err != nil {
				return nil, err
			}
			price = v
		}
		specs = append(specs, monitor.TakeProfitSpec{Target: price, Size: size})
	}
	return specs, nil
}

// ParseStopLossChange parses the argument of /callstoploss: a price, or "N%"
// below the current price.
func ParseStopLossChange(raw string) (value decimal.Decimal, percent bool, err error) {
	if pct, ok := strings.CutSuffix(raw, "%"); ok {
		v, err := parseDecimal("stop loss", pct)
		return v, true, err
	}
	v, err := parseDecimal("stop loss", raw)
	return v, false, err
}

// ParseCallID parses a call ID argument.
func ParseCallID(raw string) (uint64, error) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid call ID %q", raw)
	}
	return id, nil
}

func parseDecimal(name, raw string) (decimal.Decimal, error) {
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s %q", name, raw)
	}
	return v, nil
}
