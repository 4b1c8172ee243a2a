package command

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertDec(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), "want %s, got %s", want, got.String())
}

func TestParseAddCall(t *testing.T) {
	t.Run("Prices", func(t *testing.T) {
		args, err := ParseAddCall([]string{"Binance", "btc/usdt", "100", "90", "110"})
		require.NoError(t, err)
		assert.Equal(t, "binance", args.Exchange)
		assert.Equal(t, "BTC/USDT", args.Pair)
		assertDec(t, "100", args.EntryPrice)
		assertDec(t, "90", args.StopLoss)
		require.Len(t, args.TakeProfits, 1)
		assertDec(t, "110", args.TakeProfits[0].Target)
		assertDec(t, "1", args.TakeProfits[0].Size)
	})

	t.Run("Percentages", func(t *testing.T) {
		args, err := ParseAddCall([]string{"binance", "ETH/USDT", "200", "5%", "10%", "25%"})
		require.NoError(t, err)
		assertDec(t, "190", args.StopLoss)
		require.Len(t, args.TakeProfits, 2)
		assertDec(t, "220", args.TakeProfits[0].Target)
		assertDec(t, "250", args.TakeProfits[1].Target)
		assertDec(t, "0.5", args.TakeProfits[0].Size)
	})

	t.Run("BatchSizes", func(t *testing.T) {
		args, err := ParseAddCall([]string{"binance", "BTC/USDT", "100", "90", "20@20%", "20@50%", "60@200"})
		require.NoError(t, err)
		require.Len(t, args.TakeProfits, 3)
		assertDec(t, "0.2", args.TakeProfits[0].Size)
		assertDec(t, "120", args.TakeProfits[0].Target)
		assertDec(t, "150", args.TakeProfits[1].Target)
		assertDec(t, "0.6", args.TakeProfits[2].Size)
		assertDec(t, "200", args.TakeProfits[2].Target)
	})

	t.Run("Errors", func(t *testing.T) {
		_, err := ParseAddCall([]string{"binance", "BTC/USDT", "100", "90"})
		assert.ErrorIs(t, err, ErrUsage)

		_, err = ParseAddCall([]string{"binance", "BTC/USDT", "abc", "90", "110"})
		assert.ErrorContains(t, err, "invalid entry price")

		_, err = ParseAddCall([]string{"binance", "BTC/USDT", "100", "x%", "110"})
		assert.ErrorContains(t, err, "invalid stop loss")

		_, err = ParseAddCall([]string{"binance", "BTC/USDT", "100", "90", "half@110"})
		assert.ErrorContains(t, err, "invalid batch size")

		_, err = ParseAddCall([]string{"binance", "BTC/USDT", "100", "90", "1o%"})
		assert.ErrorContains(t, err, "invalid take profit")
	})
}

func TestParseTakeProfits_EqualThirds(t *testing.T) {
	specs, err := ParseTakeProfits([]string{"110", "120", "130"}, dec("100"))
	require.NoError(t, err)
	total := decimal.Zero
	for _, s := range specs {
		total = total.Add(s.Size)
	}
	assertDec(t, "1", total.Round(10))
}

func TestParseStopLossChange(t *testing.T) {
	v, percent, err := ParseStopLossChange("7.5%")
	require.NoError(t, err)
	assert.True(t, percent)
	assertDec(t, "7.5", v)

	v, percent, err = ParseStopLossChange("95.25")
	require.NoError(t, err)
	assert.False(t, percent)
	assertDec(t, "95.25", v)

	_, _, err = ParseStopLossChange("cheap")
	assert.Error(t, err)
}

func TestParseCallID(t *testing.T) {
	id, err := ParseCallID("42")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), id)

	_, err = ParseCallID("-1")
	assert.Error(t, err)
	_, err = ParseCallID("0")
	assert.Error(t, err)
}
