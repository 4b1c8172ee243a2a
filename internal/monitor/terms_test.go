package monitor

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestTerms_Validate(t *testing.T) {
	valid := Terms{Pair: "BTC/USDT", EntryPrice: dec("100"), StopLoss: dec("90"), TakeProfits: whole("110")}
	assert.NoError(t, valid.validate())

	third := decimal.NewFromInt(1).Div(decimal.NewFromInt(3))
	thirds := valid
	thirds.TakeProfits = []TakeProfitSpec{
		{Target: dec("110"), Size: third},
		{Target: dec("120"), Size: third},
		{Target: dec("130"), Size: third},
	}
	assert.NoError(t, thirds.validate(), "an equal split that does not divide exactly still adds up to 100%")

	tests := []struct {
		name  string
		edit  func(*Terms)
		isErr error
	}{
		{"NoSlash", func(tr *Terms) { tr.Pair = "BTCUSDT" }, ErrInvalidPair},
		{"ZeroEntry", func(tr *Terms) { tr.EntryPrice = decimal.Zero }, ErrInvalidTerms},
		{"NegativeStopLoss", func(tr *Terms) { tr.StopLoss = dec("-1") }, ErrInvalidStopLoss},
		{"NoTakeProfits", func(tr *Terms) { tr.TakeProfits = nil }, ErrInvalidTerms},
		{"ZeroTarget", func(tr *Terms) { tr.TakeProfits = whole("0") }, ErrInvalidTerms},
		{"SizesBelowWhole", func(tr *Terms) {
			tr.TakeProfits = []TakeProfitSpec{{Target: dec("110"), Size: dec("0.5")}, {Target: dec("120"), Size: dec("0.4")}}
		}, ErrInvalidTerms},
		{"ZeroSize", func(tr *Terms) {
			tr.TakeProfits = []TakeProfitSpec{{Target: dec("110"), Size: dec("1")}, {Target: dec("120"), Size: decimal.Zero}}
		}, ErrInvalidTerms},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			terms := valid
			terms.TakeProfits = append([]TakeProfitSpec(nil), valid.TakeProfits...)
			tt.edit(&terms)
			err := terms.validate()
			assert.ErrorIs(t, err, tt.isErr)
			assert.True(t, IsValidation(err))
		})
	}
}

func TestTerms_Allocate(t *testing.T) {
	third := decimal.NewFromInt(1).Div(decimal.NewFromInt(3))
	terms := Terms{
		Pair:       "ETH/BTC",
		EntryPrice: dec("3"),
		StopLoss:   dec("2"),
		TakeProfits: []TakeProfitSpec{
			{Target: dec("4"), Size: third},
			{Target: dec("5"), Size: third},
			{Target: dec("6"), Size: third},
		},
	}

	amounts := terms.allocate(dec("100"))
	assert.Len(t, amounts, 3)
	assertDec(t, "11.111111111", amounts[0])
	assertDec(t, "11.111111111", amounts[1])
	assertDec(t, "11.1111111113", amounts[2])

	sum := amounts[0].Add(amounts[1]).Add(amounts[2])
	assertDec(t, "33.3333333333", sum)

	terms.TakeProfits = []TakeProfitSpec{{Target: dec("4"), Size: dec("0.2")}, {Target: dec("5"), Size: dec("0.8")}}
	amounts = terms.allocate(dec("10"))
	assertDec(t, "0.6666666666", amounts[0])
	assertDec(t, "2.6666666667", amounts[1])
}

func TestNormalizePair(t *testing.T) {
	assert.Equal(t, "BTC/USDT", NormalizePair("  btc/usdt "))
}
