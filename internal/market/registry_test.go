package market

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	built := 0
	r.Register("Binance", func() (Provider, error) {
		built++
		return nil, nil
	})

	_, err := r.New(" binance ")
	require.NoError(t, err)
	_, err = r.New("BINANCE")
	require.NoError(t, err)
	assert.Equal(t, 2, built, "every lookup builds a fresh provider")

	_, err = r.New("kraken")
	assert.ErrorIs(t, err, ErrUnknownExchange)
	assert.Equal(t, []string{"binance"}, r.Names())
}
