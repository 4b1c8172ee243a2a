package monitor

import (
	"errors"

	"crypto-call-bot-go/internal/market"
)

var (
	// ErrUnknownExchange is returned when no provider is registered for an exchange.
	ErrUnknownExchange = market.ErrUnknownExchange
	// ErrInvalidPair is returned for a pair that is unknown or not trading.
	ErrInvalidPair = errors.New("invalid pair")
	// ErrInvalidTerms is returned for a malformed entry price or take-profit set.
	ErrInvalidTerms = errors.New("invalid call terms")
	// ErrInvalidStopLoss is returned for a non-positive stop loss.
	ErrInvalidStopLoss = errors.New("invalid stop loss")

	ErrNoPrice        = errors.New("no price received from the exchange yet")
	ErrCallClosed     = errors.New("call is closed")
	ErrCallNotFound   = errors.New("call not found")
	ErrSessionStopped = errors.New("exchange session stopped")
)

// IsValidation reports whether err was caused by invalid input rather than a
// failing collaborator. Validation errors have no side effects and are never retried.
func IsValidation(err error) bool {
	return errors.Is(err, ErrUnknownExchange) ||
		errors.Is(err, ErrInvalidPair) ||
		errors.Is(err, ErrInvalidTerms) ||
		errors.Is(err, ErrInvalidStopLoss)
}
