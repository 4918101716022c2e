package market

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrUnavailable is wrapped by every error a Provider returns. Callers only
// need errors.Is(err, ErrUnavailable); the wrapped detail is for logs.
var ErrUnavailable = errors.New("market: price unavailable")

// Provider exposes the current USD price of a single asset.
type Provider interface {
	// Price returns a positive USD price for assetID or an error wrapping
	// ErrUnavailable. Implementations bound the call with their own timeout.
	Price(ctx context.Context, assetID string) (float64, error)
}

// Observation is one asset's price captured during a cycle.
type Observation struct {
	AssetID  string
	Symbol   string
	Provider string
	Price    float64
	At       time.Time
}

// Unavailable builds an ErrUnavailable error for assetID with a reason.
func Unavailable(assetID, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrUnavailable, assetID, fmt.Sprintf(format, args...))
}

// UnavailableErr wraps cause as an ErrUnavailable error for assetID.
func UnavailableErr(assetID string, cause error) error {
	if cause == nil {
		return Unavailable(assetID, "unknown failure")
	}
	if errors.Is(cause, ErrUnavailable) {
		return cause
	}
	return fmt.Errorf("%w: %s: %w", ErrUnavailable, assetID, cause)
}
