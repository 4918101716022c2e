package market

import "context"

// Persistence mirrors the latest observed prices to an external store.
// It is not a history: each call overwrites the previous values.
type Persistence interface {
	RecordPrices(ctx context.Context, observations []Observation) error
}
