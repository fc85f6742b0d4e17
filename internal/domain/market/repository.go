package market

import (
	"context"
	"time"
)

// Repository reads price ticks. Writes belong to the ingestion gate.
type Repository interface {
	// ListTicks returns every tick with from <= event_time <= to, oldest first
	ListTicks(ctx context.Context, from, to time.Time) ([]Tick, error)

	// LatestPrice returns the newest price for symbol at or before at.
	// Returns errors.ErrNotFound when there is none.
	LatestPrice(ctx context.Context, symbol Symbol, at time.Time) (float64, error)

	// LatestTicks returns the newest ticks across all symbols, newest first
	LatestTicks(ctx context.Context, limit int) ([]Tick, error)
}
