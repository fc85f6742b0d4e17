package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"oidworker/internal/domain/market"
	"oidworker/pkg/errors"
)

// Compile-time check
var _ market.Repository = (*TickRepository)(nil)

// TickRepository reads price_ticks
type TickRepository struct {
	db *sqlx.DB
}

// NewTickRepository creates a new tick repository
func NewTickRepository(db *sqlx.DB) *TickRepository {
	return &TickRepository{db: db}
}

// ListTicks returns ticks in [from, to], oldest first
func (r *TickRepository) ListTicks(ctx context.Context, from, to time.Time) ([]market.Tick, error) {
	var ticks []market.Tick

	query := `
		SELECT symbol, price, event_time_utc
		FROM price_ticks
		WHERE event_time_utc >= $1 AND event_time_utc <= $2
		ORDER BY event_time_utc ASC`

	if err := r.db.SelectContext(ctx, &ticks, query, from.UTC(), to.UTC()); err != nil {
		return nil, errors.Wrap(err, "failed to list price ticks")
	}
	return ticks, nil
}

// LatestPrice returns the newest price for symbol at or before at
func (r *TickRepository) LatestPrice(ctx context.Context, symbol market.Symbol, at time.Time) (float64, error) {
	var price float64

	query := `
		SELECT price
		FROM price_ticks
		WHERE symbol = $1 AND event_time_utc <= $2
		ORDER BY event_time_utc DESC
		LIMIT 1`

	err := r.db.GetContext(ctx, &price, query, symbol, at.UTC())
	if err == sql.ErrNoRows {
		return 0, errors.Wrapf(errors.ErrNotFound, "no %s price at or before %s", symbol, at.UTC().Format(time.RFC3339))
	}
	if err != nil {
		return 0, errors.Wrap(err, "failed to get latest price")
	}
	return price, nil
}

// LatestTicks returns the newest ticks across all symbols
func (r *TickRepository) LatestTicks(ctx context.Context, limit int) ([]market.Tick, error) {
	var ticks []market.Tick

	query := `
		SELECT symbol, price, event_time_utc
		FROM price_ticks
		ORDER BY event_time_utc DESC
		LIMIT $1`

	if err := r.db.SelectContext(ctx, &ticks, query, limit); err != nil {
		return nil, errors.Wrap(err, "failed to list latest ticks")
	}
	return ticks, nil
}
