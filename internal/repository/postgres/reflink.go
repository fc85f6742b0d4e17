package postgres

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"oidworker/internal/domain/reflink"
	"oidworker/pkg/errors"
)

// Compile-time check
var _ reflink.Repository = (*LinkRepository)(nil)

// LinkRepository stores cme_series_links, one chart URL per Bangkok trade date
type LinkRepository struct {
	db *sqlx.DB
}

// NewLinkRepository creates a new reference link repository
func NewLinkRepository(db *sqlx.DB) *LinkRepository {
	return &LinkRepository{db: db}
}

// ExpireBefore marks active links older than tradeDate as expired
func (r *LinkRepository) ExpireBefore(ctx context.Context, tradeDate string) (int64, error) {
	query := `
		UPDATE cme_series_links
		SET status = $1, updated_at = NOW()
		WHERE status = $2 AND trade_date_bkk < $3::date`

	res, err := r.db.ExecContext(ctx, query, reflink.StatusExpired, reflink.StatusActive, tradeDate)
	if err != nil {
		return 0, errors.Wrap(err, "failed to expire reference links")
	}
	return res.RowsAffected()
}

// GetByTradeDate returns the link for tradeDate
func (r *LinkRepository) GetByTradeDate(ctx context.Context, tradeDate string) (*reflink.Link, error) {
	var link reflink.Link

	query := `
		SELECT trade_date_bkk::text AS trade_date_bkk, url, status, updated_at
		FROM cme_series_links
		WHERE trade_date_bkk = $1::date`

	err := r.db.GetContext(ctx, &link, query, tradeDate)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(errors.ErrNotFound, "no reference link for %s", tradeDate)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get reference link")
	}
	link.UpdatedAt = link.UpdatedAt.UTC()
	return &link, nil
}

// Upsert writes the link for its trade date and stamps updated_at
func (r *LinkRepository) Upsert(ctx context.Context, link *reflink.Link) error {
	status := link.Status
	if status == "" {
		status = reflink.StatusActive
	}

	query := `
		INSERT INTO cme_series_links (trade_date_bkk, url, status, updated_at)
		VALUES ($1::date, $2, $3, NOW())
		ON CONFLICT (trade_date_bkk) DO UPDATE SET
			url = EXCLUDED.url,
			status = EXCLUDED.status,
			updated_at = NOW()
		RETURNING updated_at`

	if err := r.db.GetContext(ctx, &link.UpdatedAt, query, link.TradeDate, link.URL, status); err != nil {
		return errors.Wrap(err, "failed to upsert reference link")
	}
	link.Status = status
	link.UpdatedAt = link.UpdatedAt.UTC()
	return nil
}
