package postgres

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"oidworker/pkg/errors"
)

// prunable lists the table/column pairs retention may delete by
var prunable = map[string]map[string]bool{
	"price_ticks":            {"event_time_utc": true},
	"relation_snapshots_30m": {"anchor_time_utc": true},
	"cme_snapshots":          {"snapshot_time_utc": true},
	"webhook_replay_guard":   {"expires_at": true},
	"webhook_request_log":    {"received_at": true},
	"job_runs":               {"started_at": true},
	"cme_series_links":       {"trade_date_bkk": true},
}

// RetentionRepository deletes rows older than a cutoff
type RetentionRepository struct {
	db *sqlx.DB
}

// NewRetentionRepository creates a new retention repository
func NewRetentionRepository(db *sqlx.DB) *RetentionRepository {
	return &RetentionRepository{db: db}
}

// DeleteBefore removes rows of table whose column is strictly before cutoff.
// Only whitelisted table/column pairs are accepted.
func (r *RetentionRepository) DeleteBefore(ctx context.Context, table, column string, cutoff time.Time) (int64, error) {
	if !prunable[table][column] {
		return 0, errors.Wrapf(errors.ErrInvalidInput, "table %s column %s is not prunable", table, column)
	}

	var arg interface{} = cutoff.UTC()
	if column == "trade_date_bkk" {
		arg = cutoff.Format(time.DateOnly)
	}

	// identifiers come from the whitelist above
	query := `DELETE FROM ` + table + ` WHERE ` + column + ` < $1`

	res, err := r.db.ExecContext(ctx, query, arg)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
