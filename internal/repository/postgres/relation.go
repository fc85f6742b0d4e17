package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"

	"oidworker/internal/domain/relation"
	"oidworker/pkg/errors"
)

// Compile-time check
var _ relation.Repository = (*RelationRepository)(nil)

// RelationRepository stores relation_snapshots_30m with JSONB payload columns
type RelationRepository struct {
	db  *sqlx.DB
	loc *time.Location
}

// NewRelationRepository creates a relation repository. loc is the zone of the *_bkk columns.
func NewRelationRepository(db *sqlx.DB, loc *time.Location) *RelationRepository {
	if loc == nil {
		loc = time.UTC
	}
	return &RelationRepository{db: db, loc: loc}
}

type relationRow struct {
	AnchorTime    time.Time `db:"anchor_time_utc"`
	WindowStart   time.Time `db:"window_start_utc"`
	WindowEnd     time.Time `db:"window_end_utc"`
	SymbolReturns []byte    `db:"symbol_returns"`
	PairMetrics   []byte    `db:"pair_metrics"`
	QualityFlags  []byte    `db:"quality_flags"`
	UpdatedAt     time.Time `db:"updated_at"`
}

func (row *relationRow) toSnapshot() (*relation.Snapshot, error) {
	s := &relation.Snapshot{
		AnchorTime:  row.AnchorTime.UTC(),
		WindowStart: row.WindowStart.UTC(),
		WindowEnd:   row.WindowEnd.UTC(),
		UpdatedAt:   row.UpdatedAt.UTC(),
	}
	if err := json.Unmarshal(row.SymbolReturns, &s.SymbolReturns); err != nil {
		return nil, errors.Wrap(err, "decode symbol_returns")
	}
	if err := json.Unmarshal(row.PairMetrics, &s.PairMetrics); err != nil {
		return nil, errors.Wrap(err, "decode pair_metrics")
	}
	if err := json.Unmarshal(row.QualityFlags, &s.QualityFlags); err != nil {
		return nil, errors.Wrap(err, "decode quality_flags")
	}
	return s, nil
}

// Upsert writes the snapshot keyed by anchor time
func (r *RelationRepository) Upsert(ctx context.Context, s *relation.Snapshot) error {
	returns, err := json.Marshal(s.SymbolReturns)
	if err != nil {
		return errors.Wrap(err, "encode symbol_returns")
	}
	pairs, err := json.Marshal(s.PairMetrics)
	if err != nil {
		return errors.Wrap(err, "encode pair_metrics")
	}
	flags, err := json.Marshal(s.QualityFlags)
	if err != nil {
		return errors.Wrap(err, "encode quality_flags")
	}

	query := `
		INSERT INTO relation_snapshots_30m (
			anchor_time_utc, anchor_time_bkk,
			window_start_utc, window_end_utc, window_start_bkk, window_end_bkk,
			symbol_returns, pair_metrics, quality_flags, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (anchor_time_utc) DO UPDATE SET
			anchor_time_bkk = EXCLUDED.anchor_time_bkk,
			window_start_utc = EXCLUDED.window_start_utc,
			window_end_utc = EXCLUDED.window_end_utc,
			window_start_bkk = EXCLUDED.window_start_bkk,
			window_end_bkk = EXCLUDED.window_end_bkk,
			symbol_returns = EXCLUDED.symbol_returns,
			pair_metrics = EXCLUDED.pair_metrics,
			quality_flags = EXCLUDED.quality_flags,
			updated_at = NOW()`

	_, err = r.db.ExecContext(ctx, query,
		s.AnchorTime.UTC(), s.AnchorTime.In(r.loc).Format(time.RFC3339),
		s.WindowStart.UTC(), s.WindowEnd.UTC(),
		s.WindowStart.In(r.loc).Format(time.RFC3339), s.WindowEnd.In(r.loc).Format(time.RFC3339),
		string(returns), string(pairs), string(flags),
	)
	if err != nil {
		return errors.Wrap(err, "failed to upsert relation snapshot")
	}
	return nil
}

const relationColumns = `anchor_time_utc, window_start_utc, window_end_utc, symbol_returns, pair_metrics, quality_flags, updated_at`

// GetByAnchor returns the snapshot for anchor
func (r *RelationRepository) GetByAnchor(ctx context.Context, anchor time.Time) (*relation.Snapshot, error) {
	var row relationRow

	query := `SELECT ` + relationColumns + ` FROM relation_snapshots_30m WHERE anchor_time_utc = $1`

	err := r.db.GetContext(ctx, &row, query, anchor.UTC())
	if err == sql.ErrNoRows {
		return nil, errors.Wrap(errors.ErrNotFound, "relation snapshot not found")
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get relation snapshot")
	}
	return row.toSnapshot()
}

// ListLatest returns the newest snapshots first
func (r *RelationRepository) ListLatest(ctx context.Context, limit int) ([]relation.Snapshot, error) {
	var rows []relationRow

	query := `SELECT ` + relationColumns + ` FROM relation_snapshots_30m ORDER BY anchor_time_utc DESC LIMIT $1`

	if err := r.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, errors.Wrap(err, "failed to list relation snapshots")
	}

	out := make([]relation.Snapshot, 0, len(rows))
	for i := range rows {
		s, err := rows[i].toSnapshot()
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, nil
}
