package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"oidworker/internal/domain/options"
	"oidworker/pkg/errors"
)

// Compile-time check
var _ options.Repository = (*OptionsRepository)(nil)

// OptionsRepository stores cme_snapshots and their child rows.
// Child sets are replaced as a whole in the same transaction as the parent upsert.
type OptionsRepository struct {
	db *sqlx.DB
}

// NewOptionsRepository creates a new options repository
func NewOptionsRepository(db *sqlx.DB) *OptionsRepository {
	return &OptionsRepository{db: db}
}

func inTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}
	return nil
}

// SaveSnapshot upserts by (snapshot_time_utc, view_type) and replaces bars and top actives
func (r *OptionsRepository) SaveSnapshot(ctx context.Context, s *options.Snapshot, bars []options.StrikeBar, top []options.TopActive) (uuid.UUID, error) {
	id := s.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	err := inTx(ctx, r.db, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO cme_snapshots (
				id, snapshot_time_utc, snapshot_time_bkk, trade_date_bkk,
				series_name, series_expiration_label, series_expiration_date, series_dte,
				view_type, put_total, call_total, vol, vol_chg, future_chg,
				xauusd_price_at_snapshot, source_url
			) VALUES (
				$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16
			)
			ON CONFLICT (snapshot_time_utc, view_type) DO UPDATE SET
				snapshot_time_bkk = EXCLUDED.snapshot_time_bkk,
				trade_date_bkk = EXCLUDED.trade_date_bkk,
				series_name = EXCLUDED.series_name,
				series_expiration_label = EXCLUDED.series_expiration_label,
				series_expiration_date = EXCLUDED.series_expiration_date,
				series_dte = EXCLUDED.series_dte,
				put_total = EXCLUDED.put_total,
				call_total = EXCLUDED.call_total,
				vol = EXCLUDED.vol,
				vol_chg = EXCLUDED.vol_chg,
				future_chg = EXCLUDED.future_chg,
				xauusd_price_at_snapshot = EXCLUDED.xauusd_price_at_snapshot,
				source_url = EXCLUDED.source_url
			RETURNING id`

		if err := tx.GetContext(ctx, &id, query,
			id, s.SnapshotTime.UTC(), s.SnapshotTimeBKK, s.TradeDate,
			s.SeriesName, s.ExpirationLabel, s.ExpirationDate, s.DTE,
			s.ViewType, s.PutTotal, s.CallTotal, s.Vol, s.VolChg, s.FutureChg,
			s.ReferencePrice, s.SourceURL,
		); err != nil {
			return errors.Wrap(err, "failed to upsert cme snapshot")
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM cme_strike_bars WHERE snapshot_id = $1`, id); err != nil {
			return errors.Wrap(err, "failed to clear strike bars")
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM cme_top_actives WHERE snapshot_id = $1`, id); err != nil {
			return errors.Wrap(err, "failed to clear top actives")
		}

		if len(bars) > 0 {
			rows := make([]options.StrikeBar, len(bars))
			for i, b := range bars {
				b.SnapshotID = id
				rows[i] = b
			}
			if _, err := tx.NamedExecContext(ctx, `
				INSERT INTO cme_strike_bars (snapshot_id, strike, put, call, vol_settle, total_activity)
				VALUES (:snapshot_id, :strike, :put, :call, :vol_settle, :total_activity)`, rows); err != nil {
				return errors.Wrap(err, "failed to insert strike bars")
			}
		}

		if len(top) > 0 {
			rows := make([]options.TopActive, len(top))
			for i, t := range top {
				t.SnapshotID = id
				rows[i] = t
			}
			if _, err := tx.NamedExecContext(ctx, `
				INSERT INTO cme_top_actives (snapshot_id, rank, strike, put, call, total, vol_settle)
				VALUES (:snapshot_id, :rank, :strike, :put, :call, :total, :vol_settle)`, rows); err != nil {
				return errors.Wrap(err, "failed to insert top actives")
			}
		}
		return nil
	})
	if err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

const snapshotColumns = `
	id, view_type, snapshot_time_utc, snapshot_time_bkk, trade_date_bkk::text AS trade_date_bkk,
	series_name, series_expiration_label, series_expiration_date::text AS series_expiration_date, series_dte,
	put_total, call_total, vol, vol_chg, future_chg,
	xauusd_price_at_snapshot, source_url`

// FindPrevious returns the newest snapshot for view and series strictly before the given time
func (r *OptionsRepository) FindPrevious(ctx context.Context, view options.ViewType, series string, before time.Time) (*options.Snapshot, error) {
	var s options.Snapshot

	query := `SELECT ` + snapshotColumns + `
		FROM cme_snapshots
		WHERE view_type = $1 AND series_name = $2 AND snapshot_time_utc < $3
		ORDER BY snapshot_time_utc DESC
		LIMIT 1`

	err := r.db.GetContext(ctx, &s, query, view, series, before.UTC())
	if err == sql.ErrNoRows {
		return nil, errors.Wrap(errors.ErrNotFound, "no previous cme snapshot")
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find previous cme snapshot")
	}
	s.SnapshotTime = s.SnapshotTime.UTC()
	return &s, nil
}

// ListBars returns the strike bars of a snapshot ordered by strike
func (r *OptionsRepository) ListBars(ctx context.Context, snapshotID uuid.UUID) ([]options.StrikeBar, error) {
	var bars []options.StrikeBar

	query := `
		SELECT snapshot_id, strike, put, call, vol_settle, total_activity
		FROM cme_strike_bars
		WHERE snapshot_id = $1
		ORDER BY strike ASC`

	if err := r.db.SelectContext(ctx, &bars, query, snapshotID); err != nil {
		return nil, errors.Wrap(err, "failed to list strike bars")
	}
	return bars, nil
}

// SaveDelta upserts by current_snapshot_id and replaces the ranked top changes
func (r *OptionsRepository) SaveDelta(ctx context.Context, d *options.Delta, changes []options.StrikeChange) (uuid.UUID, error) {
	id := d.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	err := inTx(ctx, r.db, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO cme_snapshot_deltas (
				id, current_snapshot_id, previous_snapshot_id,
				previous_snapshot_time_utc, previous_snapshot_time_bkk,
				snapshot_time_utc, snapshot_time_bkk, view_type, series_name,
				put_before, put_now, put_change,
				call_before, call_now, call_change,
				vol_before, vol_now, vol_change,
				future_before, future_now, future_change
			) VALUES (
				$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
				$11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21
			)
			ON CONFLICT (current_snapshot_id) DO UPDATE SET
				previous_snapshot_id = EXCLUDED.previous_snapshot_id,
				previous_snapshot_time_utc = EXCLUDED.previous_snapshot_time_utc,
				previous_snapshot_time_bkk = EXCLUDED.previous_snapshot_time_bkk,
				snapshot_time_utc = EXCLUDED.snapshot_time_utc,
				snapshot_time_bkk = EXCLUDED.snapshot_time_bkk,
				view_type = EXCLUDED.view_type,
				series_name = EXCLUDED.series_name,
				put_before = EXCLUDED.put_before,
				put_now = EXCLUDED.put_now,
				put_change = EXCLUDED.put_change,
				call_before = EXCLUDED.call_before,
				call_now = EXCLUDED.call_now,
				call_change = EXCLUDED.call_change,
				vol_before = EXCLUDED.vol_before,
				vol_now = EXCLUDED.vol_now,
				vol_change = EXCLUDED.vol_change,
				future_before = EXCLUDED.future_before,
				future_now = EXCLUDED.future_now,
				future_change = EXCLUDED.future_change
			RETURNING id`

		if err := tx.GetContext(ctx, &id, query,
			id, d.CurrentSnapshotID, d.PreviousSnapshotID,
			d.PreviousSnapshotTime.UTC(), d.PreviousTimeBKK,
			d.SnapshotTime.UTC(), d.SnapshotTimeBKK, d.ViewType, d.SeriesName,
			d.PutBefore, d.PutNow, d.PutChange,
			d.CallBefore, d.CallNow, d.CallChange,
			d.VolBefore, d.VolNow, d.VolChange,
			d.FutureBefore, d.FutureNow, d.FutureChange,
		); err != nil {
			return errors.Wrap(err, "failed to upsert cme delta")
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM cme_top_strike_changes WHERE delta_id = $1`, id); err != nil {
			return errors.Wrap(err, "failed to clear top strike changes")
		}
		if len(changes) == 0 {
			return nil
		}

		rows := make([]options.TopStrikeChange, len(changes))
		for i, c := range changes {
			rows[i] = options.TopStrikeChange{DeltaID: id, Rank: i + 1, StrikeChange: c}
		}
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO cme_top_strike_changes (
				delta_id, rank, strike,
				put_before, put_now, put_change,
				call_before, call_now, call_change,
				total_before, total_now, total_change
			) VALUES (
				:delta_id, :rank, :strike,
				:put_before, :put_now, :put_change,
				:call_before, :call_now, :call_change,
				:total_before, :total_now, :total_change
			)`, rows); err != nil {
			return errors.Wrap(err, "failed to insert top strike changes")
		}
		return nil
	})
	if err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

// ListTopChanges returns ranked changes of a delta
func (r *OptionsRepository) ListTopChanges(ctx context.Context, deltaID uuid.UUID) ([]options.TopStrikeChange, error) {
	var rows []options.TopStrikeChange

	query := `
		SELECT delta_id, rank, strike,
			put_before, put_now, put_change,
			call_before, call_now, call_change,
			total_before, total_now, total_change
		FROM cme_top_strike_changes
		WHERE delta_id = $1
		ORDER BY rank ASC`

	if err := r.db.SelectContext(ctx, &rows, query, deltaID); err != nil {
		return nil, errors.Wrap(err, "failed to list top strike changes")
	}
	return rows, nil
}

// LatestSnapshots returns the newest snapshots first
func (r *OptionsRepository) LatestSnapshots(ctx context.Context, limit int) ([]options.Snapshot, error) {
	var rows []options.Snapshot

	query := `SELECT ` + snapshotColumns + ` FROM cme_snapshots ORDER BY snapshot_time_utc DESC, view_type ASC LIMIT $1`

	if err := r.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, errors.Wrap(err, "failed to list cme snapshots")
	}
	return rows, nil
}

// LatestDeltas returns the newest deltas first
func (r *OptionsRepository) LatestDeltas(ctx context.Context, limit int) ([]options.Delta, error) {
	var rows []options.Delta

	query := `
		SELECT id, current_snapshot_id, previous_snapshot_id,
			previous_snapshot_time_utc, previous_snapshot_time_bkk,
			snapshot_time_utc, snapshot_time_bkk, view_type, series_name,
			put_before, put_now, put_change,
			call_before, call_now, call_change,
			vol_before, vol_now, vol_change,
			future_before, future_now, future_change
		FROM cme_snapshot_deltas
		ORDER BY snapshot_time_utc DESC, view_type ASC
		LIMIT $1`

	if err := r.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, errors.Wrap(err, "failed to list cme deltas")
	}
	return rows, nil
}
