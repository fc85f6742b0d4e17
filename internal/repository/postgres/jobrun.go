package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"oidworker/internal/domain/jobrun"
	"oidworker/pkg/errors"
)

// Compile-time check
var _ jobrun.Repository = (*JobRunRepository)(nil)

// JobRunRepository is the append-only job_runs audit log
type JobRunRepository struct {
	db *sqlx.DB
}

// NewJobRunRepository creates a new job run repository
func NewJobRunRepository(db *sqlx.DB) *JobRunRepository {
	return &JobRunRepository{db: db}
}

// Insert appends a run
func (r *JobRunRepository) Insert(ctx context.Context, run *jobrun.Run) error {
	meta, err := json.Marshal(run.Metadata)
	if err != nil {
		return errors.Wrap(err, "encode job run metadata")
	}

	query := `
		INSERT INTO job_runs (id, job_name, status, started_at, finished_at, error_message, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err = r.db.ExecContext(ctx, query,
		run.ID, run.JobName, run.Status,
		run.StartedAt.UTC(), run.FinishedAt.UTC(),
		run.ErrorMessage, string(meta),
	)
	if err != nil {
		return errors.Wrap(err, "failed to insert job run")
	}
	return nil
}

type jobRunRow struct {
	ID           uuid.UUID `db:"id"`
	JobName      string    `db:"job_name"`
	Status       string    `db:"status"`
	StartedAt    time.Time `db:"started_at"`
	FinishedAt   time.Time `db:"finished_at"`
	ErrorMessage *string   `db:"error_message"`
	Metadata     []byte    `db:"metadata"`
}

// ListRecent returns the newest runs first
func (r *JobRunRepository) ListRecent(ctx context.Context, limit int) ([]jobrun.Run, error) {
	var rows []jobRunRow

	query := `
		SELECT id, job_name, status, started_at, finished_at, error_message, metadata
		FROM job_runs
		ORDER BY started_at DESC
		LIMIT $1`

	if err := r.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, errors.Wrap(err, "failed to list job runs")
	}

	runs := make([]jobrun.Run, 0, len(rows))
	for _, row := range rows {
		run := jobrun.Run{
			ID:           row.ID,
			JobName:      jobrun.JobName(row.JobName),
			Status:       jobrun.Status(row.Status),
			StartedAt:    row.StartedAt.UTC(),
			FinishedAt:   row.FinishedAt.UTC(),
			ErrorMessage: row.ErrorMessage,
			Metadata:     jobrun.Metadata{},
		}
		if len(row.Metadata) > 0 {
			if err := json.Unmarshal(row.Metadata, &run.Metadata); err != nil {
				return nil, errors.Wrapf(err, "decode metadata of job run %s", row.ID)
			}
		}
		runs = append(runs, run)
	}
	return runs, nil
}
