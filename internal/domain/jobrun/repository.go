package jobrun

import (
	"context"
)

// Repository is the job_runs audit log. Rows are never updated.
type Repository interface {
	Insert(ctx context.Context, run *Run) error

	// ListRecent returns the newest runs first, ordered by started_at
	ListRecent(ctx context.Context, limit int) ([]Run, error)
}
