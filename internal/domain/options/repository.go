package options

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository persists options snapshots and their derived rows.
// Child sets are always replaced as a whole inside one transaction.
type Repository interface {
	// SaveSnapshot upserts by (snapshot_time, view_type), then replaces bars and top actives.
	// Returns the id of the persisted row, which is the existing id on conflict.
	SaveSnapshot(ctx context.Context, snapshot *Snapshot, bars []StrikeBar, top []TopActive) (uuid.UUID, error)

	// FindPrevious returns the newest snapshot for view and series strictly before the given time.
	// Returns errors.ErrNotFound when there is none.
	FindPrevious(ctx context.Context, view ViewType, series string, before time.Time) (*Snapshot, error)

	// ListBars returns the strike bars of a snapshot ordered by strike
	ListBars(ctx context.Context, snapshotID uuid.UUID) ([]StrikeBar, error)

	// SaveDelta upserts by current_snapshot_id, then replaces the ranked top changes.
	// Returns the id of the persisted delta.
	SaveDelta(ctx context.Context, delta *Delta, changes []StrikeChange) (uuid.UUID, error)

	// ListTopChanges returns ranked changes of a delta
	ListTopChanges(ctx context.Context, deltaID uuid.UUID) ([]TopStrikeChange, error)

	LatestSnapshots(ctx context.Context, limit int) ([]Snapshot, error)
	LatestDeltas(ctx context.Context, limit int) ([]Delta, error)
}

// Extractor reads one chart view from the reference page
type Extractor interface {
	Extract(ctx context.Context, url string, view ViewType, tradeDate string) (*ExtractedView, error)
}
