package relation

import (
	"context"
	"time"
)

// Repository persists relation snapshots
type Repository interface {
	// Upsert writes the snapshot, overwriting any row with the same anchor time
	Upsert(ctx context.Context, snapshot *Snapshot) error

	// GetByAnchor returns errors.ErrNotFound when no snapshot exists for anchor
	GetByAnchor(ctx context.Context, anchor time.Time) (*Snapshot, error)

	// ListLatest returns the newest snapshots first
	ListLatest(ctx context.Context, limit int) ([]Snapshot, error)
}
