package testsupport

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeleteOnCleanupRemovesRows(t *testing.T) {
	db := NewTestPostgres(t)
	ctx := context.Background()
	id := uuid.New()
	started := time.Date(2091, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("insert", func(t *testing.T) {
		_, err := db.ExecContext(ctx, `
			INSERT INTO job_runs (id, job_name, status, started_at, finished_at, metadata)
			VALUES ($1, 'cleanup_probe', 'success', $2, $2, '{}')`, id, started)
		require.NoError(t, err)
		DeleteOnCleanup(t, db, "job_runs", "id = $1", id)
	})

	var count int
	require.NoError(t, db.GetContext(ctx, &count, `SELECT COUNT(*) FROM job_runs WHERE id = $1`, id))
	assert.Zero(t, count)
}
