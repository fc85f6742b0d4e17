package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oidworker/internal/domain/market"
	"oidworker/pkg/errors"
)

func TestRetentionRepository_Whitelist(t *testing.T) {
	repo := NewRetentionRepository(nil)

	_, err := repo.DeleteBefore(context.Background(), "users; DROP TABLE job_runs", "id", time.Now())
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))

	_, err = repo.DeleteBefore(context.Background(), "price_ticks", "symbol", time.Now())
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))
}

func TestRetentionRepository_DeleteBefore(t *testing.T) {
	db := setupDB(t)
	repo := NewRetentionRepository(db)
	ctx := context.Background()
	cleanup(t, db, "price_ticks", "event_time_utc >= $1", testAnchor.Add(-time.Hour))

	insertTick(t, db, market.THBUSD, 0.029, testAnchor.Add(-time.Hour))
	insertTick(t, db, market.THBUSD, 0.030, testAnchor)

	n, err := repo.DeleteBefore(ctx, "price_ticks", "event_time_utc", testAnchor)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, int64(1))

	var remaining int
	require.NoError(t, db.GetContext(ctx, &remaining,
		`SELECT COUNT(*) FROM price_ticks WHERE symbol = $1 AND event_time_utc >= $2`, market.THBUSD, testAnchor.Add(-time.Hour)))
	assert.Equal(t, 1, remaining)
}
