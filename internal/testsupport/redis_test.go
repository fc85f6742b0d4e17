package testsupport

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTestRedisPurgesMatchingKeys(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	t.Run("seed", func(t *testing.T) {
		rdb := NewTestRedis(t, "oidworker-test:purge:*")
		require.NoError(t, rdb.Set(ctx, "oidworker-test:purge:a", "1", 0).Err())
		require.NoError(t, rdb.Set(ctx, "oidworker-test:keep", "1", 0).Err())
	})

	rdb := NewTestRedis(t)
	t.Cleanup(func() { _ = rdb.Del(ctx, "oidworker-test:keep").Err() })

	n, err := rdb.Exists(ctx, "oidworker-test:purge:a").Result()
	require.NoError(t, err)
	assert.Zero(t, n)

	val, err := rdb.Get(ctx, "oidworker-test:keep").Result()
	require.NoError(t, err)
	assert.Equal(t, "1", val)
}
