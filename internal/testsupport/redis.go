package testsupport

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
)

// NewTestRedis connects using REDIS_* variables. Keys matching any of patterns are removed
// before the test starts and again when it ends; nothing else in the database is touched.
func NewTestRedis(t *testing.T, patterns ...string) *redis.Client {
	t.Helper()

	cfg := LoadRedisConfigFromEnv(t)
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		t.Skipf("redis unreachable at %s: %v", cfg.Addr(), err)
	}

	purge := func() {
		ctx := context.Background()
		for _, pattern := range patterns {
			iter := client.Scan(ctx, 0, pattern, 100).Iterator()
			for iter.Next(ctx) {
				_ = client.Del(ctx, iter.Val()).Err()
			}
		}
	}
	purge()
	t.Cleanup(func() {
		purge()
		_ = client.Close()
	})
	return client
}
