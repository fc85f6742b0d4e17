package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"oidworker/internal/adapters/config"
	"oidworker/pkg/errors"
)

// Client wraps go-redis for the few primitives the worker needs: ping and keyed locks
type Client struct {
	rdb *redis.Client
}

// NewClient dials Redis and verifies the connection within ctx
func NewClient(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrap(err, "ping redis")
	}

	return &Client{rdb: rdb}, nil
}

// NewFromRedis wraps an already configured go-redis client
func NewFromRedis(rdb *redis.Client) *Client {
	return &Client{rdb: rdb}
}

// Client returns the underlying go-redis client
func (c *Client) Client() *redis.Client {
	return c.rdb
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

func (c *Client) Health(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// AcquireLock sets "lock:<key>" to owner if absent. Returns false when someone else holds it.
func (c *Client) AcquireLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, "lock:"+key, owner, ttl).Result()
	if err != nil {
		return false, errors.Wrapf(err, "setnx lock:%s", key)
	}
	return ok, nil
}

// releaseScript deletes the lock only when it is still held by the caller
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// ReleaseLock drops "lock:<key>" if owner still holds it
func (c *Client) ReleaseLock(ctx context.Context, key, owner string) error {
	if err := releaseScript.Run(ctx, c.rdb, []string{"lock:" + key}, owner).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return errors.Wrapf(err, "release lock:%s", key)
	}
	return nil
}
