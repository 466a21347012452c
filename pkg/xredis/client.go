package xredis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/relaydesk/backend/config"
)

// Nil is returned by Get for a missing key.
const Nil = redis.Nil

type Client interface {
	Exist(ctx context.Context, key string) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, key ...string) error

	// AcquireLock sets the key to the owner token only if it does not
	// exist, with a bounded TTL. It reports whether the lock was taken.
	AcquireLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)

	// ReleaseLock deletes the key only while it still holds the owner
	// token, so a lock that expired and was re-acquired by another process
	// is never released by the previous holder.
	ReleaseLock(ctx context.Context, key, owner string) (bool, error)
}

// releaseScript compares the lock value with the caller's owner token before
// deleting. Ownership check and delete must be one atomic step.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

type client struct {
	redisClient *redis.Client
}

func NewClient(ctx context.Context, cfg config.RedisConfigs) (*client, error) {
	redisClient := redis.NewClient(&redis.Options{
		Addr:            cfg.Addr,
		MaxRetries:      5,
		MinRetryBackoff: 8 * time.Millisecond,
		MaxRetryBackoff: 512 * time.Millisecond,
		DialTimeout:     5 * time.Second,
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    5 * time.Second,
		PoolFIFO:        false,
		PoolSize:        5,
	})

	if err := redisClient.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &client{redisClient: redisClient}, nil
}

func (c *client) Exist(ctx context.Context, key string) (bool, error) {
	n, err := c.redisClient.Exists(ctx, key).Uint64()
	if err != nil {
		return false, err
	}

	return n == 1, nil
}

func (c *client) Get(ctx context.Context, key string) (string, error) {
	return c.redisClient.Get(ctx, key).Result()
}

func (c *client) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.redisClient.Set(ctx, key, value, ttl).Err()
}

func (c *client) Del(ctx context.Context, key ...string) error {
	err := c.redisClient.Del(ctx, key...).Err()
	if err == nil || err == redis.Nil {
		return nil
	}

	return err
}

func (c *client) AcquireLock(
	ctx context.Context, key, owner string, ttl time.Duration,
) (bool, error) {
	return c.redisClient.SetNX(ctx, key, owner, ttl).Result()
}

func (c *client) ReleaseLock(ctx context.Context, key, owner string) (bool, error) {
	n, err := releaseScript.Run(ctx, c.redisClient, []string{key}, owner).Int()
	if err != nil {
		return false, err
	}

	return n == 1, nil
}
