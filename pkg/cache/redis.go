// Package cache wraps github.com/redis/go-redis/v9: client construction, a
// startup Ping, and SET-NX idempotency-lock helpers. The permission kernel's
// effective-permission sets are the one Redis consumer in this repository;
// the agent pipeline's cross-memory result cache is a Postgres table
// (store.AgentRunStore), and nothing calls the idempotency-lock helpers.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sansten/memoryos/pkg/config"
)

// NewClient builds a go-redis client from config.RedisConfig.
func NewClient(cfg *config.RedisConfig) *redis.Client {
	if cfg == nil {
		panic("cache: NewClient requires a non-nil RedisConfig")
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		opts = &redis.Options{Addr: cfg.URL}
	}
	opts.DialTimeout = cfg.DialTimeout
	opts.ReadTimeout = cfg.ReadTimeout
	opts.WriteTimeout = cfg.WriteTimeout
	return redis.NewClient(opts)
}

// Ping verifies connectivity at startup, mirroring the established
// database.NewPool readiness check.
func Ping(ctx context.Context, client *redis.Client) error {
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// AcquireIdempotencyLock sets a SET-NX lock keyed by inputs_hash so
// concurrent agent-pipeline requests for the same (memory, agent, inputs)
// collapse onto a single execution. Returns true if the
// caller won the lock.
func AcquireIdempotencyLock(ctx context.Context, client *redis.Client, key string, ttl time.Duration) (bool, error) {
	ok, err := client.SetNX(ctx, "idempotency:"+key, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquiring idempotency lock: %w", err)
	}
	return ok, nil
}

// ReleaseIdempotencyLock drops the lock once the run has been recorded, so
// a subsequent distinct request is not blocked by a stale key before its TTL.
func ReleaseIdempotencyLock(ctx context.Context, client *redis.Client, key string) error {
	return client.Del(ctx, "idempotency:"+key).Err()
}
