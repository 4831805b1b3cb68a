// Package cache holds the optional Redis-backed alert dedup lock. With several
// engine replicas it serialises inserts of the same alert key; the dedup
// window itself is enforced by the store's conditional insert.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/pratik-mahalle/costwatch/internal/config"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "costwatch:alert-dedup:"

// DedupLock is a short-lived SET NX mutex per alert key
type DedupLock struct {
	client *redis.Client
}

// NewDedupLock connects to Redis and verifies the connection
func NewDedupLock(ctx context.Context, cfg config.RedisConfig) (*DedupLock, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("cache: failed to connect to Redis at %s: %w", cfg.Addr(), err)
	}
	return &DedupLock{client: client}, nil
}

// NewDedupLockFromClient wraps an existing client
func NewDedupLockFromClient(client *redis.Client) *DedupLock {
	return &DedupLock{client: client}
}

// Acquire claims key for ttl. It returns false when another holder has it.
func (l *DedupLock) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, keyPrefix+key, time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("cache: setnx %q: %w", key, err)
	}
	return ok, nil
}

// Release drops a claim once the insert has finished
func (l *DedupLock) Release(ctx context.Context, key string) error {
	if err := l.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("cache: delete %q: %w", key, err)
	}
	return nil
}

// Close shuts down the client
func (l *DedupLock) Close() error {
	return l.client.Close()
}
