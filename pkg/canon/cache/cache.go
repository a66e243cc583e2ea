// Package cache wraps a Redis-backed digest-to-Value cache keyed by
// pkg/canon's content digests, so two documents that canonicalise to
// the same bytes reuse one evaluation result. Grounded on the teacher's
// infrastructure layer pattern of a thin typed wrapper over
// github.com/redis/go-redis/v9, exercised in tests via
// github.com/alicebob/miniredis/v2 the same way the teacher's Redis-
// backed components are tested against an in-process fake server.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "spiral:digest:"

// Cache stores arbitrary JSON-serialisable evaluation results under a
// content digest.
type Cache struct {
	rdb *redis.Client
	ttl time.Duration
}

// New wraps an already-configured *redis.Client. ttl of 0 means entries
// never expire.
func New(rdb *redis.Client, ttl time.Duration) *Cache {
	return &Cache{rdb: rdb, ttl: ttl}
}

// Get reports whether digest has a cached entry and unmarshals it into
// dest if so.
func (c *Cache) Get(ctx context.Context, digest string, dest any) (bool, error) {
	raw, err := c.rdb.Get(ctx, keyPrefix+digest).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, err
	}
	return true, nil
}

// Set stores v under digest, overwriting any existing entry.
func (c *Cache) Set(ctx context.Context, digest string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, keyPrefix+digest, raw, c.ttl).Err()
}

// Invalidate removes digest's cached entry, if any.
func (c *Cache) Invalidate(ctx context.Context, digest string) error {
	return c.rdb.Del(ctx, keyPrefix+digest).Err()
}
