package cache

import (
	"context"
	"time"
)

// ExactTTL is the exact-cache entry lifetime (spec.md 4.L: ~24h).
const ExactTTL = 24 * time.Hour

// ExactCache is a plain string GET/SETEX cache keyed by the normalized,
// hashed query.
type ExactCache struct {
	ops RedisOps
	ttl time.Duration
}

// NewExactCache builds an ExactCache with the given TTL (use ExactTTL for
// the spec default).
func NewExactCache(ops RedisOps, ttl time.Duration) *ExactCache {
	return &ExactCache{ops: ops, ttl: ttl}
}

// Get returns the cached answer for query, and whether it was present.
func (c *ExactCache) Get(ctx context.Context, query string) (string, bool, error) {
	return c.ops.Get(ctx, exactCacheKey(query))
}

// Set stores answer for query under the configured TTL.
func (c *ExactCache) Set(ctx context.Context, query, answer string) error {
	return c.ops.SetEx(ctx, exactCacheKey(query), answer, c.ttl)
}
