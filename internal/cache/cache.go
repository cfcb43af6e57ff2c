// Package cache implements the multi-tier cache (spec.md 4.L): an exact
// string cache, a vector-similarity semantic cache, session history, and
// a distributed lock, all over a single rueidis connection.
package cache

// Cache bundles the four tiers behind one constructor so callers wire one
// Redis connection instead of four.
type Cache struct {
	Exact    *ExactCache
	Semantic *SemanticCache
	Sessions *SessionHistory
	Lock     *Lock
}

// New builds a Cache with spec.md's default TTLs and semantic threshold.
func New(ops RedisOps) *Cache {
	return &Cache{
		Exact:    NewExactCache(ops, ExactTTL),
		Semantic: NewSemanticCache(ops, SemanticTTL, DefaultSemanticThreshold),
		Sessions: NewSessionHistory(ops, SessionTTL),
		Lock:     NewLock(ops),
	}
}
