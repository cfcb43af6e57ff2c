package cache

import (
	"context"
	"math"
	"time"

	"github.com/bytedance/sonic"
)

// SemanticTTL is the semantic-cache entry lifetime (spec.md 4.L: ~24h).
const SemanticTTL = 24 * time.Hour

// DefaultSemanticThreshold is the cosine-similarity floor a cached entry
// must meet to count as a semantic hit (spec.md 4.L: ~0.92).
const DefaultSemanticThreshold = 0.92

// SemanticCache matches a query's light vector against previously cached
// (query, vector, answer) entries by cosine similarity, independent of
// exact string equality.
type SemanticCache struct {
	ops       RedisOps
	ttl       time.Duration
	threshold float64
}

// NewSemanticCache builds a SemanticCache.
func NewSemanticCache(ops RedisOps, ttl time.Duration, threshold float64) *SemanticCache {
	return &SemanticCache{ops: ops, ttl: ttl, threshold: threshold}
}

// entry is the wire shape of one semantic-cache hash value.
type entry struct {
	Query  string    `json:"query"`
	Vector []float32 `json:"vector_light"`
	Answer string    `json:"answer"`
}

// Lookup scans existing semantic entries and returns the first whose
// cached vector has cosine similarity >= threshold against queryVector.
// Iteration order across entries is unspecified; any qualifying match is
// acceptable. An empty-norm queryVector never matches.
func (c *SemanticCache) Lookup(ctx context.Context, queryVector []float32) (string, bool, error) {
	if norm(queryVector) == 0 {
		return "", false, nil
	}

	keys, err := c.ops.KeysWithPrefix(ctx, prefixCache+"semantic:")
	if err != nil {
		return "", false, err
	}

	for _, key := range keys {
		fields, err := c.ops.HGetAll(ctx, key)
		if err != nil {
			return "", false, err
		}
		raw, ok := fields["entry"]
		if !ok {
			continue
		}
		var e entry
		if err := sonic.UnmarshalString(raw, &e); err != nil {
			continue
		}
		if norm(e.Vector) == 0 {
			continue
		}
		if cosineSimilarity(queryVector, e.Vector) >= c.threshold {
			return e.Answer, true, nil
		}
	}
	return "", false, nil
}

// Set stores a new semantic-cache entry keyed by the hash of query.
func (c *SemanticCache) Set(ctx context.Context, query string, vector []float32, answer string) error {
	raw, err := sonic.MarshalString(entry{Query: query, Vector: vector, Answer: answer})
	if err != nil {
		return err
	}
	key := semanticCacheKey(query)
	if err := c.ops.HSet(ctx, key, map[string]string{"entry": raw}); err != nil {
		return err
	}
	return c.ops.Expire(ctx, key, c.ttl)
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func cosineSimilarity(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
	}
	denom := norm(a) * norm(b)
	if denom == 0 {
		return 0
	}
	return dot / denom
}
