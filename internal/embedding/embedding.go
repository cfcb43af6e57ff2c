// Package embedding provides the two fixed-dimensionality text embedders
// used by the chunker and the retriever: a "light" vector for coarse recall
// and a "dense" vector reserved for fine semantic matching.
package embedding

import (
	"context"
	"hash/fnv"
	"math"

	lru "github.com/hashicorp/golang-lru"
)

// Dimensions used by the two embedding collections (spec.md §3 D1/D2).
const (
	LightDim = 384
	DenseDim = 768
)

// Embedder produces deterministic, L2-normalized vectors for a piece of
// text. Same input yields a bit-identical output within a process lifetime;
// unequal-length inputs yield vectors of the same fixed length.
type Embedder interface {
	EmbedLight(ctx context.Context, text string) ([]float32, error)
	EmbedDense(ctx context.Context, text string) ([]float32, error)
}

// HashEmbedder is the reference implementation: it accumulates per-trigram
// and per-word pseudo-random contributions seeded by an FNV-1a hash of the
// gram, then L2-normalizes. Production deployments swap this for a trained
// model of the same shape behind the same interface.
type HashEmbedder struct {
	lightCache *lru.Cache
	denseCache *lru.Cache
}

var _ Embedder = (*HashEmbedder)(nil)

// NewHashEmbedder constructs the reference embedder with a bounded LRU cache
// per dimensionality, replacing the teacher's hand-rolled FIFO cache with a
// real LRU so repeated chunk text (common during re-ingestion) skips the
// hashing pass entirely.
func NewHashEmbedder(cacheSize int) (*HashEmbedder, error) {
	if cacheSize <= 0 {
		cacheSize = 2048
	}
	light, err := lru.New(cacheSize)
	if err != nil {
		return nil, err
	}
	dense, err := lru.New(cacheSize)
	if err != nil {
		return nil, err
	}
	return &HashEmbedder{lightCache: light, denseCache: dense}, nil
}

func (e *HashEmbedder) EmbedLight(_ context.Context, text string) ([]float32, error) {
	return e.embed(e.lightCache, text, LightDim, 0x6c696768), nil // "ligh"
}

func (e *HashEmbedder) EmbedDense(_ context.Context, text string) ([]float32, error) {
	return e.embed(e.denseCache, text, DenseDim, 0x64656e73), nil // "dens"
}

func (e *HashEmbedder) embed(cache *lru.Cache, text string, dim int, seed uint64) []float32 {
	if cached, ok := cache.Get(text); ok {
		return cloneVector(cached.([]float32))
	}

	v := make([]float32, dim)
	if text != "" {
		accumulateTrigrams(text, seed, v)
		accumulateWords(text, seed, v)
		normalize(v)
	}
	cache.Add(text, cloneVector(v))
	return v
}

func cloneVector(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}

func accumulateTrigrams(s string, seed uint64, v []float32) {
	b := []byte(s)
	if len(b) < 3 {
		addGram(seed, b, v)
		return
	}
	for i := 0; i <= len(b)-3; i++ {
		addGram(seed, b[i:i+3], v)
	}
}

func accumulateWords(s string, seed uint64, v []float32) {
	var word []byte
	flush := func() {
		if len(word) > 0 {
			addGram(seed^0xa5a5a5a5a5a5a5a5, word, v)
			word = word[:0]
		}
	}
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			flush()
			continue
		}
		word = append(word, []byte(string(r))...)
	}
	flush()
}

func addGram(seed uint64, gram []byte, v []float32) {
	if len(v) == 0 {
		return
	}
	h := fnv.New64a()
	var tmp [8]byte
	for i := 0; i < 8; i++ {
		tmp[i] = byte(seed >> (8 * i))
	}
	_, _ = h.Write(tmp[:])
	_, _ = h.Write(gram)
	hv := h.Sum64()

	idx := int(hv % uint64(len(v)))
	weight := float32(int32(hv>>32)) / float32(1<<31)
	v[idx] += weight
}

func normalize(v []float32) {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	if sumSq == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSq))
	for i := range v {
		v[i] *= inv
	}
}

// CosineSimilarity returns the cosine similarity of two equal-length
// vectors. Zero-norm vectors never match anything (returns 0).
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
