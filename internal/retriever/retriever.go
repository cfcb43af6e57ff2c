// Package retriever implements the three-level retriever (spec.md 4.K):
// parallel L1 recall across rewritten queries, L2 RSF fusion, L3
// cross-encoder rerank with cliff cutoff.
package retriever

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/hsn0918/rag/internal/chunk"
	"github.com/hsn0918/rag/internal/chunkstore"
	"github.com/hsn0918/rag/internal/embedding"
	"github.com/hsn0918/rag/internal/fusion"
	"github.com/hsn0918/rag/internal/ragerr"
	"github.com/hsn0918/rag/internal/rerank"
	"github.com/hsn0918/rag/internal/textutil"
)

// Source tags, the name of the final stage that admitted a chunk.
const (
	SourceBM25        = "bm25"
	SourceVectorLight = "vector_light"
	SourceRSF         = "rsf"
	SourceRerank      = "rerank"
)

// RetrievedChunk is one ranked retrieval result.
type RetrievedChunk struct {
	Chunk  chunk.Chunk
	Score  float64
	Source string
}

// LexicalSearcher is the subset of internal/lexical.Index the retriever
// needs.
type LexicalSearcher interface {
	Search(q string, topK int) ([]Hit, error)
}

// VectorSearcher is the subset of internal/vectorindex.Collection (light
// collection only — L1 recall only ever queries the light vectors) the
// retriever needs.
type VectorSearcher interface {
	Search(ctx context.Context, vector []float32, topK int) ([]Hit, error)
}

// Hit mirrors the {ChunkID, Score} shape both internal/lexical.Hit and
// internal/vectorindex.Hit already have, declared locally so this package
// doesn't need to import either concrete package just for a result type.
type Hit struct {
	ChunkID string
	Score   float64
}

// Config holds the tunable thresholds spec.md's Configuration section
// names for this component.
type Config struct {
	L1TopK        int     // ~1500
	L2TopK        int     // ~80
	RSFK          int     // 8
	RSFS          float64 // 1
	DiffThreshold float64 // 0.8
}

// DefaultConfig returns spec.md's named defaults.
func DefaultConfig() Config {
	return Config{L1TopK: 1500, L2TopK: 80, RSFK: 8, RSFS: 1.0, DiffThreshold: 0.8}
}

// Retriever ties the lexical index, light vector collection, chunk store
// and cross-encoder scorer into the three-level pipeline.
type Retriever struct {
	lexical  LexicalSearcher
	vectors  VectorSearcher
	embedder embedding.Embedder
	store    *chunkstore.Store
	scorer   rerank.Scorer
	cfg      Config
	logger   *zap.Logger
}

// New builds a Retriever. logger may be nil.
func New(lexical LexicalSearcher, vectors VectorSearcher, embedder embedding.Embedder, store *chunkstore.Store, scorer rerank.Scorer, cfg Config, logger *zap.Logger) *Retriever {
	return &Retriever{lexical: lexical, vectors: vectors, embedder: embedder, store: store, scorer: scorer, cfg: cfg, logger: logger}
}

// Retrieve runs L1 recall over query and its rewrites, L2 RSF fusion keyed
// on the original query's token length, and L3 cross-encoder rerank with
// cliff cutoff, returning at most topK ordered RetrievedChunk.
func (r *Retriever) Retrieve(ctx context.Context, query string, rewrites []string, topK int) ([]RetrievedChunk, error) {
	queries := rewrites
	if len(queries) == 0 {
		queries = []string{query}
	}

	lexHits, vecHits := r.recall(ctx, queries)

	tokenLength := len(textutil.Tokenize(query))
	alpha := fusion.Alpha(tokenLength, r.cfg.RSFK, r.cfg.RSFS)
	fused := fusion.Fuse(toFusionHits(lexHits), toFusionHits(vecHits), alpha, r.cfg.L2TopK)

	reranked, err := r.rerankAndCut(ctx, query, fused, topK)
	if err != nil {
		return nil, err
	}

	// L3 is always the terminal stage of this pipeline (it can only drop
	// candidates the earlier stages already admitted, never introduce new
	// ones), so every returned chunk's final admitting stage is rerank.
	// The bm25/vector_light/rsf tags remain part of the vocabulary for
	// callers that assemble a RetrievedChunk from an earlier stage directly
	// (e.g. a mode that skips L3 when no scorer is configured).
	results := make([]RetrievedChunk, 0, len(reranked))
	for _, h := range reranked {
		c, ok := r.store.Get(h.ID)
		if !ok {
			r.warnMissingChunk("post-rerank", h.ID)
			continue
		}
		results = append(results, RetrievedChunk{Chunk: c, Score: h.Score, Source: SourceRerank})
	}
	return results, nil
}

// recall runs L1: for every rewritten query, in parallel, lexical search
// and light-vector search at L1TopK. Each stream continues even if the
// other, or another query's call, errors — a failed side contributes an
// empty list rather than aborting recall entirely.
func (r *Retriever) recall(ctx context.Context, queries []string) (lexHits, vecHits []Hit) {
	type partial struct {
		lex []Hit
		vec []Hit
	}
	results := make(chan partial, len(queries))

	var wg sync.WaitGroup
	for _, q := range queries {
		q := q
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- partial{lex: r.searchLexical(q), vec: r.searchVector(ctx, q)}
		}()
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	for p := range results {
		lexHits = append(lexHits, p.lex...)
		vecHits = append(vecHits, p.vec...)
	}
	return dedupMax(lexHits), dedupMax(vecHits)
}

func (r *Retriever) searchLexical(q string) []Hit {
	hits, err := r.lexical.Search(q, r.cfg.L1TopK)
	if err != nil {
		return nil
	}
	return hits
}

func (r *Retriever) searchVector(ctx context.Context, q string) []Hit {
	vec, err := r.embedder.EmbedLight(ctx, q)
	if err != nil {
		return nil
	}
	hits, err := r.vectors.Search(ctx, vec, r.cfg.L1TopK)
	if err != nil {
		return nil
	}
	return hits
}

// warnMissingChunk logs the internal-invariant spec.md 7 names: a chunk_id
// present in the lexical/vector index but absent from the chunk store.
// The hit is already dropped by the caller; this only records it.
func (r *Retriever) warnMissingChunk(stage, chunkID string) {
	if r.logger == nil {
		return
	}
	err := ragerr.New(ragerr.InternalInvariant, fmt.Errorf("chunk %s indexed but missing from store", chunkID))
	r.logger.Warn("retriever: dropping hit missing from chunk store", zap.String("stage", stage), zap.String("chunk_id", chunkID), zap.Error(err))
}

func dedupMax(hits []Hit) []Hit {
	byID := make(map[string]float64, len(hits))
	order := make([]string, 0, len(hits))
	for _, h := range hits {
		if _, ok := byID[h.ChunkID]; !ok {
			order = append(order, h.ChunkID)
		}
		if cur, ok := byID[h.ChunkID]; !ok || h.Score > cur {
			byID[h.ChunkID] = h.Score
		}
	}
	out := make([]Hit, 0, len(order))
	for _, id := range order {
		out = append(out, Hit{ChunkID: id, Score: byID[id]})
	}
	return out
}

func toFusionHits(hits []Hit) []fusion.Hit {
	out := make([]fusion.Hit, len(hits))
	for i, h := range hits {
		out[i] = fusion.Hit{ID: h.ChunkID, Score: h.Score}
	}
	return out
}

func (r *Retriever) rerankAndCut(ctx context.Context, query string, fused []fusion.Hit, topK int) ([]fusion.Hit, error) {
	candidates := make([]fusion.Hit, 0, len(fused))
	for _, h := range fused {
		c, ok := r.store.Get(h.ID)
		if !ok {
			r.warnMissingChunk("pre-rerank", h.ID)
			continue
		}
		score, err := r.scorer.Score(ctx, query, c.Text)
		if err != nil {
			return nil, fmt.Errorf("retriever: rerank chunk %s: %w", h.ID, err)
		}
		candidates = append(candidates, fusion.Hit{ID: h.ID, Score: score})
	}

	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].Score > candidates[j].Score })
	return fusion.RerankCutoff(candidates, r.cfg.DiffThreshold, topK), nil
}
