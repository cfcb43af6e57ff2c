package ingest_test

import (
	"context"
	_ "embed"
	"testing"

	"github.com/hsn0918/rag/internal/chunk"
	"github.com/hsn0918/rag/internal/chunkstore"
	"github.com/hsn0918/rag/internal/ingest"
	"github.com/hsn0918/rag/internal/lexical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

//go:embed testdata/doc_001.md
var doc001Content string

//go:embed testdata/doc_002.md
var doc002Content string

//go:embed testdata/doc_005.md
var doc005Content string

// These mirror the literal end-to-end scenarios named in spec.md §8 (S1-S3),
// run against the real lexical index and the reference (non-HTTP) pipeline
// rather than over the network: ingest a sample corpus document, search for
// it by the same query the source's demo ships, and check the top hit.
func newScenarioPipeline(t *testing.T) (*ingest.Pipeline, *lexical.Index, *chunkstore.Store) {
	t.Helper()
	lex, err := lexical.New()
	require.NoError(t, err)
	t.Cleanup(func() { lex.Close() })

	store := chunkstore.New()
	p := ingest.New(
		chunk.NewSplitter(chunk.DefaultConfig()),
		fakeEmbedder{},
		lex,
		&fakeVectorCollection{},
		&fakeVectorCollection{},
		store,
		nil,
		zap.NewNop(),
	)
	return p, lex, store
}

func ingestCorpus(t *testing.T, p *ingest.Pipeline) {
	t.Helper()
	ctx := context.Background()
	_, err := p.IngestDirect(ctx, "doc_001", "5G NR 随机接入流程", doc001Content, "markdown")
	require.NoError(t, err)
	_, err = p.IngestDirect(ctx, "doc_002", "载波聚合技术详解", doc002Content, "markdown")
	require.NoError(t, err)
	_, err = p.IngestDirect(ctx, "doc_005", "gNodeB 基站参数配置指南", doc005Content, "markdown")
	require.NoError(t, err)
}

// TestIdempotentIngest_SameDocumentTwiceLeavesIndexSizeUnchanged is §8
// invariant 7: at-least-once delivery re-applies the same chunk_ids, which
// overwrite rather than duplicate in both the lexical index and the store.
func TestIdempotentIngest_SameDocumentTwiceLeavesIndexSizeUnchanged(t *testing.T) {
	p, lex, store := newScenarioPipeline(t)
	ctx := context.Background()

	_, err := p.IngestDirect(ctx, "doc_001", "5G NR 随机接入流程", doc001Content, "markdown")
	require.NoError(t, err)
	sizeAfterFirst := store.Len()
	hitsAfterFirst, err := lex.Search("随机接入", 100)
	require.NoError(t, err)

	_, err = p.IngestDirect(ctx, "doc_001", "5G NR 随机接入流程", doc001Content, "markdown")
	require.NoError(t, err)
	sizeAfterSecond := store.Len()
	hitsAfterSecond, err := lex.Search("随机接入", 100)
	require.NoError(t, err)

	assert.Equal(t, sizeAfterFirst, sizeAfterSecond)
	assert.Equal(t, len(hitsAfterFirst), len(hitsAfterSecond))
}

func TestScenarioS1_RandomAccessQueryTopHitsDoc001(t *testing.T) {
	p, lex, store := newScenarioPipeline(t)
	ingestCorpus(t, p)

	hits, err := lex.Search("5G随机接入的四步流程是什么？", 5)
	require.NoError(t, err)
	require.NotEmpty(t, hits)

	top, ok := store.Get(hits[0].ChunkID)
	require.True(t, ok)
	assert.Equal(t, "doc_001", top.DocID)
	assert.Contains(t, top.HeadingPath, "随机接入")
}

func TestScenarioS2_CarrierAggregationQueryTopHitsDoc002(t *testing.T) {
	p, lex, store := newScenarioPipeline(t)
	ingestCorpus(t, p)

	hits, err := lex.Search("CA是什么", 5)
	require.NoError(t, err)
	require.NotEmpty(t, hits)

	top, ok := store.Get(hits[0].ChunkID)
	require.True(t, ok)
	assert.Equal(t, "doc_002", top.DocID)
}

func TestScenarioS3_GNodeBPowerQueryTopHitsDoc005(t *testing.T) {
	p, lex, store := newScenarioPipeline(t)
	ingestCorpus(t, p)

	hits, err := lex.Search("gNodeB AAU5613 的最大功率是多少", 5)
	require.NoError(t, err)
	require.NotEmpty(t, hits)

	top, ok := store.Get(hits[0].ChunkID)
	require.True(t, ok)
	assert.Equal(t, "doc_005", top.DocID)

	fullText := top.Text
	for _, c := range hits {
		if c.ChunkID == hits[0].ChunkID {
			continue
		}
		if other, ok := store.Get(c.ChunkID); ok && other.DocID == "doc_005" {
			fullText += other.Text
		}
	}
	assert.Contains(t, fullText, "200W")
}
