package chat_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hsn0918/rag/internal/cache"
	"github.com/hsn0918/rag/internal/chat"
	"github.com/hsn0918/rag/internal/chunk"
	"github.com/hsn0918/rag/internal/chunkstore"
	"github.com/hsn0918/rag/internal/convo"
	"github.com/hsn0918/rag/internal/embedding"
	"github.com/hsn0918/rag/internal/rerank"
	"github.com/hsn0918/rag/internal/retriever"
	"github.com/hsn0918/rag/internal/rewrite"
)

// fakeRedisOps is a minimal in-memory cache.RedisOps, shared shape with
// the other packages' test fakes.
type fakeRedisOps struct {
	strs   map[string]string
	hashes map[string]map[string]string
	lists  map[string][]string
}

func newFakeRedisOps() *fakeRedisOps {
	return &fakeRedisOps{strs: map[string]string{}, hashes: map[string]map[string]string{}, lists: map[string][]string{}}
}

func (f *fakeRedisOps) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := f.strs[key]
	return v, ok, nil
}
func (f *fakeRedisOps) SetEx(_ context.Context, key, value string, _ time.Duration) error {
	f.strs[key] = value
	return nil
}
func (f *fakeRedisOps) HSet(_ context.Context, key string, fields map[string]string) error {
	h, ok := f.hashes[key]
	if !ok {
		h = map[string]string{}
		f.hashes[key] = h
	}
	for k, v := range fields {
		h[k] = v
	}
	return nil
}
func (f *fakeRedisOps) HGetAll(_ context.Context, key string) (map[string]string, error) {
	return f.hashes[key], nil
}
func (f *fakeRedisOps) Expire(context.Context, string, time.Duration) error { return nil }
func (f *fakeRedisOps) RPush(_ context.Context, key string, values ...string) error {
	f.lists[key] = append(f.lists[key], values...)
	return nil
}
func (f *fakeRedisOps) LRange(_ context.Context, key string, _, _ int64) ([]string, error) {
	return append([]string(nil), f.lists[key]...), nil
}
func (f *fakeRedisOps) LTrimToTail(context.Context, string, int64) error { return nil }
func (f *fakeRedisOps) ReplaceList(_ context.Context, key string, values []string) error {
	f.lists[key] = append([]string(nil), values...)
	return nil
}
func (f *fakeRedisOps) SetNX(_ context.Context, key, value string, _ time.Duration) (bool, error) {
	if _, ok := f.strs[key]; ok {
		return false, nil
	}
	f.strs[key] = value
	return true, nil
}
func (f *fakeRedisOps) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(f.strs, k)
		delete(f.hashes, k)
		delete(f.lists, k)
	}
	return nil
}
func (f *fakeRedisOps) KeysWithPrefix(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	for k := range f.hashes {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

type fakeLexical struct{ hits []retriever.Hit }

func (f *fakeLexical) Search(string, int) ([]retriever.Hit, error) { return f.hits, nil }

type fakeVectors struct{ hits []retriever.Hit }

func (f *fakeVectors) Search(context.Context, []float32, int) ([]retriever.Hit, error) {
	return f.hits, nil
}

type fakeGenerator struct {
	answer string
	err    error
}

func (f *fakeGenerator) Generate(string, []convo.Message) (string, error) { return f.answer, f.err }

func buildOrchestrator(t *testing.T, gen chat.Generator) (*chat.Orchestrator, *cache.Cache) {
	t.Helper()
	store := chunkstore.New()
	store.Put(chunk.Chunk{
		ChunkID:     "c1",
		Text:        "5G NR 随机接入流程分为四步：发送 Preamble、接收 RAR、发送 Msg3、竞争解决。",
		DocID:       "doc_001",
		DocName:     "5G NR 随机接入流程",
		HeadingPath: "随机接入 > 四步流程",
	})

	embedder, err := embedding.NewHashEmbedder(16)
	require.NoError(t, err)

	retr := retriever.New(
		&fakeLexical{hits: []retriever.Hit{{ChunkID: "c1", Score: 1.0}}},
		&fakeVectors{hits: []retriever.Hit{{ChunkID: "c1", Score: 0.9}}},
		embedder, store, rerank.NewReferenceScorer(), retriever.DefaultConfig(), nil,
	)

	c := cache.New(newFakeRedisOps())
	rewriter := rewrite.New(nil, "", nil)

	o := chat.New(rewriter, retr, embedder, c, gen, nil, nil, chat.DefaultConfig(), nil)
	return o, c
}

func TestChat_RejectsEmptyQuery(t *testing.T) {
	o, _ := buildOrchestrator(t, &fakeGenerator{answer: "ok"})
	_, err := o.Chat(context.Background(), chat.Request{UserID: "u1", SessionID: "s1", Query: "", TopK: 5})
	assert.Error(t, err)
}

func TestChat_RejectsOutOfRangeTopK(t *testing.T) {
	o, _ := buildOrchestrator(t, &fakeGenerator{answer: "ok"})
	_, err := o.Chat(context.Background(), chat.Request{UserID: "u1", SessionID: "s1", Query: "q", TopK: 0})
	assert.Error(t, err)
}

func TestChat_RAGPathReturnsCitationAndAnswer(t *testing.T) {
	o, _ := buildOrchestrator(t, &fakeGenerator{answer: "随机接入分为四步。"})
	resp, err := o.Chat(context.Background(), chat.Request{
		UserID: "u1", SessionID: "s1", Query: "5G随机接入的四步流程是什么？", TopK: 5,
	})
	require.NoError(t, err)
	assert.Equal(t, chat.SourceRAG, resp.Source)
	assert.Equal(t, "随机接入分为四步。", resp.Answer)
	require.Len(t, resp.Citations, 1)
	assert.Equal(t, "doc_001", resp.Citations[0].DocID)
}

func TestChat_SecondIdenticalRequestHitsExactCache(t *testing.T) {
	o, _ := buildOrchestrator(t, &fakeGenerator{answer: "随机接入分为四步。"})
	ctx := context.Background()
	req := chat.Request{UserID: "u1", SessionID: "s1", Query: "5G随机接入的四步流程是什么？", TopK: 5}

	first, err := o.Chat(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, chat.SourceRAG, first.Source)

	second, err := o.Chat(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, chat.SourceExactCache, second.Source)
	assert.Equal(t, first.Answer, second.Answer)
}

func TestChat_NoCandidatesReturnsCanonicalSentence(t *testing.T) {
	store := chunkstore.New()
	embedder, err := embedding.NewHashEmbedder(16)
	require.NoError(t, err)
	retr := retriever.New(&fakeLexical{}, &fakeVectors{}, embedder, store, rerank.NewReferenceScorer(), retriever.DefaultConfig(), nil)
	c := cache.New(newFakeRedisOps())
	o := chat.New(rewrite.New(nil, "", nil), retr, embedder, c, &fakeGenerator{answer: "should not be used"}, nil, nil, chat.DefaultConfig(), nil)

	resp, err := o.Chat(context.Background(), chat.Request{UserID: "u1", SessionID: "s1", Query: "不存在的问题", TopK: 5})
	require.NoError(t, err)
	assert.Equal(t, chat.NoAnswerSentence, resp.Answer)
}

func TestChat_GenerationErrorFallsBackToCanonicalSentence(t *testing.T) {
	o, _ := buildOrchestrator(t, &fakeGenerator{err: assert.AnError})
	resp, err := o.Chat(context.Background(), chat.Request{UserID: "u1", SessionID: "s1", Query: "5G随机接入的四步流程是什么？", TopK: 5})
	require.NoError(t, err)
	assert.Equal(t, chat.NoAnswerSentence, resp.Answer)
}
