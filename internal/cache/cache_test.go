package cache_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hsn0918/rag/internal/cache"
	"github.com/hsn0918/rag/internal/convo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRedisOps is an in-memory stand-in for cache.RedisOps good enough to
// exercise every tier's logic without a live Redis connection.
type fakeRedisOps struct {
	mu     sync.Mutex
	strs   map[string]string
	hashes map[string]map[string]string
	lists  map[string][]string
}

func newFakeRedisOps() *fakeRedisOps {
	return &fakeRedisOps{
		strs:   map[string]string{},
		hashes: map[string]map[string]string{},
		lists:  map[string][]string{},
	}
}

func (f *fakeRedisOps) Get(_ context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.strs[key]
	return v, ok, nil
}

func (f *fakeRedisOps) SetEx(_ context.Context, key, value string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.strs[key] = value
	return nil
}

func (f *fakeRedisOps) HSet(_ context.Context, key string, fields map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
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
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hashes[key], nil
}

func (f *fakeRedisOps) Expire(_ context.Context, _ string, _ time.Duration) error { return nil }

func (f *fakeRedisOps) RPush(_ context.Context, key string, values ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists[key] = append(f.lists[key], values...)
	return nil
}

func (f *fakeRedisOps) LRange(_ context.Context, key string, start, stop int64) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	list := f.lists[key]
	if stop < 0 {
		stop = int64(len(list)) + stop
	}
	if start < 0 {
		start = 0
	}
	if stop >= int64(len(list)) {
		stop = int64(len(list)) - 1
	}
	if start > stop || len(list) == 0 {
		return nil, nil
	}
	return append([]string(nil), list[start:stop+1]...), nil
}

func (f *fakeRedisOps) LTrimToTail(_ context.Context, key string, keepLast int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	list := f.lists[key]
	if int64(len(list)) > keepLast {
		f.lists[key] = append([]string(nil), list[int64(len(list))-keepLast:]...)
	}
	return nil
}

func (f *fakeRedisOps) ReplaceList(_ context.Context, key string, values []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists[key] = append([]string(nil), values...)
	return nil
}

func (f *fakeRedisOps) SetNX(_ context.Context, key, value string, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.strs[key]; ok {
		return false, nil
	}
	f.strs[key] = value
	return true, nil
}

func (f *fakeRedisOps) Delete(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.strs, k)
		delete(f.hashes, k)
		delete(f.lists, k)
	}
	return nil
}

func (f *fakeRedisOps) KeysWithPrefix(_ context.Context, prefix string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var keys []string
	for k := range f.hashes {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func TestExactCache_SetThenGet(t *testing.T) {
	c := cache.NewExactCache(newFakeRedisOps(), time.Hour)
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "what is PRACH")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "What Is PRACH", "PRACH is..."))
	answer, ok, err := c.Get(ctx, "  what is prach  ") // normalized form must collide
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "PRACH is...", answer)
}

func TestSemanticCache_MatchesAboveThreshold(t *testing.T) {
	c := cache.NewSemanticCache(newFakeRedisOps(), time.Hour, 0.9)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "what is PRACH", []float32{1, 0, 0}, "PRACH is the physical random access channel"))

	answer, ok, err := c.Lookup(ctx, []float32{1, 0, 0})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "PRACH is the physical random access channel", answer)
}

func TestSemanticCache_NoMatchBelowThreshold(t *testing.T) {
	c := cache.NewSemanticCache(newFakeRedisOps(), time.Hour, 0.99)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "what is PRACH", []float32{1, 0, 0}, "PRACH is..."))

	_, ok, err := c.Lookup(ctx, []float32{0, 1, 0}) // orthogonal, similarity 0
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSemanticCache_EmptyNormNeverMatches(t *testing.T) {
	c := cache.NewSemanticCache(newFakeRedisOps(), time.Hour, 0.0)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "q", []float32{1, 2, 3}, "a"))
	_, ok, err := c.Lookup(ctx, []float32{0, 0, 0})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSessionHistory_AppendPreservesOrder(t *testing.T) {
	h := cache.NewSessionHistory(newFakeRedisOps(), time.Hour)
	ctx := context.Background()

	require.NoError(t, h.Append(ctx, "u1", "s1", convo.Message{Role: convo.RoleUser, Content: "hi"}))
	require.NoError(t, h.Append(ctx, "u1", "s1", convo.Message{Role: convo.RoleAssistant, Content: "hello"}))

	history, err := h.History(ctx, "u1", "s1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "hi", history[0].Content)
	assert.Equal(t, "hello", history[1].Content)
}

func TestSessionHistory_TrimKeepsOnlyLastN(t *testing.T) {
	h := cache.NewSessionHistory(newFakeRedisOps(), time.Hour)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, h.Append(ctx, "u1", "s1", convo.Message{Role: convo.RoleUser, Content: string(rune('a' + i))}))
	}
	require.NoError(t, h.Trim(ctx, "u1", "s1", 2))

	history, err := h.History(ctx, "u1", "s1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "d", history[0].Content)
	assert.Equal(t, "e", history[1].Content)
}

func TestSessionHistory_ReplaceOverwritesAtomically(t *testing.T) {
	h := cache.NewSessionHistory(newFakeRedisOps(), time.Hour)
	ctx := context.Background()

	require.NoError(t, h.Append(ctx, "u1", "s1", convo.Message{Role: convo.RoleUser, Content: "old"}))
	require.NoError(t, h.Replace(ctx, "u1", "s1", []convo.Message{
		{Role: convo.RoleSystem, Content: "summary"},
		{Role: convo.RoleUser, Content: "new"},
	}))

	history, err := h.History(ctx, "u1", "s1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "summary", history[0].Content)
	assert.Equal(t, "new", history[1].Content)
}

func TestSessionHistory_DifferentUsersSameSessionIDDoNotShareHistory(t *testing.T) {
	h := cache.NewSessionHistory(newFakeRedisOps(), time.Hour)
	ctx := context.Background()

	require.NoError(t, h.Append(ctx, "alice", "shared", convo.Message{Role: convo.RoleUser, Content: "alice's question"}))
	require.NoError(t, h.Append(ctx, "bob", "shared", convo.Message{Role: convo.RoleUser, Content: "bob's question"}))

	aliceHistory, err := h.History(ctx, "alice", "shared")
	require.NoError(t, err)
	require.Len(t, aliceHistory, 1)
	assert.Equal(t, "alice's question", aliceHistory[0].Content)

	bobHistory, err := h.History(ctx, "bob", "shared")
	require.NoError(t, err)
	require.Len(t, bobHistory, 1)
	assert.Equal(t, "bob's question", bobHistory[0].Content)
}

func TestLock_SecondAcquireFailsUntilReleased(t *testing.T) {
	l := cache.NewLock(newFakeRedisOps())
	ctx := context.Background()

	_, acquired1, err := l.Acquire(ctx, "hot-key", time.Second)
	require.NoError(t, err)
	assert.True(t, acquired1)

	_, acquired2, err := l.Acquire(ctx, "hot-key", time.Second)
	require.NoError(t, err)
	assert.False(t, acquired2)

	require.NoError(t, l.Release(ctx, "hot-key"))

	_, acquired3, err := l.Acquire(ctx, "hot-key", time.Second)
	require.NoError(t, err)
	assert.True(t, acquired3)
}
