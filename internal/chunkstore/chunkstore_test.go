package chunkstore_test

import (
	"sync"
	"testing"

	"github.com/hsn0918/rag/internal/chunk"
	"github.com/hsn0918/rag/internal/chunkstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_PutAndGet(t *testing.T) {
	s := chunkstore.New()
	s.Put(chunk.Chunk{ChunkID: "c1", Text: "hello", DocID: "doc_1"})

	got, ok := s.Get("c1")
	require.True(t, ok)
	assert.Equal(t, "hello", got.Text)

	_, ok = s.Get("missing")
	assert.False(t, ok)
}

func TestStore_GetAllSkipsMisses(t *testing.T) {
	s := chunkstore.New()
	s.PutAll([]chunk.Chunk{
		{ChunkID: "c1", DocID: "doc_1"},
		{ChunkID: "c2", DocID: "doc_1"},
	})
	got := s.GetAll([]string{"c1", "missing", "c2"})
	assert.Len(t, got, 2)
}

func TestStore_DeleteDocumentRemovesOnlyItsChunks(t *testing.T) {
	s := chunkstore.New()
	s.PutAll([]chunk.Chunk{
		{ChunkID: "c1", DocID: "doc_a"},
		{ChunkID: "c2", DocID: "doc_a"},
		{ChunkID: "c3", DocID: "doc_b"},
	})
	s.DeleteDocument("doc_a")
	assert.Equal(t, 1, s.Len())
	_, ok := s.Get("c3")
	assert.True(t, ok)
}

func TestStore_ConcurrentReadsAndWrites(t *testing.T) {
	s := chunkstore.New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			s.Put(chunk.Chunk{ChunkID: "c", DocID: "doc"})
		}(i)
		go func() {
			defer wg.Done()
			s.Get("c")
		}()
	}
	wg.Wait()
}
