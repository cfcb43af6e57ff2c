// Package chunkstore is the authoritative in-memory chunk_id -> Chunk
// mapping (spec.md 4.F): reads dominate, writes occur only during
// ingestion, safe for concurrent readers and single-writer bulk updates.
package chunkstore

import (
	"sync"

	"github.com/hsn0918/rag/internal/chunk"
)

// Store is a concurrency-safe chunk_id -> Chunk map.
type Store struct {
	mu     sync.RWMutex
	chunks map[string]chunk.Chunk
}

// New returns an empty store.
func New() *Store {
	return &Store{chunks: make(map[string]chunk.Chunk)}
}

// Put inserts or overwrites a single chunk.
func (s *Store) Put(c chunk.Chunk) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks[c.ChunkID] = c
}

// PutAll bulk-inserts chunks under one write lock, matching the
// "single-writer bulk update" access pattern ingestion uses.
func (s *Store) PutAll(chunks []chunk.Chunk) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range chunks {
		s.chunks[c.ChunkID] = c
	}
}

// Get looks up a chunk by id.
func (s *Store) Get(chunkID string) (chunk.Chunk, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.chunks[chunkID]
	return c, ok
}

// GetAll looks up many chunk ids at once, skipping misses. Order follows
// the input slice.
func (s *Store) GetAll(chunkIDs []string) []chunk.Chunk {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]chunk.Chunk, 0, len(chunkIDs))
	for _, id := range chunkIDs {
		if c, ok := s.chunks[id]; ok {
			out = append(out, c)
		}
	}
	return out
}

// DeleteDocument removes every chunk belonging to docID (spec.md's
// whole-document deletion rule).
func (s *Store) DeleteDocument(docID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, c := range s.chunks {
		if c.DocID == docID {
			delete(s.chunks, id)
		}
	}
}

// Len reports the number of chunks currently stored.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}
