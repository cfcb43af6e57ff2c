// Package lexical implements the inverted-index capability (spec.md 4.D):
// index/refresh/search over chunk text, heading path and document name,
// with a BM25-like monotonic score.
package lexical

import (
	"fmt"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
)

// Field boost policy named in spec.md 4.D.
const (
	boostText    = 3.0
	boostHeading = 2.0
	boostDocName = 1.0
)

// Hit is one scored result from Search.
type Hit struct {
	ChunkID string
	Score   float64
}

// document is the bleve-indexed representation of a chunk.
type document struct {
	Text    string `json:"text"`
	Heading string `json:"heading"`
	DocName string `json:"doc_name"`
	DocID   string `json:"doc_id"`
}

// Index is the lexical (inverted-index) capability, backed by an in-memory
// bleve index. Writes are batched and only become searchable on Refresh,
// matching spec.md 4.D's "searchable only after a refresh" contract.
type Index struct {
	mu    sync.Mutex
	bleve bleve.Index
	batch *bleve.Batch
}

// New builds an empty, process-local lexical index.
func New() (*Index, error) {
	mapping := bleve.NewIndexMapping()
	idx, err := bleve.NewMemOnly(mapping)
	if err != nil {
		return nil, fmt.Errorf("lexical: create index: %w", err)
	}
	return &Index{bleve: idx, batch: idx.NewBatch()}, nil
}

// IndexChunk stages a chunk for indexing. It is not searchable until the
// next Refresh.
func (i *Index) IndexChunk(chunkID, docID, docName, headingPath, text string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.batch.Index(chunkID, document{
		Text:    text,
		Heading: headingPath,
		DocName: docName,
		DocID:   docID,
	})
}

// DeleteDocument stages deletion of every chunk belonging to docID. bleve
// has no native "delete by field" so this issues per-id deletes against a
// query over doc_id, matching spec.md's "deletion is a whole-document
// operation" lifecycle rule.
func (i *Index) DeleteDocument(docID string) error {
	ids, err := i.idsForDoc(docID)
	if err != nil {
		return err
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	for _, id := range ids {
		i.batch.Delete(id)
	}
	return nil
}

func (i *Index) idsForDoc(docID string) ([]string, error) {
	q := bleve.NewTermQuery(docID)
	q.SetField("doc_id")
	req := bleve.NewSearchRequest(q)
	req.Size = 1_000_000
	res, err := i.bleve.Search(req)
	if err != nil {
		return nil, fmt.Errorf("lexical: lookup doc ids: %w", err)
	}
	ids := make([]string, 0, len(res.Hits))
	for _, h := range res.Hits {
		ids = append(ids, h.ID)
	}
	return ids, nil
}

// Refresh commits every staged write so it becomes visible to Search.
func (i *Index) Refresh() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.batch.Size() == 0 {
		return nil
	}
	if err := i.bleve.Batch(i.batch); err != nil {
		return fmt.Errorf("lexical: refresh: %w", err)
	}
	i.batch = i.bleve.NewBatch()
	return nil
}

// Search runs a boosted disjunction query over text/heading/doc_name and
// returns up to topK hits ordered by descending score.
func (i *Index) Search(q string, topK int) ([]Hit, error) {
	if topK <= 0 {
		topK = 10
	}
	textQ := query.NewMatchQuery(q)
	textQ.SetField("text")
	textQ.SetBoost(boostText)

	headingQ := query.NewMatchQuery(q)
	headingQ.SetField("heading")
	headingQ.SetBoost(boostHeading)

	docNameQ := query.NewMatchQuery(q)
	docNameQ.SetField("doc_name")
	docNameQ.SetBoost(boostDocName)

	disjunction := bleve.NewDisjunctionQuery(textQ, headingQ, docNameQ)
	req := bleve.NewSearchRequest(disjunction)
	req.Size = topK

	res, err := i.bleve.Search(req)
	if err != nil {
		return nil, fmt.Errorf("lexical: search: %w", err)
	}

	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hits = append(hits, Hit{ChunkID: h.ID, Score: h.Score})
	}
	return hits, nil
}

// Close releases the underlying bleve index.
func (i *Index) Close() error {
	return i.bleve.Close()
}
