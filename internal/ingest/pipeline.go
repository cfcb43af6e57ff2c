// Package ingest implements the ingestion pipeline (spec.md 4.G): parse,
// clean, split, fan out on the message bus (or directly), embed, tokenize,
// and write to the lexical index, the two vector collections and the
// chunk store.
package ingest

import (
	"context"
	"fmt"

	"github.com/bytedance/sonic"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/hsn0918/rag/internal/bus"
	"github.com/hsn0918/rag/internal/chunk"
	"github.com/hsn0918/rag/internal/chunkstore"
	"github.com/hsn0918/rag/internal/docparse"
	"github.com/hsn0918/rag/internal/embedding"
	"github.com/hsn0918/rag/internal/ragerr"
	"github.com/hsn0918/rag/internal/textutil"
)

// Topic is the default ingestion-message topic name.
const Topic = "rag.ingestion"

// LexicalIndex is the subset of internal/lexical.Index the pipeline needs.
// Declared here (rather than depending on the concrete type) so tests can
// substitute a fake without standing up a real bleve index.
type LexicalIndex interface {
	IndexChunk(chunkID, docID, docName, headingPath, text string) error
	DeleteDocument(docID string) error
	Refresh() error
}

// VectorCollection is the subset of internal/vectorindex.Collection the
// pipeline needs, one instance per dimensionality.
type VectorCollection interface {
	Insert(chunkID, docID string, vector []float32) error
	Flush(ctx context.Context) error
	DeleteDocument(ctx context.Context, docID string) error
}

// Pipeline wires the splitter to the index/store capabilities. Producer is
// optional: when nil, Ingest behaves exactly like IngestDirect (the
// automatic bus-unavailable fallback spec.md 4.G names).
type Pipeline struct {
	splitter     *chunk.Splitter
	embedder     embedding.Embedder
	lexical      LexicalIndex
	lightVectors VectorCollection
	denseVectors VectorCollection
	store        *chunkstore.Store
	producer     *bus.Producer
	logger       *zap.Logger
}

// New builds a Pipeline. producer may be nil.
func New(splitter *chunk.Splitter, embedder embedding.Embedder, lex LexicalIndex, lightVectors, denseVectors VectorCollection, store *chunkstore.Store, producer *bus.Producer, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		splitter:     splitter,
		embedder:     embedder,
		lexical:      lex,
		lightVectors: lightVectors,
		denseVectors: denseVectors,
		store:        store,
		producer:     producer,
		logger:       logger,
	}
}

// Ingest parses, cleans and splits content, publishes each resulting chunk
// on the ingestion topic, flushes the producer, then applies the batch
// exactly as a same-process consumer would (spec.md 4.G: "consumer
// receives messages (same process in the Demo; separable worker in
// production)"). If no producer is configured, or publishing fails, it
// falls back to IngestDirect.
func (p *Pipeline) Ingest(ctx context.Context, docID, docName, content, fileType string) ([]chunk.Chunk, error) {
	chunks, err := p.split(docID, docName, content, fileType)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return chunks, nil
	}

	if p.producer == nil {
		return p.applyAndReturn(ctx, chunks)
	}

	for _, c := range chunks {
		payload, merr := sonic.Marshal(c)
		if merr != nil {
			return nil, ragerr.New(ragerr.Catastrophic, fmt.Errorf("ingest: marshal chunk %s: %w", c.ChunkID, merr))
		}
		if perr := p.producer.Publish(ctx, []byte(c.ChunkID), payload); perr != nil {
			p.logger.Warn("ingest: publish failed, falling back to direct apply",
				zap.String("doc_id", docID), zap.Error(perr))
			return p.applyAndReturn(ctx, chunks)
		}
	}
	if err := p.producer.Flush(); err != nil {
		p.logger.Warn("ingest: flush failed, falling back to direct apply", zap.Error(err))
		return p.applyAndReturn(ctx, chunks)
	}

	return p.applyAndReturn(ctx, chunks)
}

// IngestDirect is Ingest minus the message-bus round trip.
func (p *Pipeline) IngestDirect(ctx context.Context, docID, docName, content, fileType string) ([]chunk.Chunk, error) {
	chunks, err := p.split(docID, docName, content, fileType)
	if err != nil {
		return nil, err
	}
	return p.applyAndReturn(ctx, chunks)
}

func (p *Pipeline) split(docID, docName, content, fileType string) ([]chunk.Chunk, error) {
	if docID == "" {
		return nil, ragerr.New(ragerr.InputInvalid, fmt.Errorf("ingest: doc_id is required"))
	}
	md := docparse.Parse(content, fileType)
	cleaned := textutil.Clean(md)
	return p.splitter.Split(cleaned, docID, docName), nil
}

func (p *Pipeline) applyAndReturn(ctx context.Context, chunks []chunk.Chunk) ([]chunk.Chunk, error) {
	applied := make([]chunk.Chunk, 0, len(chunks))
	for _, c := range chunks {
		a, err := p.ApplyChunk(ctx, c)
		if err != nil {
			return nil, err
		}
		applied = append(applied, a)
	}
	if err := p.lexical.Refresh(); err != nil {
		return nil, ragerr.New(ragerr.DependencyUnavailable, err)
	}
	if err := p.lightVectors.Flush(ctx); err != nil {
		return nil, ragerr.New(ragerr.DependencyUnavailable, err)
	}
	if err := p.denseVectors.Flush(ctx); err != nil {
		return nil, ragerr.New(ragerr.DependencyUnavailable, err)
	}
	return applied, nil
}

// ApplyChunk is the idempotent embed -> tokenize -> index -> store step.
// Re-applying the same chunk_id overwrites prior state without producing
// duplicates (invariant: at-least-once delivery is safe).
func (p *Pipeline) ApplyChunk(ctx context.Context, c chunk.Chunk) (chunk.Chunk, error) {
	light, err := p.embedder.EmbedLight(ctx, c.Text)
	if err != nil {
		return c, ragerr.New(ragerr.DependencyTransient, fmt.Errorf("ingest: embed light %s: %w", c.ChunkID, err))
	}
	dense, err := p.embedder.EmbedDense(ctx, c.Text)
	if err != nil {
		return c, ragerr.New(ragerr.DependencyTransient, fmt.Errorf("ingest: embed dense %s: %w", c.ChunkID, err))
	}
	c.VectorLight = light
	c.VectorDense = dense
	c.LexTokens = textutil.Tokenize(c.Text)

	if err := p.lexical.IndexChunk(c.ChunkID, c.DocID, c.DocName, c.HeadingPath, c.Text); err != nil {
		return c, ragerr.New(ragerr.DependencyUnavailable, err)
	}
	if err := p.lightVectors.Insert(c.ChunkID, c.DocID, light); err != nil {
		return c, ragerr.New(ragerr.Catastrophic, err)
	}
	if err := p.denseVectors.Insert(c.ChunkID, c.DocID, dense); err != nil {
		return c, ragerr.New(ragerr.Catastrophic, err)
	}
	p.store.Put(c)
	return c, nil
}

// DeleteDocument removes every chunk of docID from every backing store
// (spec.md's whole-document deletion lifecycle rule).
func (p *Pipeline) DeleteDocument(ctx context.Context, docID string) error {
	if err := p.lexical.DeleteDocument(docID); err != nil {
		return err
	}
	if err := p.lexical.Refresh(); err != nil {
		return err
	}
	if err := p.lightVectors.DeleteDocument(ctx, docID); err != nil {
		return err
	}
	if err := p.denseVectors.DeleteDocument(ctx, docID); err != nil {
		return err
	}
	p.store.DeleteDocument(docID)
	return nil
}

// ConsumeOptions is re-exported so callers wiring a separable production
// worker don't need to import internal/bus directly for this one type.
type ConsumeOptions = bus.ConsumeOptions

// StartConsumer runs the production "separable worker" path: a bus
// consumer that unmarshals each message back into a Chunk and applies it.
func (p *Pipeline) StartConsumer(ctx context.Context, b *bus.Bus, topic string, opts ConsumeOptions) error {
	return b.Consume(ctx, topic, opts, func(ctx context.Context, msg kafkago.Message) error {
		var c chunk.Chunk
		if err := sonic.Unmarshal(msg.Value, &c); err != nil {
			return fmt.Errorf("ingest: unmarshal chunk message: %w", err)
		}
		_, err := p.ApplyChunk(ctx, c)
		if err != nil {
			return err
		}
		if err := p.lexical.Refresh(); err != nil {
			return err
		}
		if err := p.lightVectors.Flush(ctx); err != nil {
			return err
		}
		return p.denseVectors.Flush(ctx)
	})
}
