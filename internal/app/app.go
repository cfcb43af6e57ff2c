// Package app wires every component into one fx.App, generalized from the
// teacher's internal/server/modules.go provider-per-concern layout
// (InfrastructureModule / ClientsModule / ServicesModule / HTTPServerModule)
// to this module's own component graph.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/hsn0918/rag/internal/bus"
	"github.com/hsn0918/rag/internal/cache"
	"github.com/hsn0918/rag/internal/chat"
	"github.com/hsn0918/rag/internal/chunk"
	"github.com/hsn0918/rag/internal/chunkstore"
	"github.com/hsn0918/rag/internal/clients/openai"
	rerankclient "github.com/hsn0918/rag/internal/clients/rerank"
	"github.com/hsn0918/rag/internal/config"
	"github.com/hsn0918/rag/internal/embedding"
	embeddingclient "github.com/hsn0918/rag/internal/clients/embedding"
	"github.com/hsn0918/rag/internal/generator"
	"github.com/hsn0918/rag/internal/httpserver"
	"github.com/hsn0918/rag/internal/ingest"
	"github.com/hsn0918/rag/internal/lexical"
	rlog "github.com/hsn0918/rag/internal/logger"
	"github.com/hsn0918/rag/internal/rerank"
	"github.com/hsn0918/rag/internal/retriever"
	"github.com/hsn0918/rag/internal/rewrite"
	"github.com/hsn0918/rag/internal/summarize"
	"github.com/hsn0918/rag/internal/vectorindex"
)

// lexicalSearcherAdapter adapts *lexical.Index's []lexical.Hit return type
// to retriever.LexicalSearcher's []retriever.Hit, since the two packages
// declare distinct (structurally identical) Hit types to avoid an import
// cycle between retriever and its two backend packages.
type lexicalSearcherAdapter struct{ index *lexical.Index }

func (a lexicalSearcherAdapter) Search(q string, topK int) ([]retriever.Hit, error) {
	hits, err := a.index.Search(q, topK)
	if err != nil {
		return nil, err
	}
	out := make([]retriever.Hit, len(hits))
	for i, h := range hits {
		out[i] = retriever.Hit{ChunkID: h.ChunkID, Score: h.Score}
	}
	return out, nil
}

// vectorSearcherAdapter does the same translation for
// *vectorindex.Collection's []vectorindex.Hit.
type vectorSearcherAdapter struct{ collection *vectorindex.Collection }

func (a vectorSearcherAdapter) Search(ctx context.Context, vector []float32, topK int) ([]retriever.Hit, error) {
	hits, err := a.collection.Search(ctx, vector, topK)
	if err != nil {
		return nil, err
	}
	out := make([]retriever.Hit, len(hits))
	for i, h := range hits {
		out[i] = retriever.Hit{ChunkID: h.ChunkID, Score: h.Score}
	}
	return out, nil
}

// Module is the full application graph: config, logging, the three
// backend capabilities (lexical, vector, cache), the retrieval/generation
// pipeline, and the HTTP surface. cmd/server composes this with the HTTP
// lifecycle invoke; cmd/worker composes InfrastructureModule +
// PipelineModule with the bus-consumer lifecycle invoke instead.
var Module = fx.Options(
	InfrastructureModule,
	PipelineModule,
	HTTPModule,
)

// InfrastructureModule provides config, logging, and the backend
// capability clients every other module depends on.
var InfrastructureModule = fx.Module("infrastructure",
	fx.Provide(
		NewConfig,
		NewLogger,
		NewLexicalIndex,
		NewVectorIndex,
		NewChunkStore,
		NewEmbedder,
		NewRedisClient,
		NewCache,
		NewBus,
	),
)

// PipelineModule provides the ingestion, retrieval, rewrite, generation
// and summarization components.
var PipelineModule = fx.Module("pipeline",
	fx.Provide(
		NewSplitter,
		NewIngestPipeline,
		NewOpenAIClient,
		NewRerankClient,
		NewScorer,
		NewRetriever,
		NewRewriter,
		NewGenerator,
		NewSummarizer,
		NewOrchestrator,
	),
)

// HTTPModule provides the HTTP surface and its startup/shutdown hooks.
var HTTPModule = fx.Module("http",
	fx.Provide(NewHTTPServer),
	fx.Invoke(RegisterHTTPLifecycle),
)

func NewConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("app: load config: %w", err)
	}
	return cfg, nil
}

func NewLogger(lc fx.Lifecycle) (*zap.Logger, error) {
	if err := rlog.Init(); err != nil {
		return nil, fmt.Errorf("app: build logger: %w", err)
	}
	lc.Append(fx.Hook{OnStop: func(context.Context) error { rlog.Sync(); return nil }})
	return rlog.GetLogger(), nil
}

func NewLexicalIndex() (*lexical.Index, error) {
	return lexical.New()
}

func NewVectorIndex(lc fx.Lifecycle, cfg *config.Config) (*vectorindex.Index, error) {
	idx, err := vectorindex.New(context.Background(), vectorindex.Config{
		DSN:       cfg.VectorIndex.DSN,
		LightName: cfg.VectorIndex.LightCollection,
		LightDim:  embedding.LightDim,
		DenseName: cfg.VectorIndex.DenseCollection,
		DenseDim:  embedding.DenseDim,
	})
	if err != nil {
		return nil, fmt.Errorf("app: connect vector index: %w", err)
	}
	return idx, nil
}

func NewChunkStore() *chunkstore.Store { return chunkstore.New() }

// NewEmbedder wires the HTTP-backed embedder (internal/embedding.HTTPEmbedder,
// adapted from the teacher's internal/clients/embedding.Client) when an
// embedding service endpoint is configured, falling back to the
// deterministic HashEmbedder otherwise — the same reference-vs-production
// swap embedding.HashEmbedder's doc comment describes.
func NewEmbedder(cfg *config.Config) (embedding.Embedder, error) {
	if cfg.Services.Embedding.BaseURL != "" {
		client := embeddingclient.NewClient(cfg.Services.Embedding.ServiceConfig)
		return embedding.NewHTTPEmbedder(client, cfg.Services.Embedding.Model, cfg.Services.Embedding.Model), nil
	}
	return embedding.NewHashEmbedder(4096)
}

func NewRedisClient(cfg *config.Config, lc fx.Lifecycle) (*cache.RedisClient, error) {
	client, err := cache.NewRedisClient(cache.Options{
		Host: cfg.Redis.Host, Port: cfg.Redis.Port, Password: cfg.Redis.Password, DB: cfg.Redis.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("app: connect redis: %w", err)
	}
	lc.Append(fx.Hook{OnStop: func(context.Context) error { client.Close(); return nil }})
	return client, nil
}

func NewCache(redisClient *cache.RedisClient, cfg *config.Config) *cache.Cache {
	return &cache.Cache{
		Exact:    cache.NewExactCache(redisClient, secondsToDuration(cfg.Cache.ExactTTLSeconds, cache.ExactTTL)),
		Semantic: cache.NewSemanticCache(redisClient, secondsToDuration(cfg.Cache.SemanticTTLSeconds, cache.SemanticTTL), orDefault(cfg.Cache.SemanticThreshold, cache.DefaultSemanticThreshold)),
		Sessions: cache.NewSessionHistory(redisClient, secondsToDuration(cfg.Cache.SessionTTLSeconds, cache.SessionTTL)),
		Lock:     cache.NewLock(redisClient),
	}
}

func NewBus(cfg *config.Config, logger *zap.Logger) *bus.Bus {
	return bus.New(cfg.Bus.Brokers, logger)
}

func NewSplitter() *chunk.Splitter {
	return chunk.NewSplitter(chunk.DefaultConfig())
}

func NewIngestPipeline(
	splitter *chunk.Splitter,
	embedder embedding.Embedder,
	lex *lexical.Index,
	vectors *vectorindex.Index,
	store *chunkstore.Store,
	b *bus.Bus,
	cfg *config.Config,
	logger *zap.Logger,
) *ingest.Pipeline {
	producer := b.NewProducer(cfg.Bus.IngestTopic)
	return ingest.New(splitter, embedder, lex, vectors.Light, vectors.Dense, store, producer, logger)
}

func NewOpenAIClient(cfg *config.Config) *openai.Client {
	return openai.NewClient(cfg.Services.LLM)
}

func NewRerankClient(cfg *config.Config) *rerankclient.Client {
	return rerankclient.NewClient(cfg.Services.Reranker)
}

func NewScorer(client *rerankclient.Client, cfg *config.Config) rerank.Scorer {
	if cfg.Services.Reranker.BaseURL == "" {
		return rerank.NewReferenceScorer()
	}
	return rerank.NewHTTPScorer(client, cfg.Services.Reranker.Model)
}

func NewRetriever(lex *lexical.Index, vectors *vectorindex.Index, embedder embedding.Embedder, store *chunkstore.Store, scorer rerank.Scorer, cfg *config.Config, logger *zap.Logger) *retriever.Retriever {
	rc := retriever.DefaultConfig()
	if cfg.Retrieval.L1TopK > 0 {
		rc = retriever.Config{
			L1TopK: cfg.Retrieval.L1TopK, L2TopK: cfg.Retrieval.L2TopK,
			RSFK: cfg.Retrieval.RSFK, RSFS: cfg.Retrieval.RSFS,
			DiffThreshold: cfg.Retrieval.DiffThreshold,
		}
	}
	return retriever.New(lexicalSearcherAdapter{lex}, vectorSearcherAdapter{vectors.Light}, embedder, store, scorer, rc, logger)
}

func NewRewriter(client *openai.Client, cfg *config.Config, logger *zap.Logger) *rewrite.Rewriter {
	return rewrite.New(generator.New(client, cfg.Chat.GenerationModel), cfg.Chat.GenerationModel, logger)
}

func NewGenerator(client *openai.Client, cfg *config.Config) *generator.Generator {
	return generator.New(client, cfg.Chat.GenerationModel)
}

func NewSummarizer(sessions *cache.Cache, client *openai.Client, cfg *config.Config, logger *zap.Logger) *summarize.Trigger {
	gen := generator.New(client, cfg.Summarize.Model)
	return summarize.New(sessions.Sessions, gen, cfg.Summarize.Model, cfg.Summarize.BudgetThreshold, logger)
}

func NewOrchestrator(
	rewriter *rewrite.Rewriter,
	retr *retriever.Retriever,
	embedder embedding.Embedder,
	c *cache.Cache,
	gen *generator.Generator,
	summarizer *summarize.Trigger,
	cfg *config.Config,
	logger *zap.Logger,
) *chat.Orchestrator {
	return chat.New(rewriter, retr, embedder, c, gen, summarizer, nil, chat.Config{
		TokenBudgetTotal: cfg.Chat.TokenBudgetTotal,
		GenerationModel:  cfg.Chat.GenerationModel,
		SystemPrompt:     cfg.Chat.SystemPrompt,
	}, logger)
}

func NewHTTPServer(orchestrator *chat.Orchestrator, pipeline *ingest.Pipeline, store *chunkstore.Store, cfg *config.Config, logger *zap.Logger) *http.Server {
	srv := httpserver.New(orchestrator, pipeline, store, logger)
	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	return &http.Server{Addr: addr, Handler: srv.Mux()}
}

// RegisterHTTPLifecycle starts httpServer.ListenAndServe in the
// background on OnStart and shuts it down gracefully on OnStop, mirroring
// the teacher's StartHTTPServer hook (internal/server/modules.go).
func RegisterHTTPLifecycle(lc fx.Lifecycle, httpServer *http.Server, shutdowner fx.Shutdowner, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			logger.Info("app: starting http server", zap.String("addr", httpServer.Addr))
			go func() {
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("app: http server failed", zap.Error(err))
					if serr := shutdowner.Shutdown(); serr != nil {
						logger.Error("app: shutdown failed", zap.Error(serr))
					}
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("app: stopping http server")
			return httpServer.Shutdown(ctx)
		},
	})
}

func secondsToDuration(seconds int, fallback time.Duration) time.Duration {
	if seconds <= 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}

func orDefault(v, fallback float64) float64 {
	if v <= 0 {
		return fallback
	}
	return v
}
