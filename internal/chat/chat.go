// Package chat orchestrates one /chat turn (spec.md §6-7): cache lookups,
// query rewriting, three-level retrieval, generation, and the
// write-behind cache/session/summarization steps, under the propagation
// policy of catching and logging around every optional step.
package chat

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/hsn0918/rag/internal/budget"
	"github.com/hsn0918/rag/internal/cache"
	"github.com/hsn0918/rag/internal/convo"
	"github.com/hsn0918/rag/internal/embedding"
	"github.com/hsn0918/rag/internal/ragerr"
	"github.com/hsn0918/rag/internal/retriever"
	"github.com/hsn0918/rag/internal/rewrite"
	"github.com/hsn0918/rag/internal/summarize"
)

// Source tags returned to callers, naming which path produced the answer.
const (
	SourceExactCache    = "exact_cache"
	SourceSemanticCache = "semantic_cache"
	SourceRAG           = "rag"
)

// NoAnswerSentence is returned verbatim when no chunks survive retrieval,
// per spec.md §7: "the generator produces the canonical 'no answer
// available' sentence rather than fabricating."
const NoAnswerSentence = "抱歉，当前知识库中没有找到与该问题相关的内容，无法回答。"

const defaultSystemPrompt = "你是一个无线通信领域的问答助手，只根据提供的参考资料回答问题，不要编造。"

// Request is one /chat call's validated input.
type Request struct {
	UserID    string
	SessionID string
	Query     string
	TopK      int
}

// Citation is one retrieved chunk surfaced to the caller.
type Citation struct {
	DocID       string  `json:"doc_id"`
	DocName     string  `json:"doc_name"`
	HeadingPath string  `json:"heading_path"`
	ChunkID     string  `json:"chunk_id"`
	Score       float64 `json:"score"`
}

// Response is the full shape spec.md 6's POST /chat returns.
type Response struct {
	Answer           string     `json:"answer"`
	Citations        []Citation `json:"citations"`
	RewrittenQueries []string   `json:"rewritten_queries"`
	Source           string     `json:"source"`
}

// Generator is the capability interface this package needs from
// internal/generator.Generator.
type Generator interface {
	Generate(model string, messages []convo.Message) (string, error)
}

// Bus is the capability interface this package needs to enqueue
// background summarization, narrowed from internal/bus.Producer.
type Bus interface {
	Publish(ctx context.Context, key, value []byte) error
}

// Config holds the tunables spec.md's Configuration section names for
// this orchestrator.
type Config struct {
	TokenBudgetTotal int
	GenerationModel  string
	SystemPrompt     string
}

// DefaultConfig returns spec.md's named defaults.
func DefaultConfig() Config {
	return Config{TokenBudgetTotal: 8000, SystemPrompt: defaultSystemPrompt}
}

// Orchestrator ties every component into the single Chat call.
type Orchestrator struct {
	rewriter   *rewrite.Rewriter
	retriever  *retriever.Retriever
	embedder   embedding.Embedder
	cache      *cache.Cache
	generator  Generator
	summarizer *summarize.Trigger
	bus        Bus
	cfg        Config
	logger     *zap.Logger
}

// New builds an Orchestrator. bus may be nil, in which case summarization
// is checked inline instead of enqueued.
func New(
	rewriter *rewrite.Rewriter,
	retr *retriever.Retriever,
	embedder embedding.Embedder,
	c *cache.Cache,
	gen Generator,
	summarizer *summarize.Trigger,
	bus Bus,
	cfg Config,
	logger *zap.Logger,
) *Orchestrator {
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = defaultSystemPrompt
	}
	return &Orchestrator{
		rewriter: rewriter, retriever: retr, embedder: embedder,
		cache: c, generator: gen, summarizer: summarizer, bus: bus,
		cfg: cfg, logger: logger,
	}
}

// Validate checks req against spec.md 6's POST /chat schema, returning an
// ragerr.InputInvalid error describing the first violation found.
func Validate(req Request) error {
	switch {
	case req.UserID == "" || utf8.RuneCountInString(req.UserID) > 64:
		return ragerr.New(ragerr.InputInvalid, fmt.Errorf("user_id must be 1..64 characters"))
	case req.SessionID == "" || utf8.RuneCountInString(req.SessionID) > 64:
		return ragerr.New(ragerr.InputInvalid, fmt.Errorf("session_id must be 1..64 characters"))
	case req.Query == "" || utf8.RuneCountInString(req.Query) > 2000:
		return ragerr.New(ragerr.InputInvalid, fmt.Errorf("query must be 1..2000 characters"))
	case req.TopK < 1 || req.TopK > 50:
		return ragerr.New(ragerr.InputInvalid, fmt.Errorf("top_k must be 1..50"))
	}
	return nil
}

// Chat runs one full turn. A request that fails Validate is returned as a
// ragerr.InputInvalid error, and a total retrieval failure as a
// ragerr.Catastrophic error (surfaced by the caller as 500); every other
// optional step is caught, logged, and skipped.
func (o *Orchestrator) Chat(ctx context.Context, req Request) (Response, error) {
	if err := Validate(req); err != nil {
		return Response{}, err
	}

	if answer, ok := o.lookupExactCache(ctx, req.Query); ok {
		return Response{Answer: answer, RewrittenQueries: []string{req.Query}, Source: SourceExactCache}, nil
	}

	queryVector, vecErr := o.embedder.EmbedLight(ctx, req.Query)
	if vecErr == nil {
		if answer, ok := o.lookupSemanticCache(ctx, queryVector); ok {
			return Response{Answer: answer, RewrittenQueries: []string{req.Query}, Source: SourceSemanticCache}, nil
		}
	}

	history := o.loadHistory(ctx, req.UserID, req.SessionID)
	rewrites := o.rewriteQuery(ctx, req.Query, history)

	chunks, err := o.retriever.Retrieve(ctx, req.Query, rewrites, req.TopK)
	if err != nil {
		return Response{}, ragerr.New(ragerr.Catastrophic, fmt.Errorf("retrieval failed: %w", err))
	}

	answer := o.generate(req, rewrites, history, chunks)

	o.writeBack(ctx, req, answer, queryVector, vecErr == nil)

	return Response{
		Answer:           answer,
		Citations:        toCitations(chunks),
		RewrittenQueries: rewrites,
		Source:           SourceRAG,
	}, nil
}

func (o *Orchestrator) lookupExactCache(ctx context.Context, query string) (string, bool) {
	answer, ok, err := o.cache.Exact.Get(ctx, query)
	if err != nil {
		o.warn("exact cache read", err)
		return "", false
	}
	return answer, ok
}

func (o *Orchestrator) lookupSemanticCache(ctx context.Context, vector []float32) (string, bool) {
	answer, ok, err := o.cache.Semantic.Lookup(ctx, vector)
	if err != nil {
		o.warn("semantic cache read", err)
		return "", false
	}
	return answer, ok
}

func (o *Orchestrator) loadHistory(ctx context.Context, userID, sessionID string) []convo.Message {
	history, err := o.cache.Sessions.History(ctx, userID, sessionID)
	if err != nil {
		o.warn("session history read", err)
		return nil
	}
	return history
}

func (o *Orchestrator) rewriteQuery(ctx context.Context, query string, history []convo.Message) []string {
	if o.rewriter == nil {
		return []string{query}
	}
	return o.rewriter.Rewrite(ctx, query, history)
}

func (o *Orchestrator) generate(req Request, rewrites []string, history []convo.Message, chunks []retriever.RetrievedChunk) string {
	if len(chunks) == 0 {
		return NoAnswerSentence
	}
	if o.generator == nil {
		return NoAnswerSentence
	}

	messages := make([]convo.Message, 0, len(history)+2)
	messages = append(messages, convo.Message{Role: convo.RoleSystem, Content: o.cfg.SystemPrompt})
	messages = append(messages, budget.Trim(o.cfg.SystemPrompt, history, req.Query, o.cfg.TokenBudgetTotal)...)
	messages = append(messages, convo.Message{Role: convo.RoleUser, Content: buildPrompt(req.Query, chunks)})

	answer, err := o.generator.Generate(o.cfg.GenerationModel, messages)
	if err != nil {
		o.warn("generation", err)
		return NoAnswerSentence
	}
	return answer
}

func buildPrompt(query string, chunks []retriever.RetrievedChunk) string {
	var b strings.Builder
	b.WriteString("参考资料:\n")
	for i, c := range chunks {
		fmt.Fprintf(&b, "[%d] (%s) %s\n", i+1, c.Chunk.HeadingPath, c.Chunk.Text)
	}
	b.WriteString("\n问题: ")
	b.WriteString(query)
	return b.String()
}

func (o *Orchestrator) writeBack(ctx context.Context, req Request, answer string, queryVector []float32, haveVector bool) {
	if err := o.cache.Exact.Set(ctx, req.Query, answer); err != nil {
		o.warn("exact cache write", err)
	}
	if haveVector {
		if err := o.cache.Semantic.Set(ctx, req.Query, queryVector, answer); err != nil {
			o.warn("semantic cache write", err)
		}
	}

	if err := o.cache.Sessions.Append(ctx, req.UserID, req.SessionID, convo.Message{Role: convo.RoleUser, Content: req.Query}); err != nil {
		o.warn("session append (user)", err)
	}
	if err := o.cache.Sessions.Append(ctx, req.UserID, req.SessionID, convo.Message{Role: convo.RoleAssistant, Content: answer}); err != nil {
		o.warn("session append (assistant)", err)
	}

	o.enqueueSummarization(ctx, req.UserID, req.SessionID)
}

// enqueueSummarization publishes a summarize.Task, JSON-encoded per
// spec.md 4.G's bus contract, so the worker-side consumer can recover
// both halves of the (userID, sessionID) pair this request just wrote
// back to session history.
func (o *Orchestrator) enqueueSummarization(ctx context.Context, userID, sessionID string) {
	if o.summarizer == nil {
		return
	}
	if o.bus != nil {
		payload, err := sonic.Marshal(summarize.Task{UserID: userID, SessionID: sessionID})
		if err != nil {
			o.warn("summarization enqueue", err)
			return
		}
		if err := o.bus.Publish(ctx, []byte(sessionID), payload); err != nil {
			o.warn("summarization enqueue", err)
		}
		return
	}
	if _, err := o.summarizer.Check(ctx, userID, sessionID); err != nil {
		o.warn("summarization check", err)
	}
}

func toCitations(chunks []retriever.RetrievedChunk) []Citation {
	out := make([]Citation, len(chunks))
	for i, c := range chunks {
		out[i] = Citation{
			DocID:       c.Chunk.DocID,
			DocName:     c.Chunk.DocName,
			HeadingPath: c.Chunk.HeadingPath,
			ChunkID:     c.Chunk.ChunkID,
			Score:       c.Score,
		}
	}
	return out
}

func (o *Orchestrator) warn(step string, err error) {
	if o.logger == nil {
		return
	}
	o.logger.Warn("chat: "+step+" failed, proceeding without it", zap.Error(err))
}
