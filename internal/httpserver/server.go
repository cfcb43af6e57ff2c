// Package httpserver exposes the JSON/SSE HTTP surface spec.md §6 names:
// GET /health, POST /chat, POST /chat/stream, POST /ingest. Generalized
// from the teacher's Connect-RPC internal/server handlers to a plain
// net/http + sonic JSON mux, since this module's surface is a handful of
// JSON/SSE endpoints rather than a generated RPC service.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/hsn0918/rag/internal/chat"
	"github.com/hsn0918/rag/internal/chunkstore"
	"github.com/hsn0918/rag/internal/ingest"
	"github.com/hsn0918/rag/internal/ragerr"
)

// Server holds everything the HTTP handlers need.
type Server struct {
	orchestrator *chat.Orchestrator
	ingest       *ingest.Pipeline
	store        *chunkstore.Store
	logger       *zap.Logger
}

// New builds a Server.
func New(orchestrator *chat.Orchestrator, ingestPipeline *ingest.Pipeline, store *chunkstore.Store, logger *zap.Logger) *Server {
	return &Server{orchestrator: orchestrator, ingest: ingestPipeline, store: store, logger: logger}
}

// Mux builds the HTTP handler spec.md 6's surface describes.
func (s *Server) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /chat", s.handleChat)
	mux.HandleFunc("POST /chat/stream", s.handleChatStream)
	mux.HandleFunc("POST /ingest", s.handleIngest)
	return mux
}

type healthResponse struct {
	Status        string `json:"status"`
	ChunksIndexed int    `json:"chunks_indexed"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", ChunksIndexed: s.store.Len()})
}

type chatRequestBody struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	Query     string `json:"query"`
	TopK      int    `json:"top_k"`
}

func (s *Server) decodeChatRequest(w http.ResponseWriter, r *http.Request) (chat.Request, bool) {
	var body chatRequestBody
	dec := sonic.ConfigDefault.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return chat.Request{}, false
	}
	topK := body.TopK
	if topK == 0 {
		topK = 5
	}
	return chat.Request{UserID: body.UserID, SessionID: body.SessionID, Query: body.Query, TopK: topK}, true
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeChatRequest(w, r)
	if !ok {
		return
	}

	resp, err := s.orchestrator.Chat(r.Context(), req)
	if err != nil {
		s.writeChatError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleChatStream runs the same orchestration as handleChat and frames
// the answer as SSE token chunks. The retrieved stack's LLM client
// (internal/clients/openai.Client) only exposes a non-streaming chat
// completion call, so this re-chunks the finished answer into
// whitespace-delimited frames rather than relaying a live token stream
// from the provider — a deliberate simplification, not a difference in
// the wire contract spec.md 6 describes (data: <token>\n\n frames,
// final data: [DONE]\n\n, headers that disable intermediary buffering).
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeChatRequest(w, r)
	if !ok {
		return
	}

	resp, err := s.orchestrator.Chat(r.Context(), req)
	if err != nil {
		s.writeChatError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	flusher, canFlush := w.(http.Flusher)
	for _, token := range strings.Fields(resp.Answer) {
		fmt.Fprintf(w, "data: %s\n\n", token)
		if canFlush {
			flusher.Flush()
		}
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
	if canFlush {
		flusher.Flush()
	}
}

type ingestRequestBody struct {
	DocID      string `json:"doc_id"`
	DocName    string `json:"doc_name"`
	Content    string `json:"content"`
	SourceType string `json:"source_type"`
}

type ingestResponse struct {
	Status        string `json:"status"`
	ChunksCreated int    `json:"chunks_created"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var body ingestRequestBody
	dec := sonic.ConfigDefault.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	if body.DocID == "" || body.Content == "" {
		writeError(w, http.StatusUnprocessableEntity, fmt.Errorf("doc_id and content are required"))
		return
	}

	chunks, err := s.ingest.Ingest(r.Context(), body.DocID, body.DocName, body.Content, body.SourceType)
	if err != nil {
		s.logger.Error("httpserver: ingest failed", zap.String("doc_id", body.DocID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, ingestResponse{Status: "ok", ChunksCreated: len(chunks)})
}

func (s *Server) writeChatError(w http.ResponseWriter, err error) {
	var status int
	switch ragerr.KindOf(err) {
	case ragerr.InputInvalid:
		status = http.StatusUnprocessableEntity
	default:
		status = http.StatusInternalServerError
	}
	if s.logger != nil && status == http.StatusInternalServerError {
		s.logger.Error("httpserver: chat failed", zap.Error(err))
	}
	writeError(w, status, err)
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = sonic.ConfigDefault.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	var cause error = err
	var re *ragerr.Error
	if errors.As(err, &re) {
		cause = errors.Unwrap(re)
	}
	writeJSON(w, status, errorBody{Error: cause.Error()})
}
