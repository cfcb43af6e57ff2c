// Package summarize implements the conversation-history summarization
// trigger (spec.md 4.M): when a session's history exceeds a token
// threshold, compress it to a system-message summary plus the most recent
// turns, mirroring the original's Celery task tasks.summarize_history.
package summarize

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hsn0918/rag/internal/cache"
	"github.com/hsn0918/rag/internal/convo"
	"github.com/hsn0918/rag/internal/textutil"
)

// DefaultBudgetThreshold is the token count above which a session's
// history is summarized, matching the original's budget_threshold default.
const DefaultBudgetThreshold = 4000

// keepRecent is how many trailing messages survive a summarization pass
// untouched, matching the original's messages[-4:].
const keepRecent = 4

// maxTopics bounds how many user turns the rule-based fallback folds into
// its summary line.
const maxTopics = 8

// topicChars is how much of each user turn the rule-based fallback keeps,
// matching the original's content[:50].
const topicChars = 50

// ModelClient is the capability interface a production LLM-backed
// summarizer is adapted from, narrowed to the single call this package
// needs (same shape as rewrite.ModelClient).
type ModelClient interface {
	CreateChatCompletionWithDefaults(model string, messages []convo.Message) (string, error)
}

// Task is the bus payload internal/chat.Orchestrator.enqueueSummarization
// publishes and cmd/worker's summarize consumer decodes, carrying both
// halves of the (user_id, session_id) pair a session history is keyed by.
type Task struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
}

// Result reports what a Check call did.
type Result struct {
	Summarized  bool
	TokenBefore int
	TokenAfter  int
}

// Trigger checks a session's history against a token budget and, when it's
// exceeded, compresses it (model summary, or the rule-based fallback) and
// writes the compressed history
// back to the session cache.
type Trigger struct {
	sessions  *cache.SessionHistory
	model     ModelClient
	modelName string
	threshold int
	logger    *zap.Logger
}

// New builds a Trigger. model may be nil, in which case Check always uses
// the rule-based fallback summary.
func New(sessions *cache.SessionHistory, model ModelClient, modelName string, threshold int, logger *zap.Logger) *Trigger {
	if threshold <= 0 {
		threshold = DefaultBudgetThreshold
	}
	return &Trigger{sessions: sessions, model: model, modelName: modelName, threshold: threshold, logger: logger}
}

// Check loads (userID, sessionID)'s history, and if its estimated token
// count exceeds the threshold, replaces it with a summary message followed
// by the most recent keepRecent messages.
func (t *Trigger) Check(ctx context.Context, userID, sessionID string) (Result, error) {
	messages, err := t.sessions.History(ctx, userID, sessionID)
	if err != nil {
		return Result{}, fmt.Errorf("summarize: load history: %w", err)
	}

	before := sumTokens(messages)
	if before <= t.threshold {
		return Result{Summarized: false, TokenBefore: before, TokenAfter: before}, nil
	}

	summary, err := t.summarize(ctx, messages)
	if err != nil {
		if t.logger != nil {
			t.logger.Warn("summarize: model summary failed, using rule-based fallback",
				zap.String("session_id", sessionID), zap.Error(err))
		}
		summary = ruleBasedSummary(messages)
	}

	recent := messages
	if len(messages) > keepRecent {
		recent = messages[len(messages)-keepRecent:]
	}
	compressed := append([]convo.Message{{
		Role:    convo.RoleSystem,
		Content: "前情提要: " + summary,
	}}, recent...)

	if err := t.sessions.Replace(ctx, userID, sessionID, compressed); err != nil {
		return Result{}, fmt.Errorf("summarize: replace history: %w", err)
	}

	after := sumTokens(compressed)
	if t.logger != nil {
		t.logger.Info("summarize: compressed session history",
			zap.String("session_id", sessionID), zap.Int("token_before", before), zap.Int("token_after", after))
	}
	return Result{Summarized: true, TokenBefore: before, TokenAfter: after}, nil
}

func (t *Trigger) summarize(ctx context.Context, messages []convo.Message) (string, error) {
	if t.model == nil {
		return "", fmt.Errorf("summarize: no model client configured")
	}
	prompt := []convo.Message{
		{Role: convo.RoleSystem, Content: "请总结上述用户与 AI 的交互核心技术点与已确认的客观事实，需以精简的要点呈现。"},
	}
	prompt = append(prompt, messages...)
	return t.model.CreateChatCompletionWithDefaults(t.modelName, prompt)
}

// ruleBasedSummary is the deterministic fallback: join the first
// topicChars runes of up to maxTopics user turns, matching the original's
// _mock_summarize.
func ruleBasedSummary(messages []convo.Message) string {
	var topics []string
	for _, m := range messages {
		if m.Role != convo.RoleUser {
			continue
		}
		topics = append(topics, firstNRunes(m.Content, topicChars))
	}

	capped := topics
	if len(capped) > maxTopics {
		capped = capped[:maxTopics]
	}
	summary := "用户先后探讨了以下技术主题：" + strings.Join(capped, "；")
	if len(topics) > maxTopics {
		summary += fmt.Sprintf("等共 %d 个问题", len(topics))
	}
	return summary
}

func firstNRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func sumTokens(messages []convo.Message) int {
	total := 0
	for _, m := range messages {
		total += textutil.EstimateTokens(m.Content)
	}
	return total
}
