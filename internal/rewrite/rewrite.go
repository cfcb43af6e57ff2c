// Package rewrite implements the query rewriter: reference resolution,
// abbreviation expansion and paraphrase, with an optional model-backed
// strategy in front of the rule-based fallback.
package rewrite

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/hsn0918/rag/internal/convo"
)

// maxHistoryTurns bounds how much history is sent to the model-backed
// strategy's prompt.
const maxHistoryTurns = 4

// maxRewrites is the cap on the number of queries returned, original query
// included.
const maxRewrites = 3

var systemPrompt = strings.TrimSpace(`
You are a query-rewriting assistant for a wireless-communications RAG
retrieval system. Your job:
1. Reference resolution: replace pronouns in multi-turn conversation
   (it, this, that, the technology) with the concrete concept they refer to.
2. Query expansion: expand the user's question into 1-3 semantically
   equivalent or related retrieval queries to improve recall.

Respond as JSON: {"resolved_query": "...", "expanded_queries": ["...", "..."]}
`)

// pronouns is the fixed set of referring expressions reference resolution
// looks for, in the original's own order.
var pronouns = []string{"它", "这个", "那个", "该技术", "该方案", "这种", "那种", "上述"}

// topicBoundary extracts the topic a pronoun should resolve to: everything
// before the first of these question particles.
var topicBoundary = regexp.MustCompile(`(.+?)(?:是什么|有什么|怎么|如何)`)

// abbreviations is the acronym -> full-form expansion table.
var abbreviations = map[string]string{
	"CA":    "载波聚合",
	"MIMO":  "多输入多输出",
	"PRACH": "物理随机接入信道",
	"HARQ":  "混合自动重传请求",
	"RRC":   "无线资源控制",
	"NR":    "New Radio",
	"gNB":   "gNodeB 基站",
	"SSB":   "同步信号块",
	"BWP":   "带宽部分",
	"UE":    "用户设备",
	"DCI":   "下行控制信息",
	"RAR":   "随机接入响应",
	"RACH":  "随机接入信道",
	"PDCCH": "物理下行控制信道",
	"PDSCH": "物理下行共享信道",
}

// paraphrases is the fixed substring-swap table for synonym rewriting,
// tried in order and applied at most once.
var paraphrases = [][2]string{
	{"是什么", "的定义和概念"},
	{"怎么工作", "的工作原理"},
	{"有什么优势", "的优点和好处"},
	{"有什么区别", "之间的差异对比"},
	{"如何配置", "的配置方法和步骤"},
}

// ModelClient is the capability interface a production LLM-backed rewrite
// strategy is adapted from (the teacher's openai.ChatCompleter, narrowed to
// the single call this package needs).
type ModelClient interface {
	CreateChatCompletionWithDefaults(model string, messages []convo.Message) (string, error)
}

// modelResponse is the JSON shape the system prompt asks the model for.
type modelResponse struct {
	ResolvedQuery   string   `json:"resolved_query"`
	ExpandedQueries []string `json:"expanded_queries"`
}

// Rewriter turns one query (plus optional history) into an ordered list of
// 1-3 queries, original always first.
type Rewriter struct {
	model  string
	client ModelClient
	logger *zap.Logger
}

// New builds a Rewriter. client may be nil, in which case only the
// rule-based fallback runs.
func New(client ModelClient, model string, logger *zap.Logger) *Rewriter {
	return &Rewriter{client: client, model: model, logger: logger}
}

// Rewrite returns the ordered, deduplicated, length-capped query list.
func (r *Rewriter) Rewrite(ctx context.Context, query string, history []convo.Message) []string {
	if r.client != nil {
		if queries, ok := r.rewriteWithModel(ctx, query, history); ok {
			return queries
		}
	}
	return r.rewriteWithRules(query, history)
}

func (r *Rewriter) rewriteWithModel(ctx context.Context, query string, history []convo.Message) ([]string, bool) {
	messages := []convo.Message{{Role: convo.RoleSystem, Content: systemPrompt}}
	start := 0
	if len(history) > maxHistoryTurns {
		start = len(history) - maxHistoryTurns
	}
	messages = append(messages, history[start:]...)
	messages = append(messages, convo.Message{Role: convo.RoleUser, Content: query})

	raw, err := r.client.CreateChatCompletionWithDefaults(r.model, messages)
	if err != nil {
		if r.logger != nil {
			r.logger.Warn("rewrite: model call failed, falling back to rules", zap.Error(err))
		}
		return nil, false
	}

	var parsed modelResponse
	if err := json.Unmarshal([]byte(extractJSON(raw)), &parsed); err != nil {
		if r.logger != nil {
			r.logger.Warn("rewrite: model response not parseable, falling back to rules", zap.Error(err))
		}
		return nil, false
	}

	queries := []string{query}
	if parsed.ResolvedQuery != "" {
		queries = appendUnique(queries, parsed.ResolvedQuery)
	}
	for _, q := range parsed.ExpandedQueries {
		queries = appendUnique(queries, q)
	}
	if len(queries) == 0 {
		return nil, false
	}
	return cap3(queries), true
}

// extractJSON trims any leading/trailing prose a model might wrap its JSON
// in, taking the outermost {...} span.
func extractJSON(raw string) string {
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start < 0 || end < start {
		return raw
	}
	return raw[start : end+1]
}

func (r *Rewriter) rewriteWithRules(query string, history []convo.Message) []string {
	queries := []string{query}

	if resolved := resolveReferences(query, history); resolved != "" && resolved != query {
		queries = appendUnique(queries, resolved)
	}
	if expanded := expandAbbreviations(query); expanded != "" && expanded != query {
		queries = appendUnique(queries, expanded)
	}
	if paraphrased := paraphrase(query); paraphrased != "" {
		queries = appendUnique(queries, paraphrased)
	}

	return cap3(queries)
}

// resolveReferences replaces every pronoun occurrence in query with the
// topic extracted from the most recent user turn in history. Returns "" if
// the query has no pronoun, or history has no user turn to draw a topic
// from.
func resolveReferences(query string, history []convo.Message) string {
	if !containsAny(query, pronouns) {
		return ""
	}

	var topic string
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role != convo.RoleUser {
			continue
		}
		content := history[i].Content
		if m := topicBoundary.FindStringSubmatch(content); m != nil {
			topic = strings.TrimSpace(m[1])
		} else {
			topic = firstNRunes(strings.TrimSpace(content), 20)
		}
		break
	}
	if topic == "" {
		return ""
	}

	resolved := query
	for _, p := range pronouns {
		resolved = strings.ReplaceAll(resolved, p, topic)
	}
	return resolved
}

// expandAbbreviations rewrites every occurrence of a known acronym A to
// "A(E)" where E is its expansion. Returns "" if no acronym appears.
func expandAbbreviations(query string) string {
	expanded := query
	for abbr, full := range abbreviations {
		if strings.Contains(expanded, abbr) {
			expanded = strings.ReplaceAll(expanded, abbr, fmt.Sprintf("%s(%s)", abbr, full))
		}
	}
	if expanded == query {
		return ""
	}
	return expanded
}

// paraphrase applies the first matching fixed substring swap. Returns "" if
// none match.
func paraphrase(query string) string {
	for _, pair := range paraphrases {
		if strings.Contains(query, pair[0]) {
			return strings.Replace(query, pair[0], pair[1], 1)
		}
	}
	return ""
}

func containsAny(s string, substrs []string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func firstNRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n])
}

func appendUnique(queries []string, candidate string) []string {
	for _, q := range queries {
		if q == candidate {
			return queries
		}
	}
	return append(queries, candidate)
}

func cap3(queries []string) []string {
	if len(queries) > maxRewrites {
		return queries[:maxRewrites]
	}
	return queries
}
