// Package rerank implements the L3 cross-encoder scoring capability
// (spec.md 4.K): a reference lexical-overlap scorer for the Demo path, and
// an adapter over a production reranking HTTP service.
package rerank

import (
	"context"
	"math"

	"github.com/hsn0918/rag/internal/clients/rerank"
	"github.com/hsn0918/rag/internal/textutil"
)

// Scorer scores how relevant a chunk's text is to a query, in [0, 1]. One
// call covers one (query, text) pair; callers score a whole candidate list
// by calling it per chunk.
type Scorer interface {
	Score(ctx context.Context, query, text string) (float64, error)
}

// ReferenceScorer reproduces the Demo-path cross-encoder simulation:
// 0.40*jaccard + 0.35*coverage + 0.25*position, where position rewards
// matches that occur earlier in the text.
type ReferenceScorer struct{}

// NewReferenceScorer builds the lexical-overlap reference scorer.
func NewReferenceScorer() ReferenceScorer { return ReferenceScorer{} }

// Score implements Scorer.
func (ReferenceScorer) Score(_ context.Context, query, text string) (float64, error) {
	qTokens := toSet(textutil.Tokenize(query))
	tTokens := toSet(textutil.Tokenize(text))
	if len(qTokens) == 0 || len(tTokens) == 0 {
		return 0, nil
	}

	intersection := intersect(qTokens, tTokens)
	union := len(qTokens) + len(tTokens) - len(intersection)

	jaccard := float64(len(intersection)) / float64(union)
	coverage := float64(len(intersection)) / float64(len(qTokens))
	position := positionScore(intersection, text)

	score := 0.4*jaccard + 0.35*coverage + 0.25*position
	if score > 1.0 {
		score = 1.0
	}
	return score, nil
}

func toSet(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

func intersect(a, b map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{})
	for t := range a {
		if _, ok := b[t]; ok {
			out[t] = struct{}{}
		}
	}
	return out
}

// positionScore rewards matching tokens that occur earlier in text: each
// match contributes exp(-3*pos/len(text)), averaged over matches.
func positionScore(matches map[string]struct{}, text string) float64 {
	if len(matches) == 0 {
		return 0
	}
	textLen := len(text)
	if textLen == 0 {
		textLen = 1
	}
	runes := []rune(text)

	total := 0.0
	for token := range matches {
		pos := runeIndex(runes, token)
		if pos < 0 {
			continue
		}
		total += math.Exp(-3 * float64(pos) / float64(textLen))
	}
	return total / float64(len(matches))
}

func runeIndex(haystack []rune, needle string) int {
	needleRunes := []rune(needle)
	if len(needleRunes) == 0 || len(needleRunes) > len(haystack) {
		return -1
	}
	for i := 0; i <= len(haystack)-len(needleRunes); i++ {
		match := true
		for j, r := range needleRunes {
			if haystack[i+j] != r {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

// RerankerClient is the subset of the teacher's rerank.Reranker this
// adapter needs.
type RerankerClient interface {
	CreateRerankWithDefaults(model, query string, documents []string, topN int) (*rerank.Response, error)
}

// HTTPScorer adapts a production reranking HTTP service (e.g.
// gte-multilingual-reranker) to Scorer. Because the remote API scores a
// whole document list per call rather than one pair, Score issues a
// single-document request; batched callers should prefer BatchScore.
type HTTPScorer struct {
	client RerankerClient
	model  string
}

// NewHTTPScorer builds an HTTPScorer over a production reranking client.
func NewHTTPScorer(client RerankerClient, model string) *HTTPScorer {
	return &HTTPScorer{client: client, model: model}
}

// Score implements Scorer.
func (h *HTTPScorer) Score(_ context.Context, query, text string) (float64, error) {
	scores, err := h.BatchScore(query, []string{text})
	if err != nil {
		return 0, err
	}
	return scores[0], nil
}

// BatchScore scores every document against query in one round trip,
// returning scores in the same order as documents.
func (h *HTTPScorer) BatchScore(query string, documents []string) ([]float64, error) {
	resp, err := h.client.CreateRerankWithDefaults(h.model, query, documents, len(documents))
	if err != nil {
		return nil, err
	}
	scores := make([]float64, len(documents))
	for _, r := range resp.Results {
		if r.Index >= 0 && r.Index < len(scores) {
			scores[r.Index] = r.RelevanceScore
		}
	}
	return scores, nil
}
