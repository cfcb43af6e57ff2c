// Package budget implements the token-budget trimmer (spec.md 4.I): shrink
// a history list to fit a fixed token budget without ever dropping the
// most recent turn.
package budget

import (
	"github.com/hsn0918/rag/internal/convo"
	"github.com/hsn0918/rag/internal/textutil"
)

// lastTurnSize is how many trailing messages ("the most recent turn") are
// always kept together, unless keeping them alone would already overflow.
const lastTurnSize = 2

// Trim returns the subset of history that, together with systemPrompt and
// currentQuery, fits within totalBudget estimated tokens. It guarantees:
//  1. total estimated tokens of (system + kept + query) <= totalBudget,
//  2. the last <= 2 messages are always kept unless that alone overflows,
//     in which case an empty list is returned,
//  3. older turns are kept newest-to-oldest, greedily,
//  4. relative order of kept messages is preserved.
func Trim(systemPrompt string, history []convo.Message, currentQuery string, totalBudget int) []convo.Message {
	fixed := textutil.EstimateTokens(systemPrompt) + textutil.EstimateTokens(currentQuery)

	splitAt := len(history) - lastTurnSize
	if splitAt < 0 {
		splitAt = 0
	}
	older := history[:splitAt]
	lastTurn := history[splitAt:]

	lastTurnTokens := sumTokens(lastTurn)
	if fixed+lastTurnTokens > totalBudget {
		return nil
	}

	remaining := totalBudget - fixed - lastTurnTokens

	keptOlder := make([]convo.Message, 0, len(older))
	for i := len(older) - 1; i >= 0; i-- {
		t := textutil.EstimateTokens(older[i].Content)
		if t > remaining {
			break
		}
		remaining -= t
		keptOlder = append([]convo.Message{older[i]}, keptOlder...)
	}

	return append(keptOlder, lastTurn...)
}

func sumTokens(messages []convo.Message) int {
	total := 0
	for _, m := range messages {
		total += textutil.EstimateTokens(m.Content)
	}
	return total
}
