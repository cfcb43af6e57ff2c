// Package generator adapts the teacher's OpenAI-compatible chat-completion
// client to the final-answer generation capability spec.md §6 names, and
// to the narrow ModelClient shape internal/rewrite and internal/summarize
// each declare on their own side.
package generator

import (
	"fmt"

	"github.com/hsn0918/rag/internal/clients/openai"
	"github.com/hsn0918/rag/internal/convo"
)

// ChatCompleter is the subset of openai.ChatCompleter this package adapts;
// declared locally so tests substitute a fake instead of a live HTTP client.
type ChatCompleter interface {
	CreateChatCompletionWithDefaults(model string, messages []openai.Message) (*openai.ChatResponse, error)
}

// Generator wraps a ChatCompleter behind the single call every caller in
// this module needs: a model name and a role-tagged message list in,
// the assistant's text out. Implements both internal/rewrite.ModelClient
// and internal/summarize.ModelClient, since all three are "send a prompt,
// get text back" calls against the same backend.
type Generator struct {
	client ChatCompleter
	model  string
}

// New builds a Generator bound to the given model.
func New(client ChatCompleter, model string) *Generator {
	return &Generator{client: client, model: model}
}

// Model returns the model name this Generator defaults to.
func (g *Generator) Model() string { return g.model }

// Generate sends messages to the model and returns the first choice's
// text, using model if non-empty or the Generator's default otherwise.
func (g *Generator) Generate(model string, messages []convo.Message) (string, error) {
	if model == "" {
		model = g.model
	}
	resp, err := g.client.CreateChatCompletionWithDefaults(model, toOpenAI(messages))
	if err != nil {
		return "", fmt.Errorf("generator: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("generator: empty response from model %s", model)
	}
	return resp.Choices[0].Message.Content, nil
}

// CreateChatCompletionWithDefaults implements the ModelClient interface
// internal/rewrite and internal/summarize each declare, so a *Generator
// can be passed directly as either package's model-backed strategy.
func (g *Generator) CreateChatCompletionWithDefaults(model string, messages []convo.Message) (string, error) {
	return g.Generate(model, messages)
}

func toOpenAI(messages []convo.Message) []openai.Message {
	out := make([]openai.Message, len(messages))
	for i, m := range messages {
		out[i] = openai.Message{Role: m.Role, Content: m.Content}
	}
	return out
}
