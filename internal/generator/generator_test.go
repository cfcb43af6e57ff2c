package generator_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hsn0918/rag/internal/clients/openai"
	"github.com/hsn0918/rag/internal/convo"
	"github.com/hsn0918/rag/internal/generator"
)

type fakeChatCompleter struct {
	lastModel    string
	lastMessages []openai.Message
	resp         *openai.ChatResponse
	err          error
}

func (f *fakeChatCompleter) CreateChatCompletionWithDefaults(model string, messages []openai.Message) (*openai.ChatResponse, error) {
	f.lastModel = model
	f.lastMessages = messages
	return f.resp, f.err
}

func TestGenerate_ReturnsFirstChoiceText(t *testing.T) {
	fake := &fakeChatCompleter{resp: &openai.ChatResponse{
		Choices: []openai.Choice{{Message: openai.Message{Role: "assistant", Content: "PRACH 是物理随机接入信道"}}},
	}}
	g := generator.New(fake, "qwen3-32b")

	text, err := g.Generate("", []convo.Message{{Role: convo.RoleUser, Content: "PRACH是什么"}})
	require.NoError(t, err)
	assert.Equal(t, "PRACH 是物理随机接入信道", text)
	assert.Equal(t, "qwen3-32b", fake.lastModel)
	require.Len(t, fake.lastMessages, 1)
	assert.Equal(t, "PRACH是什么", fake.lastMessages[0].Content)
}

func TestGenerate_ModelOverridesDefault(t *testing.T) {
	fake := &fakeChatCompleter{resp: &openai.ChatResponse{
		Choices: []openai.Choice{{Message: openai.Message{Content: "ok"}}},
	}}
	g := generator.New(fake, "default-model")

	_, err := g.Generate("override-model", []convo.Message{{Role: convo.RoleUser, Content: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, "override-model", fake.lastModel)
}

func TestGenerate_EmptyChoicesIsError(t *testing.T) {
	fake := &fakeChatCompleter{resp: &openai.ChatResponse{Choices: nil}}
	g := generator.New(fake, "m")

	_, err := g.Generate("", []convo.Message{{Role: convo.RoleUser, Content: "hi"}})
	assert.Error(t, err)
}

func TestCreateChatCompletionWithDefaults_SatisfiesModelClientShape(t *testing.T) {
	fake := &fakeChatCompleter{resp: &openai.ChatResponse{
		Choices: []openai.Choice{{Message: openai.Message{Content: "rewritten"}}},
	}}
	g := generator.New(fake, "m")

	text, err := g.CreateChatCompletionWithDefaults("m", []convo.Message{{Role: convo.RoleUser, Content: "q"}})
	require.NoError(t, err)
	assert.Equal(t, "rewritten", text)
}
