package textutil_test

import (
	"strings"
	"testing"

	"github.com/hsn0918/rag/internal/textutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClean(t *testing.T) {
	in := "line one  \r\nline two\r\n\r\n\r\n\r\nline three\t\t\x07done"
	out := textutil.Clean(in)

	require.NotContains(t, out, "\r")
	assert.False(t, strings.Contains(out, "\n\n\n\n"))
	assert.Equal(t, out, strings.TrimSpace(out))
}

func TestClean_CollapsesBlankLines(t *testing.T) {
	in := "a\n\n\n\n\n\nb"
	out := textutil.Clean(in)
	assert.Equal(t, "a\n\n\nb", out)
}

func TestEstimateTokens_Monotonic(t *testing.T) {
	short := textutil.EstimateTokens("hello world")
	long := textutil.EstimateTokens("hello world this is a much longer sentence with many more words")
	assert.Less(t, short, long)
}

func TestEstimateTokens_CJKWeighted(t *testing.T) {
	cjk := textutil.EstimateTokens("随机接入流程")
	latin := textutil.EstimateTokens("ab")
	assert.Greater(t, cjk, latin)
}

func TestEstimateTokens_NeverZero(t *testing.T) {
	assert.GreaterOrEqual(t, textutil.EstimateTokens(""), 1)
}

func TestTokenize_SplitsWordsAndCJKChars(t *testing.T) {
	toks := textutil.Tokenize("Random Access 随机接入")
	assert.Equal(t, []string{"random", "access", "随", "机", "接", "入"}, toks)
}

func TestTokenize_EmptyInput(t *testing.T) {
	assert.Empty(t, textutil.Tokenize(""))
}
