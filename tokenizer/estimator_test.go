package tokenizer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/llmserve/types"
)

func TestEstimator_CountTokens(t *testing.T) {
	e := NewEstimator("local", 8192)

	n, err := e.CountTokens("")
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = e.CountTokens("hello world")
	require.NoError(t, err)
	assert.Greater(t, n, 0)

	// ~4 ASCII chars per token.
	n, err = e.CountTokens(strings.Repeat("a", 400))
	require.NoError(t, err)
	assert.InDelta(t, 100, n, 5)
}

func TestEstimator_CJKWeighting(t *testing.T) {
	e := NewEstimator("local", 8192)

	ascii, err := e.CountTokens(strings.Repeat("a", 30))
	require.NoError(t, err)
	cjk, err := e.CountTokens(strings.Repeat("你", 30))
	require.NoError(t, err)

	assert.Greater(t, cjk, ascii, "CJK text should estimate more tokens per char")
}

func TestEstimator_CountMessages(t *testing.T) {
	e := NewEstimator("local", 8192)

	n, err := e.CountMessages([]types.ChatMessage{
		types.NewSystemMessage("You are a helpful assistant."),
		types.NewUserMessage("hi"),
	})
	require.NoError(t, err)
	// Two messages of overhead plus conversation overhead at minimum.
	assert.GreaterOrEqual(t, n, 2*messageOverhead+conversationOverhead)
}

func TestEstimator_DefaultWindow(t *testing.T) {
	e := NewEstimator("local", 0)
	assert.Equal(t, 4096, e.MaxTokens())
}

func TestForModel_FallsBackToEstimator(t *testing.T) {
	tok := ForModel("Qwen3-1.7B-Q4_K_M.gguf", 8192)
	assert.Equal(t, "estimator", tok.Name())
	assert.Equal(t, 8192, tok.MaxTokens())
}

func TestForModel_KnownEncoding(t *testing.T) {
	tok := ForModel("gpt-4o-mini", 128000)
	assert.Equal(t, "tiktoken/o200k_base", tok.Name())
}
