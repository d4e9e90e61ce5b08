// Package tokenizer provides token counting for prompt budgeting and usage
// accounting. A tiktoken-backed counter is used for models with a known
// encoding; everything else falls back to a character-ratio estimator.
package tokenizer

import (
	"github.com/BaSui01/llmserve/types"
)

// Tokenizer counts tokens for plain text and whole conversations.
type Tokenizer interface {
	// CountTokens returns the token count of the given text.
	CountTokens(text string) (int, error)

	// CountMessages returns the total token count of a message sequence,
	// including per-message overhead (role markers, separators).
	CountMessages(messages []types.ChatMessage) (int, error)

	// MaxTokens returns the context window this tokenizer was built for.
	MaxTokens() int

	// Name returns the tokenizer's name.
	Name() string
}

// ForModel returns the best available tokenizer for the given model name and
// context window. Models with a known tiktoken encoding get an exact counter;
// GGUF-style local models fall back to the estimator.
func ForModel(model string, contextWindow int) Tokenizer {
	if t, err := NewTiktoken(model, contextWindow); err == nil {
		return t
	}
	return NewEstimator(model, contextWindow)
}
