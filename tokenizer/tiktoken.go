package tokenizer

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/BaSui01/llmserve/types"
)

// modelEncodings maps model name prefixes to their tiktoken encoding.
var modelEncodings = map[string]string{
	"gpt-4o":        "o200k_base",
	"gpt-4":         "cl100k_base",
	"gpt-3.5-turbo": "cl100k_base",
}

// Tiktoken is a tiktoken-backed tokenizer. Encoding tables are loaded
// lazily on first use because loading may touch the filesystem or network.
type Tiktoken struct {
	model     string
	encoding  string
	maxTokens int

	once    sync.Once
	enc     *tiktoken.Tiktoken
	initErr error
}

// NewTiktoken creates a tiktoken-backed tokenizer for the given model.
// It fails when no encoding is known for the model.
func NewTiktoken(model string, maxTokens int) (*Tiktoken, error) {
	encoding, ok := modelEncodings[model]
	if !ok {
		for prefix, e := range modelEncodings {
			if len(model) >= len(prefix) && model[:len(prefix)] == prefix {
				encoding, ok = e, true
				break
			}
		}
	}
	if !ok {
		return nil, fmt.Errorf("no tiktoken encoding for model %q", model)
	}
	if maxTokens <= 0 {
		maxTokens = 8192
	}
	return &Tiktoken{model: model, encoding: encoding, maxTokens: maxTokens}, nil
}

func (t *Tiktoken) init() error {
	t.once.Do(func() {
		t.enc, t.initErr = tiktoken.GetEncoding(t.encoding)
	})
	return t.initErr
}

func (t *Tiktoken) CountTokens(text string) (int, error) {
	if err := t.init(); err != nil {
		return 0, fmt.Errorf("load encoding %s: %w", t.encoding, err)
	}
	return len(t.enc.Encode(text, nil, nil)), nil
}

func (t *Tiktoken) CountMessages(messages []types.ChatMessage) (int, error) {
	total := 0
	for _, msg := range messages {
		tokens, err := t.CountTokens(msg.Content)
		if err != nil {
			return 0, err
		}
		total += tokens + messageOverhead
	}
	total += conversationOverhead
	return total, nil
}

func (t *Tiktoken) MaxTokens() int { return t.maxTokens }

func (t *Tiktoken) Name() string { return "tiktoken/" + t.encoding }
