package model

import (
	"context"

	"github.com/BaSui01/llmserve/types"
)

// RunRequest carries one model invocation.
type RunRequest struct {
	Messages    []types.ChatMessage
	MaxTokens   int
	Temperature float32
	Tools       []types.ToolSpec
	ToolChoice  string

	// ForceJSON requests structured (JSON) output from the model. The
	// adapter sets it whenever the request carries tools.
	ForceJSON bool
}

// RunResponse is the runtime's answer to one invocation.
type RunResponse struct {
	Content   string
	ToolCalls []types.ToolCall
	Usage     *types.TokenUsage
}

// Runtime is the boundary to the underlying inference engine. The adapter
// owns no knowledge of the engine's internal format.
type Runtime interface {
	// Load makes the model ready to serve. Loading is expected to be slow
	// (seconds) and must be idempotent; the adapter calls it at most once
	// per process unless it fails.
	Load(ctx context.Context) error

	// Run executes a single chat completion against the loaded model.
	Run(ctx context.Context, req *RunRequest) (*RunResponse, error)
}
