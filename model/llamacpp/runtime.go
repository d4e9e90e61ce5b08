// Package llamacpp implements the model runtime on top of a local
// llama-server process speaking the OpenAI-compatible chat completions API.
//
// Two modes are supported: managed mode spawns and supervises the
// llama-server child process itself, attach mode (BaseURL set) talks to an
// already-running server and never manages its lifecycle.
package llamacpp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/llmserve/model"
	"github.com/BaSui01/llmserve/types"
)

// Config holds the llama-server runtime parameters. ModelPath, ContextSize,
// GPULayers, and Threads mirror the llama.cpp knobs and are fixed for the
// process lifetime.
type Config struct {
	// ModelPath is the GGUF model file to load (managed mode).
	ModelPath string

	// ContextSize is the model context window (llama.cpp --ctx-size).
	ContextSize int

	// GPULayers is the number of layers offloaded to the accelerator
	// (llama.cpp --n-gpu-layers).
	GPULayers int

	// Threads is the inference thread count (llama.cpp --threads).
	Threads int

	// BinaryPath is the llama-server executable. Defaults to "llama-server".
	BinaryPath string

	// Port is the local port the managed server listens on. Defaults to 8089.
	Port int

	// BaseURL switches to attach mode: requests go to this already-running
	// server and no child process is spawned.
	BaseURL string

	// StartupTimeout bounds how long Load waits for the server to become
	// healthy. Defaults to 120s; model loading is expected to be slow.
	StartupTimeout time.Duration

	// RequestTimeout bounds a single completion call. Defaults to 300s.
	RequestTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.BinaryPath == "" {
		c.BinaryPath = "llama-server"
	}
	if c.Port == 0 {
		c.Port = 8089
	}
	if c.ContextSize <= 0 {
		c.ContextSize = 8192
	}
	if c.Threads <= 0 {
		c.Threads = 4
	}
	if c.StartupTimeout <= 0 {
		c.StartupTimeout = 120 * time.Second
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 300 * time.Second
	}
	return c
}

func (c Config) baseURL() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	return fmt.Sprintf("http://127.0.0.1:%d", c.Port)
}

// Runtime implements model.Runtime against llama-server.
type Runtime struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger

	mu  sync.Mutex
	cmd *exec.Cmd
}

var _ model.Runtime = (*Runtime)(nil)

// New creates a llama-server runtime. Nothing is started until Load.
func New(cfg Config, logger *zap.Logger) *Runtime {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runtime{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.RequestTimeout},
		logger: logger.With(zap.String("component", "llamacpp_runtime")),
	}
}

// Load starts the llama-server process (managed mode) and waits for its
// health endpoint to report ready. In attach mode it only waits for health.
func (r *Runtime) Load(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cfg.BaseURL == "" && r.cmd == nil {
		if r.cfg.ModelPath == "" {
			return types.NewError(types.ErrAdapterUnavailable, "model path not configured")
		}
		cmd := exec.Command(r.cfg.BinaryPath,
			"--model", r.cfg.ModelPath,
			"--ctx-size", strconv.Itoa(r.cfg.ContextSize),
			"--n-gpu-layers", strconv.Itoa(r.cfg.GPULayers),
			"--threads", strconv.Itoa(r.cfg.Threads),
			"--port", strconv.Itoa(r.cfg.Port),
			"--host", "127.0.0.1",
		)
		if err := cmd.Start(); err != nil {
			return types.NewError(types.ErrAdapterUnavailable, "start llama-server").WithCause(err)
		}
		r.cmd = cmd
		r.logger.Info("llama-server started",
			zap.String("model_path", r.cfg.ModelPath),
			zap.Int("ctx_size", r.cfg.ContextSize),
			zap.Int("gpu_layers", r.cfg.GPULayers),
			zap.Int("threads", r.cfg.Threads),
			zap.Int("pid", cmd.Process.Pid),
		)
	}

	return r.waitHealthy(ctx)
}

// waitHealthy polls /health until the server reports ready.
func (r *Runtime) waitHealthy(ctx context.Context) error {
	deadline := time.Now().Add(r.cfg.StartupTimeout)
	url := r.cfg.baseURL() + "/health"

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := r.client.Do(req)
		if err == nil {
			status := resp.StatusCode
			resp.Body.Close()
			if status == http.StatusOK {
				return nil
			}
		}

		if time.Now().After(deadline) {
			return types.NewError(types.ErrAdapterUnavailable,
				fmt.Sprintf("llama-server not healthy after %s", r.cfg.StartupTimeout))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
}

// Stop terminates the managed llama-server process. No-op in attach mode.
func (r *Runtime) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cmd == nil || r.cmd.Process == nil {
		return nil
	}
	r.logger.Info("stopping llama-server", zap.Int("pid", r.cmd.Process.Pid))
	if err := r.cmd.Process.Kill(); err != nil {
		return err
	}
	_ = r.cmd.Wait()
	r.cmd = nil
	return nil
}

// --- OpenAI-compatible wire types ---

type wireMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content,omitempty"`
	Name       string         `json:"name,omitempty"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type wireToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function wireFunction `json:"function"`
}

type wireFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
	Arguments   json.RawMessage `json:"arguments,omitempty"`
}

type wireTool struct {
	Type     string       `json:"type"`
	Function wireFunction `json:"function"`
}

type wireRequest struct {
	Messages       []wireMessage   `json:"messages"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Temperature    float32         `json:"temperature,omitempty"`
	Tools          []wireTool      `json:"tools,omitempty"`
	ToolChoice     string          `json:"tool_choice,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type wireResponse struct {
	Choices []struct {
		Index        int         `json:"index"`
		FinishReason string      `json:"finish_reason"`
		Message      wireMessage `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage,omitempty"`
}

type wireError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Run executes one chat completion against llama-server.
func (r *Runtime) Run(ctx context.Context, req *model.RunRequest) (*model.RunResponse, error) {
	body := wireRequest{
		Messages:    convertMessages(req.Messages),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Tools:       convertTools(req.Tools),
		ToolChoice:  req.ToolChoice,
	}
	if req.ForceJSON {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, types.NewError(types.ErrInferenceFailure, "encode request").WithCause(err)
	}

	url := r.cfg.baseURL() + "/v1/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, types.NewError(types.ErrInferenceFailure, "build request").WithCause(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return nil, types.NewError(types.ErrAdapterUnavailable, "llama-server unreachable").WithCause(err).WithRetryable()
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, types.NewError(types.ErrInferenceFailure, "read response").WithCause(err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, types.NewError(types.ErrInferenceFailure,
			fmt.Sprintf("llama-server returned %d: %s", resp.StatusCode, extractErrorMessage(data)))
	}

	var out wireResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, types.NewError(types.ErrInferenceFailure, "decode response").WithCause(err)
	}
	if len(out.Choices) == 0 {
		return nil, types.NewError(types.ErrInferenceFailure, "response carries no choices")
	}

	msg := out.Choices[0].Message
	result := &model.RunResponse{Content: msg.Content}
	for _, tc := range msg.ToolCalls {
		result.ToolCalls = append(result.ToolCalls, types.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	if out.Usage != nil {
		result.Usage = &types.TokenUsage{
			PromptTokens:     out.Usage.PromptTokens,
			CompletionTokens: out.Usage.CompletionTokens,
			TotalTokens:      out.Usage.TotalTokens,
		}
	}
	return result, nil
}

func convertMessages(msgs []types.ChatMessage) []wireMessage {
	out := make([]wireMessage, 0, len(msgs))
	for _, m := range msgs {
		wm := wireMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			Name:       m.Name,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			wm.ToolCalls = append(wm.ToolCalls, wireToolCall{
				ID:   tc.ID,
				Type: "function",
				Function: wireFunction{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		out = append(out, wm)
	}
	return out
}

func convertTools(tools []types.ToolSpec) []wireTool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]wireTool, 0, len(tools))
	for _, t := range tools {
		out = append(out, wireTool{
			Type: "function",
			Function: wireFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return out
}

// extractErrorMessage pulls the human-readable message out of an error body,
// falling back to the raw text.
func extractErrorMessage(data []byte) string {
	var we wireError
	if err := json.Unmarshal(data, &we); err == nil && we.Error.Message != "" {
		if we.Error.Type != "" {
			return fmt.Sprintf("%s (type: %s)", we.Error.Message, we.Error.Type)
		}
		return we.Error.Message
	}
	return string(data)
}
