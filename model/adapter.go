package model

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/llmserve/tokenizer"
	"github.com/BaSui01/llmserve/types"
)

// AdapterConfig holds the fixed parameters of a model adapter.
type AdapterConfig struct {
	// Model is the model name for logging and token estimation.
	Model string

	// ContextSize is the model context window in tokens. When positive,
	// requests whose estimated prompt plus completion budget exceeds it
	// fail with CONTEXT_TOO_LONG before reaching the runtime.
	ContextSize int
}

// Adapter owns a single loaded model instance and serves ordered batches
// of inference requests with per-request failure isolation.
type Adapter struct {
	runtime Runtime
	cfg     AdapterConfig
	tok     tokenizer.Tokenizer
	logger  *zap.Logger

	mu     sync.Mutex
	loaded bool
}

// NewAdapter creates an adapter around the given runtime. The model is not
// loaded here; loading happens lazily on the first InferBatch call.
func NewAdapter(runtime Runtime, cfg AdapterConfig, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{
		runtime: runtime,
		cfg:     cfg,
		tok:     tokenizer.ForModel(cfg.Model, cfg.ContextSize),
		logger:  logger.With(zap.String("component", "model_adapter")),
	}
}

// WarmUp loads the model eagerly so the first batch does not pay the
// load cost. A failed warm-up leaves the adapter retryable.
func (a *Adapter) WarmUp(ctx context.Context) error {
	return a.ensureLoaded(ctx)
}

// ensureLoaded loads the model exactly once. Concurrent first calls block
// on the mutex until the single loader finishes; a load failure leaves the
// adapter unloaded so the next call retries.
func (a *Adapter) ensureLoaded(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.loaded {
		return nil
	}

	start := time.Now()
	a.logger.Info("loading model", zap.String("model", a.cfg.Model))
	if err := a.runtime.Load(ctx); err != nil {
		a.logger.Error("model load failed", zap.Error(err))
		return types.NewError(types.ErrAdapterUnavailable, "model load failed").WithCause(err)
	}
	a.loaded = true
	a.logger.Info("model loaded", zap.Duration("load_time", time.Since(start)))
	return nil
}

// InferBatch serves an ordered batch of requests and returns exactly one
// result per request, in the same order. A batch may be empty. No request
// failure aborts processing of the remaining requests; a load failure marks
// every member of the batch failed.
func (a *Adapter) InferBatch(ctx context.Context, reqs []types.InferenceRequest) []types.InferenceResult {
	results := make([]types.InferenceResult, len(reqs))
	if len(reqs) == 0 {
		return results
	}

	if err := a.ensureLoaded(ctx); err != nil {
		for i, req := range reqs {
			results[i] = types.FailureResult(req.RequestID, err)
		}
		return results
	}

	for i, req := range reqs {
		results[i] = a.inferOne(ctx, req)
	}
	return results
}

func (a *Adapter) inferOne(ctx context.Context, req types.InferenceRequest) types.InferenceResult {
	log := a.logger.With(zap.String("request_id", req.RequestID))

	if len(req.Messages) == 0 {
		log.Error("rejecting request", zap.String("error", "empty_messages"))
		return types.FailureResult(req.RequestID, types.NewError(types.ErrEmptyMessages, "empty_messages"))
	}

	req = req.Normalize()

	if a.cfg.ContextSize > 0 {
		if prompt, err := a.tok.CountMessages(req.Messages); err == nil {
			if prompt+req.MaxTokens > a.cfg.ContextSize {
				log.Error("rejecting request",
					zap.String("error", "context_too_long"),
					zap.Int("estimated_prompt_tokens", prompt),
					zap.Int("context_size", a.cfg.ContextSize),
				)
				return types.FailureResult(req.RequestID, types.NewError(types.ErrContextTooLong, "context_too_long"))
			}
		}
	}

	start := time.Now()
	resp, err := a.runtime.Run(ctx, &RunRequest{
		Messages:    req.Messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Tools:       req.Tools,
		ToolChoice:  req.ToolChoice,
		ForceJSON:   len(req.Tools) > 0,
	})
	elapsed := time.Since(start)

	if err != nil {
		log.Error("inference failed",
			zap.Duration("inference_time", elapsed),
			zap.Error(err),
		)
		return types.FailureResult(req.RequestID, err)
	}

	usage := resp.Usage
	if usage == nil || usage.TotalTokens == 0 {
		usage = a.estimateUsage(req.Messages, resp.Content)
	}

	log.Info("inference complete",
		zap.Bool("success", true),
		zap.Duration("inference_time", elapsed),
		zap.Int("content_length", len(resp.Content)),
		zap.Int("tool_calls_count", len(resp.ToolCalls)),
		zap.Int("total_tokens", usage.TotalTokens),
	)
	return types.SuccessResult(req.RequestID, resp.Content, resp.ToolCalls, usage)
}

// estimateUsage approximates token accounting when the runtime reports none.
func (a *Adapter) estimateUsage(messages []types.ChatMessage, content string) *types.TokenUsage {
	prompt, err := a.tok.CountMessages(messages)
	if err != nil {
		return &types.TokenUsage{}
	}
	completion, err := a.tok.CountTokens(content)
	if err != nil {
		return &types.TokenUsage{}
	}
	return &types.TokenUsage{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      prompt + completion,
	}
}
