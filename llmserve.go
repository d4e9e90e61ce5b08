// Package llmserve provides a top-level entry point for embedding the
// batched inference engine in another process, without the HTTP
// surface of cmd/llmserve.
//
// Usage:
//
//	import "github.com/BaSui01/llmserve"
//
//	engine, err := llmserve.New(
//	    llmserve.WithRuntime(rt),
//	    llmserve.WithModel("Qwen3-1.7B-Q4_K_M", 8192),
//	)
//	result, err := engine.Submit(ctx, req)
//
// The engine owns a model adapter and a micro-batching dispatcher;
// Submit blocks until the request's result is available.
package llmserve

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/llmserve/batch"
	"github.com/BaSui01/llmserve/model"
	"github.com/BaSui01/llmserve/types"
)

// Engine bundles a model adapter with a batching dispatcher.
type Engine struct {
	adapter    *model.Adapter
	dispatcher *batch.Dispatcher
}

type options struct {
	runtime     model.Runtime
	modelName   string
	contextSize int
	batchConfig batch.Config
	logger      *zap.Logger
}

// Option configures the engine created by [New].
type Option func(*options)

// WithRuntime sets the model runtime. Required.
func WithRuntime(rt model.Runtime) Option {
	return func(o *options) { o.runtime = rt }
}

// WithModel sets the model name and context window used for token
// accounting.
func WithModel(name string, contextSize int) Option {
	return func(o *options) {
		o.modelName = name
		o.contextSize = contextSize
	}
}

// WithBatchConfig overrides the default batching parameters.
func WithBatchConfig(cfg batch.Config) Option {
	return func(o *options) { o.batchConfig = cfg }
}

// WithLogger sets a custom zap logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// New creates an [Engine]. A runtime must be provided via
// [WithRuntime].
func New(opts ...Option) (*Engine, error) {
	o := options{
		batchConfig: batch.DefaultConfig(),
		contextSize: 8192,
	}
	for _, opt := range opts {
		opt(&o)
	}

	if o.runtime == nil {
		return nil, fmt.Errorf("llmserve: a runtime is required")
	}
	if err := o.batchConfig.Validate(); err != nil {
		return nil, err
	}

	adapter := model.NewAdapter(o.runtime, model.AdapterConfig{
		Model:       o.modelName,
		ContextSize: o.contextSize,
	}, o.logger)

	return &Engine{
		adapter:    adapter,
		dispatcher: batch.NewDispatcher(o.batchConfig, adapter.InferBatch, o.logger),
	}, nil
}

// Submit blocks until the request's result is available.
func (e *Engine) Submit(ctx context.Context, req types.InferenceRequest) (types.InferenceResult, error) {
	return e.dispatcher.Submit(ctx, req)
}

// Reconfigure swaps the batching parameters for subsequent windows.
func (e *Engine) Reconfigure(cfg batch.Config) error {
	return e.dispatcher.Reconfigure(cfg)
}

// WarmUp loads the model eagerly.
func (e *Engine) WarmUp(ctx context.Context) error {
	return e.adapter.WarmUp(ctx)
}

// Ongoing reports requests admitted and not yet resolved.
func (e *Engine) Ongoing() int { return e.dispatcher.Ongoing() }

// Queued reports requests waiting for a batch window.
func (e *Engine) Queued() int { return e.dispatcher.Queued() }

// Close drains the dispatcher; every admitted request still resolves.
func (e *Engine) Close() {
	e.dispatcher.Close()
}
