// MockRuntime is a scriptable test double for the model runtime.
//
// It supports fixed responses, error injection, load failures, and
// per-invocation hooks.
package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/BaSui01/llmserve/model"
	"github.com/BaSui01/llmserve/types"
)

// MockRuntime implements model.Runtime for tests.
type MockRuntime struct {
	mu sync.Mutex

	content   string
	toolCalls []types.ToolCall
	usage     *types.TokenUsage
	runErr    error
	loadErr   error
	delay     time.Duration

	runFunc func(ctx context.Context, req *model.RunRequest) (*model.RunResponse, error)

	loadCalls int
	runCalls  int
	requests  []*model.RunRequest
}

// NewMockRuntime creates a mock runtime that answers "mock response".
func NewMockRuntime() *MockRuntime {
	return &MockRuntime{content: "mock response"}
}

// WithContent sets the fixed response content.
func (m *MockRuntime) WithContent(content string) *MockRuntime {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.content = content
	return m
}

// WithToolCalls sets tool calls returned with every response.
func (m *MockRuntime) WithToolCalls(calls []types.ToolCall) *MockRuntime {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.toolCalls = calls
	return m
}

// WithUsage sets the token usage reported by the runtime.
func (m *MockRuntime) WithUsage(usage *types.TokenUsage) *MockRuntime {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.usage = usage
	return m
}

// WithRunError makes every Run call fail with err.
func (m *MockRuntime) WithRunError(err error) *MockRuntime {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runErr = err
	return m
}

// WithLoadError makes Load fail with err.
func (m *MockRuntime) WithLoadError(err error) *MockRuntime {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadErr = err
	return m
}

// WithDelay makes every Run call block for d first.
func (m *MockRuntime) WithDelay(d time.Duration) *MockRuntime {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// WithRunFunc installs a per-invocation hook that overrides the fixed
// response entirely.
func (m *MockRuntime) WithRunFunc(fn func(ctx context.Context, req *model.RunRequest) (*model.RunResponse, error)) *MockRuntime {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runFunc = fn
	return m
}

// Load implements model.Runtime.
func (m *MockRuntime) Load(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadCalls++
	return m.loadErr
}

// Run implements model.Runtime.
func (m *MockRuntime) Run(ctx context.Context, req *model.RunRequest) (*model.RunResponse, error) {
	m.mu.Lock()
	m.runCalls++
	m.requests = append(m.requests, req)
	fn := m.runFunc
	content, toolCalls, usage := m.content, m.toolCalls, m.usage
	runErr, delay := m.runErr, m.delay
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if fn != nil {
		return fn(ctx, req)
	}
	if runErr != nil {
		return nil, runErr
	}
	return &model.RunResponse{Content: content, ToolCalls: toolCalls, Usage: usage}, nil
}

// LoadCalls returns how many times Load was called.
func (m *MockRuntime) LoadCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadCalls
}

// RunCalls returns how many times Run was called.
func (m *MockRuntime) RunCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runCalls
}

// Requests returns a copy of all recorded run requests.
func (m *MockRuntime) Requests() []*model.RunRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.RunRequest, len(m.requests))
	copy(out, m.requests)
	return out
}
