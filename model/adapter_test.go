package model_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/llmserve/model"
	"github.com/BaSui01/llmserve/testutil"
	"github.com/BaSui01/llmserve/testutil/mocks"
	"github.com/BaSui01/llmserve/types"
)

func newAdapter(rt model.Runtime) *model.Adapter {
	return model.NewAdapter(rt, model.AdapterConfig{Model: "test-model"}, nil)
}

func userRequest(id, content string) types.InferenceRequest {
	return types.InferenceRequest{
		RequestID: id,
		Messages:  []types.ChatMessage{types.NewUserMessage(content)},
	}
}

func TestInferBatch_EmptyBatch(t *testing.T) {
	ctx := testutil.TestContext(t)
	rt := mocks.NewMockRuntime()

	results := newAdapter(rt).InferBatch(ctx, nil)

	assert.Empty(t, results)
	assert.Zero(t, rt.RunCalls(), "empty batch must not touch the runtime")
}

func TestInferBatch_PositionalResults(t *testing.T) {
	ctx := testutil.TestContext(t)
	rt := mocks.NewMockRuntime().WithContent("ok")
	adapter := newAdapter(rt)

	reqs := []types.InferenceRequest{
		userRequest("a", "first"),
		userRequest("b", "second"),
		userRequest("c", "third"),
	}
	results := adapter.InferBatch(ctx, reqs)

	require.Len(t, results, 3)
	for i, res := range results {
		assert.Equal(t, reqs[i].RequestID, res.RequestID, "result %d out of position", i)
		assert.True(t, res.Success)
		assert.Equal(t, "ok", res.Content)
	}
}

func TestInferBatch_EmptyMessagesIsolated(t *testing.T) {
	ctx := testutil.TestContext(t)
	rt := mocks.NewMockRuntime().WithContent("ok")
	adapter := newAdapter(rt)

	results := adapter.InferBatch(ctx, []types.InferenceRequest{
		userRequest("a", "hello"),
		{RequestID: "b"}, // no messages
		userRequest("c", "world"),
	})

	require.Len(t, results, 3)
	assert.True(t, results[0].Success)
	assert.False(t, results[1].Success)
	assert.Equal(t, "empty_messages", results[1].Error)
	assert.Empty(t, results[1].Content)
	assert.Nil(t, results[1].ToolCalls)
	assert.True(t, results[2].Success, "failure of b must not affect c")
	assert.Equal(t, 2, rt.RunCalls(), "empty request must not reach the runtime")
}

func TestInferBatch_RunFailureIsolated(t *testing.T) {
	ctx := testutil.TestContext(t)
	rt := mocks.NewMockRuntime().WithRunFunc(func(_ context.Context, req *model.RunRequest) (*model.RunResponse, error) {
		if strings.Contains(req.Messages[0].Content, "poison") {
			return nil, errors.New("decode failed")
		}
		return &model.RunResponse{Content: "ok"}, nil
	})
	adapter := newAdapter(rt)

	results := adapter.InferBatch(ctx, []types.InferenceRequest{
		userRequest("a", "fine"),
		userRequest("b", "poison"),
		userRequest("c", "fine too"),
	})

	require.Len(t, results, 3)
	assert.True(t, results[0].Success)
	assert.False(t, results[1].Success)
	assert.Contains(t, results[1].Error, "decode failed")
	assert.True(t, results[2].Success)
}

func TestInferBatch_LoadOnce(t *testing.T) {
	ctx := testutil.TestContext(t)
	rt := mocks.NewMockRuntime()
	adapter := newAdapter(rt)

	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			results := adapter.InferBatch(ctx, []types.InferenceRequest{userRequest("r", "hi")})
			if !results[0].Success {
				return errors.New(results[0].Error)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, 1, rt.LoadCalls(), "concurrent first calls must trigger exactly one load")
}

func TestInferBatch_LoadFailureMarksWholeBatch(t *testing.T) {
	ctx := testutil.TestContext(t)
	rt := mocks.NewMockRuntime().WithLoadError(errors.New("weights missing"))
	adapter := newAdapter(rt)

	results := adapter.InferBatch(ctx, []types.InferenceRequest{
		userRequest("a", "x"),
		userRequest("b", "y"),
	})

	require.Len(t, results, 2)
	for _, res := range results {
		assert.False(t, res.Success)
		assert.Contains(t, res.Error, "weights missing")
	}
	assert.Zero(t, rt.RunCalls())
}

func TestInferBatch_LoadRetriedAfterFailure(t *testing.T) {
	ctx := testutil.TestContext(t)
	rt := mocks.NewMockRuntime().WithLoadError(errors.New("weights missing"))
	adapter := newAdapter(rt)

	_ = adapter.InferBatch(ctx, []types.InferenceRequest{userRequest("a", "x")})
	rt.WithLoadError(nil)
	results := adapter.InferBatch(ctx, []types.InferenceRequest{userRequest("a", "x")})

	assert.True(t, results[0].Success, "load failure must not be cached")
	assert.Equal(t, 2, rt.LoadCalls())
}

func TestInferBatch_ToolsForceStructuredOutput(t *testing.T) {
	ctx := testutil.TestContext(t)
	rt := mocks.NewMockRuntime()
	adapter := newAdapter(rt)

	tool := types.ToolSpec{Name: "lookup", Parameters: json.RawMessage(`{"type":"object"}`)}
	req := userRequest("a", "use the tool")
	req.Tools = []types.ToolSpec{tool}
	req.ToolChoice = "auto"

	_ = adapter.InferBatch(ctx, []types.InferenceRequest{req, userRequest("b", "plain")})

	recorded := rt.Requests()
	require.Len(t, recorded, 2)
	assert.True(t, recorded[0].ForceJSON, "tools present: structured output required")
	assert.Equal(t, "auto", recorded[0].ToolChoice)
	assert.False(t, recorded[1].ForceJSON, "no tools: plain output")
}

func TestInferBatch_DefaultsApplied(t *testing.T) {
	ctx := testutil.TestContext(t)
	rt := mocks.NewMockRuntime()
	adapter := newAdapter(rt)

	_ = adapter.InferBatch(ctx, []types.InferenceRequest{userRequest("a", "hi")})

	recorded := rt.Requests()
	require.Len(t, recorded, 1)
	assert.Equal(t, types.DefaultMaxTokens, recorded[0].MaxTokens)
	assert.Equal(t, float32(types.DefaultTemperature), recorded[0].Temperature)
}

func TestInferBatch_UsageEstimatedWhenMissing(t *testing.T) {
	ctx := testutil.TestContext(t)
	rt := mocks.NewMockRuntime().WithContent("a reasonably long answer to count")
	adapter := newAdapter(rt)

	results := adapter.InferBatch(ctx, []types.InferenceRequest{userRequest("a", "tell me something")})

	require.True(t, results[0].Success)
	require.NotNil(t, results[0].Usage)
	assert.Greater(t, results[0].Usage.TotalTokens, 0)
}

func TestInferBatch_UsagePassedThrough(t *testing.T) {
	ctx := testutil.TestContext(t)
	rt := mocks.NewMockRuntime().WithUsage(&types.TokenUsage{PromptTokens: 7, CompletionTokens: 11, TotalTokens: 18})
	adapter := newAdapter(rt)

	results := adapter.InferBatch(ctx, []types.InferenceRequest{userRequest("a", "hi")})

	require.NotNil(t, results[0].Usage)
	assert.Equal(t, 18, results[0].Usage.TotalTokens)
}

func TestInferBatch_ContextBudget(t *testing.T) {
	ctx := testutil.TestContext(t)
	rt := mocks.NewMockRuntime()
	adapter := model.NewAdapter(rt, model.AdapterConfig{Model: "test-model", ContextSize: 64}, nil)

	big := userRequest("a", strings.Repeat("words and more words ", 200))
	small := userRequest("b", "hi")
	small.MaxTokens = 16
	results := adapter.InferBatch(ctx, []types.InferenceRequest{big, small})

	require.Len(t, results, 2)
	assert.False(t, results[0].Success)
	assert.Equal(t, "context_too_long", results[0].Error)
	assert.True(t, results[1].Success)
	assert.Equal(t, 1, rt.RunCalls(), "over-budget prompt must not reach the runtime")
}
