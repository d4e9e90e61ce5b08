package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/llmserve/api"
	"github.com/BaSui01/llmserve/cache"
	"github.com/BaSui01/llmserve/types"
)

type mockSubmitter struct {
	submitFunc func(ctx context.Context, req types.InferenceRequest) (types.InferenceResult, error)
	requests   []types.InferenceRequest
}

func (m *mockSubmitter) Submit(ctx context.Context, req types.InferenceRequest) (types.InferenceResult, error) {
	m.requests = append(m.requests, req)
	if m.submitFunc != nil {
		return m.submitFunc(ctx, req)
	}
	return types.SuccessResult(req.RequestID, "ok", nil, nil), nil
}

func postCompletion(t *testing.T, h *CompletionHandler, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/v1/completions", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.HandleCompletion(rec, req)
	return rec
}

func TestHandleCompletion_Success(t *testing.T) {
	sub := &mockSubmitter{
		submitFunc: func(_ context.Context, req types.InferenceRequest) (types.InferenceResult, error) {
			return types.SuccessResult(req.RequestID, "hello there", nil, &types.TokenUsage{TotalTokens: 5}), nil
		},
	}
	h := NewCompletionHandler(sub, nil, nil, zap.NewNop())

	rec := postCompletion(t, h, api.CompletionRequest{
		RequestID: "req-1",
		Messages:  []types.ChatMessage{types.NewUserMessage("hi")},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	var result types.InferenceResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Success)
	assert.Equal(t, "req-1", result.RequestID)
	assert.Equal(t, "hello there", result.Content)
}

func TestHandleCompletion_AssignsRequestID(t *testing.T) {
	sub := &mockSubmitter{}
	h := NewCompletionHandler(sub, nil, nil, zap.NewNop())

	rec := postCompletion(t, h, api.CompletionRequest{
		Messages: []types.ChatMessage{types.NewUserMessage("hi")},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, sub.requests, 1)
	assert.NotEmpty(t, sub.requests[0].RequestID)

	var result types.InferenceResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, sub.requests[0].RequestID, result.RequestID)
}

func TestHandleCompletion_FailureStaysInBand(t *testing.T) {
	sub := &mockSubmitter{
		submitFunc: func(_ context.Context, req types.InferenceRequest) (types.InferenceResult, error) {
			return types.FailureResult(req.RequestID, types.NewError(types.ErrEmptyMessages, "empty_messages")), nil
		},
	}
	h := NewCompletionHandler(sub, nil, nil, zap.NewNop())

	rec := postCompletion(t, h, api.CompletionRequest{RequestID: "req-2"})

	// Per-request failures are payload, not protocol.
	require.Equal(t, http.StatusOK, rec.Code)
	var result types.InferenceResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.False(t, result.Success)
	assert.Equal(t, "empty_messages", result.Error)
}

func TestHandleCompletion_MalformedBody(t *testing.T) {
	h := NewCompletionHandler(&mockSubmitter{}, nil, nil, zap.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/v1/completions", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	h.HandleCompletion(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleCompletion_DispatcherClosed(t *testing.T) {
	sub := &mockSubmitter{
		submitFunc: func(_ context.Context, _ types.InferenceRequest) (types.InferenceResult, error) {
			return types.InferenceResult{}, types.NewError(types.ErrDispatcherClosed, "dispatcher is closed")
		},
	}
	h := NewCompletionHandler(sub, nil, nil, zap.NewNop())

	rec := postCompletion(t, h, api.CompletionRequest{
		Messages: []types.ChatMessage{types.NewUserMessage("hi")},
	})

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleCompletion_CacheShortCircuit(t *testing.T) {
	rc := cache.New(cache.Config{Enabled: true, LocalMaxSize: 10}, nil, zap.NewNop())

	calls := 0
	sub := &mockSubmitter{
		submitFunc: func(_ context.Context, req types.InferenceRequest) (types.InferenceResult, error) {
			calls++
			return types.SuccessResult(req.RequestID, "computed", nil, nil), nil
		},
	}
	h := NewCompletionHandler(sub, rc, nil, zap.NewNop())

	body := api.CompletionRequest{
		RequestID: "first",
		Messages:  []types.ChatMessage{types.NewUserMessage("cached prompt")},
	}
	rec := postCompletion(t, h, body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, calls)

	// Same content under a different id hits the cache and keeps its
	// own id in the response.
	body.RequestID = "second"
	rec = postCompletion(t, h, body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, calls)

	var result types.InferenceResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "second", result.RequestID)
	assert.Equal(t, "computed", result.Content)
}
