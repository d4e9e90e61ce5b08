package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/llmserve/api"
	"github.com/BaSui01/llmserve/batch"
	"github.com/BaSui01/llmserve/scale"
	"github.com/BaSui01/llmserve/types"
)

type mockReconfigurer struct {
	active batch.Config
	err    error
}

func (m *mockReconfigurer) Reconfigure(cfg batch.Config) error {
	if m.err != nil {
		return m.err
	}
	m.active = cfg
	return nil
}

func (m *mockReconfigurer) ActiveConfig() batch.Config { return m.active }

type mockReporter struct {
	snap scale.Snapshot
}

func (m *mockReporter) Snapshot() scale.Snapshot { return m.snap }

func postReconfigure(t *testing.T, h *AdminHandler, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/admin/reconfigure", bytes.NewReader(data))
	rec := httptest.NewRecorder()
	h.HandleReconfigure(rec, req)
	return rec
}

func TestHandleReconfigure_Success(t *testing.T) {
	disp := &mockReconfigurer{active: batch.DefaultConfig()}
	h := NewAdminHandler(disp, nil, zap.NewNop())

	rec := postReconfigure(t, h, api.ReconfigureRequest{MaxBatchSize: 8, BatchWait: "20ms"})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 8, disp.active.MaxBatchSize)
	assert.Equal(t, 20*time.Millisecond, disp.active.BatchWait)

	var resp api.ReconfigureResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 8, resp.MaxBatchSize)
	assert.Equal(t, "20ms", resp.BatchWait)
}

func TestHandleReconfigure_RejectedConfig(t *testing.T) {
	disp := &mockReconfigurer{
		active: batch.DefaultConfig(),
		err:    types.NewError(types.ErrInvalidConfig, "max_batch_size must be positive"),
	}
	h := NewAdminHandler(disp, nil, zap.NewNop())

	rec := postReconfigure(t, h, api.ReconfigureRequest{MaxBatchSize: 0, BatchWait: "20ms"})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, string(types.ErrInvalidConfig), resp.Error.Code)
	// Active config is untouched.
	assert.Equal(t, batch.DefaultConfig(), disp.active)
}

func TestHandleReconfigure_BadDuration(t *testing.T) {
	h := NewAdminHandler(&mockReconfigurer{}, nil, zap.NewNop())

	rec := postReconfigure(t, h, api.ReconfigureRequest{MaxBatchSize: 8, BatchWait: "soon"})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, string(types.ErrInvalidConfig), resp.Error.Code)
}

func TestHandleAutoscale(t *testing.T) {
	reporter := &mockReporter{snap: scale.Snapshot{
		Ongoing:        12,
		Queued:         5,
		RawDesired:     2,
		TargetReplicas: 1,
	}}
	h := NewAdminHandler(&mockReconfigurer{}, reporter, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/admin/autoscale", nil)
	rec := httptest.NewRecorder()
	h.HandleAutoscale(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var status api.AutoscaleStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, 12, status.OngoingRequests)
	assert.Equal(t, 5, status.QueuedRequests)
	assert.Equal(t, 2, status.RawDesiredReplicas)
	assert.Equal(t, 1, status.TargetReplicas)
}

func TestHandleAutoscale_NotWired(t *testing.T) {
	h := NewAdminHandler(&mockReconfigurer{}, nil, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/admin/autoscale", nil)
	rec := httptest.NewRecorder()
	h.HandleAutoscale(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
