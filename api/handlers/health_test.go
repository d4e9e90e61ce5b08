package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHandleHealthz(t *testing.T) {
	h := NewHealthHandler(zap.NewNop())

	rec := httptest.NewRecorder()
	h.HandleHealthz(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var status HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "healthy", status.Status)
}

func TestHandleReadyz_NoChecks(t *testing.T) {
	h := NewHealthHandler(zap.NewNop())

	rec := httptest.NewRecorder()
	h.HandleReadyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleReadyz_PassingCheck(t *testing.T) {
	h := NewHealthHandler(zap.NewNop())
	h.RegisterCheck(HealthCheckFunc{
		CheckName: "model",
		Fn:        func(ctx context.Context) error { return nil },
	})

	rec := httptest.NewRecorder()
	h.HandleReadyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var status HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "pass", status.Checks["model"].Status)
}

func TestHandleReadyz_FailingCheck(t *testing.T) {
	h := NewHealthHandler(zap.NewNop())
	h.RegisterCheck(HealthCheckFunc{
		CheckName: "model",
		Fn:        func(ctx context.Context) error { return nil },
	})
	h.RegisterCheck(HealthCheckFunc{
		CheckName: "runtime",
		Fn:        func(ctx context.Context) error { return errors.New("connection refused") },
	})

	rec := httptest.NewRecorder()
	h.HandleReadyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var status HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "unhealthy", status.Status)
	assert.Equal(t, "pass", status.Checks["model"].Status)
	assert.Equal(t, "fail", status.Checks["runtime"].Status)
	assert.Contains(t, status.Checks["runtime"].Message, "connection refused")
}
