package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/llmserve/api"
	"github.com/BaSui01/llmserve/cache"
	"github.com/BaSui01/llmserve/internal/metrics"
	"github.com/BaSui01/llmserve/types"
)

// Submitter is the dispatcher surface the completion handler needs.
type Submitter interface {
	Submit(ctx context.Context, req types.InferenceRequest) (types.InferenceResult, error)
}

// CompletionHandler serves POST /v1/completions.
type CompletionHandler struct {
	dispatcher Submitter
	cache      *cache.ResultCache
	collector  *metrics.Collector
	logger     *zap.Logger
}

// NewCompletionHandler wires the completion endpoint. Cache and
// collector may be nil.
func NewCompletionHandler(dispatcher Submitter, rc *cache.ResultCache, collector *metrics.Collector, logger *zap.Logger) *CompletionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CompletionHandler{
		dispatcher: dispatcher,
		cache:      rc,
		collector:  collector,
		logger:     logger.With(zap.String("component", "completion_handler")),
	}
}

// HandleCompletion decodes the request, consults the cache, and
// submits to the dispatcher. Inference failures come back in-band
// with HTTP 200; only transport problems map to error statuses.
func (h *CompletionHandler) HandleCompletion(w http.ResponseWriter, r *http.Request) {
	var req api.CompletionRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	infReq := req.ToInference()
	start := time.Now()

	if h.cache != nil {
		if result, err := h.cache.Get(r.Context(), infReq); err == nil {
			if h.collector != nil {
				h.collector.RecordCacheHit()
			}
			h.logger.Debug("cache hit", zap.String("request_id", infReq.RequestID))
			WriteJSON(w, http.StatusOK, result)
			return
		}
		if h.collector != nil {
			h.collector.RecordCacheMiss()
		}
	}

	result, err := h.dispatcher.Submit(r.Context(), infReq)
	if err != nil {
		h.writeSubmitError(w, r, err)
		return
	}

	if h.collector != nil {
		h.collector.RecordInference(&result, time.Since(start))
	}
	if h.cache != nil {
		h.cache.Put(r.Context(), infReq, result)
	}

	WriteJSON(w, http.StatusOK, result)
}

// writeSubmitError handles the cases where no result was produced:
// dispatcher shutdown or the client going away mid-wait.
func (h *CompletionHandler) writeSubmitError(w http.ResponseWriter, r *http.Request, err error) {
	var typed *types.Error
	if errors.As(err, &typed) {
		WriteError(w, typed, h.logger)
		return
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		// The client is gone; the status is best effort.
		WriteError(w, types.NewError(types.ErrInvalidRequest, "request canceled").WithCause(err), h.logger)
		return
	}
	WriteError(w, types.NewError(types.ErrInferenceFailure, "submission failed").WithCause(err), h.logger)
}
