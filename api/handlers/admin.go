package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/BaSui01/llmserve/api"
	"github.com/BaSui01/llmserve/batch"
	"github.com/BaSui01/llmserve/scale"
	"github.com/BaSui01/llmserve/types"
)

// Reconfigurer is the dispatcher surface the admin endpoint needs.
type Reconfigurer interface {
	Reconfigure(cfg batch.Config) error
	ActiveConfig() batch.Config
}

// AutoscaleReporter exposes the capacity controller state.
type AutoscaleReporter interface {
	Snapshot() scale.Snapshot
}

// AdminHandler serves the operator endpoints.
type AdminHandler struct {
	dispatcher Reconfigurer
	autoscale  AutoscaleReporter
	logger     *zap.Logger
}

// NewAdminHandler wires the admin endpoints. The autoscale reporter
// may be nil; the endpoint then returns 404.
func NewAdminHandler(dispatcher Reconfigurer, autoscale AutoscaleReporter, logger *zap.Logger) *AdminHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminHandler{
		dispatcher: dispatcher,
		autoscale:  autoscale,
		logger:     logger.With(zap.String("component", "admin_handler")),
	}
}

// HandleReconfigure swaps the batching configuration. A rejected
// config returns 400 and leaves the previous config untouched.
func (h *AdminHandler) HandleReconfigure(w http.ResponseWriter, r *http.Request) {
	var req api.ReconfigureRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	cfg, err := req.ToBatchConfig()
	if err != nil {
		WriteError(w, types.NewError(types.ErrInvalidConfig, err.Error()), h.logger)
		return
	}

	if err := h.dispatcher.Reconfigure(cfg); err != nil {
		WriteError(w, types.AsError(err), h.logger)
		return
	}

	active := h.dispatcher.ActiveConfig()
	h.logger.Info("batching reconfigured",
		zap.Int("max_batch_size", active.MaxBatchSize),
		zap.Duration("batch_wait", active.BatchWait),
	)

	WriteJSON(w, http.StatusOK, api.ReconfigureResponse{
		MaxBatchSize: active.MaxBatchSize,
		BatchWait:    active.BatchWait.String(),
	})
}

// HandleAutoscale reports current load signals and the replica
// target.
func (h *AdminHandler) HandleAutoscale(w http.ResponseWriter, r *http.Request) {
	if h.autoscale == nil {
		http.NotFound(w, r)
		return
	}

	snap := h.autoscale.Snapshot()
	WriteJSON(w, http.StatusOK, api.AutoscaleStatus{
		OngoingRequests:    snap.Ongoing,
		QueuedRequests:     snap.Queued,
		RawDesiredReplicas: snap.RawDesired,
		TargetReplicas:     snap.TargetReplicas,
	})
}
