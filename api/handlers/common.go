package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/llmserve/types"
)

// ErrorResponse is the body for non-200 responses.
type ErrorResponse struct {
	Error     ErrorInfo `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorInfo carries the error code and message.
type ErrorInfo struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}

// WriteJSON writes data as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteError writes a typed error with its mapped HTTP status.
func WriteError(w http.ResponseWriter, err *types.Error, logger *zap.Logger) {
	status := httpStatusFor(err.Code)

	if logger != nil {
		logger.Warn("request failed",
			zap.String("code", string(err.Code)),
			zap.String("message", err.Message),
			zap.Int("status", status),
		)
	}

	WriteJSON(w, status, ErrorResponse{
		Error: ErrorInfo{
			Code:      string(err.Code),
			Message:   err.Message,
			Retryable: err.Retryable,
		},
		Timestamp: time.Now(),
	})
}

func httpStatusFor(code types.ErrorCode) int {
	switch code {
	case types.ErrInvalidRequest, types.ErrInvalidConfig, types.ErrEmptyMessages:
		return http.StatusBadRequest
	case types.ErrContextTooLong:
		return http.StatusRequestEntityTooLarge
	case types.ErrDispatcherClosed, types.ErrAdapterUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// DecodeJSONBody decodes the request body into dst, writing a 400 on
// failure.
func DecodeJSONBody(w http.ResponseWriter, r *http.Request, dst interface{}, logger *zap.Logger) error {
	if r.Body == nil {
		err := types.NewError(types.ErrInvalidRequest, "request body is empty")
		WriteError(w, err, logger)
		return err
	}

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		apiErr := types.NewError(types.ErrInvalidRequest, "invalid JSON body").WithCause(err)
		WriteError(w, apiErr, logger)
		return apiErr
	}

	return nil
}
