package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the service.
type ErrorCode string

const (
	// ErrEmptyMessages marks a request submitted without any messages.
	// Always recoverable; the request fails, its batch continues.
	ErrEmptyMessages ErrorCode = "EMPTY_MESSAGES"

	// ErrContextTooLong marks a prompt that exceeds the model context window.
	ErrContextTooLong ErrorCode = "CONTEXT_TOO_LONG"

	// ErrInferenceFailure marks a model invocation that raised or returned
	// malformed output. Recoverable at request granularity.
	ErrInferenceFailure ErrorCode = "INFERENCE_FAILURE"

	// ErrAdapterUnavailable marks a wholesale invocation failure. Every
	// member of the affected batch receives a failure result with this code.
	ErrAdapterUnavailable ErrorCode = "ADAPTER_UNAVAILABLE"

	// ErrInvalidConfig marks a rejected reconfiguration. The previous
	// config stays in effect.
	ErrInvalidConfig ErrorCode = "INVALID_CONFIG"

	// ErrDispatcherClosed marks a submission after shutdown began.
	ErrDispatcherClosed ErrorCode = "DISPATCHER_CLOSED"

	// ErrInvalidRequest marks a request the HTTP layer could not
	// decode or accept.
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST"
)

// Error is a structured error with a stable code and an optional cause.
type Error struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
	Cause     error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause attaches a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable() *Error {
	e.Retryable = true
	return e
}

// AsError extracts a *Error from err, or wraps err as INFERENCE_FAILURE.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Code: ErrInferenceFailure, Message: err.Error(), Cause: err}
}

// IsErrorCode reports whether err carries the given code.
func IsErrorCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}
