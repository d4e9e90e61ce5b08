package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Format(t *testing.T) {
	err := NewError(ErrInvalidConfig, "max_batch_size must be positive")
	assert.Equal(t, "[INVALID_CONFIG] max_batch_size must be positive", err.Error())

	withCause := NewError(ErrInferenceFailure, "invocation failed").WithCause(errors.New("oom"))
	assert.Equal(t, "[INFERENCE_FAILURE] invocation failed: oom", withCause.Error())
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewError(ErrAdapterUnavailable, "runtime unreachable").WithCause(cause)

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, fmt.Errorf("submit: %w", err), cause)
}

func TestIsErrorCode(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", NewError(ErrInvalidConfig, "bad"))

	assert.True(t, IsErrorCode(err, ErrInvalidConfig))
	assert.False(t, IsErrorCode(err, ErrInferenceFailure))
	assert.False(t, IsErrorCode(errors.New("plain"), ErrInvalidConfig))
}

func TestAsError(t *testing.T) {
	typed := NewError(ErrEmptyMessages, "empty_messages")
	require.Same(t, typed, AsError(fmt.Errorf("w: %w", typed)))

	converted := AsError(errors.New("boom"))
	assert.Equal(t, ErrInferenceFailure, converted.Code)
	assert.Equal(t, "boom", converted.Message)
}
