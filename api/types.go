package api

import (
	"fmt"
	"time"

	"github.com/BaSui01/llmserve/batch"
	"github.com/BaSui01/llmserve/types"
)

// CompletionRequest is the POST /v1/completions body.
type CompletionRequest struct {
	// RequestID correlates the response. Assigned by the server when
	// absent.
	RequestID string `json:"request_id,omitempty"`

	// Messages is the chat transcript, oldest first.
	Messages []types.ChatMessage `json:"messages"`

	// MaxTokens caps the completion length. Zero means the server
	// default.
	MaxTokens int `json:"max_tokens,omitempty"`

	// Temperature is the sampling temperature. Zero means the server
	// default.
	Temperature float32 `json:"temperature,omitempty"`

	// Tools the model may call. Their presence forces structured
	// JSON output.
	Tools []types.ToolSpec `json:"tools,omitempty"`

	// ToolChoice steers tool selection ("auto", "none" or a tool
	// name).
	ToolChoice string `json:"tool_choice,omitempty"`
}

// ToInference converts the wire request into the internal form. The
// request id must already be assigned.
func (r *CompletionRequest) ToInference() types.InferenceRequest {
	return types.InferenceRequest{
		RequestID:   r.RequestID,
		Messages:    r.Messages,
		MaxTokens:   r.MaxTokens,
		Temperature: r.Temperature,
		Tools:       r.Tools,
		ToolChoice:  r.ToolChoice,
	}
}

// CompletionResponse is the POST /v1/completions body on return. It
// mirrors the internal result contract.
type CompletionResponse = types.InferenceResult

// ReconfigureRequest is the POST /admin/reconfigure body. BatchWait
// takes Go duration syntax ("50ms").
type ReconfigureRequest struct {
	MaxBatchSize int    `json:"max_batch_size"`
	BatchWait    string `json:"batch_wait"`
}

// ToBatchConfig parses the wire form into a batch configuration. The
// returned config is not yet validated.
func (r *ReconfigureRequest) ToBatchConfig() (batch.Config, error) {
	wait, err := time.ParseDuration(r.BatchWait)
	if err != nil {
		return batch.Config{}, fmt.Errorf("invalid batch_wait %q: %w", r.BatchWait, err)
	}
	return batch.Config{
		MaxBatchSize: r.MaxBatchSize,
		BatchWait:    wait,
	}, nil
}

// ReconfigureResponse reports the config now in effect for the next
// window.
type ReconfigureResponse struct {
	MaxBatchSize int    `json:"max_batch_size"`
	BatchWait    string `json:"batch_wait"`
}

// AutoscaleStatus is the GET /admin/autoscale body.
type AutoscaleStatus struct {
	OngoingRequests    int `json:"ongoing_requests"`
	QueuedRequests     int `json:"queued_requests"`
	RawDesiredReplicas int `json:"raw_desired_replicas"`
	TargetReplicas     int `json:"target_replicas"`
}
