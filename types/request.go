package types

// Default generation parameters applied by Normalize.
const (
	DefaultMaxTokens   = 512
	DefaultTemperature = 0.1
)

// InferenceRequest is a single chat-style inference request. It is immutable
// once submitted; RequestID is used for logging and correlation only, never
// for result matching. Results are matched by position within a batch.
type InferenceRequest struct {
	RequestID   string        `json:"request_id"`
	Messages    []ChatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float32       `json:"temperature,omitempty"`
	Tools       []ToolSpec    `json:"tools,omitempty"`
	ToolChoice  string        `json:"tool_choice,omitempty"`
}

// Normalize returns a copy of the request with generation defaults applied.
func (r InferenceRequest) Normalize() InferenceRequest {
	if r.MaxTokens <= 0 {
		r.MaxTokens = DefaultMaxTokens
	}
	if r.Temperature <= 0 {
		r.Temperature = DefaultTemperature
	}
	return r
}

// TokenUsage reports the model's token accounting for one request.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// InferenceResult is the outcome of exactly one InferenceRequest.
//
// Invariant: Success implies Error is empty; failure implies Content and
// ToolCalls are empty. Use SuccessResult and FailureResult to construct.
type InferenceResult struct {
	RequestID string      `json:"request_id"`
	Success   bool        `json:"success"`
	Error     string      `json:"error,omitempty"`
	Content   string      `json:"content,omitempty"`
	ToolCalls []ToolCall  `json:"tool_calls,omitempty"`
	Usage     *TokenUsage `json:"usage,omitempty"`
}

// SuccessResult builds a successful result for the given request.
func SuccessResult(requestID, content string, toolCalls []ToolCall, usage *TokenUsage) InferenceResult {
	if usage == nil {
		usage = &TokenUsage{}
	}
	return InferenceResult{
		RequestID: requestID,
		Success:   true,
		Content:   content,
		ToolCalls: toolCalls,
		Usage:     usage,
	}
}

// FailureResult builds a failed result for the given request. For a typed
// *Error without a cause the short message is kept verbatim, so stable error
// kinds such as "empty_messages" survive to the wire untouched.
func FailureResult(requestID string, err error) InferenceResult {
	msg := "unknown error"
	switch e := err.(type) {
	case nil:
	case *Error:
		if e.Cause == nil {
			msg = e.Message
		} else {
			msg = e.Error()
		}
	default:
		msg = err.Error()
	}
	return InferenceResult{
		RequestID: requestID,
		Success:   false,
		Error:     msg,
	}
}
