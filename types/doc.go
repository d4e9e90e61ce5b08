// Copyright (c) llmserve Authors.
// Licensed under the MIT License.

/*
Package types provides the shared type contracts of the llmserve service.

# Overview

types is the lowest-level package of the repository. It depends on nothing
but the standard library and defines the request/result data model that the
model adapter, the batching dispatcher, and the HTTP surface all share, so
that no higher-level package needs to import another one just for its types.

# Core types

  - ChatMessage        — one conversation turn (role, content, tool linkage)
  - ToolSpec           — tool definition (name + description + JSON Schema)
  - ToolCall           — tool invocation emitted by the model
  - InferenceRequest   — a single submitted request, immutable after Normalize
  - InferenceResult    — the per-request outcome, exactly one per request
  - Error / ErrorCode  — structured error taxonomy (EMPTY_MESSAGES,
    INFERENCE_FAILURE, ADAPTER_UNAVAILABLE, INVALID_CONFIG, ...)

# Result contract

Every InferenceRequest resolves to exactly one InferenceResult, positionally
matched within its batch. A successful result never carries an error string;
a failed result never carries content or tool calls. FailureResult and
SuccessResult are the only constructors and preserve that invariant.
*/
package types
