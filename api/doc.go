// Copyright (c) llmserve Authors.
// Licensed under the MIT License.

// Package api defines the HTTP wire types for the completion and
// admin endpoints. Inference outcomes travel in-band: a completion
// response is always HTTP 200 with per-request success or failure
// inside the body.
package api
