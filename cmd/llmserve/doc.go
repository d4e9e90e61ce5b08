// Copyright (c) llmserve Authors.
// Licensed under the MIT License.

/*
Package main provides the llmserve executable.

# Overview

cmd/llmserve boots the inference service: it loads configuration
(YAML plus environment overrides), builds the llama.cpp runtime and
model adapter, starts the micro-batching dispatcher and capacity
controller, and serves the completion and admin endpoints over HTTP
with Prometheus metrics on a separate port.

# Main capabilities

  - Subcommands: serve, version, health
  - Middleware chain: Recovery, RequestID, SecurityHeaders,
    RequestLogger, RateLimiter (per client IP), metrics recording
  - Graceful shutdown: signal wait, HTTP drain, dispatcher drain,
    runtime stop
  - Build injection: Version, BuildTime, GitCommit via ldflags
*/
package main
