// Copyright (c) llmserve Authors.
// Licensed under the MIT License.

/*
Package handlers implements the HTTP endpoints.

# Overview

  - CompletionHandler serves POST /v1/completions: it consults the
    result cache, submits to the dispatcher, and returns the result
    with HTTP 200 whether the inference succeeded or failed. Only
    transport-level problems (malformed JSON, shutdown) map to
    non-200 statuses.
  - AdminHandler serves POST /admin/reconfigure and
    GET /admin/autoscale.
  - HealthHandler serves /healthz (liveness) and /readyz (readiness
    gated on registered checks).

Handlers hold their collaborators behind small interfaces so tests
can drive them without a model runtime.
*/
package handlers
