// Copyright (c) llmserve Authors.
// Licensed under the MIT License.

// Package telemetry initializes the OpenTelemetry SDK for trace and
// metric export over OTLP/gRPC. When telemetry is disabled, the global
// providers stay noop and nothing connects out.
package telemetry
