// Copyright (c) llmserve Authors.
// Licensed under the MIT License.

// Package server manages the HTTP listener lifecycle: non-blocking
// start, graceful shutdown with a drain deadline, and signal-driven
// termination for the serve command.
package server
