// Copyright (c) llmserve Authors.
// Licensed under the MIT License.

// Package config loads the llmserve configuration from defaults, an
// optional YAML file, and environment variable overrides, in that order
// of increasing precedence.
//
// # Overview
//
// The top-level Config aggregates the per-subsystem configurations
// (server, model runtime, batching, autoscaling, cache, logging,
// telemetry). Defaults come from DefaultConfig; a YAML file, when
// present, overrides defaults; environment variables with the
// LLMSERVE_ prefix override both:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("llmserve.yaml").
//	    Load()
//
// Env keys are derived from the struct layout, section by section:
// LLMSERVE_BATCH_MAX_BATCH_SIZE, LLMSERVE_MODEL_PATH and so on.
// A handful of unprefixed aliases (MODEL_PATH, N_CTX, N_GPU_LAYERS,
// LLAMA_N_THREADS) are honored for compatibility with existing
// deployment manifests.
package config
