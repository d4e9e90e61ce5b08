package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, 16, cfg.Batch.MaxBatchSize)
	assert.Equal(t, 50*time.Millisecond, cfg.Batch.BatchWait)
	assert.Equal(t, 1, cfg.Autoscale.MinReplicas)
	assert.Equal(t, 10, cfg.Autoscale.MaxReplicas)
	assert.Equal(t, 8, cfg.Autoscale.TargetOngoingRequests)
	assert.Equal(t, 4, cfg.Autoscale.TargetQueuedRequests)
	assert.Equal(t, 10*time.Second, cfg.Autoscale.UpscaleDelay)
	assert.Equal(t, 300*time.Second, cfg.Autoscale.DownscaleDelay)
	assert.False(t, cfg.Cache.Enabled)
	assert.False(t, cfg.Telemetry.Enabled)

	require.NoError(t, cfg.Validate())
}

func TestLoader_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "llmserve.yaml")
	data := `
server:
  port: 9090
model:
  path: /models/test.gguf
  context_size: 4096
batch:
  max_batch_size: 4
  batch_wait: 10ms
autoscale:
  max_replicas: 3
cache:
  enabled: true
  redis_addr: localhost:6379
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "/models/test.gguf", cfg.Model.Path)
	assert.Equal(t, 4096, cfg.Model.ContextSize)
	assert.Equal(t, 4, cfg.Batch.MaxBatchSize)
	assert.Equal(t, 10*time.Millisecond, cfg.Batch.BatchWait)
	assert.Equal(t, 3, cfg.Autoscale.MaxReplicas)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, "localhost:6379", cfg.Cache.RedisAddr)

	// Untouched sections keep their defaults.
	assert.Equal(t, 1, cfg.Autoscale.MinReplicas)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoader_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath("/nonexistent/llmserve.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, 8000, cfg.Server.Port)
}

func TestLoader_EnvOverrides(t *testing.T) {
	t.Setenv("LLMSERVE_SERVER_PORT", "7070")
	t.Setenv("LLMSERVE_BATCH_MAX_BATCH_SIZE", "32")
	t.Setenv("LLMSERVE_BATCH_BATCH_WAIT", "25ms")
	t.Setenv("LLMSERVE_AUTOSCALE_DOWNSCALE_DELAY", "2m")
	t.Setenv("LLMSERVE_CACHE_ENABLED", "true")
	t.Setenv("LLMSERVE_LOG_LEVEL", "debug")
	t.Setenv("LLMSERVE_LOG_OUTPUT_PATHS", "stdout, /var/log/llmserve.log")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, 32, cfg.Batch.MaxBatchSize)
	assert.Equal(t, 25*time.Millisecond, cfg.Batch.BatchWait)
	assert.Equal(t, 2*time.Minute, cfg.Autoscale.DownscaleDelay)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, []string{"stdout", "/var/log/llmserve.log"}, cfg.Log.OutputPaths)
}

func TestLoader_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "llmserve.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9090\n"), 0o644))

	t.Setenv("LLMSERVE_SERVER_PORT", "7070")

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
}

func TestLoader_LegacyEnvAliases(t *testing.T) {
	t.Setenv("MODEL_PATH", "/models/override.gguf")
	t.Setenv("N_CTX", "2048")
	t.Setenv("N_GPU_LAYERS", "35")
	t.Setenv("LLAMA_N_THREADS", "8")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, "/models/override.gguf", cfg.Model.Path)
	assert.Equal(t, 2048, cfg.Model.ContextSize)
	assert.Equal(t, 35, cfg.Model.GPULayers)
	assert.Equal(t, 8, cfg.Model.Threads)
}

func TestLoader_PrefixedWinsOverAlias(t *testing.T) {
	t.Setenv("N_CTX", "2048")
	t.Setenv("LLMSERVE_MODEL_CONTEXT_SIZE", "16384")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	assert.Equal(t, 16384, cfg.Model.ContextSize)
}

func TestLoader_ValidationFailure(t *testing.T) {
	t.Setenv("LLMSERVE_BATCH_MAX_BATCH_SIZE", "0")

	_, err := NewLoader().Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch")
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Model.Path = ""
	cfg.Model.BaseURL = ""
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Telemetry.SampleRate = 1.5
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Server.Port = -1
	assert.Error(t, cfg.Validate())
}

func TestRuntimeConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Model.Path = "/models/m.gguf"
	cfg.Model.GPULayers = 20

	rc := cfg.RuntimeConfig()
	assert.Equal(t, "/models/m.gguf", rc.ModelPath)
	assert.Equal(t, 20, rc.GPULayers)
	assert.Equal(t, cfg.Model.ContextSize, rc.ContextSize)
	assert.Equal(t, 120*time.Second, rc.StartupTimeout)
}
