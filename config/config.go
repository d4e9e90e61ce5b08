package config

import (
	"fmt"
	"time"

	"github.com/BaSui01/llmserve/batch"
	"github.com/BaSui01/llmserve/cache"
	"github.com/BaSui01/llmserve/model/llamacpp"
	"github.com/BaSui01/llmserve/scale"
)

// Config is the complete llmserve configuration.
type Config struct {
	// Server configures the HTTP listener.
	Server ServerConfig `yaml:"server"`

	// Model configures the llama.cpp runtime and tokenizer.
	Model ModelConfig `yaml:"model"`

	// Batch configures the micro-batching dispatcher.
	Batch batch.Config `yaml:"batch"`

	// Autoscale configures the capacity controller.
	Autoscale scale.Config `yaml:"autoscale"`

	// Cache configures the inference result cache.
	Cache cache.Config `yaml:"cache"`

	// Log configures structured logging.
	Log LogConfig `yaml:"log"`

	// Telemetry configures OpenTelemetry export.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig configures the HTTP serving surface.
type ServerConfig struct {
	// Host is the listen address.
	Host string `yaml:"host"`

	// Port is the listen port.
	Port int `yaml:"port"`

	// MetricsPort is the Prometheus scrape port.
	MetricsPort int `yaml:"metrics_port"`

	// ReadTimeout bounds reading a full request including the body.
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout bounds writing a full response. Inference can be
	// slow, so this defaults well above the per-request runtime limit.
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// ShutdownTimeout bounds graceful drain on shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// RateLimit is the per-instance request rate cap in requests per
	// second. Zero disables rate limiting.
	RateLimit float64 `yaml:"rate_limit"`

	// RateBurst is the rate limiter burst size.
	RateBurst int `yaml:"rate_burst"`
}

// ModelConfig configures the model runtime.
type ModelConfig struct {
	// Name identifies the served model in responses and tokenizer
	// selection.
	Name string `yaml:"name"`

	// Path is the GGUF model file (managed mode).
	Path string `yaml:"path"`

	// ContextSize is the model context window in tokens.
	ContextSize int `yaml:"context_size"`

	// GPULayers is the number of layers offloaded to the accelerator.
	GPULayers int `yaml:"gpu_layers"`

	// Threads is the inference thread count. Zero lets the runtime
	// pick.
	Threads int `yaml:"threads"`

	// BinaryPath is the llama-server executable for managed mode.
	BinaryPath string `yaml:"binary_path"`

	// Port is the local port the managed server listens on.
	Port int `yaml:"port"`

	// BaseURL attaches to an already-running llama-server instead of
	// spawning one.
	BaseURL string `yaml:"base_url"`

	// StartupTimeout bounds waiting for the managed server to become
	// healthy.
	StartupTimeout time.Duration `yaml:"startup_timeout"`

	// RequestTimeout bounds a single completion call.
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// LogConfig configures zap logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// Format is json or console.
	Format string `yaml:"format"`

	// OutputPaths lists zap output sinks.
	OutputPaths []string `yaml:"output_paths"`
}

// TelemetryConfig configures OpenTelemetry trace and metric export.
type TelemetryConfig struct {
	// Enabled turns export on. When false the SDK is not installed.
	Enabled bool `yaml:"enabled"`

	// OTLPEndpoint is the OTLP/gRPC collector address.
	OTLPEndpoint string `yaml:"otlp_endpoint"`

	// ServiceName overrides the reported service name.
	ServiceName string `yaml:"service_name"`

	// SampleRate is the trace sampling ratio in [0,1].
	SampleRate float64 `yaml:"sample_rate"`
}

// DefaultConfig returns the configuration used when no file and no
// environment overrides are present.
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Model:     DefaultModelConfig(),
		Batch:     batch.DefaultConfig(),
		Autoscale: scale.DefaultConfig(),
		Cache:     cache.DefaultConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig returns the default HTTP listener configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:            "0.0.0.0",
		Port:            8000,
		MetricsPort:     9090,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    600 * time.Second,
		ShutdownTimeout: 30 * time.Second,
		RateLimit:       0,
		RateBurst:       100,
	}
}

// DefaultModelConfig returns the default model runtime configuration.
func DefaultModelConfig() ModelConfig {
	return ModelConfig{
		Name:           "Qwen3-1.7B-Q4_K_M",
		Path:           "/models/Qwen3-1.7B-Q4_K_M.gguf",
		ContextSize:    8192,
		GPULayers:      0,
		Threads:        0,
		BinaryPath:     "llama-server",
		Port:           8089,
		StartupTimeout: 120 * time.Second,
		RequestTimeout: 300 * time.Second,
	}
}

// DefaultLogConfig returns the default logging configuration.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:       "info",
		Format:      "json",
		OutputPaths: []string{"stdout"},
	}
}

// DefaultTelemetryConfig returns the default telemetry configuration.
// Export is off until an endpoint is configured.
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "llmserve",
		SampleRate:   1.0,
	}
}

// Validate checks the aggregate configuration. Component configs carry
// their own validators; section errors are wrapped with the section
// name.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server: invalid port %d", c.Server.Port)
	}
	if c.Model.BaseURL == "" && c.Model.Path == "" {
		return fmt.Errorf("model: either path or base_url must be set")
	}
	if c.Model.ContextSize <= 0 {
		return fmt.Errorf("model: context_size must be positive, got %d", c.Model.ContextSize)
	}
	if err := c.Batch.Validate(); err != nil {
		return fmt.Errorf("batch: %w", err)
	}
	if err := c.Autoscale.Validate(); err != nil {
		return fmt.Errorf("autoscale: %w", err)
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		return fmt.Errorf("telemetry: sample_rate must be in [0,1], got %v", c.Telemetry.SampleRate)
	}
	return nil
}

// RuntimeConfig converts the model section into the llama.cpp runtime
// configuration.
func (c *Config) RuntimeConfig() llamacpp.Config {
	return llamacpp.Config{
		ModelPath:      c.Model.Path,
		ContextSize:    c.Model.ContextSize,
		GPULayers:      c.Model.GPULayers,
		Threads:        c.Model.Threads,
		BinaryPath:     c.Model.BinaryPath,
		Port:           c.Model.Port,
		BaseURL:        c.Model.BaseURL,
		StartupTimeout: c.Model.StartupTimeout,
		RequestTimeout: c.Model.RequestTimeout,
	}
}
