package batch

import (
	"fmt"
	"time"

	"github.com/BaSui01/llmserve/types"
)

// Config holds the live-tunable batching parameters. It is swapped as a
// whole by Reconfigure, so readers always see a consistent pair.
type Config struct {
	// MaxBatchSize closes a window when the pending count reaches it.
	MaxBatchSize int `json:"max_batch_size" yaml:"max_batch_size"`

	// BatchWait closes a window when this much time has passed since it
	// opened, regardless of size. Zero means close immediately after the
	// first arrival is collected.
	BatchWait time.Duration `json:"batch_wait" yaml:"batch_wait"`
}

// DefaultConfig mirrors the deployment defaults: batches of up to 16
// requests, 50ms window.
func DefaultConfig() Config {
	return Config{
		MaxBatchSize: 16,
		BatchWait:    50 * time.Millisecond,
	}
}

// Validate rejects configs no window could run under.
func (c Config) Validate() error {
	if c.MaxBatchSize <= 0 {
		return types.NewError(types.ErrInvalidConfig,
			fmt.Sprintf("max_batch_size must be positive, got %d", c.MaxBatchSize))
	}
	if c.BatchWait < 0 {
		return types.NewError(types.ErrInvalidConfig,
			fmt.Sprintf("batch_wait must not be negative, got %s", c.BatchWait))
	}
	return nil
}

// Options holds the dispatcher parameters that are fixed at construction,
// as opposed to the live-tunable Config.
type Options struct {
	// QueueSize bounds the pending request queue. Defaults to 1024.
	QueueSize int

	// Workers is the number of collector goroutines. The default of 1
	// gives the single-writer window semantics; with more than one, each
	// worker may have a batch in flight concurrently, so the handler must
	// be safe for overlapping invocations (one adapter per worker).
	Workers int

	// OnBatch, when set, is called after each served window with its
	// size and close reason. Used for metrics.
	OnBatch func(size int, reason string)
}

func (o Options) withDefaults() Options {
	if o.QueueSize <= 0 {
		o.QueueSize = 1024
	}
	if o.Workers <= 0 {
		o.Workers = 1
	}
	return o
}
