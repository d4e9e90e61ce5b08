// Copyright (c) llmserve Authors.
// Licensed under the MIT License.

/*
Package scale computes the desired replica count from the dispatcher's load
signals. It only recommends a target; enacting it (provisioning actual
replicas) belongs to the hosting runtime.

The desired count is the smallest replica count that would bring both the
per-replica in-flight load and the per-replica queued load under their
targets if load were spread evenly. Hysteresis keeps bursty arrivals from
flapping the recommendation: a scale-up must be the sustained direction for
UpscaleDelay before it takes effect, a scale-down for DownscaleDelay.
*/
package scale

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/llmserve/types"
)

// Config holds the capacity policy. Static per deployment.
type Config struct {
	MinReplicas           int           `json:"min_replicas" yaml:"min_replicas"`
	MaxReplicas           int           `json:"max_replicas" yaml:"max_replicas"`
	TargetOngoingRequests int           `json:"target_ongoing_requests" yaml:"target_ongoing_requests"`
	TargetQueuedRequests  int           `json:"target_queued_requests" yaml:"target_queued_requests"`
	UpscaleDelay          time.Duration `json:"upscale_delay" yaml:"upscale_delay"`
	DownscaleDelay        time.Duration `json:"downscale_delay" yaml:"downscale_delay"`
}

// DefaultConfig mirrors the deployment defaults: 1–10 replicas, 8 in-flight
// and 4 queued requests per replica, 10s up / 300s down.
func DefaultConfig() Config {
	return Config{
		MinReplicas:           1,
		MaxReplicas:           10,
		TargetOngoingRequests: 8,
		TargetQueuedRequests:  4,
		UpscaleDelay:          10 * time.Second,
		DownscaleDelay:        300 * time.Second,
	}
}

// Validate rejects configs that cannot produce a target.
func (c Config) Validate() error {
	if c.MinReplicas < 1 {
		return types.NewError(types.ErrInvalidConfig,
			fmt.Sprintf("min_replicas must be at least 1, got %d", c.MinReplicas))
	}
	if c.MaxReplicas < c.MinReplicas {
		return types.NewError(types.ErrInvalidConfig,
			fmt.Sprintf("max_replicas %d below min_replicas %d", c.MaxReplicas, c.MinReplicas))
	}
	if c.TargetOngoingRequests < 1 || c.TargetQueuedRequests < 1 {
		return types.NewError(types.ErrInvalidConfig, "per-replica targets must be at least 1")
	}
	if c.UpscaleDelay < 0 || c.DownscaleDelay < 0 {
		return types.NewError(types.ErrInvalidConfig, "scale delays must not be negative")
	}
	return nil
}

// DesiredReplicas returns the smallest replica count in
// [MinReplicas, MaxReplicas] such that evenly spread load meets both
// per-replica targets. Pure; hysteresis is the Controller's job.
func (c Config) DesiredReplicas(ongoing, queued int) int {
	need := c.MinReplicas
	if n := ceilDiv(ongoing, c.TargetOngoingRequests); n > need {
		need = n
	}
	if n := ceilDiv(queued, c.TargetQueuedRequests); n > need {
		need = n
	}
	if need > c.MaxReplicas {
		need = c.MaxReplicas
	}
	return need
}

func ceilDiv(a, b int) int {
	if a <= 0 {
		return 0
	}
	return (a + b - 1) / b
}

// LoadSource supplies the two continuously sampled load signals. The batch
// dispatcher satisfies it.
type LoadSource interface {
	// Ongoing is the number of requests currently being served.
	Ongoing() int

	// Queued is the number of admitted requests not yet in a batch.
	Queued() int
}

// Controller samples a LoadSource and maintains the hysteresis-filtered
// replica target.
type Controller struct {
	cfg    Config
	source LoadSource
	logger *zap.Logger

	mu             sync.Mutex
	current        int
	pendingDir     int // +1 up, -1 down, 0 steady
	pendingSince   time.Time
	lastRaw        int
	lastSampleTime time.Time
}

// NewController creates a controller starting at MinReplicas.
func NewController(cfg Config, source LoadSource, logger *zap.Logger) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		cfg:     cfg,
		source:  source,
		logger:  logger.With(zap.String("component", "capacity_controller")),
		current: cfg.MinReplicas,
	}, nil
}

// Target returns the current hysteresis-filtered replica recommendation.
func (c *Controller) Target() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Snapshot reports the last observed signals alongside the recommendation.
type Snapshot struct {
	Ongoing        int `json:"ongoing_requests"`
	Queued         int `json:"queued_requests"`
	RawDesired     int `json:"raw_desired_replicas"`
	TargetReplicas int `json:"target_replicas"`
}

// Snapshot returns the last sample and the current target.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		Ongoing:        c.source.Ongoing(),
		Queued:         c.source.Queued(),
		RawDesired:     c.lastRaw,
		TargetReplicas: c.current,
	}
}

// Sample evaluates the load signals at the given instant and returns the
// target in effect afterwards. A raw desire above the current target must
// hold for UpscaleDelay before the target moves up; below, for
// DownscaleDelay before it moves down. A direction change resets the clock.
func (c *Controller) Sample(now time.Time) int {
	ongoing := c.source.Ongoing()
	queued := c.source.Queued()
	raw := c.cfg.DesiredReplicas(ongoing, queued)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastRaw = raw
	c.lastSampleTime = now

	dir := 0
	switch {
	case raw > c.current:
		dir = 1
	case raw < c.current:
		dir = -1
	}

	if dir == 0 {
		c.pendingDir = 0
		return c.current
	}

	if dir != c.pendingDir {
		c.pendingDir = dir
		c.pendingSince = now
		return c.current
	}

	delay := c.cfg.UpscaleDelay
	if dir < 0 {
		delay = c.cfg.DownscaleDelay
	}
	if now.Sub(c.pendingSince) < delay {
		return c.current
	}

	c.logger.Info("replica target changed",
		zap.Int("from", c.current),
		zap.Int("to", raw),
		zap.Int("ongoing_requests", ongoing),
		zap.Int("queued_requests", queued),
		zap.Duration("sustained_for", now.Sub(c.pendingSince)),
	)
	c.current = raw
	c.pendingDir = 0
	return c.current
}

// Run samples on the given interval until ctx is done. On every target
// change the optional notify callback receives the new value.
func (c *Controller) Run(ctx context.Context, interval time.Duration, notify func(target int)) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := c.Target()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			target := c.Sample(now)
			if target != last && notify != nil {
				notify(target)
			}
			last = target
		}
	}
}
