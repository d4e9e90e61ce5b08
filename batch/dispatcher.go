package batch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/llmserve/types"
)

// Handler serves one frozen batch and returns exactly one result per
// request, in the same order.
type Handler func(ctx context.Context, reqs []types.InferenceRequest) []types.InferenceResult

// Window close reasons, for logging and metrics.
const (
	CloseReasonSize    = "size"
	CloseReasonTimeout = "timeout"
	CloseReasonDrain   = "drain"
)

type pending struct {
	req  types.InferenceRequest
	done chan types.InferenceResult // buffered, capacity 1
}

// Dispatcher accumulates submissions into batch windows and serves them
// through the handler. See the package documentation for the lifecycle.
type Dispatcher struct {
	handler Handler
	opts    Options
	logger  *zap.Logger

	config atomic.Pointer[Config]
	queue  chan *pending

	mu     sync.RWMutex // guards queue sends against Close
	closed bool
	wg     sync.WaitGroup

	queued  atomic.Int64
	ongoing atomic.Int64

	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	batches   atomic.Int64
}

// NewDispatcher creates a dispatcher with the given initial config and
// starts its collector. The config must be valid; NewDispatcher panics
// otherwise since there is no meaningful way to run without one.
func NewDispatcher(cfg Config, handler Handler, logger *zap.Logger, opts ...Options) *Dispatcher {
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("batch: invalid initial config: %v", err))
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	var o Options
	if len(opts) > 0 {
		o = opts[0]
	}
	o = o.withDefaults()

	d := &Dispatcher{
		handler: handler,
		opts:    o,
		logger:  logger.With(zap.String("component", "batch_dispatcher")),
		queue:   make(chan *pending, o.QueueSize),
	}
	d.config.Store(&cfg)

	for i := 0; i < o.Workers; i++ {
		d.wg.Add(1)
		go d.collect()
	}
	return d
}

// Submit hands one request to the dispatcher and blocks until its result is
// delivered. Admission may block while the queue is full. Once admitted the
// request cannot be cancelled: it will be batched and served even if the
// caller's context expires, in which case Submit returns the context error
// and the eventual result is discarded.
func (d *Dispatcher) Submit(ctx context.Context, req types.InferenceRequest) (types.InferenceResult, error) {
	p := &pending{req: req, done: make(chan types.InferenceResult, 1)}

	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		return types.InferenceResult{}, types.NewError(types.ErrDispatcherClosed, "dispatcher closed")
	}
	select {
	case d.queue <- p:
		d.mu.RUnlock()
		d.submitted.Add(1)
		d.queued.Add(1)
	case <-ctx.Done():
		d.mu.RUnlock()
		return types.InferenceResult{}, ctx.Err()
	}

	select {
	case res := <-p.done:
		return res, nil
	case <-ctx.Done():
		return types.InferenceResult{}, ctx.Err()
	}
}

// Reconfigure validates cfg and atomically makes it the active config. A
// window already open continues under its snapshot; the next window uses
// the new values. On validation failure the previous config is untouched.
func (d *Dispatcher) Reconfigure(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		d.logger.Warn("reconfigure rejected", zap.Error(err))
		return err
	}
	old := d.config.Swap(&cfg)
	d.logger.Info("reconfigured",
		zap.Int("max_batch_size", cfg.MaxBatchSize),
		zap.Duration("batch_wait", cfg.BatchWait),
		zap.Int("prev_max_batch_size", old.MaxBatchSize),
		zap.Duration("prev_batch_wait", old.BatchWait),
	)
	return nil
}

// ActiveConfig returns the config the next window will open under.
func (d *Dispatcher) ActiveConfig() Config {
	return *d.config.Load()
}

// Ongoing returns the number of requests currently being served by the
// handler. This is the in-flight load signal for capacity decisions.
func (d *Dispatcher) Ongoing() int {
	return int(d.ongoing.Load())
}

// Queued returns the number of admitted requests not yet frozen into a
// batch. This is the queued load signal for capacity decisions.
func (d *Dispatcher) Queued() int {
	return int(d.queued.Load())
}

// Stats is a point-in-time snapshot of dispatcher counters.
type Stats struct {
	Submitted int64 `json:"submitted"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Batches   int64 `json:"batches"`
	Queued    int   `json:"queued"`
	Ongoing   int   `json:"ongoing"`
}

// Stats returns current counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Submitted: d.submitted.Load(),
		Completed: d.completed.Load(),
		Failed:    d.failed.Load(),
		Batches:   d.batches.Load(),
		Queued:    int(d.queued.Load()),
		Ongoing:   int(d.ongoing.Load()),
	}
}

// Close stops admission, drains pending requests into final batches, and
// waits for their results to be delivered. Safe to call more than once.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
	d.logger.Info("dispatcher closed",
		zap.Int64("submitted", d.submitted.Load()),
		zap.Int64("completed", d.completed.Load()),
		zap.Int64("failed", d.failed.Load()),
	)
}

// collect owns the window state machine: Idle -> Accumulating -> Closing ->
// Invoking -> Idle. One collector means one window closes at a time and at
// most one batch is in flight.
func (d *Dispatcher) collect() {
	defer d.wg.Done()

	for {
		// Idle: block until the first arrival opens a window.
		first, ok := <-d.queue
		if !ok {
			return
		}

		// Accumulating: the config snapshot taken here governs this
		// window even if Reconfigure runs before it closes.
		cfg := *d.config.Load()
		window := []*pending{first}
		reason := CloseReasonSize

		if len(window) < cfg.MaxBatchSize {
			timer := time.NewTimer(cfg.BatchWait)
		accumulate:
			for len(window) < cfg.MaxBatchSize {
				select {
				case p, ok := <-d.queue:
					if !ok {
						reason = CloseReasonDrain
						break accumulate
					}
					window = append(window, p)
				case <-timer.C:
					reason = CloseReasonTimeout
					break accumulate
				}
			}
			timer.Stop()
		}

		// Closing: freeze and invoke. Arrivals from here on belong to
		// the next window.
		d.invoke(window, cfg, reason)

		if reason == CloseReasonDrain {
			d.drain()
			return
		}
	}
}

// drain serves whatever remains in the closed queue as one final batch per
// pass, so no admitted request is left without a result.
func (d *Dispatcher) drain() {
	cfg := *d.config.Load()
	window := make([]*pending, 0, cfg.MaxBatchSize)
	for p := range d.queue {
		window = append(window, p)
		if len(window) == cfg.MaxBatchSize {
			d.invoke(window, cfg, CloseReasonDrain)
			window = window[:0]
		}
	}
	if len(window) > 0 {
		d.invoke(window, cfg, CloseReasonDrain)
	}
}

// invoke serves one frozen window and fans results out by position.
func (d *Dispatcher) invoke(window []*pending, cfg Config, reason string) {
	size := len(window)
	d.queued.Add(int64(-size))
	d.ongoing.Add(int64(size))
	d.batches.Add(1)
	defer d.ongoing.Add(int64(-size))

	reqs := make([]types.InferenceRequest, size)
	for i, p := range window {
		reqs[i] = p.req
	}

	start := time.Now()
	results := d.run(reqs)
	elapsed := time.Since(start)

	d.logger.Debug("batch served",
		zap.Int("batch_size", size),
		zap.String("close_reason", reason),
		zap.Duration("batch_time", elapsed),
		zap.Int("max_batch_size", cfg.MaxBatchSize),
	)

	if d.opts.OnBatch != nil {
		d.opts.OnBatch(size, reason)
	}

	for i, p := range window {
		res := results[i]
		if res.Success {
			d.completed.Add(1)
		} else {
			d.failed.Add(1)
		}
		p.done <- res
	}
}

// run calls the handler and contains wholesale failures: a panic or a
// result count that does not match the batch becomes a shared failure
// result for every member, never a lost request.
func (d *Dispatcher) run(reqs []types.InferenceRequest) (results []types.InferenceResult) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("batch handler panicked",
				zap.Any("panic", r),
				zap.Int("batch_size", len(reqs)),
			)
			results = d.failAll(reqs, fmt.Sprintf("batch handler panicked: %v", r))
		}
	}()

	results = d.handler(context.Background(), reqs)
	if len(results) != len(reqs) {
		d.logger.Error("batch handler result count mismatch",
			zap.Int("batch_size", len(reqs)),
			zap.Int("result_count", len(results)),
		)
		results = d.failAll(reqs, fmt.Sprintf(
			"batch handler returned %d results for %d requests", len(results), len(reqs)))
	}
	return results
}

func (d *Dispatcher) failAll(reqs []types.InferenceRequest, msg string) []types.InferenceResult {
	err := types.NewError(types.ErrAdapterUnavailable, msg)
	results := make([]types.InferenceResult, len(reqs))
	for i, req := range reqs {
		results[i] = types.FailureResult(req.RequestID, err)
	}
	return results
}
