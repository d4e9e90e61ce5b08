package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/BaSui01/llmserve/types"
)

// LoadSource exposes live dispatcher load for gauge export.
type LoadSource interface {
	Ongoing() int
	Queued() int
}

// Collector holds the service metrics.
type Collector struct {
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	inferenceTotal    *prometheus.CounterVec
	inferenceDuration prometheus.Histogram
	tokensUsed        *prometheus.CounterVec

	batchSize  prometheus.Histogram
	batchTotal *prometheus.CounterVec

	cacheHits   prometheus.Counter
	cacheMisses prometheus.Counter

	targetReplicas prometheus.Gauge

	registry prometheus.Registerer
	logger   *zap.Logger
}

// NewCollector registers the service metrics under namespace. A nil
// registerer falls back to the default Prometheus registry.
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)

	c := &Collector{
		registry: reg,
		logger:   logger.With(zap.String("component", "metrics")),
	}

	c.httpRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.inferenceTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inference_requests_total",
			Help:      "Total number of inference requests by outcome",
		},
		[]string{"outcome"},
	)

	c.inferenceDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "inference_duration_seconds",
			Help:      "End to end inference latency including queueing",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		},
	)

	c.tokensUsed = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_total",
			Help:      "Total tokens consumed",
		},
		[]string{"type"},
	)

	c.batchSize = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Number of requests per invoked batch",
			Buckets:   prometheus.LinearBuckets(1, 2, 16),
		},
	)

	c.batchTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Total invoked batches by close reason",
		},
		[]string{"reason"},
	)

	c.cacheHits = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Result cache hits",
		},
	)

	c.cacheMisses = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Result cache misses",
		},
	)

	c.targetReplicas = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "autoscale_target_replicas",
			Help:      "Current replica target from the capacity controller",
		},
	)

	return c
}

// ObserveLoad exports dispatcher queue depth and in-flight count as
// gauges read at scrape time.
func (c *Collector) ObserveLoad(namespace string, src LoadSource) {
	factory := promauto.With(c.registry)
	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ongoing_requests",
			Help:      "Requests admitted and not yet resolved",
		},
		func() float64 { return float64(src.Ongoing()) },
	)
	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queued_requests",
			Help:      "Requests waiting for a batch window",
		},
		func() float64 { return float64(src.Queued()) },
	)
}

// RecordHTTPRequest records one handled HTTP request.
func (c *Collector) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordInference records one resolved inference request. The outcome
// label stays low cardinality: "ok", "error" or a well known short
// failure string such as "empty_messages".
func (c *Collector) RecordInference(result *types.InferenceResult, duration time.Duration) {
	outcome := "ok"
	if !result.Success {
		switch result.Error {
		case "empty_messages", "context_too_long":
			outcome = result.Error
		default:
			outcome = "error"
		}
	}
	c.inferenceTotal.WithLabelValues(outcome).Inc()
	c.inferenceDuration.Observe(duration.Seconds())

	if result.Usage != nil {
		c.tokensUsed.WithLabelValues("prompt").Add(float64(result.Usage.PromptTokens))
		c.tokensUsed.WithLabelValues("completion").Add(float64(result.Usage.CompletionTokens))
	}
}

// RecordBatch records one invoked batch.
func (c *Collector) RecordBatch(size int, reason string) {
	c.batchSize.Observe(float64(size))
	c.batchTotal.WithLabelValues(reason).Inc()
}

// RecordCacheHit records a result cache hit.
func (c *Collector) RecordCacheHit() { c.cacheHits.Inc() }

// RecordCacheMiss records a result cache miss.
func (c *Collector) RecordCacheMiss() { c.cacheMisses.Inc() }

// SetTargetReplicas records the capacity controller's current target.
func (c *Collector) SetTargetReplicas(n int) {
	c.targetReplicas.Set(float64(n))
}
