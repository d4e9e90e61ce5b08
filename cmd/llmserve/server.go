// Copyright (c) llmserve Authors.
// Licensed under the MIT License.

package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/llmserve/api/handlers"
	"github.com/BaSui01/llmserve/batch"
	"github.com/BaSui01/llmserve/cache"
	"github.com/BaSui01/llmserve/config"
	"github.com/BaSui01/llmserve/internal/metrics"
	"github.com/BaSui01/llmserve/internal/server"
	"github.com/BaSui01/llmserve/internal/telemetry"
	"github.com/BaSui01/llmserve/model"
	"github.com/BaSui01/llmserve/model/llamacpp"
	"github.com/BaSui01/llmserve/scale"
)

// scaleSampleInterval is how often the capacity controller samples
// dispatcher load.
const scaleSampleInterval = time.Second

// Server assembles and runs the whole service.
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	runtime    *llamacpp.Runtime
	adapter    *model.Adapter
	dispatcher *batch.Dispatcher
	controller *scale.Controller

	resultCache *cache.ResultCache
	redisClient *redis.Client

	registry  *prometheus.Registry
	collector *metrics.Collector

	httpManager    *server.Manager
	metricsManager *server.Manager

	otelProviders *telemetry.Providers

	scaleCancel context.CancelFunc
	scaleDone   chan struct{}

	rateLimiterCancel context.CancelFunc
}

// NewServer creates an unstarted server from configuration.
func NewServer(cfg *config.Config, logger *zap.Logger, otelProviders *telemetry.Providers) *Server {
	return &Server{
		cfg:           cfg,
		logger:        logger,
		otelProviders: otelProviders,
	}
}

// Start brings every component up: metrics, model runtime, dispatcher,
// capacity controller, result cache, then the HTTP listeners.
func (s *Server) Start() error {
	s.registry = prometheus.NewRegistry()
	s.collector = metrics.NewCollector("llmserve", s.registry, s.logger)

	if err := s.initPipeline(); err != nil {
		return fmt.Errorf("failed to init inference pipeline: %w", err)
	}

	s.initCache()
	s.initAutoscale()

	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("all servers started",
		zap.Int("http_port", s.cfg.Server.Port),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
	)

	return nil
}

// initPipeline builds runtime, adapter and dispatcher, and warms the
// model up. A model that cannot load is fatal: every request would
// otherwise hang against a dead backend.
func (s *Server) initPipeline() error {
	s.runtime = llamacpp.New(s.cfg.RuntimeConfig(), s.logger)

	s.adapter = model.NewAdapter(s.runtime, model.AdapterConfig{
		Model:       s.cfg.Model.Name,
		ContextSize: s.cfg.Model.ContextSize,
	}, s.logger)

	warmCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Model.StartupTimeout)
	defer cancel()
	if err := s.adapter.WarmUp(warmCtx); err != nil {
		return fmt.Errorf("model load failed: %w", err)
	}
	s.logger.Info("model loaded",
		zap.String("model", s.cfg.Model.Name),
		zap.Int("context_size", s.cfg.Model.ContextSize),
	)

	s.dispatcher = batch.NewDispatcher(s.cfg.Batch, s.adapter.InferBatch, s.logger, batch.Options{
		OnBatch: s.collector.RecordBatch,
	})
	s.collector.ObserveLoad("llmserve", s.dispatcher)

	return nil
}

// initCache sets up the optional result cache and its Redis tier.
func (s *Server) initCache() {
	if !s.cfg.Cache.Enabled {
		return
	}

	if s.cfg.Cache.RedisAddr != "" {
		s.redisClient = redis.NewClient(&redis.Options{Addr: s.cfg.Cache.RedisAddr})
		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.redisClient.Ping(pingCtx).Err(); err != nil {
			s.logger.Warn("redis unreachable, result cache runs local-only",
				zap.String("addr", s.cfg.Cache.RedisAddr),
				zap.Error(err),
			)
			s.redisClient.Close()
			s.redisClient = nil
		}
	}

	s.resultCache = cache.New(s.cfg.Cache, s.redisClient, s.logger)
	s.logger.Info("result cache enabled",
		zap.Int("local_max_size", s.cfg.Cache.LocalMaxSize),
		zap.Bool("redis", s.redisClient != nil),
	)
}

// initAutoscale starts the capacity controller loop. The replica
// target is advisory on a single node: it feeds the metrics gauge and
// the admin endpoint for an external scaler to act on.
func (s *Server) initAutoscale() {
	controller, err := scale.NewController(s.cfg.Autoscale, s.dispatcher, s.logger)
	if err != nil {
		s.logger.Warn("autoscale disabled", zap.Error(err))
		return
	}
	s.controller = controller
	s.collector.SetTargetReplicas(controller.Target())

	ctx, cancel := context.WithCancel(context.Background())
	s.scaleCancel = cancel
	s.scaleDone = make(chan struct{})
	go func() {
		defer close(s.scaleDone)
		controller.Run(ctx, scaleSampleInterval, s.collector.SetTargetReplicas)
	}()
}

func (s *Server) startHTTPServer() error {
	completionHandler := handlers.NewCompletionHandler(s.dispatcher, s.resultCache, s.collector, s.logger)
	adminHandler := handlers.NewAdminHandler(s.dispatcher, s.controllerOrNil(), s.logger)
	healthHandler := handlers.NewHealthHandler(s.logger)
	healthHandler.RegisterCheck(handlers.HealthCheckFunc{
		CheckName: "model",
		Fn:        s.adapter.WarmUp,
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", healthHandler.HandleHealthz)
	mux.HandleFunc("/readyz", healthHandler.HandleReadyz)
	mux.HandleFunc("/v1/completions", completionHandler.HandleCompletion)
	mux.HandleFunc("/admin/reconfigure", adminHandler.HandleReconfigure)
	mux.HandleFunc("/admin/autoscale", adminHandler.HandleAutoscale)

	rateLimiterCtx, rateLimiterCancel := context.WithCancel(context.Background())
	s.rateLimiterCancel = rateLimiterCancel

	chain := []Middleware{
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.collector),
	}
	if s.cfg.Server.RateLimit > 0 {
		chain = append(chain, RateLimiter(rateLimiterCtx, s.cfg.Server.RateLimit, s.cfg.Server.RateBurst, s.logger))
	}
	handler := Chain(mux, chain...)

	serverConfig := server.Config{
		Addr:            fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20, // 1 MB
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.httpManager = server.NewManager(handler, serverConfig, s.logger)
	return s.httpManager.Start()
}

func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	serverConfig := server.Config{
		Addr:            fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.metricsManager = server.NewManager(mux, serverConfig, s.logger)
	return s.metricsManager.Start()
}

// controllerOrNil keeps the admin handler's reporter interface nil
// when autoscale never started.
func (s *Server) controllerOrNil() handlers.AutoscaleReporter {
	if s.controller == nil {
		return nil
	}
	return s.controller
}

// WaitForShutdown blocks until a termination signal, then tears the
// service down.
func (s *Server) WaitForShutdown() {
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}
	s.Shutdown()
}

// Shutdown stops accepting traffic, drains the dispatcher so every
// admitted request still resolves, then releases the runtime.
func (s *Server) Shutdown() {
	s.logger.Info("starting graceful shutdown")

	ctx := context.Background()

	if s.rateLimiterCancel != nil {
		s.rateLimiterCancel()
	}

	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}

	if s.scaleCancel != nil {
		s.scaleCancel()
		<-s.scaleDone
	}

	if s.dispatcher != nil {
		s.dispatcher.Close()
	}

	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("metrics server shutdown error", zap.Error(err))
		}
	}

	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			s.logger.Error("redis close error", zap.Error(err))
		}
	}

	if s.runtime != nil {
		if err := s.runtime.Stop(); err != nil {
			s.logger.Error("runtime stop error", zap.Error(err))
		}
	}

	if s.otelProviders != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := s.otelProviders.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("telemetry shutdown error", zap.Error(err))
		}
	}

	s.logger.Info("graceful shutdown completed")
}
