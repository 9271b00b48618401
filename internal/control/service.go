// Package control wires the review service together and manages its lifecycle.
package control

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/vietddude/reviewer/internal/core/config"
	"github.com/vietddude/reviewer/internal/infra/llm"
	redisclient "github.com/vietddude/reviewer/internal/infra/redis"
	"github.com/vietddude/reviewer/internal/infra/storage"
	"github.com/vietddude/reviewer/internal/processing/dispatch"
	"github.com/vietddude/reviewer/internal/processing/health"
	"github.com/vietddude/reviewer/internal/processing/retry"
	"github.com/vietddude/reviewer/internal/processing/scheduler"
	"github.com/vietddude/reviewer/internal/telemetry"
)

// Service owns every long-running component of the reviewer.
type Service struct {
	cfg          *config.AppConfig
	store        *Store
	redisClient  *redisclient.Client
	scheduler    *scheduler.Scheduler
	healthMon    *health.Monitor
	healthServer *health.Server
	tracing      telemetry.ShutdownFunc
	log          *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService builds the service from a validated configuration.
func NewService(ctx context.Context, cfg *config.AppConfig) (*Service, error) {
	log := slog.Default().With("component", "service")

	// 1. Tracing
	shutdownTracing, err := telemetry.Setup(ctx, cfg.Tracing.Endpoint, cfg.Tracing.ServiceName)
	if err != nil {
		return nil, err
	}

	// 2. Store
	store, err := OpenStore(ctx, cfg.Store)
	if err != nil {
		_ = shutdownTracing(ctx)
		return nil, err
	}

	healthMon := health.NewMonitor(cfg.Dispatch.Interval)
	if store.DB != nil {
		healthMon.AddCheck("database", store.DB.Health)
	}

	// 3. Redis: cycle lock and failure journal
	deps := scheduler.Deps{Store: store, Observer: healthMon}

	redisClient, err := OpenRedis(cfg.Redis)
	if err != nil {
		log.Warn("Failed to connect to Redis, cycle lock and failure journal disabled", "error", err)
	}
	if redisClient != nil {
		deps.Lock = redisclient.NewCycleLock(redisClient, "cycle")
		deps.Journal = redisclient.NewFailedItemRepo(redisClient)
		healthMon.AddCheck("redis", redisClient.Health)
		log.Info("Redis enabled", "namespace", cfg.Redis.Namespace)
	}

	// 4. Classifier and dispatcher
	checker := llm.NewReviewChecker(llmConfig(cfg.LLM))
	deps.Runner = dispatch.New(
		dispatch.Config{
			MaxAttempts: cfg.Dispatch.MaxAttempts,
			CallTimeout: cfg.Dispatch.CallTimeout,
			Model:       cfg.LLM.Model,
		},
		checker,
		&retry.Backoff{Base: cfg.Dispatch.BackoffBase, Max: cfg.Dispatch.BackoffMax},
	)

	// 5. Scheduler
	sched := scheduler.New(scheduler.Config{
		Interval:    cfg.Dispatch.Interval,
		BatchSize:   cfg.Dispatch.BatchSize,
		Concurrency: cfg.Dispatch.MaxConcurrent,
		LockTTL:     cfg.Dispatch.LockTTL,
	}, deps)

	return &Service{
		cfg:          cfg,
		store:        store,
		redisClient:  redisClient,
		scheduler:    sched,
		healthMon:    healthMon,
		healthServer: health.NewServer(healthMon, cfg.Server.Port),
		tracing:      shutdownTracing,
		log:          log,
	}, nil
}

func llmConfig(cfg config.LLMConfig) llm.Config {
	out := llm.Config{
		Model:             cfg.Model,
		BaseURL:           cfg.BaseURL,
		APIKey:            cfg.APIKey,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Spelling:          cfg.Spelling,
	}
	if p, ok := cfg.Pricing[cfg.Model]; ok {
		out.Pricing = &llm.Pricing{Input: p.Input, CachedInput: p.CachedInput, Output: p.Output}
	}
	return out
}

// ReviewStore exposes the opened store.
func (s *Service) ReviewStore() storage.ReviewStore {
	return s.store.ReviewStore
}

// Start launches the health server and the scheduler loop.
func (s *Service) Start(ctx context.Context) error {
	if s.done != nil {
		return errors.New("service already started")
	}

	go func() {
		if err := s.healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("Health server failed", "error", err)
		}
	}()

	if s.store.DB != nil {
		s.store.DB.StartMetricsCollector(ctx)
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		if err := s.scheduler.Run(runCtx); err != nil {
			s.log.Error("Scheduler failed", "error", err)
		}
	}()
	return nil
}

// Stop asks the scheduler to finish its cycle and releases resources.
// If ctx expires first the cycle is abandoned.
func (s *Service) Stop(ctx context.Context) error {
	s.log.Info("Stopping reviewer...")

	if s.done != nil {
		s.cancel()
		select {
		case <-s.done:
		case <-ctx.Done():
			s.log.Warn("Shutdown deadline reached, abandoning cycle in progress")
			s.scheduler.HardStop()
			<-s.done
		}
	}

	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			s.log.Warn("Failed to close Redis", "error", err)
		}
	}
	if err := s.store.Close(); err != nil {
		s.log.Warn("Failed to close store", "error", err)
	}

	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.tracing(flushCtx); err != nil {
		s.log.Warn("Failed to flush traces", "error", err)
	}

	return s.healthServer.Stop(flushCtx)
}
