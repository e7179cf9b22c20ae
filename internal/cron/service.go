package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/pokecard-storefront/pkg/logger"
	"github.com/angelmondragon/pokecard-storefront/pkg/metrics"
)

const defaultInterval = time.Minute

// ServiceParams configure the cron service.
type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.CronJobMetrics
	Interval time.Duration
}

// Service runs every registered job once per interval under the lock.
type Service struct {
	logg     *logger.Logger
	registry *Registry
	lock     Lock
	metrics  *metrics.CronJobMetrics
	interval time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Lock == nil {
		return nil, fmt.Errorf("lock required")
	}
	registry := params.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	interval := params.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Service{
		logg:     params.Logger,
		registry: registry,
		lock:     params.Lock,
		metrics:  params.Metrics,
		interval: interval,
	}, nil
}

// Run executes a cycle immediately and then on every tick until ctx ends.
func (s *Service) Run(ctx context.Context) error {
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"interval": s.interval.String(),
		"jobs":     s.registry.Names(),
	}), "cron.started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if err := s.RunOnce(ctx); err != nil {
			s.logg.Error(ctx, "cron.cycle.failed", err)
		}
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron.stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce runs a single locked cycle. A held lock skips the cycle.
func (s *Service) RunOnce(ctx context.Context) error {
	acquired, err := s.lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("cron lock: %w", err)
	}
	if !acquired {
		s.logg.Info(ctx, "cron.cycle.skipped")
		return nil
	}
	defer func() {
		if err := s.lock.Release(ctx); err != nil {
			s.logg.Error(ctx, "cron.lock.release_failed", err)
		}
	}()

	for _, job := range s.registry.Jobs() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.runJob(ctx, job)
	}
	return nil
}

func (s *Service) runJob(ctx context.Context, job Job) {
	name := job.Name()
	jobCtx := s.logg.WithField(ctx, "job", name)
	start := time.Now()
	err := job.Run(jobCtx)
	elapsed := time.Since(start)
	jobCtx = s.logg.WithField(jobCtx, "duration_ms", elapsed.Milliseconds())

	if s.metrics != nil {
		s.metrics.ObserveDuration(name, elapsed)
	}
	if err != nil {
		s.logg.Error(jobCtx, "cron.job.failed", err)
		if s.metrics != nil {
			s.metrics.IncFailure(name)
		}
		return
	}
	s.logg.Info(jobCtx, "cron.job.completed")
	if s.metrics != nil {
		s.metrics.IncSuccess(name)
	}
}
