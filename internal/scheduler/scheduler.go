// Package scheduler runs the recurring batch generation on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/frahmantamala/fleet-recurring/internal/core/scope"
	"github.com/frahmantamala/fleet-recurring/internal/recurring"
	"github.com/robfig/cron/v3"
)

// BatchRunner is the part of the engine the scheduler drives.
type BatchRunner interface {
	GenerateAll(ctx context.Context, sc scope.Scope, through time.Time) (*recurring.BatchResult, error)
}

type Config struct {
	// Spec is a standard five-field cron expression.
	Spec        string
	Location    *time.Location
	HorizonDays int
	// Timeout bounds one batch run; zero means no limit.
	Timeout time.Duration
}

// GenerationScheduler materializes every active template, across all owners,
// through today plus the configured horizon.
type GenerationScheduler struct {
	cronEngine *cron.Cron
	runner     BatchRunner
	logger     *slog.Logger
	cfg        Config
	now        func() time.Time

	mu      sync.Mutex
	running bool
}

func NewGenerationScheduler(runner BatchRunner, logger *slog.Logger, cfg Config) *GenerationScheduler {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &GenerationScheduler{
		cronEngine: cron.New(cron.WithLocation(cfg.Location)),
		runner:     runner,
		logger:     logger,
		cfg:        cfg,
		now:        time.Now,
	}
}

// Start registers the job and starts the cron engine.
func (s *GenerationScheduler) Start() error {
	if _, err := s.cronEngine.AddFunc(s.cfg.Spec, s.runJob); err != nil {
		return fmt.Errorf("add recurring generation job %q: %w", s.cfg.Spec, err)
	}
	s.cronEngine.Start()
	s.logger.Info("recurring generation scheduler started",
		"schedule", s.cfg.Spec,
		"timezone", s.cfg.Location.String(),
		"horizon_days", s.cfg.HorizonDays)
	return nil
}

// Stop stops scheduling new runs and waits for a running one to finish.
func (s *GenerationScheduler) Stop() {
	s.logger.Info("stopping recurring generation scheduler")
	ctx := s.cronEngine.Stop()
	<-ctx.Done()
	s.logger.Info("recurring generation scheduler stopped")
}

// Through is the horizon date for a run started at now.
func (s *GenerationScheduler) Through(now time.Time) time.Time {
	local := now.In(s.cfg.Location)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
	return today.AddDate(0, 0, s.cfg.HorizonDays)
}

// RunOnce performs one batch run for the system scope. A run that finds another
// still in progress is skipped.
func (s *GenerationScheduler) RunOnce(ctx context.Context) (*recurring.BatchResult, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Warn("previous recurring generation still running, skipping")
		return nil, nil
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	through := s.Through(s.now())
	start := time.Now()
	result, err := s.runner.GenerateAll(ctx, scope.System().WithActor("scheduler"), through)
	if err != nil {
		s.logger.Error("scheduled recurring generation failed", "through", recurring.DateKey(through), "error", err)
		return nil, err
	}

	s.logger.Info("scheduled recurring generation finished",
		"through", recurring.DateKey(through),
		"created", result.TotalCreated,
		"failures", len(result.Failures),
		"duration_ms", time.Since(start).Milliseconds())
	for _, f := range result.Failures {
		s.logger.Warn("recurring template failed to generate", "template_id", f.TemplateID, "code", f.Code, "error", f.Error)
	}
	return result, nil
}

func (s *GenerationScheduler) runJob() {
	_, _ = s.RunOnce(context.Background())
}
