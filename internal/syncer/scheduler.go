package syncer

import (
	"context"
	"errors"
	"sync"

	"trackmirror/internal/config"
	"trackmirror/internal/domain"
	"trackmirror/internal/models"

	"github.com/rs/zerolog"
)

// Scheduler drives the sync service on a cron schedule and fires one
// immediate run at startup so the replica is fresh without waiting for the
// first tick.
type Scheduler struct {
	cfg     config.SyncConfig
	runner  domain.CronRunner
	service domain.SyncTrigger
	logger  zerolog.Logger

	mu      sync.Mutex
	running bool
}

func NewScheduler(cfg config.SyncConfig, runner domain.CronRunner, service domain.SyncTrigger, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		cfg:     cfg,
		runner:  runner,
		service: service,
		logger:  logger.With().Str("component", "sync-scheduler").Logger(),
	}
}

// Start validates the schedule, registers the recurring job, and triggers
// the startup run. A malformed schedule disables recurring syncs but never
// takes the process down; manual triggers keep working.
func (s *Scheduler) Start(ctx context.Context) error {
	if !s.cfg.Enabled {
		s.logger.Info().Msg("scheduled sync disabled")
		return nil
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.mu.Unlock()

	if err := s.runner.Validate(s.cfg.Schedule); err != nil {
		s.logger.Error().Err(err).Str("schedule", s.cfg.Schedule).
			Msg("sync schedule is invalid, recurring sync disabled")
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return nil
	}

	if err := s.runner.Schedule(s.cfg.Schedule, func() {
		s.trigger(models.TriggerScheduled)
	}); err != nil {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return err
	}

	s.logger.Info().Str("schedule", s.cfg.Schedule).Msg("sync scheduler started")
	s.trigger(models.TriggerStartup)
	return nil
}

// IsRunning reports whether the recurring job is registered.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Stop halts the cron runner; an in-flight run finishes on its own.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.runner.Stop()
	s.running = false
	s.logger.Info().Msg("sync scheduler stopped")
}

// trigger fires one run. A run already in flight is skipped, not queued:
// the next tick resynchronizes everything anyway.
func (s *Scheduler) trigger(triggerType string) {
	err := s.service.RunSync(context.Background(), triggerType, nil)
	if err == nil {
		return
	}
	if errors.Is(err, ErrSyncInProgress) {
		s.logger.Warn().Str("trigger", triggerType).Msg("skipping sync, previous run still in progress")
		return
	}
	s.logger.Error().Err(err).Str("trigger", triggerType).Msg("failed to trigger sync")
}
