package agent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// DiscoveryScheduler re-runs schema discovery on a cron schedule so the
// server's picture of the stores does not go stale between restarts.
type DiscoveryScheduler struct {
	cron   *cron.Cron
	runner *DiscoveryRunner
	logger *slog.Logger
}

// NewDiscoveryScheduler wires the runner onto the given cron expression
// (standard five-field specs and descriptors like @hourly are accepted).
func NewDiscoveryScheduler(runner *DiscoveryRunner, schedule string, logger *slog.Logger) (*DiscoveryScheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &DiscoveryScheduler{
		cron:   cron.New(),
		runner: runner,
		logger: logger,
	}
	if _, err := s.cron.AddFunc(schedule, func() {
		s.logger.Info("scheduled schema discovery starting")
		s.runner.Run(context.Background())
	}); err != nil {
		return nil, fmt.Errorf("invalid discovery schedule %q: %w", schedule, err)
	}
	return s, nil
}

// Start begins scheduling. Safe to call once.
func (s *DiscoveryScheduler) Start() {
	s.cron.Start()
	s.logger.Info("discovery scheduler started")
}

// Stop stops the scheduler without waiting for a running job.
func (s *DiscoveryScheduler) Stop() {
	s.cron.Stop()
	s.logger.Info("discovery scheduler stopped")
}
