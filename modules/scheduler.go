package modules

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"coinpulse/pkg/logging"
)

// Runner is a single sentiment invocation.
type Runner interface {
	Run(ctx context.Context, workspaceID string) (string, error)
}

// Scheduler triggers a report every interval for one workspace.
type Scheduler struct {
	runner      Runner
	workspaceID string
	interval    time.Duration
	clock       clockwork.Clock
	logger      *slog.Logger
}

func NewScheduler(runner Runner, workspaceID string, interval time.Duration, clock clockwork.Clock) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Scheduler{
		runner:      runner,
		workspaceID: workspaceID,
		interval:    interval,
		clock:       clock,
		logger:      slog.Default().With("component", "scheduler"),
	}
}

// Run blocks until ctx is done. A failed run is logged and the loop keeps
// ticking.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.interval <= 0 {
		s.logger.Info("Periodic reports disabled")
		<-ctx.Done()
		return nil
	}

	s.logger.Info("Starting scheduler", "interval", s.interval, "workspace_id", s.workspaceID)
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler stopped")
			return nil
		case <-ticker.Chan():
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	ctx = logging.WithID(ctx, logging.NewID())
	if _, err := s.runner.Run(ctx, s.workspaceID); err != nil {
		s.logger.ErrorContext(ctx, "Scheduled report failed", "error", err)
		return
	}
	s.logger.InfoContext(ctx, "Scheduled report delivered")
}
