package pipeline

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/relayhq/agents/observability"
)

// Scheduler triggers runs on a cron schedule. A trigger that finds the
// run lock held gets the usual soft failure, so overlapping schedules
// skip instead of stacking up.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger
}

// NewScheduler creates a stopped scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{
		cron:   cron.New(),
		logger: observability.Logger("scheduler"),
	}
}

// Add registers a scheduled run. The trigger runs the full lifecycle
// and its result is logged, not returned; scheduled runs have no
// caller to report to.
func (s *Scheduler) Add(schedule, name string, trigger func(ctx context.Context) Result) error {
	_, err := s.cron.AddFunc(schedule, func() {
		s.logger.Info("scheduled run triggered", slog.String("job", name))
		result := trigger(context.Background())
		if result.Success {
			s.logger.Info("scheduled run finished",
				slog.String("job", name),
				slog.String("session_id", result.SessionID))
			return
		}
		s.logger.Warn("scheduled run did not complete",
			slog.String("job", name),
			slog.String("reason", result.Reason))
	})
	if err != nil {
		return err
	}
	s.logger.Info("scheduled run registered",
		slog.String("job", name),
		slog.String("schedule", schedule))
	return nil
}

// Start begins firing schedules in a background goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop cancels future triggers and waits for a running trigger to
// finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
