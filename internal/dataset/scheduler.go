package dataset

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Scheduler runs a job on a cron schedule such as "@every 1h" or "0 */6 * * *". Overlapping runs are
// skipped.
type Scheduler struct {
	spec   string
	job    func(ctx context.Context)
	logger *slog.Logger
}

func NewScheduler(spec string, job func(ctx context.Context), logger *slog.Logger) (*Scheduler, error) {
	if job == nil {
		return nil, fmt.Errorf("scheduled job is required")
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("parse reload schedule %q: %w", spec, err)
	}
	return &Scheduler{spec: spec, job: job, logger: logger}, nil
}

// Run starts the schedule and blocks until ctx is done, then waits for a running job to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	c := cron.New(cron.WithChain(cron.Recover(cron.DiscardLogger), cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(s.spec, func() {
		if s.logger != nil {
			s.logger.DebugContext(ctx, "scheduled dataset reload", slog.String("schedule", s.spec))
		}
		s.job(ctx)
	}); err != nil {
		return fmt.Errorf("schedule reload: %w", err)
	}
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}
