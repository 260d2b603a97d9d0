package di

import (
	"context"
	"errors"
	"log/slog"

	"candle_pipeline/internal/platform/scheduler"
	"candle_pipeline/internal/shared/runguard"
)

// NewScheduler registers the periodic ingest and reconcile jobs.
// A job whose interval is zero is left to manual triggering.
func NewScheduler(c *Container) *scheduler.Scheduler {
	s := scheduler.New()
	s.Register(&scheduler.Job{
		Name:       "ingest",
		Interval:   c.Config.IngestInterval,
		Timeout:    c.Config.IngestInterval,
		RunOnStart: true,
		Handler: func(ctx context.Context) error {
			_, err := c.Cycle.Run(ctx)
			return skipConcurrent(ctx, "ingest", err)
		},
	})
	s.Register(&scheduler.Job{
		Name:     "reconcile",
		Interval: c.Config.ReconcileInterval,
		Timeout:  c.Config.ReconcileInterval,
		Handler: func(ctx context.Context) error {
			_, err := c.Reconcile.Run(ctx, nil)
			return skipConcurrent(ctx, "reconcile", err)
		},
	})
	return s
}

// skipConcurrent treats a run rejected by a manual trigger as a skipped tick.
func skipConcurrent(ctx context.Context, job string, err error) error {
	var cre *runguard.ConcurrentRunError
	if errors.As(err, &cre) {
		slog.InfoContext(ctx, "scheduler: run already in progress", "job", job, "run_id", cre.Current.RunID)
		return nil
	}
	return err
}
