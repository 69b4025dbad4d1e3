package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Orchestrator runs the background jobs of full mode side by side. Either
// job may be nil.
type Orchestrator struct {
	snapshots *SnapshotJob
	schedule  Schedule
	relay     *EventRelay
	logger    *slog.Logger
}

func NewOrchestrator(snapshots *SnapshotJob, schedule Schedule, relay *EventRelay, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		snapshots: snapshots,
		schedule:  schedule,
		relay:     relay,
		logger:    logger.With(slog.String("component", "orchestrator")),
	}
}

// Run blocks until ctx ends or a job fails outright.
func (o *Orchestrator) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if o.snapshots != nil {
		g.Go(func() error {
			err := o.snapshots.RunCron(ctx, o.schedule)
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("snapshot cron: %w", err)
		})
	}
	if o.relay != nil {
		g.Go(func() error {
			err := o.relay.Run(ctx)
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("event relay: %w", err)
		})
	}

	o.logger.InfoContext(ctx, "pipeline: jobs started",
		slog.Bool("snapshots", o.snapshots != nil),
		slog.Bool("relay", o.relay != nil),
	)
	if err := g.Wait(); err != nil {
		o.logger.Error("pipeline: stopped with error", slog.String("error", err.Error()))
		return err
	}
	o.logger.Info("pipeline: stopped")
	return nil
}
