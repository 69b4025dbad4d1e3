package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/assetmarket/internal/domain"
)

const snapshotLockKey = "archive:snapshot"

// SnapshotPruner removes old snapshots, keeping the newest keep.
type SnapshotPruner interface {
	Prune(ctx context.Context, keep int) (int, error)
}

// PruneFunc adapts a function to SnapshotPruner.
type PruneFunc func(ctx context.Context, keep int) (int, error)

func (f PruneFunc) Prune(ctx context.Context, keep int) (int, error) { return f(ctx, keep) }

// SnapshotJob exports the market to cold storage on a schedule. With a lock
// manager only one replica runs each trigger.
type SnapshotJob struct {
	archiver domain.Archiver
	pruner   SnapshotPruner
	keep     int
	locks    domain.LockManager
	lockTTL  time.Duration
	clock    domain.Clock
	logger   *slog.Logger
}

// NewSnapshotJob creates a job. pruner and locks may be nil; keep <= 0
// disables pruning.
func NewSnapshotJob(archiver domain.Archiver, pruner SnapshotPruner, keep int, locks domain.LockManager, lockTTL time.Duration, clock domain.Clock, logger *slog.Logger) *SnapshotJob {
	if lockTTL <= 0 {
		lockTTL = 15 * time.Minute
	}
	return &SnapshotJob{
		archiver: archiver,
		pruner:   pruner,
		keep:     keep,
		locks:    locks,
		lockTTL:  lockTTL,
		clock:    clock,
		logger:   logger.With(slog.String("component", "snapshot_job")),
	}
}

// Run takes one snapshot. It returns domain.ErrLockHeld when another replica
// is already archiving.
func (j *SnapshotJob) Run(ctx context.Context) (domain.SnapshotResult, error) {
	if j.locks != nil {
		unlock, err := j.locks.Acquire(ctx, snapshotLockKey, j.lockTTL)
		if err != nil {
			return domain.SnapshotResult{}, fmt.Errorf("pipeline: snapshot lock: %w", err)
		}
		defer unlock()
	}

	started := j.clock.Now()
	res, err := j.archiver.ArchiveSnapshot(ctx, started)
	if err != nil {
		return domain.SnapshotResult{}, fmt.Errorf("pipeline: snapshot: %w", err)
	}
	j.logger.InfoContext(ctx, "pipeline: snapshot written",
		slog.String("items_path", res.ItemsPath),
		slog.String("positions_path", res.PositionsPath),
		slog.Int64("items", res.Items),
		slog.Int64("positions", res.Positions),
		slog.Int64("sales", res.Sales),
		slog.Duration("took", j.clock.Now().Sub(started)),
	)

	if j.pruner != nil && j.keep > 0 {
		removed, err := j.pruner.Prune(ctx, j.keep)
		if err != nil {
			return res, fmt.Errorf("pipeline: prune snapshots: %w", err)
		}
		if removed > 0 {
			j.logger.InfoContext(ctx, "pipeline: old snapshots pruned", slog.Int("removed", removed))
		}
	}
	return res, nil
}

// RunCron runs the job at every trigger of schedule until ctx ends. Failed
// runs are logged and do not stop the loop.
func (j *SnapshotJob) RunCron(ctx context.Context, schedule Schedule) error {
	for {
		next, err := schedule.Next(j.clock.Now())
		if err != nil {
			return err
		}
		wait := next.Sub(j.clock.Now())
		j.logger.InfoContext(ctx, "pipeline: next snapshot", slog.Time("at", next), slog.Duration("in", wait))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		if _, err := j.Run(ctx); err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				j.logger.InfoContext(ctx, "pipeline: snapshot skipped, another replica holds the lock")
				continue
			}
			j.logger.ErrorContext(ctx, "pipeline: snapshot failed", slog.String("error", err.Error()))
		}
	}
}
