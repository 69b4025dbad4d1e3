package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/assetmarket/internal/pipeline"
	"github.com/alanyoungcy/assetmarket/internal/server"
	"github.com/alanyoungcy/assetmarket/internal/server/handler"
	"github.com/alanyoungcy/assetmarket/internal/server/middleware"
	"github.com/alanyoungcy/assetmarket/internal/server/ws"
)

const shutdownTimeout = 10 * time.Second

// ServerMode serves the HTTP and websocket API only.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	if err := a.startHTTPServer(ctx, g, deps); err != nil {
		return err
	}
	return g.Wait()
}

// FullMode serves the API and runs the background jobs: scheduled
// snapshots when archiving is enabled, and event notifications when a
// notifier is configured.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	var relay *pipeline.EventRelay
	if deps.Notifier != nil {
		if deps.DurableBus {
			// Tail the event stream so a slow webhook never holds a
			// market transaction.
			relay = pipeline.NewEventRelay(deps.Bus, deps.Notifier, a.cfg.Notify.PollInterval.Duration,
				pipeline.StreamIDAt(deps.Clock.Now()), a.logger)
		} else {
			deps.Market.WithNotifier(deps.Notifier)
		}
	}

	var (
		job      *pipeline.SnapshotJob
		schedule pipeline.Schedule
	)
	if deps.Archiver != nil {
		var err error
		schedule, err = pipeline.ParseSchedule(a.cfg.Archive.Cron)
		if err != nil {
			return fmt.Errorf("app: archive schedule: %w", err)
		}
		job = a.snapshotJob(deps)
	}

	g, ctx := errgroup.WithContext(ctx)
	if err := a.startHTTPServer(ctx, g, deps); err != nil {
		return err
	}
	if job != nil || relay != nil {
		orch := pipeline.NewOrchestrator(job, schedule, relay, a.logger)
		g.Go(func() error { return orch.Run(ctx) })
	}
	return g.Wait()
}

// ArchiveMode writes one snapshot, prunes old ones and exits.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting archive mode")
	if deps.Archiver == nil {
		return errors.New("app: archive mode requires s3")
	}

	res, err := a.snapshotJob(deps).Run(ctx)
	if err != nil {
		return fmt.Errorf("app: archive: %w", err)
	}
	a.logger.InfoContext(ctx, "archive complete",
		slog.String("items_path", res.ItemsPath),
		slog.String("positions_path", res.PositionsPath),
		slog.Int64("items", res.Items),
		slog.Int64("positions", res.Positions),
	)
	return nil
}

func (a *App) snapshotJob(deps *Dependencies) *pipeline.SnapshotJob {
	pruner := pipeline.PruneFunc(func(ctx context.Context, keep int) (int, error) {
		return deps.Archiver.Prune(ctx, deps.BlobReader, keep)
	})
	return pipeline.NewSnapshotJob(deps.Archiver, pruner, a.cfg.Archive.Keep, deps.Locks,
		a.cfg.Archive.LockTTL.Duration, deps.Clock, a.logger)
}

// startHTTPServer registers the API on g. The server is shut down when ctx
// is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) error {
	auth, err := middleware.SignedRequests(middleware.SignedRequestConfig{
		Domain:          deps.Domain,
		MaxSkew:         a.cfg.Server.MaxSkew.Duration,
		ReplayCacheSize: a.cfg.Server.ReplayCacheSize,
		Clock:           deps.Clock,
	})
	if err != nil {
		return fmt.Errorf("app: auth middleware: %w", err)
	}

	hub := ws.NewHub(deps.Bus, a.logger, ws.Config{
		Mode:           a.cfg.Mode,
		StartedAt:      deps.Clock.Now().UTC(),
		AllowedOrigins: a.cfg.Server.CORSOrigins,
	})
	g.Go(func() error { return hub.Run(ctx) })

	m := deps.Market
	h := server.Handlers{
		Health:    handler.NewHealthHandler(deps.Probes, a.logger),
		Items:     handler.NewItemHandler(m, a.logger),
		Positions: handler.NewPositionHandler(m, a.logger),
		Sales:     handler.NewSaleHandler(m, a.logger),
		Auctions:  handler.NewAuctionHandler(m, a.logger),
		Raffles:   handler.NewRaffleHandler(m, a.logger),
		Loans:     handler.NewLoanHandler(m, a.logger),
		Ledger:    handler.NewLedgerHandler(m, a.logger),
		Admin:     handler.NewAdminHandler(m, a.logger),
	}
	if a.cfg.Server.DevEndpoints {
		a.logger.WarnContext(ctx, "dev endpoints enabled, anyone can mint balance")
		h.Dev = handler.NewDevHandler(deps.Bank, a.logger)
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, h, hub, auth, deps.RateLimiter, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return nil
}
