package loader

// scheduler.go runs loads periodically in serve mode.
//
// Each tick asks for a diff load; the service falls back to the full list
// when no full list was fetched today, so the first run of a day refreshes
// the whole catalog. A failed run is logged and retried on the next tick.

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/JonMunkholm/mediathek-loader/internal/core"
)

// StartScheduler runs a load immediately, then every CronInterval, until ctx
// is cancelled.
func (s *Service) StartScheduler(ctx context.Context) {
	slog.Info("scheduler started", "interval", s.cfg.CronInterval)

	s.runScheduled(ctx)

	ticker := time.NewTicker(s.cfg.CronInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.runScheduled(ctx)
		}
	}
}

// runScheduled performs one scheduled run.
func (s *Service) runScheduled(ctx context.Context) {
	start := time.Now()
	_, err := s.RunOnce(ctx, Request{Diff: true, Scheduled: true})
	switch {
	case errors.Is(err, core.ErrRunInProgress):
		slog.Info("scheduled run skipped, another run is active")
	case err != nil:
		// RunOnce already logged the failure with its run id.
		slog.Debug("scheduled run failed", "duration_ms", time.Since(start).Milliseconds())
	default:
		slog.Debug("scheduled run completed", "duration_ms", time.Since(start).Milliseconds())
	}
}
