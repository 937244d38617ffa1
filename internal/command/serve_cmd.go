package command

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/mediathek-loader/internal/core"
	"github.com/JonMunkholm/mediathek-loader/internal/loader"
	"github.com/JonMunkholm/mediathek-loader/internal/store"
	"github.com/JonMunkholm/mediathek-loader/internal/web"
)

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Load periodically and serve the status API",
		Long: `Run a load now and then every LOADER_CRON_INTERVAL, and serve:

  GET  /healthz        liveness
  GET  /api/status     last run summary
  GET  /api/channels   stored channel rollups
  POST /api/run        start a run (409 while one is active)`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(os.Stdout)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			pool, err := store.Open(ctx, cfg.Database)
			if err != nil {
				return err
			}
			defer pool.Close()

			// Log which database we connected to
			if u, err := url.Parse(cfg.Database.URL); err == nil {
				slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
			}
			slog.Info("schemas registered", "names", core.Names(), "active", cfg.Loader.Schema)

			svc, err := loader.New(cfg.Loader, loader.PoolTx(pool), loader.NewFetcher(cfg.Loader), Version)
			if err != nil {
				return err
			}

			// Cancellable context for background runs
			jobCtx, cancelJobs := context.WithCancel(context.Background())
			defer cancelJobs()

			server := web.NewServer(jobCtx, svc, store.New(pool), cfg.Server)
			go svc.StartScheduler(jobCtx)

			// Graceful shutdown
			go func() {
				sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
				defer stop()
				<-sigCtx.Done()

				slog.Info("shutting down...")
				cancelJobs()

				shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					slog.Error("shutdown error", "error", err)
				}
			}()

			slog.Info("server starting", "addr", cfg.Server.Addr())
			if err := server.Start(); err != nil {
				return err
			}
			slog.Info("server stopped")
			return nil
		},
	}
	return cmd
}
