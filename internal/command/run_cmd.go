package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/mediathek-loader/internal/config"
	"github.com/JonMunkholm/mediathek-loader/internal/loader"
	"github.com/JonMunkholm/mediathek-loader/internal/state"
	"github.com/JonMunkholm/mediathek-loader/internal/store"
)

// errNoDatabase backs the transaction of a download-only run.
var errNoDatabase = errors.New("download-only run has no database")

// NewRunCmd creates the run command.
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Download and load the list once",
		Long: `Download the current list and load it.

Without --diff the full list replaces the catalog. With --diff the diff list
is applied on top; when no full list was downloaded today the full list is
loaded instead.

Examples:
  mvload run                      # full load when the remote list is newer
  mvload run --force              # full load regardless of the remote date
  mvload run --diff               # apply the diff list
  mvload run --epoch 30           # drop entries older than 30 days
  mvload run --file ./list.xz     # load a local file, no download`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := runRequest(cmd)
			if err != nil {
				return err
			}

			cfg, err := loadConfig(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			tx := loader.TxFunc(func(context.Context, func(loader.Catalog) error) error { return errNoDatabase })
			if !req.DownloadOnly {
				pool, err := store.Open(ctx, cfg.Database)
				if err != nil {
					return err
				}
				defer pool.Close()
				tx = loader.PoolTx(pool)
			}

			svc, err := loader.New(cfg.Loader, tx, loader.NewFetcher(cfg.Loader), Version)
			if err != nil {
				return err
			}

			sum, err := svc.RunOnce(ctx, req)
			if sum != nil {
				printSummary(cmd, sum)
			}
			return err
		},
	}

	cmd.Flags().Bool("diff", false, "apply the diff list instead of the full list")
	cmd.Flags().Int("epoch", -1, fmt.Sprintf("drop entries older than this many days (%d-%d, 0 keeps all)", config.MinMaxAgeDays, config.MaxMaxAgeDays))
	cmd.Flags().Bool("force", false, "load even when the remote list is not newer")
	cmd.Flags().String("file", "", "load this list file instead of downloading")
	cmd.Flags().Bool("download-only", false, "download the list without loading it")
	cmd.Flags().Bool("json", false, "print the run summary as JSON")
	cmd.MarkFlagsMutuallyExclusive("file", "download-only")
	return cmd
}

// runRequest turns the flags into a loader request.
func runRequest(cmd *cobra.Command) (loader.Request, error) {
	var req loader.Request
	req.Diff, _ = cmd.Flags().GetBool("diff")
	req.Force, _ = cmd.Flags().GetBool("force")
	req.File, _ = cmd.Flags().GetString("file")
	req.DownloadOnly, _ = cmd.Flags().GetBool("download-only")

	if cmd.Flags().Changed("epoch") {
		days, _ := cmd.Flags().GetInt("epoch")
		if days < config.MinMaxAgeDays || days > config.MaxMaxAgeDays {
			return req, fmt.Errorf("invalid --epoch value %d: must be %d-%d", days, config.MinMaxAgeDays, config.MaxMaxAgeDays)
		}
		req.MaxAgeDays = &days
	}
	if req.File != "" {
		if _, err := os.Stat(req.File); err != nil {
			return req, fmt.Errorf("invalid --file: %w", err)
		}
	}
	return req, nil
}

func printSummary(cmd *cobra.Command, sum *state.Summary) {
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		enc.Encode(sum)
		return
	}

	printf(cmd, "%s %s run %s in %dms\n", sum.Outcome, sum.Mode, sum.RunID, sum.DurationMS)
	if sum.Outcome == state.OutcomeLoaded {
		printf(cmd, "  entries:  %s (%d updated, %d inserted)\n", humanize.Comma(int64(sum.Entries)), sum.Updated, sum.Inserted)
		printf(cmd, "  skipped:  %d without location, %d too old\n", sum.Skipped, sum.Filtered)
		printf(cmd, "  channels: %d, statements: %d\n", sum.Channels, sum.Batches)
		if !sum.ListDate.IsZero() {
			printf(cmd, "  list:     %s (%s)\n", sum.ListDate.Format("02.01.2006 15:04"), humanize.Time(sum.ListDate))
		}
	}
	if sum.Error != "" {
		printf(cmd, "  error:    %s\n", sum.Error)
	}
}
