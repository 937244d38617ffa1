// Package command implements the mvload command line.
package command

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/mediathek-loader/internal/config"
	"github.com/JonMunkholm/mediathek-loader/internal/logging"
)

const AppName = "mvload"

// Version is overwritten at build time using -ldflags.
var Version = "dev"

// NewRootCmd builds the command tree.
func NewRootCmd(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   AppName,
		Short: "Load the MediathekView film list into PostgreSQL",
		Long: `mvload downloads the MediathekView film list and loads it into PostgreSQL.

A full load replaces the catalog; a diff load updates matching rows and
appends new ones. Configuration comes from the environment and an optional
.env file in the working directory.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.Version = version
	cmd.SetVersionTemplate(AppName + " version {{.Version}}\n")
	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)

	cmd.AddCommand(
		NewRunCmd(),
		NewServeCmd(),
		NewMigrateCmd(),
		NewVersionCmd(),
	)
	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd(Version).ExecuteContext(context.Background())
}

// loadConfig reads .env, loads and validates the configuration and sets up
// logging to logOut.
func loadConfig(logOut io.Writer) (*config.Config, error) {
	// Overload overwrites existing env vars
	envErr := godotenv.Overload()

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logging.SetupTo(logOut, cfg.Logging.Level, cfg.Logging.Format)

	if envErr != nil {
		slog.Debug("no .env file found, using environment variables")
	} else {
		slog.Debug("loaded .env file (overwriting existing env vars)")
	}
	slog.Debug("configuration loaded", "config", cfg.String())
	return cfg, nil
}

func printf(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}
