package command

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/mediathek-loader/internal/core"
	"github.com/JonMunkholm/mediathek-loader/internal/store"
)

// NewVersionCmd creates the version command.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			printf(cmd, "%s %s\n", AppName, cmd.Root().Version)
			printf(cmd, "catalog schema: %s\n", store.SchemaVersion)
			printf(cmd, "list layouts:   %s (default %s)\n", strings.Join(core.Names(), ", "), core.DefaultSchema)
		},
	}
}
