package command

import (
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/mediathek-loader/internal/store"
)

// NewMigrateCmd creates the migrate command.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:       "migrate [up|down]",
		Short:     "Create or drop the catalog tables",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{string(store.Up), string(store.Down)},
		RunE: func(cmd *cobra.Command, args []string) error {
			var arg string
			if len(args) > 0 {
				arg = args[0]
			}
			dir, err := store.ParseDirection(arg)
			if err != nil {
				return err
			}

			cfg, err := loadConfig(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			return store.Migrate(cfg.Database, dir)
		},
	}
	return cmd
}
