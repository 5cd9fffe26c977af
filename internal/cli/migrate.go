package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/profilesync/internal/remote"
)

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply remote profile store migrations",
		Long: `Bring the Postgres profiles schema up to date.

The DSN comes from DATABASE_URL or the DB_* settings.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			cfg, err := loadConfig(rootOpts)
			if err != nil {
				return f.Fail(ExitCommandError, CodeConfig, "cannot load configuration", err)
			}
			log := newLogger(cfg, rootOpts, f)
			if err := remote.Migrate(cfg.PostgresDSN(), log); err != nil {
				return f.Fail(ExitCommandError, CodeMigration, "migration failed", err)
			}
			return f.Success("profiles schema is up to date")
		},
	}
}
