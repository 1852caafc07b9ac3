package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dukerupert/chorly/internal/app"
	"github.com/dukerupert/chorly/internal/config"
	"github.com/dukerupert/chorly/internal/logging"
)

// NewRootCmd builds the chorlyctl command tree over a fresh viper instance.
func NewRootCmd() *cobra.Command {
	v := config.New()
	var cfgFile string

	root := &cobra.Command{
		Use:   "chorlyctl",
		Short: "chorlyctl runs chorly's batch jobs by hand",
		Long: `chorlyctl runs one pass of a chorly batch job against the configured
database and exits. It is meant for cron, debugging and backfills; the
chorly server runs the same jobs on its own schedule.

Common workflows:

  Fill the generation horizon for every tenant:
    chorlyctl generate

  Materialize one chore for the next two weeks:
    chorlyctl materialize <tenant-id> <chore-id> --days 14

  Send overdue nags for one tenant:
    chorlyctl nag --tenant <tenant-id>

Configuration is read from CHORLY_* environment variables and an optional
config file.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cfgFile == "" {
				return nil
			}
			v.SetConfigFile(cfgFile)
			if err := v.ReadInConfig(); err != nil {
				return fmt.Errorf("read config file: %w", err)
			}
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (yaml, toml or json)")
	flags.String("db", "", "SQLite database path (env: CHORLY_DB_PATH)")
	flags.String("tz", "", "IANA time zone (env: CHORLY_TIMEZONE)")
	flags.String("tenant", "", "restrict jobs to one tenant (env: CHORLY_TENANT_ID)")
	flags.String("log-level", "", "debug, info, warn or error")
	v.BindPFlag("db_path", flags.Lookup("db"))
	v.BindPFlag("timezone", flags.Lookup("tz"))
	v.BindPFlag("tenant_id", flags.Lookup("tenant"))
	v.BindPFlag("log_level", flags.Lookup("log-level"))

	root.AddCommand(
		newGenerateCmd(v),
		newMaterializeCmd(v),
		newSeedTemplatesCmd(v),
		newRemindCmd(v),
		newNagCmd(v),
		newSummaryCmd(v),
		newMigrateCmd(v),
	)
	return root
}

// withApp loads the configuration, wires the application and runs fn.
func withApp(cmd *cobra.Command, v *viper.Viper, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := config.FromViper(v)
	if err != nil {
		return err
	}
	logger := logging.New(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())
	return fn(ctx, a)
}
