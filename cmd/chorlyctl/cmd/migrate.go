package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dukerupert/chorly/internal/database"
)

func newMigrateCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := v.GetString("db_path")
			if path == "" {
				return fmt.Errorf("db_path is required (env: CHORLY_DB_PATH)")
			}
			db, err := database.Open(path)
			if err != nil {
				return err
			}
			defer db.Close()

			version, err := database.Version(db)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s at schema version %d\n", path, version)
			return nil
		},
	}
}
