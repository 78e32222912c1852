package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/phrazzld/tasknotify/internal/config"
	"github.com/phrazzld/tasknotify/internal/platform/postgres"
)

var migrateCommands = map[string]bool{
	"up":      true,
	"down":    true,
	"status":  true,
	"reset":   true,
	"version": true,
}

func newMigrateCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:       "migrate [up|down|status|reset|version]",
		Short:     "Run the embedded database migrations",
		ValidArgs: []string{"up", "down", "status", "reset", "version"},
		Args:      cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			command := "up"
			if len(args) == 1 {
				command = args[0]
			}
			if !migrateCommands[command] {
				return fmt.Errorf("unknown migration command %q", command)
			}

			url := v.GetString("database.url")
			if url == "" {
				return fmt.Errorf("database url is required (--database-url or %s_DATABASE_URL)", config.EnvPrefix)
			}

			log := cliLogger(cmd, v)
			db, err := postgres.Open(cmd.Context(), config.DatabaseConfig{
				URL:          url,
				MaxOpenConns: 2,
				MaxIdleConns: 1,
			}, log)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			return postgres.Migrate(db, command, log)
		},
	}

	cmd.Flags().String("database-url", "", "Postgres connection URL")
	_ = v.BindPFlag("database.url", cmd.Flags().Lookup("database-url"))
	return cmd
}
