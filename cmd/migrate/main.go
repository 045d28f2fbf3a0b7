package main

import (
	"context"
	"os"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/bookly/authcore/internal/database"
	"github.com/bookly/authcore/internal/logging"
)

const migrateTimeout = 2 * time.Minute

func main() {
	if err := newMigrateCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newMigrateCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:          "migrate",
		Short:        "Apply pending database migrations",
		Long:         `Apply the embedded migrations, or the *.up.sql files in --dir, to DATABASE_URL.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			databaseURL := os.Getenv("DATABASE_URL")
			if databaseURL == "" {
				return oops.Code("CONFIG_INVALID").Errorf("DATABASE_URL environment variable is required")
			}
			if dir == "" {
				dir = os.Getenv("MIGRATIONS_DIR")
			}
			logger := logging.Setup("authcore-migrate", "", "text", logging.ParseLevel(os.Getenv("LOG_LEVEL")), cmd.OutOrStdout())

			ctx, cancel := context.WithTimeout(cmd.Context(), migrateTimeout)
			defer cancel()

			db, err := database.Connect(ctx, databaseURL)
			if err != nil {
				return oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
			}
			defer db.Close()

			source := database.Migrations()
			if dir != "" {
				source = database.MigrationSource(dir)
			}
			applied, err := database.ApplyMigrations(ctx, db, source, logger)
			if err != nil {
				return oops.Code("MIGRATION_FAILED").With("operation", "run migrations").Wrap(err)
			}
			logger.Info("migrations complete", "applied", applied)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "directory of *.up.sql files (env MIGRATIONS_DIR); embedded migrations when empty")
	return cmd
}
