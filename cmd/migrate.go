package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/koopa0/study-assistant/db"
	"github.com/koopa0/study-assistant/internal/config"
	"github.com/koopa0/study-assistant/internal/log"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	Long: `migrate applies all pending schema migrations to the configured
PostgreSQL database. The serve command runs migrations automatically on
startup; this command is for applying them ahead of a deploy.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMigrate()
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if !cfg.UsesPostgres() {
		return fmt.Errorf("no PostgreSQL configuration found: set STUDY_POSTGRES_HOST or DATABASE_URL")
	}

	logger := log.New(log.Config{})
	if err := db.Migrate(cfg.PostgresURL(), logger); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	logger.Info("migrations applied")
	return nil
}
