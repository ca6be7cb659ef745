package cmd

import (
	"fmt"
	"log/slog"

	"github.com/resourceiq/resourceiq/db"
	"github.com/resourceiq/resourceiq/internal/config"
	"github.com/resourceiq/resourceiq/internal/log"
)

// runMigrate applies pending database migrations and exits. This is the
// same migration step serve performs at startup, split out so deploy
// pipelines can roll the schema forward before starting new instances.
func runMigrate() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := log.New(log.Config{Level: cfg.LogLevel, JSON: cfg.LogJSON})
	slog.SetDefault(logger)

	logger.Info("applying database migrations", "database", cfg.PostgresDBName)
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("database schema is up to date")

	return nil
}
