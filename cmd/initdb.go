package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/resourceiq/resourceiq/db"
	"github.com/resourceiq/resourceiq/internal/config"
	"github.com/resourceiq/resourceiq/internal/log"
	"github.com/resourceiq/resourceiq/internal/user"
)

const initDBTimeout = 30 * time.Second

// runInitDB applies migrations and seeds the first superuser account.
// Safe to run repeatedly: an existing account is left untouched.
func runInitDB() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.FirstSuperuser == "" || cfg.FirstSuperuserPassword == "" {
		return fmt.Errorf("%w: init-db requires FIRST_SUPERUSER and FIRST_SUPERUSER_PASSWORD",
			config.ErrMissingSuperuser)
	}

	logger := log.New(log.Config{Level: cfg.LogLevel, JSON: cfg.LogJSON})
	slog.SetDefault(logger)

	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), initDBTimeout)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.PostgresConnectionString())
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	users, err := user.NewStore(pool, logger)
	if err != nil {
		return fmt.Errorf("creating user store: %w", err)
	}
	created, err := users.EnsureFirstSuperuser(ctx, cfg.FirstSuperuser, cfg.FirstSuperuserPassword)
	if err != nil {
		return fmt.Errorf("seeding first superuser: %w", err)
	}
	if created {
		logger.Info("first superuser created", "email", cfg.FirstSuperuser)
	} else {
		logger.Info("first superuser already exists", "email", cfg.FirstSuperuser)
	}

	return nil
}
