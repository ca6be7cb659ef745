// Package app assembles the service: configuration, logging, tracing,
// the database pool, stores, integration clients, and the HTTP API.
//
// Setup wires everything in dependency order and returns an App whose
// Handler is ready to serve. Close releases resources in reverse
// order. Entry points under cmd/ never construct stores or services
// directly.
package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/resourceiq/resourceiq/internal/config"
	"github.com/resourceiq/resourceiq/internal/user"
)

// App is the assembled application.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	// Pool is the shared PostgreSQL connection pool every store uses.
	Pool *pgxpool.Pool

	// Users backs the API and the init-db superuser bootstrap.
	Users *user.Store

	// Handler is the fully middlewared HTTP API.
	Handler http.Handler

	tracerShutdown func(context.Context) error
}

// Close flushes pending trace spans and closes the database pool. Safe
// to call on a partially initialized App; Setup relies on that for its
// failure path.
func (a *App) Close() error {
	logger := a.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if a.tracerShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.tracerShutdown(ctx); err != nil {
			logger.Warn("flushing tracer", "error", err)
		}
	}

	if a.Pool != nil {
		a.Pool.Close()
		logger.Info("database pool closed")
	}

	return nil
}
