// Package main provides the entry point for the Aurora KG API server.
package main

import (
	"log/slog"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/aurora-intel/aurora-core/domain/health"
	"github.com/aurora-intel/aurora-core/domain/kg"
	"github.com/aurora-intel/aurora-core/internal/config"
	"github.com/aurora-intel/aurora-core/internal/database"
	"github.com/aurora-intel/aurora-core/internal/server"
	"github.com/aurora-intel/aurora-core/pkg/auth"
	"github.com/aurora-intel/aurora-core/pkg/logger"
)

func main() {
	// Load .env files if present (for local development).
	// Load() won't overwrite existing vars, Overload() will.
	_ = godotenv.Load(".env")
	_ = godotenv.Overload(".env.local")

	fx.New(
		fx.WithLogger(func(log *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: log}
		}),

		// Infrastructure modules
		logger.Module,
		config.Module,
		database.Module,
		server.Module,

		// Auth module
		auth.Module,

		// Domain modules
		health.Module,
		kg.Module,
	).Run()
}
