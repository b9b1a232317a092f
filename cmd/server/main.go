// Package main is the entry point for the arena evaluation server: the
// multi-tenant action-dispatch and run-lifecycle engine pairing autonomous
// agents with pluggable environments.
package main

import (
	"log/slog"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/arenaeval/server/domain/accounts"
	"github.com/arenaeval/server/domain/act"
	"github.com/arenaeval/server/domain/admin"
	"github.com/arenaeval/server/domain/agentdata"
	"github.com/arenaeval/server/domain/environments"
	"github.com/arenaeval/server/domain/environments/plugins/nimlike"
	"github.com/arenaeval/server/domain/health"
	"github.com/arenaeval/server/domain/runs"
	"github.com/arenaeval/server/domain/scheduler"
	"github.com/arenaeval/server/internal/config"
	"github.com/arenaeval/server/internal/database"
	"github.com/arenaeval/server/internal/kvstore"
	"github.com/arenaeval/server/internal/migrate"
	"github.com/arenaeval/server/internal/server"
	"github.com/arenaeval/server/pkg/adminbuffer"
	"github.com/arenaeval/server/pkg/logger"
)

func main() {
	// Load .env files if present (for local development)
	// Order matters: .env.local overrides .env
	// Note: Load() won't overwrite existing vars, Overload() will
	_ = godotenv.Load("../../.env")
	_ = godotenv.Overload("../../.env.local") // Overload ensures local values take precedence

	fx.New(
		// Logging
		fx.WithLogger(func(log *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: log}
		}),

		// Infrastructure modules
		logger.Module,
		config.Module,
		database.Module,
		migrate.Module,
		server.Module,
		adminbuffer.Module,
		kvstore.Module,

		// Operational surfaces
		health.Module,

		// Core domain: the action-dispatch and run-lifecycle engine
		environments.Module,
		accounts.Module,
		runs.Module,
		agentdata.Module,
		act.Module,

		// Admin/ops surface (plugin registration, disk usage, cleanup sweeps)
		admin.Module,

		// Cron-driven stale-job recovery and full cleanup sweeps
		scheduler.Module,

		// Register the built-in reference environment capability
		fx.Invoke(nimlike.Register),
	).Run()
}
