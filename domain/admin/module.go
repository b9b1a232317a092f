package admin

import (
	"context"

	"go.uber.org/fx"

	"github.com/arenaeval/server/internal/jobs"
)

// Module provides the admin/ops domain: plugin registration, the error
// buffer read path, disk usage reporting, the manual cleanup sweep, and the
// background cleanup_jobs consumer.
var Module = fx.Module("admin",
	fx.Provide(NewService),
	fx.Provide(NewHandler),
	fx.Provide(NewCleanupWorker),
	fx.Invoke(RegisterRoutes),
	fx.Invoke(registerWorkerLifecycle),
)

// registerWorkerLifecycle starts the cleanup_jobs consumer alongside the
// HTTP server and stops it during graceful shutdown.
func registerWorkerLifecycle(lc fx.Lifecycle, w *jobs.Worker) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return w.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			return w.Stop(ctx)
		},
	})
}
