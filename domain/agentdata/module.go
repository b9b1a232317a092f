package agentdata

import (
	"go.uber.org/fx"
)

// Module provides the agent-aggregate domain: the rating repository and
// service driven by domain/act on every FINISHED transition, plus the
// /results read path and the cleanup_jobs queue.
var Module = fx.Module("agentdata",
	fx.Provide(NewRepository),
	fx.Provide(NewService),
	fx.Provide(NewCleanupQueue),
	fx.Provide(NewHandler),
	fx.Invoke(RegisterRoutes),
)
