package environments

import (
	"go.uber.org/fx"
)

// Module provides the environment-lifecycle domain: the capability registry,
// the Environment repository/service/handler, and their admin routes.
var Module = fx.Module("environments",
	fx.Provide(NewRegistry),
	fx.Provide(NewRepository),
	fx.Provide(NewService),
	fx.Provide(NewHandler),
	fx.Invoke(RegisterRoutes),
)
