package accounts

import (
	"go.uber.org/fx"
)

// Module provides the agent-account domain.
var Module = fx.Module("accounts",
	fx.Provide(NewRepository),
	fx.Provide(NewService),
	fx.Provide(NewHandler),
	fx.Invoke(RegisterRoutes),
)
