package act

import (
	"go.uber.org/fx"
)

// Module provides the action-dispatch and run-lifecycle engine: the
// dispatcher, its HTTP handler and route.
var Module = fx.Module("act",
	fx.Provide(NewDispatcher),
	fx.Provide(NewHandler),
	fx.Invoke(RegisterRoutes),
)
