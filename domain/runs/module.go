package runs

import (
	"go.uber.org/fx"
)

// Module provides the run state-machine repository. Runs have no direct
// HTTP surface of their own; they are driven entirely through domain/act and
// read through domain/agentdata.
var Module = fx.Module("runs",
	fx.Provide(NewRepository),
)
