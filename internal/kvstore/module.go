package kvstore

import (
	"go.uber.org/fx"
)

// Module provides the key/value store helper as an fx singleton.
var Module = fx.Module("kvstore",
	fx.Provide(NewStore),
)
