package act

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// capabilityLatency times every call into an environment capability
// (new_run, act, get_action_request, get_abandon_outcome). Capability calls
// are synchronous and potentially slow, and are not cancellable from within
// the dispatcher, so their latency is the one signal ops has.
var capabilityLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name: "env_capability_latency_seconds",
	Help: "Latency of environment capability operations invoked by the dispatcher.",
}, []string{"env", "op"})

// timeCapability observes the duration of one capability call under env/op.
func timeCapability(env, op string, fn func() error) error {
	start := time.Now()
	err := fn()
	capabilityLatency.WithLabelValues(env, op).Observe(time.Since(start).Seconds())
	return err
}
