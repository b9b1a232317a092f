package environments

import "encoding/json"

// RawJSON is the opaque, environment-specific payload carried at the core's
// boundary for run state, actions, outcomes, percepts and extra info. The
// dispatcher never inspects its contents; only a capability implementation
// does.
type RawJSON = json.RawMessage

// ActionHistoryEntry is one (action, extra_info) pair appended to a run's
// history each time the agent successfully submits an action.
type ActionHistoryEntry struct {
	Action    RawJSON `json:"action"`
	ExtraInfo RawJSON `json:"extra_info,omitempty"`
}

// RunData is the read-only view of a run passed into a capability's act,
// get_action_request and get_abandon_outcome operations. It is assembled
// fresh for every call and must never be mutated by the capability.
type RunData struct {
	RunID            int64                `json:"run_id"`
	AgentDisplayName string               `json:"agent_display_name"`
	State            RawJSON              `json:"state"`
	History          []ActionHistoryEntry `json:"history"`
}

// ActionResult is the outcome of applying one action to a run's capability.
//
// Invalid-action contract: a capability must never panic or return a Go
// error for a rejected action. It signals rejection by leaving NewState nil
// and setting Message to a human-readable explanation.
type ActionResult struct {
	NewState  RawJSON // nil means the action was rejected
	Message   string  // populated on rejection, optional otherwise
	ExtraInfo RawJSON
	Outcome   *float64 // non-nil terminates the run
}

// Settings are the capability's declarative, immutable-per-plugin policy
// knobs, supplied once at registration and read by the dispatcher and the
// agent aggregate.
type Settings struct {
	InitialRating            float64
	RatingStrategy           RatingStrategy
	MinRunsForFullyEvaluated int
	RatingObjective          RatingObjective
	NumberOfActionRequests   int
	CanAbandonRuns           bool
}

// RatingStrategy selects how current_rating is derived from recent_results.
type RatingStrategy string

// RatingObjective selects the direction best_rating is optimized in.
type RatingObjective string

const (
	RatingStrategyAverage RatingStrategy = "average"

	RatingObjectiveMax RatingObjective = "max"
	RatingObjectiveMin RatingObjective = "min"
)

// DefaultSettings is the conservative server-wide fallback, used only when
// a capability's own settings omit a field.
func DefaultSettings() Settings {
	return Settings{
		InitialRating:            0.0,
		RatingStrategy:           RatingStrategyAverage,
		MinRunsForFullyEvaluated: 50,
		RatingObjective:          RatingObjectiveMax,
		NumberOfActionRequests:   5,
		CanAbandonRuns:           false,
	}
}

// WithFallback fills any zero-valued field of s with the corresponding field
// of fallback, so a plugin that only overrides a handful of settings (as
// `nimlike` does) still gets sane values for the rest.
func (s Settings) WithFallback(fallback Settings) Settings {
	if s.RatingStrategy == "" {
		s.RatingStrategy = fallback.RatingStrategy
	}
	if s.MinRunsForFullyEvaluated == 0 {
		s.MinRunsForFullyEvaluated = fallback.MinRunsForFullyEvaluated
	}
	if s.RatingObjective == "" {
		s.RatingObjective = fallback.RatingObjective
	}
	if s.NumberOfActionRequests == 0 {
		s.NumberOfActionRequests = fallback.NumberOfActionRequests
	}
	return s
}

// Capability is the pluggable environment adapter. One instance is
// constructed per request by a CapabilityFactory; implementations must be
// stateless beyond their immutable Settings and construction-time config.
type Capability interface {
	// Settings returns this capability's immutable policy configuration.
	Settings() Settings

	// NewRun produces the initial opaque state for a fresh run. May be
	// non-deterministic.
	NewRun() (RawJSON, error)

	// Act applies action to the run described by data and returns the
	// result. Act must never return a Go error for a rejected action —
	// only for a genuine internal failure.
	Act(action RawJSON, data RunData) (ActionResult, error)

	// GetActionRequest projects the current run data to an agent-visible
	// percept. Must be a pure function of data.
	GetActionRequest(data RunData) (RawJSON, error)

	// GetAbandonOutcome returns the outcome to record when an agent
	// voluntarily forfeits a run. Required iff Settings().CanAbandonRuns.
	GetAbandonOutcome(data RunData) (float64, error)
}

// CapabilityFactory constructs a Capability for one environment, given the
// environment's opaque configuration blob.
type CapabilityFactory func(config RawJSON) (Capability, error)

// defaultingCapability wraps a resolved Capability so that any zero-valued
// field of its own Settings() falls back to the server-wide defaults,
// instead of every plugin having to restate MinRunsForFullyEvaluated and
// NumberOfActionRequests.
type defaultingCapability struct {
	Capability
	fallback Settings
}

// withDefaults decorates cap so its declared Settings are merged over
// fallback (see Settings.WithFallback).
func withDefaults(cap Capability, fallback Settings) Capability {
	return defaultingCapability{Capability: cap, fallback: fallback}
}

func (c defaultingCapability) Settings() Settings {
	return c.Capability.Settings().WithFallback(c.fallback)
}
