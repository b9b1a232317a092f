package agentdata

import (
	"time"

	"github.com/uptrace/bun"
)

// cleanupTriggerModulus is the (intentionally large, intentionally
// unconfigurable) total_runs multiple that schedules a housekeeping sweep of
// an agent's old finished runs).
const cleanupTriggerModulus = 2351

// recentWindowSize bounds recently_finished_runs and the environment's
// <env>#recentruns key to the last 20 entries.
const recentWindowSize = 20

// Aggregate is the per-agent rating accumulator, created lazily on the
// first FINISHED transition for that agent.
type Aggregate struct {
	bun.BaseModel `bun:"table:arena.agent_aggregates,alias:ag"`

	EnvSlug               string    `bun:"env_slug,pk" json:"envSlug"`
	AgentName             string    `bun:"agent_name,pk" json:"agentName"`
	TotalRuns             int64     `bun:"total_runs,notnull,default:0" json:"totalRuns"`
	FullyEvaluated        bool      `bun:"fully_evaluated,notnull,default:false" json:"fullyEvaluated"`
	RecentResults         []float64 `bun:"recent_results,array,notnull" json:"recentResults"`
	RecentlyFinishedRuns  []int64   `bun:"recently_finished_runs,array,notnull" json:"recentlyFinishedRuns"`
	CurrentRating         float64   `bun:"current_rating,notnull" json:"currentRating"`
	BestRating            float64   `bun:"best_rating,notnull" json:"bestRating"`
	UpdatedAt             time.Time `bun:"updated_at,notnull,default:now()" json:"updatedAt"`
}

// NewAggregate seeds a fresh aggregate: best_rating = current_rating =
// the environment's initial rating, total_runs = 0, fully_evaluated =
// false, sequences empty.
func NewAggregate(envSlug, agentName string, initialRating float64) *Aggregate {
	return &Aggregate{
		EnvSlug:              envSlug,
		AgentName:            agentName,
		TotalRuns:            0,
		FullyEvaluated:       false,
		RecentResults:        []float64{},
		RecentlyFinishedRuns: []int64{},
		CurrentRating:        initialRating,
		BestRating:           initialRating,
	}
}

// DueForCleanup reports whether total_runs has just crossed a multiple of
// cleanupTriggerModulus.
func (a *Aggregate) DueForCleanup() bool {
	return a.TotalRuns%cleanupTriggerModulus == 0
}

// appendBounded appends v to a tail-truncated copy of list, keeping at most
// limit entries, oldest first (shared shape for RecentResults,
// RecentlyFinishedRuns, and the kv-stored env recentruns list).
func appendBounded[T any](list []T, v T, limit int) []T {
	out := append(list, v)
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}
