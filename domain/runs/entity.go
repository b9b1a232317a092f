package runs

import (
	"time"

	"github.com/uptrace/bun"

	"github.com/arenaeval/server/domain/environments"
)

// Run is the durable record backing one run of an agent against an
// environment. action_no is derived, not stored: it always equals
// len(History).
type Run struct {
	bun.BaseModel `bun:"table:arena.runs,alias:r"`

	ID                int64                `bun:"id,pk,autoincrement" json:"id"`
	EnvSlug           string               `bun:"env_slug,notnull" json:"envSlug"`
	AgentName         string               `bun:"agent_name,notnull" json:"agentName"`
	Finished          bool                 `bun:"finished,notnull,default:false" json:"finished"`
	OutstandingAction bool                 `bun:"outstanding_action,notnull,default:false" json:"outstandingAction"`
	State             environments.RawJSON `bun:"state,type:jsonb,notnull" json:"state"`
	History           HistoryList          `bun:"history,type:jsonb,notnull,default:'[]'" json:"history"`
	Outcome           *float64             `bun:"outcome" json:"outcome,omitempty"`
	CreatedAt         time.Time            `bun:"created_at,notnull,default:now()" json:"createdAt"`
}

// HistoryList is the append-only (action, extra_info) sequence, stored as a
// single jsonb column and scanned through the standard json codec bun uses
// for jsonb fields.
type HistoryList []environments.ActionHistoryEntry

// ActNo is len(History): the number of actions the agent has successfully
// submitted against this run.
func (r *Run) ActNo() int {
	return len(r.History)
}

// IsOwnedBy reports whether agentName is this run's owner.
func (r *Run) IsOwnedBy(agentName string) bool {
	return r.AgentName == agentName
}

// AppendHistory appends one (action, extraInfo) pair and replaces state.
func (r *Run) AppendHistory(action, extraInfo environments.RawJSON, newState environments.RawJSON) {
	r.History = append(r.History, environments.ActionHistoryEntry{Action: action, ExtraInfo: extraInfo})
	r.State = newState
}

// Finish marks the run FINISHED with outcome, clearing outstanding_action
//.
func (r *Run) Finish(outcome float64) {
	r.Finished = true
	r.Outcome = &outcome
	r.OutstandingAction = false
}

// ToRunData projects the run to the read-only view passed into a capability.
// displayName is used as given; no env-slug prefix is stripped here, so the
// caller passes the bare agent name.
func (r *Run) ToRunData(displayName string) environments.RunData {
	history := make([]environments.ActionHistoryEntry, len(r.History))
	copy(history, r.History)
	return environments.RunData{
		RunID:            r.ID,
		AgentDisplayName: displayName,
		State:            r.State,
		History:          history,
	}
}
