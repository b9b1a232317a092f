package accounts

import (
	"time"

	"github.com/uptrace/bun"
)

// Status is the agent account's lock status.
type Status string

const (
	StatusActive Status = "active"
	StatusLocked Status = "locked"
)

// Account is the durable record of one agent's login identity, scoped to a
// single environment: the login identity is the pair (env_slug, agent_name),
// never the agent name alone.
type Account struct {
	bun.BaseModel `bun:"table:arena.agent_accounts,alias:aa"`

	EnvSlug      string    `bun:"env_slug,pk" json:"envSlug"`
	AgentName    string    `bun:"agent_name,pk" json:"agentName"`
	PasswordHash string    `bun:"password_hash,notnull" json:"-"`
	Status       Status    `bun:"status,notnull,default:'active'" json:"status"`
	CreatedAt    time.Time `bun:"created_at,notnull,default:now()" json:"createdAt"`
}

// DTO is the public projection of an Account.
type DTO struct {
	EnvSlug   string    `json:"envSlug"`
	AgentName string    `json:"agentName"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// ToDTO projects an Account to its public DTO.
func (a *Account) ToDTO() DTO {
	return DTO{
		EnvSlug:   a.EnvSlug,
		AgentName: a.AgentName,
		Status:    a.Status,
		CreatedAt: a.CreatedAt,
	}
}

// IsActive reports whether the account may currently submit action batches.
func (a *Account) IsActive() bool {
	return a.Status == StatusActive
}
