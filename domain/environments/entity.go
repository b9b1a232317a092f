package environments

import (
	"time"

	"github.com/uptrace/bun"
)

// SignupPolicy is the environment's agent-account creation policy. Only
// "restricted" (admin-only account creation) exists today.
type SignupPolicy string

// Status is the environment's lifecycle status. Only "active" exists today.
type Status string

const (
	SignupPolicyRestricted SignupPolicy = "restricted"

	StatusActive Status = "active"
)

// Environment is the durable record backing an environment slug. Its
// lifetime exceeds every run that references it; destroying it cascades to
// every run, aggregate and account scoped to the slug.
type Environment struct {
	bun.BaseModel `bun:"table:arena.environments,alias:e"`

	Slug         string       `bun:"slug,pk" json:"slug"`
	EnvClass     string       `bun:"env_class,notnull" json:"envClass"`
	DisplayName  string       `bun:"display_name,notnull" json:"displayName"`
	Config       RawJSON      `bun:"config,type:jsonb,notnull,default:'{}'" json:"config"`
	SignupPolicy SignupPolicy `bun:"signup_policy,notnull,default:'restricted'" json:"signupPolicy"`
	Status       Status       `bun:"status,notnull,default:'active'" json:"status"`
	CreatedAt    time.Time    `bun:"created_at,notnull,default:now()" json:"createdAt"`
}

// DTO is the public projection of an Environment returned by admin/list
// endpoints.
type DTO struct {
	Slug         string       `json:"slug"`
	EnvClass     string       `json:"envClass"`
	DisplayName  string       `json:"displayName"`
	SignupPolicy SignupPolicy `json:"signupPolicy"`
	Status       Status       `json:"status"`
	CreatedAt    time.Time    `json:"createdAt"`
}

// ToDTO projects an Environment to its public DTO.
func (e *Environment) ToDTO() DTO {
	return DTO{
		Slug:         e.Slug,
		EnvClass:     e.EnvClass,
		DisplayName:  e.DisplayName,
		SignupPolicy: e.SignupPolicy,
		Status:       e.Status,
		CreatedAt:    e.CreatedAt,
	}
}

// IsActive reports whether the environment accepts action-batch traffic.
func (e *Environment) IsActive() bool {
	return e.Status == StatusActive
}
