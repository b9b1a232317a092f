package agentdata

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/uptrace/bun"

	"github.com/arenaeval/server/pkg/apperror"
	"github.com/arenaeval/server/pkg/logger"
)

// Repository persists Aggregate records.
type Repository struct {
	log *slog.Logger
}

// NewRepository creates a new agent-aggregate repository.
func NewRepository(log *slog.Logger) *Repository {
	return &Repository{log: log.With(logger.Scope("agentdata.repo"))}
}

// GetForUpdate loads an aggregate and locks its row, or returns (nil, nil)
// if it does not exist yet (the caller seeds a fresh one with NewAggregate).
func (r *Repository) GetForUpdate(ctx context.Context, db bun.IDB, envSlug, agentName string) (*Aggregate, error) {
	var agg Aggregate
	err := db.NewSelect().Model(&agg).
		Where("env_slug = ? AND agent_name = ?", envSlug, agentName).
		For("UPDATE").
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.log.Error("failed to load aggregate for update", logger.Error(err), slog.String("agent_name", agentName))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return &agg, nil
}

// Get loads an aggregate without locking it, or apperror.ErrNotFound.
func (r *Repository) Get(ctx context.Context, db bun.IDB, envSlug, agentName string) (*Aggregate, error) {
	var agg Aggregate
	err := db.NewSelect().Model(&agg).
		Where("env_slug = ? AND agent_name = ?", envSlug, agentName).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.ErrNotFound.WithMessage("agent has no recorded results")
		}
		r.log.Error("failed to load aggregate", logger.Error(err), slog.String("agent_name", agentName))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return &agg, nil
}

// ListByEnv returns every aggregate scoped to envSlug, ordered by agent name.
func (r *Repository) ListByEnv(ctx context.Context, db bun.IDB, envSlug string) ([]Aggregate, error) {
	var aggs []Aggregate
	err := db.NewSelect().Model(&aggs).
		Where("env_slug = ?", envSlug).
		Order("agent_name ASC").
		Scan(ctx)
	if err != nil {
		r.log.Error("failed to list aggregates", logger.Error(err), slog.String("env_slug", envSlug))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return aggs, nil
}

// ListAll returns every aggregate across every environment, ordered by
// env slug then agent name (admin-wide /results with no env filter).
func (r *Repository) ListAll(ctx context.Context, db bun.IDB) ([]Aggregate, error) {
	var aggs []Aggregate
	err := db.NewSelect().Model(&aggs).
		Order("env_slug ASC", "agent_name ASC").
		Scan(ctx)
	if err != nil {
		r.log.Error("failed to list all aggregates", logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return aggs, nil
}

// Upsert inserts agg, or overwrites the stored row if one already exists for
// its (env_slug, agent_name) key.
func (r *Repository) Upsert(ctx context.Context, db bun.IDB, agg *Aggregate) error {
	_, err := db.NewInsert().
		Model(agg).
		On("CONFLICT (env_slug, agent_name) DO UPDATE").
		Set("total_runs = EXCLUDED.total_runs").
		Set("fully_evaluated = EXCLUDED.fully_evaluated").
		Set("recent_results = EXCLUDED.recent_results").
		Set("recently_finished_runs = EXCLUDED.recently_finished_runs").
		Set("current_rating = EXCLUDED.current_rating").
		Set("best_rating = EXCLUDED.best_rating").
		Set("updated_at = now()").
		Exec(ctx)
	if err != nil {
		r.log.Error("failed to upsert aggregate", logger.Error(err), slog.String("agent_name", agg.AgentName))
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}
