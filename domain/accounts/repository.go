package accounts

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/uptrace/bun"

	"github.com/arenaeval/server/pkg/apperror"
	"github.com/arenaeval/server/pkg/logger"
	"github.com/arenaeval/server/pkg/pgutils"
)

// Repository persists Account records.
type Repository struct {
	db  bun.IDB
	log *slog.Logger
}

// NewRepository creates a new account repository.
func NewRepository(db bun.IDB, log *slog.Logger) *Repository {
	return &Repository{db: db, log: log.With(logger.Scope("accounts.repo"))}
}

// Get returns the account for (envSlug, agentName), or apperror.ErrNotFound.
func (r *Repository) Get(ctx context.Context, envSlug, agentName string) (*Account, error) {
	var acc Account
	err := r.db.NewSelect().Model(&acc).
		Where("env_slug = ? AND agent_name = ?", envSlug, agentName).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.ErrNotFound.WithMessage("agent account not found")
		}
		r.log.Error("failed to load account", logger.Error(err),
			slog.String("env_slug", envSlug), slog.String("agent_name", agentName))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return &acc, nil
}

// ListByEnv returns every account scoped to envSlug, ordered by agent name.
func (r *Repository) ListByEnv(ctx context.Context, envSlug string) ([]Account, error) {
	var accs []Account
	err := r.db.NewSelect().Model(&accs).
		Where("env_slug = ?", envSlug).
		Order("agent_name ASC").
		Scan(ctx)
	if err != nil {
		r.log.Error("failed to list accounts", logger.Error(err), slog.String("env_slug", envSlug))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return accs, nil
}

// Create inserts a new account, or overwrites the stored password hash in
// place when overwrite is true (admin /makeagent semantics).
func (r *Repository) Create(ctx context.Context, acc *Account, overwrite bool) error {
	if overwrite {
		_, err := r.db.NewInsert().
			Model(acc).
			On("CONFLICT (env_slug, agent_name) DO UPDATE").
			Set("password_hash = EXCLUDED.password_hash").
			Set("status = EXCLUDED.status").
			Exec(ctx)
		if err != nil {
			r.log.Error("failed to upsert account", logger.Error(err), slog.String("agent_name", acc.AgentName))
			return apperror.ErrDatabase.WithInternal(err)
		}
		return nil
	}

	_, err := r.db.NewInsert().Model(acc).Exec(ctx)
	if err != nil {
		if pgutils.IsUniqueViolation(err) {
			return apperror.New(409, "conflict", "agent account already exists")
		}
		r.log.Error("failed to create account", logger.Error(err), slog.String("agent_name", acc.AgentName))
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

// SetStatus updates the account's lock status (admin /blockagent,
// /unblockagent).
func (r *Repository) SetStatus(ctx context.Context, envSlug, agentName string, status Status) error {
	res, err := r.db.NewUpdate().Model((*Account)(nil)).
		Set("status = ?", status).
		Where("env_slug = ? AND agent_name = ?", envSlug, agentName).
		Exec(ctx)
	if err != nil {
		r.log.Error("failed to update account status", logger.Error(err), slog.String("agent_name", agentName))
		return apperror.ErrDatabase.WithInternal(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.ErrNotFound.WithMessage("agent account not found")
	}
	return nil
}

// DeleteUnusedByEnv deletes every account in envSlug with zero runs recorded
// against it (admin /deleteunusedagents), returning the number removed.
func (r *Repository) DeleteUnusedByEnv(ctx context.Context, envSlug string) (int, error) {
	res, err := r.db.NewDelete().Model((*Account)(nil)).
		Where("env_slug = ?", envSlug).
		Where("NOT EXISTS (SELECT 1 FROM arena.agent_aggregates agg WHERE agg.env_slug = aa.env_slug AND agg.agent_name = aa.agent_name AND agg.total_runs > 0)").
		Exec(ctx)
	if err != nil {
		r.log.Error("failed to delete unused accounts", logger.Error(err), slog.String("env_slug", envSlug))
		return 0, apperror.ErrDatabase.WithInternal(err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
