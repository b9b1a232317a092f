package environments

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/uptrace/bun"

	"github.com/arenaeval/server/pkg/apperror"
	"github.com/arenaeval/server/pkg/logger"
	"github.com/arenaeval/server/pkg/pgutils"
)

// Repository persists Environment records.
type Repository struct {
	db  bun.IDB
	log *slog.Logger
}

// NewRepository creates a new environment repository.
func NewRepository(db bun.IDB, log *slog.Logger) *Repository {
	return &Repository{db: db, log: log.With(logger.Scope("environments.repo"))}
}

// GetBySlug returns the environment for slug, or apperror.ErrNotFound.
func (r *Repository) GetBySlug(ctx context.Context, slug string) (*Environment, error) {
	var env Environment
	err := r.db.NewSelect().Model(&env).Where("slug = ?", slug).Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.ErrNotFound.WithMessage("environment not found")
		}
		r.log.Error("failed to load environment", logger.Error(err), slog.String("slug", slug))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return &env, nil
}

// List returns every registered environment, ordered by slug.
func (r *Repository) List(ctx context.Context) ([]Environment, error) {
	var envs []Environment
	err := r.db.NewSelect().Model(&envs).Order("slug ASC").Scan(ctx)
	if err != nil {
		r.log.Error("failed to list environments", logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return envs, nil
}

// Create inserts a new environment, or overwrites the existing one in place
// when overwrite is true (admin /makeenv semantics).
func (r *Repository) Create(ctx context.Context, env *Environment, overwrite bool) error {
	if overwrite {
		_, err := r.db.NewInsert().
			Model(env).
			On("CONFLICT (slug) DO UPDATE").
			Set("env_class = EXCLUDED.env_class").
			Set("display_name = EXCLUDED.display_name").
			Set("config = EXCLUDED.config").
			Set("signup_policy = EXCLUDED.signup_policy").
			Set("status = EXCLUDED.status").
			Exec(ctx)
		if err != nil {
			r.log.Error("failed to upsert environment", logger.Error(err), slog.String("slug", env.Slug))
			return apperror.ErrDatabase.WithInternal(err)
		}
		return nil
	}

	_, err := r.db.NewInsert().Model(env).Exec(ctx)
	if err != nil {
		if pgutils.IsUniqueViolation(err) {
			return apperror.New(409, "conflict", "environment already exists")
		}
		r.log.Error("failed to create environment", logger.Error(err), slog.String("slug", env.Slug))
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

// Delete cascades the deletion of env and every run, aggregate and account
// scoped to it, in one transaction.
func (r *Repository) Delete(ctx context.Context, slug string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return apperror.ErrDatabase.WithInternal(err)
	}
	defer tx.Rollback()

	stmts := []string{
		"DELETE FROM arena.runs WHERE env_slug = ?",
		"DELETE FROM arena.agent_aggregates WHERE env_slug = ?",
		"DELETE FROM arena.agent_accounts WHERE env_slug = ?",
		"DELETE FROM arena.kv_store WHERE key = ? || '#recentruns'",
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt, slug); err != nil {
			r.log.Error("failed cascade delete step", logger.Error(err), slog.String("slug", slug))
			return apperror.ErrDatabase.WithInternal(err)
		}
	}

	res, err := tx.NewDelete().Model((*Environment)(nil)).Where("slug = ?", slug).Exec(ctx)
	if err != nil {
		return apperror.ErrDatabase.WithInternal(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.ErrNotFound.WithMessage("environment not found")
	}

	if err := tx.Commit(); err != nil {
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}
