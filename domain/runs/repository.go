package runs

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/uptrace/bun"

	"github.com/arenaeval/server/domain/environments"
	"github.com/arenaeval/server/pkg/apperror"
	"github.com/arenaeval/server/pkg/logger"
)

// Repository persists Run records. Every mutating method that participates
// in the per-action transaction discipline accepts a bun.IDB so
// callers can pass a *database.SafeTx and the SELECT ... FOR UPDATE + commit
// happen atomically.
type Repository struct {
	log *slog.Logger
}

// NewRepository creates a new run repository.
func NewRepository(log *slog.Logger) *Repository {
	return &Repository{log: log.With(logger.Scope("runs.repo"))}
}

// GetForUpdate loads a run and locks its row for the duration of the
// enclosing transaction, the basis of the act_no serialization.
func (r *Repository) GetForUpdate(ctx context.Context, db bun.IDB, id int64) (*Run, error) {
	var run Run
	err := db.NewSelect().Model(&run).Where("id = ?", id).For("UPDATE").Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.New(400, "invalid_run", "Invalid run id")
		}
		r.log.Error("failed to load run for update", logger.Error(err), slog.Int64("run_id", id))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return &run, nil
}

// Get loads a run without locking it.
func (r *Repository) Get(ctx context.Context, db bun.IDB, id int64) (*Run, error) {
	var run Run
	err := db.NewSelect().Model(&run).Where("id = ?", id).Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.New(400, "invalid_run", "Invalid run id")
		}
		r.log.Error("failed to load run", logger.Error(err), slog.Int64("run_id", id))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return &run, nil
}

// Create inserts a fresh run in the CREATED state for agentName in envSlug,
// with the capability-produced initial state.
func (r *Repository) Create(ctx context.Context, db bun.IDB, envSlug, agentName string, initialState environments.RawJSON) (*Run, error) {
	run := &Run{
		EnvSlug:   envSlug,
		AgentName: agentName,
		State:     initialState,
		History:   HistoryList{},
	}
	if _, err := db.NewInsert().Model(run).Exec(ctx); err != nil {
		r.log.Error("failed to create run", logger.Error(err), slog.String("agent_name", agentName))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return run, nil
}

// Save persists the full current state of run (history, state, finished,
// outcome, outstanding_action) in one UPDATE.
func (r *Repository) Save(ctx context.Context, db bun.IDB, run *Run) error {
	_, err := db.NewUpdate().Model(run).
		Column("finished", "outstanding_action", "state", "history", "outcome").
		Where("id = ?", run.ID).
		Exec(ctx)
	if err != nil {
		r.log.Error("failed to save run", logger.Error(err), slog.Int64("run_id", run.ID))
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

// SetOutstandingAction flips outstanding_action on a set of runs in one
// statement (used when issuing a fresh action-request batch).
func (r *Repository) SetOutstandingAction(ctx context.Context, db bun.IDB, ids []int64, value bool) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := db.NewUpdate().Model((*Run)(nil)).
		Set("outstanding_action = ?", value).
		Where("id IN (?)", bun.In(ids)).
		Exec(ctx)
	if err != nil {
		r.log.Error("failed to set outstanding_action", logger.Error(err))
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

// ListUnfinishedByAgent returns every unfinished run owned by agentName in
// envSlug, ordered by id ascending.
func (r *Repository) ListUnfinishedByAgent(ctx context.Context, db bun.IDB, envSlug, agentName string) ([]Run, error) {
	var list []Run
	err := db.NewSelect().Model(&list).
		Where("env_slug = ? AND agent_name = ? AND finished = false", envSlug, agentName).
		Order("id ASC").
		Scan(ctx)
	if err != nil {
		r.log.Error("failed to list unfinished runs", logger.Error(err), slog.String("agent_name", agentName))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return list, nil
}

// DeleteFinishedExcept deletes every finished run belonging to agentName in
// envSlug whose id is not in keepIDs (the housekeeping sweep behind
// /removenonrecentruns and the cleanup_jobs worker), returning the number
// of rows removed.
func (r *Repository) DeleteFinishedExcept(ctx context.Context, db bun.IDB, envSlug, agentName string, keepIDs []int64) (int, error) {
	q := db.NewDelete().Model((*Run)(nil)).
		Where("env_slug = ? AND agent_name = ? AND finished = true", envSlug, agentName)
	if len(keepIDs) > 0 {
		q = q.Where("id NOT IN (?)", bun.In(keepIDs))
	}
	res, err := q.Exec(ctx)
	if err != nil {
		r.log.Error("failed to delete finished runs", logger.Error(err), slog.String("agent_name", agentName))
		return 0, apperror.ErrDatabase.WithInternal(err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Vacuum reclaims space on the runs table after a bulk delete.
func (r *Repository) Vacuum(ctx context.Context, db bun.IDB) error {
	if _, err := db.ExecContext(ctx, "VACUUM arena.runs"); err != nil {
		r.log.Error("failed to vacuum runs table", logger.Error(err))
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}
