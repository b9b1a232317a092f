package agentdata

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/uptrace/bun"

	"github.com/arenaeval/server/internal/jobs"
	"github.com/arenaeval/server/pkg/apperror"
	"github.com/arenaeval/server/pkg/logger"
)

// CleanupJobsTable is the Postgres table backing the cleanup_jobs queue,
// consumed through the generic FOR UPDATE SKIP LOCKED job queue
// (internal/jobs) instead of a bespoke one.
const CleanupJobsTable = "arena.cleanup_jobs"

// CleanupPayload is the jsonb payload stored on a cleanup_jobs row,
// identifying which agent's stale finished runs to sweep and which run ids
// must survive the sweep (its recently_finished_runs at enqueue time).
type CleanupPayload struct {
	EnvSlug   string  `json:"env_slug"`
	AgentName string  `json:"agent_name"`
	KeepIDs   []int64 `json:"keep_ids"`
}

// NewCleanupQueue builds the jobs.Queue for cleanup_jobs.
func NewCleanupQueue(db bun.IDB, log *slog.Logger) *jobs.Queue {
	cfg := jobs.DefaultQueueConfig(CleanupJobsTable, "agent_name")
	return jobs.NewQueue(db, cfg, log.With(logger.Scope("agentdata.cleanup")))
}

// cleanupJobRow is the shape scanned out of cleanup_jobs by GetJobByID; the
// queue's generic Dequeue only returns ids, so the consumer (domain/admin's
// sweep) re-fetches the row to recover the payload via GetCleanupPayload.
type cleanupJobRow struct {
	ID      string          `bun:"id"`
	Payload json.RawMessage `bun:"payload"`
}

// GetCleanupPayload re-fetches a dequeued cleanup_jobs row by id and decodes
// its payload, for the sweep consumer in domain/admin.
func GetCleanupPayload(ctx context.Context, q *jobs.Queue, id string) (*CleanupPayload, error) {
	var row cleanupJobRow
	if err := q.GetJobByID(ctx, id, &row); err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	var payload CleanupPayload
	if err := json.Unmarshal(row.Payload, &payload); err != nil {
		return nil, apperror.ErrInternal.WithInternal(err)
	}
	return &payload, nil
}

// EnqueueCleanup inserts a pending cleanup_jobs row for (envSlug,
// agentName). The sweep deletes the agent's finished runs except keepIDs,
// its recently_finished_runs window at enqueue time.
func EnqueueCleanup(ctx context.Context, db bun.IDB, envSlug, agentName string, keepIDs []int64) error {
	payload, err := json.Marshal(CleanupPayload{EnvSlug: envSlug, AgentName: agentName, KeepIDs: keepIDs})
	if err != nil {
		return apperror.ErrInternal.WithInternal(err)
	}

	_, err = db.NewInsert().
		Model(&struct {
			bun.BaseModel `bun:"table:arena.cleanup_jobs"`
			AgentName     string          `bun:"agent_name"`
			Status        jobs.JobStatus  `bun:"status"`
			Payload       json.RawMessage `bun:"payload"`
		}{
			AgentName: agentName,
			Status:    jobs.StatusPending,
			Payload:   payload,
		}).
		Exec(ctx)
	if err != nil {
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}
