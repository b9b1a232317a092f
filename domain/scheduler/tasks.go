package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/arenaeval/server/domain/admin"
	"github.com/arenaeval/server/internal/jobs"
	"github.com/arenaeval/server/pkg/logger"
)

// StaleCleanupJobRecoverTask requeues cleanup_jobs rows left stuck in
// 'processing' by a worker that crashed or was killed mid-batch.
type StaleCleanupJobRecoverTask struct {
	queue        *jobs.Queue
	log          *slog.Logger
	staleMinutes int
}

// NewStaleCleanupJobRecoverTask creates a new stale-job recovery task.
func NewStaleCleanupJobRecoverTask(queue *jobs.Queue, log *slog.Logger, staleMinutes int) *StaleCleanupJobRecoverTask {
	return &StaleCleanupJobRecoverTask{
		queue:        queue,
		log:          log.With(logger.Scope("scheduler.cleanup_job_recover")),
		staleMinutes: staleMinutes,
	}
}

// Run requeues any cleanup_jobs row stuck in 'processing' past the stale
// threshold.
func (t *StaleCleanupJobRecoverTask) Run(ctx context.Context) error {
	n, err := t.queue.RecoverStaleJobs(ctx, t.staleMinutes)
	if err != nil {
		t.log.Error("failed to recover stale cleanup jobs", logger.Error(err))
		return err
	}
	if n > 0 {
		t.log.Info("recovered stale cleanup jobs", slog.Int("count", n))
	}
	return nil
}

// FullSweepTask periodically runs the equivalent of the admin
// /removenonrecentruns endpoint across every environment, the backstop to
// the per-agent cleanup_jobs trigger.
type FullSweepTask struct {
	admin *admin.Service
	log   *slog.Logger
}

// NewFullSweepTask creates a new full-sweep task.
func NewFullSweepTask(adminSvc *admin.Service, log *slog.Logger) *FullSweepTask {
	return &FullSweepTask{admin: adminSvc, log: log.With(logger.Scope("scheduler.full_sweep"))}
}

// Run executes one full sweep across all environments.
func (t *FullSweepTask) Run(ctx context.Context) error {
	start := time.Now()
	deleted, err := t.admin.RemoveNonRecentRuns(ctx)
	if err != nil {
		t.log.Error("full sweep failed", logger.Error(err), slog.Duration("duration", time.Since(start)))
		return err
	}
	t.log.Info("full sweep completed",
		slog.Int("deleted", deleted),
		slog.Duration("duration", time.Since(start)))
	return nil
}
