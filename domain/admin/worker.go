package admin

import (
	"log/slog"

	"github.com/arenaeval/server/internal/jobs"
)

// cleanupWorkerName identifies the cleanup_jobs consumer in logs and the
// /api/metrics/jobs admin surface.
const cleanupWorkerName = "cleanup_jobs"

// NewCleanupWorker builds the background consumer for the cleanup_jobs
// queue, polling on the generic jobs.Worker loop so the sweep never sits in
// the triggering agent's own request/response cycle.
func NewCleanupWorker(svc *Service, log *slog.Logger) *jobs.Worker {
	return jobs.NewWorker(jobs.DefaultWorkerConfig(cleanupWorkerName), log, svc.ProcessCleanupBatch)
}
