package health

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/uptrace/bun"

	"github.com/arenaeval/server/domain/agentdata"
	"github.com/arenaeval/server/domain/scheduler"
)

// MetricsHandler exposes operational metrics for the cleanup job queue and
// the cron scheduler, mirroring the single job queue this server actually runs.
type MetricsHandler struct {
	db  *bun.DB
	sch *scheduler.Scheduler
}

// NewMetricsHandler creates a new metrics handler
func NewMetricsHandler(db *bun.DB, sch *scheduler.Scheduler) *MetricsHandler {
	return &MetricsHandler{db: db, sch: sch}
}

// JobQueueMetrics represents metrics for the cleanup job queue
type JobQueueMetrics struct {
	Queue       string `json:"queue"`
	Pending     int64  `json:"pending"`
	Processing  int64  `json:"processing"`
	Completed   int64  `json:"completed"`
	Failed      int64  `json:"failed"`
	Total       int64  `json:"total"`
	Last24Hours int64  `json:"last_24_hours"`
}

// AllJobMetrics contains metrics for all job queues
type AllJobMetrics struct {
	Queues    []JobQueueMetrics `json:"queues"`
	Timestamp string            `json:"timestamp"`
}

// JobMetrics returns metrics for the cleanup_jobs queue.
func (h *MetricsHandler) JobMetrics(c echo.Context) error {
	ctx := c.Request().Context()

	metrics, err := h.getQueueMetrics(ctx, "cleanup_jobs", agentdata.CleanupJobsTable)
	if err != nil {
		return c.JSON(http.StatusOK, AllJobMetrics{Timestamp: time.Now().UTC().Format(time.RFC3339)})
	}

	return c.JSON(http.StatusOK, AllJobMetrics{
		Queues:    []JobQueueMetrics{*metrics},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *MetricsHandler) getQueueMetrics(ctx context.Context, name, table string) (*JobQueueMetrics, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE status = 'pending') as pending,
			COUNT(*) FILTER (WHERE status IN ('processing', 'running')) as processing,
			COUNT(*) FILTER (WHERE status = 'completed') as completed,
			COUNT(*) FILTER (WHERE status = 'failed') as failed,
			COUNT(*) as total,
			COUNT(*) FILTER (WHERE created_at > NOW() - INTERVAL '24 hours') as last_24_hours
		FROM ` + table

	var metrics struct {
		Pending     int64 `bun:"pending"`
		Processing  int64 `bun:"processing"`
		Completed   int64 `bun:"completed"`
		Failed      int64 `bun:"failed"`
		Total       int64 `bun:"total"`
		Last24Hours int64 `bun:"last_24_hours"`
	}

	if err := h.db.NewRaw(query).Scan(ctx, &metrics); err != nil {
		return nil, err
	}

	return &JobQueueMetrics{
		Queue:       name,
		Pending:     metrics.Pending,
		Processing:  metrics.Processing,
		Completed:   metrics.Completed,
		Failed:      metrics.Failed,
		Total:       metrics.Total,
		Last24Hours: metrics.Last24Hours,
	}, nil
}

// SchedulerMetrics returns the currently registered scheduled tasks.
func (h *MetricsHandler) SchedulerMetrics(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"running": h.sch.IsRunning(),
		"tasks":   h.sch.ListTasks(),
	})
}
