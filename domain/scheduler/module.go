package scheduler

import (
	"context"
	"log/slog"
	"time"

	"go.uber.org/fx"

	"github.com/arenaeval/server/domain/admin"
	"github.com/arenaeval/server/internal/jobs"
)

// Module provides scheduled task functionality: stale cleanup_jobs recovery
// and the periodic full non-recent-runs sweep.
var Module = fx.Module("scheduler",
	fx.Provide(
		NewConfig,
		NewScheduler,
	),
	fx.Invoke(
		RegisterTasks,
		RegisterSchedulerLifecycle,
	),
)

// TaskParams contains dependencies for creating scheduled tasks.
type TaskParams struct {
	fx.In
	Scheduler    *Scheduler
	CleanupQueue *jobs.Queue
	Admin        *admin.Service
	Log          *slog.Logger
	Cfg          *Config
}

// RegisterTasks registers the scheduler's background tasks.
func RegisterTasks(p TaskParams) error {
	if !p.Cfg.Enabled {
		p.Log.Info("scheduler disabled, skipping task registration")
		return nil
	}

	recoverTask := NewStaleCleanupJobRecoverTask(p.CleanupQueue, p.Log, p.Cfg.StaleJobMinutes)
	if err := addScheduledTask(p.Scheduler, p.Log, "stale_cleanup_job_recover",
		p.Cfg.StaleCleanupJobRecoverSchedule, p.Cfg.StaleCleanupJobRecoverInterval, recoverTask.Run); err != nil {
		p.Log.Error("failed to register stale cleanup job recovery task", slog.String("error", err.Error()))
	}

	sweepTask := NewFullSweepTask(p.Admin, p.Log)
	if err := addScheduledTask(p.Scheduler, p.Log, "full_sweep",
		p.Cfg.FullSweepSchedule, p.Cfg.FullSweepInterval, sweepTask.Run); err != nil {
		p.Log.Error("failed to register full sweep task", slog.String("error", err.Error()))
	}

	p.Log.Info("registered scheduled tasks", slog.Any("tasks", p.Scheduler.ListTasks()))
	return nil
}

// addScheduledTask registers a task using a cron schedule if provided, otherwise using an interval.
// The cron schedule takes precedence over the interval when both are specified.
// If the cron schedule is invalid, falls back to using the interval.
func addScheduledTask(s *Scheduler, log *slog.Logger, name, cronSchedule string, interval time.Duration, task TaskFunc) error {
	if cronSchedule != "" {
		log.Info("using cron schedule for task",
			slog.String("name", name),
			slog.String("schedule", cronSchedule))
		err := s.AddCronTask(name, cronSchedule, task)
		if err != nil {
			log.Warn("invalid cron schedule, falling back to interval",
				slog.String("name", name),
				slog.String("schedule", cronSchedule),
				slog.Duration("interval", interval),
				slog.String("error", err.Error()))
			return s.AddIntervalTask(name, interval, task)
		}
		return nil
	}
	return s.AddIntervalTask(name, interval, task)
}

// RegisterSchedulerLifecycle registers the scheduler with fx lifecycle
func RegisterSchedulerLifecycle(lc fx.Lifecycle, scheduler *Scheduler, cfg *Config) {
	if !cfg.Enabled {
		return
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return scheduler.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			return scheduler.Stop(ctx)
		},
	})
}
