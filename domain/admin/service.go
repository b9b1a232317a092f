// Package admin implements the operator-facing surface: plugin
// registration, the bounded error log, disk-usage reporting, and the
// batch non-recent-run cleanup sweep.
package admin

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/uptrace/bun"
	"golang.org/x/sync/errgroup"

	"github.com/arenaeval/server/domain/agentdata"
	"github.com/arenaeval/server/domain/environments"
	"github.com/arenaeval/server/domain/runs"
	"github.com/arenaeval/server/internal/jobs"
	"github.com/arenaeval/server/pkg/adminbuffer"
	"github.com/arenaeval/server/pkg/apperror"
	"github.com/arenaeval/server/pkg/logger"
)

// sweepConcurrency bounds how many environments are swept at once by
// RemoveNonRecentRuns, so one admin call can't open an unbounded number of
// connections against the pool.
const sweepConcurrency = 4

// Service implements the admin operations.
type Service struct {
	db           bun.IDB
	runRepo      *runs.Repository
	envSvc       *environments.Service
	aggSvc       *agentdata.Service
	registry     *environments.Registry
	cleanupQueue *jobs.Queue
	errBuf       *adminbuffer.Buffer
	log          *slog.Logger
}

// NewService creates a new admin service.
func NewService(
	db bun.IDB,
	runRepo *runs.Repository,
	envSvc *environments.Service,
	aggSvc *agentdata.Service,
	registry *environments.Registry,
	cleanupQueue *jobs.Queue,
	errBuf *adminbuffer.Buffer,
	log *slog.Logger,
) *Service {
	return &Service{
		db:           db,
		runRepo:      runRepo,
		envSvc:       envSvc,
		aggSvc:       aggSvc,
		registry:     registry,
		cleanupQueue: cleanupQueue,
		errBuf:       errBuf,
		log:          log.With(logger.Scope("admin.svc")),
	}
}

// UploadPlugin registers ref as an alias of an already-linked-in capability
// (capability), the Go-native substitute for dynamic plugin loading.
func (s *Service) UploadPlugin(ref, capability string) error {
	if !s.registry.Has(capability) {
		return apperror.ErrBadRequest.WithMessage("unknown capability: " + capability)
	}
	if err := s.registry.Alias(ref, capability); err != nil {
		return apperror.ErrInternal.WithInternal(err)
	}
	s.log.Info("plugin registered", slog.String("ref", ref), slog.String("capability", capability))
	return nil
}

// Errors returns the bounded recent-errors buffer.
func (s *Service) Errors() []adminbuffer.Entry {
	return s.errBuf.List()
}

// DiskUsageReport is the /diskusage response body.
type DiskUsageReport struct {
	TotalBytes    uint64  `json:"total_bytes"`
	UsedBytes     uint64  `json:"used_bytes"`
	FreeBytes     uint64  `json:"free_bytes"`
	UsedPercent   float64 `json:"used_percent"`
	DatabaseBytes int64   `json:"database_bytes"`
}

// DiskUsage reports process-filesystem disk usage via gopsutil plus the
// live Postgres database size.
func (s *Service) DiskUsage(ctx context.Context) (*DiskUsageReport, error) {
	usage, err := disk.UsageWithContext(ctx, "/")
	if err != nil {
		return nil, apperror.ErrInternal.WithInternal(err)
	}

	var dbBytes int64
	if err := s.db.QueryRowContext(ctx, "SELECT pg_database_size(current_database())").Scan(&dbBytes); err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}

	return &DiskUsageReport{
		TotalBytes:    usage.Total,
		UsedBytes:     usage.Used,
		FreeBytes:     usage.Free,
		UsedPercent:   usage.UsedPercent,
		DatabaseBytes: dbBytes,
	}, nil
}

// RemoveNonRecentRuns sweeps every environment's agents concurrently,
// deleting finished runs not in the agent's recently_finished_runs window,
// then reclaims the freed space with a single VACUUM. It is the manual,
// synchronous counterpart to the per-agent cleanup_jobs trigger and to the
// scheduler's periodic full sweep.
func (s *Service) RemoveNonRecentRuns(ctx context.Context) (int, error) {
	envs, err := s.envSvc.List(ctx)
	if err != nil {
		return 0, err
	}

	var deleted atomic.Int64
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(sweepConcurrency)

	for _, env := range envs {
		env := env
		g.Go(func() error {
			n, err := s.sweepEnvironment(gCtx, env.Slug)
			if err != nil {
				return err
			}
			deleted.Add(int64(n))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return int(deleted.Load()), err
	}

	if err := s.runRepo.Vacuum(ctx, s.db); err != nil {
		return int(deleted.Load()), err
	}

	s.log.Info("non-recent run sweep completed", slog.Int64("deleted", deleted.Load()))
	return int(deleted.Load()), nil
}

// sweepEnvironment deletes, for every agent in envSlug, every finished run
// not present in that agent's current recently_finished_runs window.
func (s *Service) sweepEnvironment(ctx context.Context, envSlug string) (int, error) {
	aggs, err := s.aggSvc.ListByEnv(ctx, s.db, envSlug)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, agg := range aggs {
		n, err := s.runRepo.DeleteFinishedExcept(ctx, s.db, envSlug, agg.AgentName, agg.RecentlyFinishedRuns)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// ProcessCleanupBatch dequeues one batch of cleanup_jobs rows and applies
// each one's deletion, the consumer side of the per-agent cleanup trigger
// that runs outside the agent's own request/response cycle.
func (s *Service) ProcessCleanupBatch(ctx context.Context) error {
	ids, err := s.cleanupQueue.Dequeue(ctx, 0)
	if err != nil {
		return err
	}

	for _, id := range ids {
		payload, err := agentdata.GetCleanupPayload(ctx, s.cleanupQueue, id)
		if err != nil {
			_ = s.cleanupQueue.MarkFailed(ctx, id, 0, err.Error())
			continue
		}

		if _, err := s.runRepo.DeleteFinishedExcept(ctx, s.db, payload.EnvSlug, payload.AgentName, payload.KeepIDs); err != nil {
			_ = s.cleanupQueue.MarkFailed(ctx, id, 0, err.Error())
			continue
		}

		if err := s.cleanupQueue.MarkCompleted(ctx, id); err != nil {
			s.log.Warn("failed to mark cleanup job completed", logger.Error(err), slog.String("job_id", id))
		}
	}

	return nil
}
