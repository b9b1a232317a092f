package agentdata

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/uptrace/bun"

	"github.com/arenaeval/server/domain/environments"
	"github.com/arenaeval/server/internal/kvstore"
	"github.com/arenaeval/server/pkg/logger"
	"github.com/arenaeval/server/pkg/mathutil"
)

// recentRunsKeySuffix forms the environment-scoped bounded recent-runs key
// "<env-slug>#recentruns".
const recentRunsKeySuffix = "#recentruns"

// RecentRunsKey returns the kvstore key holding envSlug's bounded list of
// recently finished run ids.
func RecentRunsKey(envSlug string) string {
	return envSlug + recentRunsKeySuffix
}

// Service implements the agent-aggregate rating update and the
// /results read path.
type Service struct {
	repo *Repository
	kv   *kvstore.Store
	log  *slog.Logger
}

// NewService creates a new agent-aggregate service.
func NewService(repo *Repository, kv *kvstore.Store, log *slog.Logger) *Service {
	return &Service{repo: repo, kv: kv, log: log.With(logger.Scope("agentdata.svc"))}
}

// RecordFinish applies the aggregate update for one finished run, inside
// the caller's transaction (tx). It returns whether a cleanup sweep is now
// due (total_runs crossed a multiple of cleanupTriggerModulus); the caller
// enqueues the cleanup_jobs row after its own commit succeeds, so the sweep
// stays out of the agent's request/response cycle.
func (s *Service) RecordFinish(ctx context.Context, tx bun.IDB, envSlug, agentName string, runID int64, outcome float64, settings environments.Settings) (dueForCleanup bool, err error) {
	agg, err := s.repo.GetForUpdate(ctx, tx, envSlug, agentName)
	if err != nil {
		return false, err
	}
	if agg == nil {
		agg = NewAggregate(envSlug, agentName, settings.InitialRating)
	}

	agg.TotalRuns++
	if agg.TotalRuns >= int64(settings.MinRunsForFullyEvaluated) {
		agg.FullyEvaluated = true
	}

	agg.RecentResults = appendBounded(agg.RecentResults, outcome, settings.MinRunsForFullyEvaluated)
	agg.CurrentRating = computeRating(agg.RecentResults, settings.RatingStrategy)

	if agg.FullyEvaluated {
		agg.BestRating = extremum(agg.BestRating, agg.CurrentRating, settings.RatingObjective)
	}

	agg.RecentlyFinishedRuns = appendBounded(agg.RecentlyFinishedRuns, runID, recentWindowSize)

	if err := s.appendRecentRun(ctx, tx, envSlug, runID); err != nil {
		return false, err
	}

	if err := s.repo.Upsert(ctx, tx, agg); err != nil {
		return false, err
	}

	s.log.Info("agent aggregate updated",
		slog.String("env_slug", envSlug),
		slog.String("agent_name", agentName),
		slog.Int64("total_runs", agg.TotalRuns),
		slog.Float64("current_rating", agg.CurrentRating),
		slog.Float64("best_rating", agg.BestRating),
	)

	return agg.DueForCleanup(), nil
}

// appendRecentRun appends runID to envSlug's bounded <env>#recentruns list.
func (s *Service) appendRecentRun(ctx context.Context, tx bun.IDB, envSlug string, runID int64) error {
	key := RecentRunsKey(envSlug)

	raw, ok, err := s.kv.GetForUpdate(ctx, tx, key)
	if err != nil {
		return err
	}

	var ids []int64
	if ok {
		if err := json.Unmarshal([]byte(raw), &ids); err != nil {
			s.log.Warn("recentruns value was not valid JSON, resetting", logger.Error(err), slog.String("key", key))
			ids = nil
		}
	}

	ids = appendBounded(ids, runID, recentWindowSize)

	encoded, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return s.kv.Set(ctx, tx, key, string(encoded))
}

// computeRating derives current_rating from recent_results per strategy.
// Only "average" exists today; mathutil.CalcMeanStd is reused for the
// mean, discarding the standard deviation it also computes.
func computeRating(recentResults []float64, _ environments.RatingStrategy) float64 {
	scores := make([]float32, len(recentResults))
	for i, v := range recentResults {
		scores[i] = float32(v)
	}
	mean, _ := mathutil.CalcMeanStd(scores)
	return float64(mean)
}

// extremum applies RATING_OBJECTIVE to (old, new): max keeps the larger
// value, min keeps the smaller.
func extremum(old, new_ float64, objective environments.RatingObjective) float64 {
	if objective == environments.RatingObjectiveMin {
		if new_ < old {
			return new_
		}
		return old
	}
	if new_ > old {
		return new_
	}
	return old
}

// Get returns the aggregate for one agent.
func (s *Service) Get(ctx context.Context, db bun.IDB, envSlug, agentName string) (*Aggregate, error) {
	return s.repo.Get(ctx, db, envSlug, agentName)
}

// ListByEnv returns every aggregate scoped to envSlug.
func (s *Service) ListByEnv(ctx context.Context, db bun.IDB, envSlug string) ([]Aggregate, error) {
	return s.repo.ListByEnv(ctx, db, envSlug)
}

// ListAll returns every aggregate across all environments.
func (s *Service) ListAll(ctx context.Context, db bun.IDB) ([]Aggregate, error) {
	return s.repo.ListAll(ctx, db)
}
