package environments

import (
	"context"
	"encoding/json"
	"log/slog"
	"regexp"

	"github.com/arenaeval/server/internal/config"
	"github.com/arenaeval/server/pkg/apperror"
	"github.com/arenaeval/server/pkg/logger"
)

// SlugPattern is the accepted character set for environment slugs.
var SlugPattern = regexp.MustCompile(`^[A-Za-z0-9\-.]+$`)

// Service implements the admin-facing environment lifecycle (/makeenv,
// /getenvs) plus the lookup the dispatcher needs on every batch.
type Service struct {
	repo     *Repository
	registry *Registry
	fallback Settings
	log      *slog.Logger
}

// NewService creates a new environment service. cfg.EnvDefaults supplies the
// server-wide fallback for any Settings field a capability leaves zero
//; DefaultSettings() fills in the remaining,
// non-configurable fields (InitialRating, RatingStrategy, RatingObjective,
// CanAbandonRuns).
func NewService(repo *Repository, registry *Registry, cfg *config.Config, log *slog.Logger) *Service {
	fallback := DefaultSettings()
	fallback.MinRunsForFullyEvaluated = cfg.EnvDefaults.MinRunsForFullyEvaluated
	fallback.NumberOfActionRequests = cfg.EnvDefaults.NumberOfActionRequests
	return &Service{repo: repo, registry: registry, fallback: fallback, log: log.With(logger.Scope("environments.svc"))}
}

// CreateRequest is the /makeenv request body.
type CreateRequest struct {
	EnvClass    string          `json:"env_class"`
	DisplayName string          `json:"display_name"`
	Config      json.RawMessage `json:"config"`
	Overwrite   bool            `json:"overwrite"`
}

// Create validates and registers a new environment.
func (s *Service) Create(ctx context.Context, slug string, req CreateRequest) (*DTO, error) {
	if !SlugPattern.MatchString(slug) {
		return nil, apperror.ErrBadRequest.WithMessage("invalid environment slug")
	}
	if req.EnvClass == "" {
		return nil, apperror.ErrBadRequest.WithMessage("env_class is required")
	}
	if !s.registry.Has(req.EnvClass) {
		return nil, apperror.ErrBadRequest.WithMessage("unknown environment class: " + req.EnvClass)
	}

	cfg := req.Config
	if len(cfg) == 0 {
		cfg = RawJSON(`{}`)
	}

	env := &Environment{
		Slug:         slug,
		EnvClass:     req.EnvClass,
		DisplayName:  req.DisplayName,
		Config:       cfg,
		SignupPolicy: SignupPolicyRestricted,
		Status:       StatusActive,
	}

	if err := s.repo.Create(ctx, env, req.Overwrite); err != nil {
		return nil, err
	}

	s.log.Info("environment registered", slog.String("slug", slug), slog.String("env_class", req.EnvClass))

	dto := env.ToDTO()
	return &dto, nil
}

// Get loads the environment record for slug.
func (s *Service) Get(ctx context.Context, slug string) (*Environment, error) {
	return s.repo.GetBySlug(ctx, slug)
}

// List returns every registered environment.
func (s *Service) List(ctx context.Context) ([]DTO, error) {
	envs, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]DTO, len(envs))
	for i, e := range envs {
		out[i] = e.ToDTO()
	}
	return out, nil
}

// Delete cascades the removal of slug and every resource scoped to it.
func (s *Service) Delete(ctx context.Context, slug string) error {
	if err := s.repo.Delete(ctx, slug); err != nil {
		return err
	}
	s.log.Info("environment deleted", slog.String("slug", slug))
	return nil
}

// Capability resolves the live Capability for env, constructed fresh from
// its persisted config blob. Environment instances are cheap and stateless
// beyond their Settings and config.
func (s *Service) Capability(ctx context.Context, env *Environment) (Capability, error) {
	if !env.IsActive() {
		return nil, apperror.New(404, "environment_inactive", "environment is not active")
	}
	cap, err := s.registry.Resolve(env.EnvClass, env.Config)
	if err != nil {
		return nil, apperror.ErrInternal.WithInternal(err)
	}
	return withDefaults(cap, s.fallback), nil
}
