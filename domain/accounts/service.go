package accounts

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"regexp"

	"github.com/arenaeval/server/domain/environments"
	"github.com/arenaeval/server/pkg/adminauth"
	"github.com/arenaeval/server/pkg/apperror"
	"github.com/arenaeval/server/pkg/logger"
)

// PasswordRandomBytes is the number of random bytes minted for a generated
// agent password: 32 bytes is 256 bits of entropy, which is why the
// authentication gate can use a fast, unsalted hash.
const PasswordRandomBytes = 32

// AgentNamePattern is the accepted character set for agent names.
var AgentNamePattern = regexp.MustCompile(`^[A-Za-z0-9 \[\]_()\-]+$`)

// Service implements agent-account lifecycle operations (/makeagent,
// /blockagent, /unblockagent) and the credential check the dispatcher's
// authentication gate relies on for every action batch.
type Service struct {
	repo    *Repository
	envRepo *environments.Repository
	log     *slog.Logger
}

// NewService creates a new account service.
func NewService(repo *Repository, envRepo *environments.Repository, log *slog.Logger) *Service {
	return &Service{repo: repo, envRepo: envRepo, log: log.With(logger.Scope("accounts.svc"))}
}

// generatePassword mints a new agent password with 256 bits of entropy.
func generatePassword() (string, error) {
	buf := make([]byte, PasswordRandomBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// Create provisions a new agent account under envSlug, returning the
// plaintext password (only ever visible at creation time). overwrite allows
// re-provisioning an existing account with a freshly minted password.
func (s *Service) Create(ctx context.Context, envSlug, agentName string, overwrite bool) (string, error) {
	if !AgentNamePattern.MatchString(agentName) {
		return "", apperror.ErrBadRequest.WithMessage("invalid agent name")
	}
	if _, err := s.envRepo.GetBySlug(ctx, envSlug); err != nil {
		return "", err
	}

	password, err := generatePassword()
	if err != nil {
		return "", apperror.ErrInternal.WithInternal(err)
	}

	acc := &Account{
		EnvSlug:      envSlug,
		AgentName:    agentName,
		PasswordHash: adminauth.Hash(password),
		Status:       StatusActive,
	}

	if err := s.repo.Create(ctx, acc, overwrite); err != nil {
		return "", err
	}

	s.log.Info("agent account created", slog.String("env_slug", envSlug), slog.String("agent_name", agentName))
	return password, nil
}

// Authenticate verifies the (agent, pwd) pair submitted on an action batch
// and returns the account if it is active.
func (s *Service) Authenticate(ctx context.Context, envSlug, agentName, password string) (*Account, error) {
	acc, err := s.repo.Get(ctx, envSlug, agentName)
	if err != nil {
		return nil, apperror.ErrUnauthorized.WithMessage("invalid agent credentials")
	}
	if !adminauth.Verify([]string{acc.PasswordHash}, password) {
		return nil, apperror.ErrUnauthorized.WithMessage("invalid agent credentials")
	}
	if !acc.IsActive() {
		// A locked agent is an authentication failure on the wire,
		// not a 403, so clients treat it the same as a bad credential.
		return nil, apperror.New(401, "agent_locked", "agent account is locked")
	}
	return acc, nil
}

// SetBlocked sets or clears the account's locked status (admin /blockagent,
// /unblockagent).
func (s *Service) SetBlocked(ctx context.Context, envSlug, agentName string, blocked bool) error {
	status := StatusActive
	if blocked {
		status = StatusLocked
	}
	if err := s.repo.SetStatus(ctx, envSlug, agentName, status); err != nil {
		return err
	}
	s.log.Info("agent status changed",
		slog.String("env_slug", envSlug), slog.String("agent_name", agentName), slog.Bool("blocked", blocked))
	return nil
}

// List returns every account scoped to envSlug.
func (s *Service) List(ctx context.Context, envSlug string) ([]DTO, error) {
	accs, err := s.repo.ListByEnv(ctx, envSlug)
	if err != nil {
		return nil, err
	}
	out := make([]DTO, len(accs))
	for i, a := range accs {
		out[i] = a.ToDTO()
	}
	return out, nil
}

// DeleteUnused removes every account in envSlug that has never completed a
// run (admin /deleteunusedagents/<env>), returning the count removed.
func (s *Service) DeleteUnused(ctx context.Context, envSlug string) (int, error) {
	n, err := s.repo.DeleteUnusedByEnv(ctx, envSlug)
	if err != nil {
		return 0, err
	}
	s.log.Info("removed unused agent accounts", slog.String("env_slug", envSlug), slog.Int("count", n))
	return n, nil
}
