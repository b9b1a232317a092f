package accounts

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/arenaeval/server/internal/config"
	"github.com/arenaeval/server/pkg/adminauth"
	"github.com/arenaeval/server/pkg/apperror"
)

// Handler handles the agent-account admin routes.
type Handler struct {
	svc *Service
	cfg *config.Config
}

// NewHandler creates a new account handler.
func NewHandler(svc *Service, cfg *config.Config) *Handler {
	return &Handler{svc: svc, cfg: cfg}
}

type makeAgentRequest struct {
	AdminPwd  string `json:"admin-pwd"`
	Overwrite bool   `json:"overwrite"`
}

// MakeAgent handles POST /makeagent/<env>/<agent>.
func (h *Handler) MakeAgent(c echo.Context) error {
	var req makeAgentRequest
	if err := c.Bind(&req); err != nil {
		return apperror.ErrBadRequest.WithMessage("invalid request body")
	}
	if err := adminauth.Require(c, h.cfg.Admin.Hashes(), req.AdminPwd); err != nil {
		return err
	}

	envSlug := c.Param("env")
	agent := c.Param("agent")

	password, err := h.svc.Create(c.Request().Context(), envSlug, agent, req.Overwrite)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]string{
		"env":      envSlug,
		"agent":    agent,
		"password": password,
	})
}

type blockAgentRequest struct {
	AdminPwd string `json:"admin-pwd"`
}

// BlockAgent handles PUT /blockagent/<env>/<agent>.
func (h *Handler) BlockAgent(c echo.Context) error {
	return h.setBlocked(c, true)
}

// UnblockAgent handles PUT /unblockagent/<env>/<agent>.
func (h *Handler) UnblockAgent(c echo.Context) error {
	return h.setBlocked(c, false)
}

func (h *Handler) setBlocked(c echo.Context, blocked bool) error {
	var req blockAgentRequest
	if err := c.Bind(&req); err != nil {
		return apperror.ErrBadRequest.WithMessage("invalid request body")
	}
	if err := adminauth.Require(c, h.cfg.Admin.Hashes(), req.AdminPwd); err != nil {
		return err
	}

	envSlug := c.Param("env")
	agent := c.Param("agent")

	if err := h.svc.SetBlocked(c.Request().Context(), envSlug, agent, blocked); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]bool{"blocked": blocked})
}

type deleteUnusedAgentsRequest struct {
	AdminPwd string `json:"admin-pwd"`
}

// DeleteUnusedAgents handles DELETE /deleteunusedagents/<env>.
func (h *Handler) DeleteUnusedAgents(c echo.Context) error {
	var req deleteUnusedAgentsRequest
	_ = c.Bind(&req)
	if err := adminauth.Require(c, h.cfg.Admin.Hashes(), req.AdminPwd); err != nil {
		return err
	}

	envSlug := c.Param("env")
	n, err := h.svc.DeleteUnused(c.Request().Context(), envSlug)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]int{"deleted": n})
}
