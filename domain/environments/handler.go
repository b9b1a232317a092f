package environments

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/arenaeval/server/internal/config"
	"github.com/arenaeval/server/pkg/adminauth"
	"github.com/arenaeval/server/pkg/apperror"
)

// Handler handles the environment-lifecycle admin routes (/makeenv,
// /getenvs, /deleteenv).
type Handler struct {
	svc *Service
	cfg *config.Config
}

// NewHandler creates a new environment handler.
func NewHandler(svc *Service, cfg *config.Config) *Handler {
	return &Handler{svc: svc, cfg: cfg}
}

// makeEnvRequest is the PUT /makeenv/<env> body.
type makeEnvRequest struct {
	AdminPwd    string  `json:"admin-pwd"`
	EnvClass    string  `json:"env_class"`
	DisplayName string  `json:"display_name"`
	Config      RawJSON `json:"config"`
	Overwrite   bool    `json:"overwrite"`
}

// MakeEnv handles PUT /makeenv/<env>.
func (h *Handler) MakeEnv(c echo.Context) error {
	var req makeEnvRequest
	if err := c.Bind(&req); err != nil {
		return apperror.ErrBadRequest.WithMessage("invalid request body")
	}
	if err := adminauth.Require(c, h.cfg.Admin.Hashes(), req.AdminPwd); err != nil {
		return err
	}

	slug := c.Param("env")
	dto, err := h.svc.Create(c.Request().Context(), slug, CreateRequest{
		EnvClass:    req.EnvClass,
		DisplayName: req.DisplayName,
		Config:      req.Config,
		Overwrite:   req.Overwrite,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, dto)
}

// getEnvsRequest is the GET /getenvs body.
type getEnvsRequest struct {
	AdminPwd string `json:"admin-pwd"`
}

// GetEnvs handles GET /getenvs, listing every registered environment.
func (h *Handler) GetEnvs(c echo.Context) error {
	var req getEnvsRequest
	_ = c.Bind(&req)
	if err := adminauth.Require(c, h.cfg.Admin.Hashes(), req.AdminPwd); err != nil {
		return err
	}

	envs, err := h.svc.List(c.Request().Context())
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]any{"environments": envs})
}

// deleteEnvRequest is the DELETE /deleteenv/<env> body.
type deleteEnvRequest struct {
	AdminPwd string `json:"admin-pwd"`
}

// DeleteEnv handles DELETE /deleteenv/<env>, cascading the removal of every
// run, aggregate and account scoped to it.
func (h *Handler) DeleteEnv(c echo.Context) error {
	var req deleteEnvRequest
	_ = c.Bind(&req)
	if err := adminauth.Require(c, h.cfg.Admin.Hashes(), req.AdminPwd); err != nil {
		return err
	}

	slug := c.Param("env")
	if err := h.svc.Delete(c.Request().Context(), slug); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "deleted"})
}
