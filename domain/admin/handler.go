package admin

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/arenaeval/server/internal/config"
	"github.com/arenaeval/server/pkg/adminauth"
	"github.com/arenaeval/server/pkg/apperror"
)

// Handler serves the admin/ops routes.
type Handler struct {
	svc *Service
	cfg *config.Config
}

// NewHandler creates a new admin handler.
func NewHandler(svc *Service, cfg *config.Config) *Handler {
	return &Handler{svc: svc, cfg: cfg}
}

type uploadPluginRequest struct {
	Ref        string `json:"ref"`
	Capability string `json:"capability"`
	AdminPwd   string `json:"admin-pwd"`
}

// UploadPlugin handles PUT /uploadplugin.
func (h *Handler) UploadPlugin(c echo.Context) error {
	var req uploadPluginRequest
	if err := c.Bind(&req); err != nil {
		return apperror.ErrBadRequest.WithMessage("invalid request body")
	}
	if err := adminauth.Require(c, h.cfg.Admin.Hashes(), req.AdminPwd); err != nil {
		return err
	}
	if req.Ref == "" || req.Capability == "" {
		return apperror.ErrBadRequest.WithMessage("ref and capability are required")
	}

	if err := h.svc.UploadPlugin(req.Ref, req.Capability); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"ref": req.Ref, "capability": req.Capability})
}

// Errors handles GET /errors.
func (h *Handler) Errors(c echo.Context) error {
	if err := adminauth.Require(c, h.cfg.Admin.Hashes(), ""); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"errors": h.svc.Errors()})
}

// DiskUsage handles GET /diskusage.
func (h *Handler) DiskUsage(c echo.Context) error {
	if err := adminauth.Require(c, h.cfg.Admin.Hashes(), ""); err != nil {
		return err
	}
	report, err := h.svc.DiskUsage(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, report)
}

// RemoveNonRecentRuns handles GET /removenonrecentruns.
func (h *Handler) RemoveNonRecentRuns(c echo.Context) error {
	if err := adminauth.Require(c, h.cfg.Admin.Hashes(), ""); err != nil {
		return err
	}
	n, err := h.svc.RemoveNonRecentRuns(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]int{"deleted": n})
}
