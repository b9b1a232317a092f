package agentdata

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/uptrace/bun"

	"github.com/arenaeval/server/domain/environments"
)

// Handler serves the /results read path.
type Handler struct {
	svc    *Service
	envSvc *environments.Service
	db     bun.IDB
}

// NewHandler creates a new agent-aggregate handler.
func NewHandler(svc *Service, envSvc *environments.Service, db bun.IDB) *Handler {
	return &Handler{svc: svc, envSvc: envSvc, db: db}
}

// Results handles GET /results and GET /results/<env>. An unknown
// environment slug is a 404, not an empty result set.
func (h *Handler) Results(c echo.Context) error {
	envSlug := c.Param("env")
	ctx := c.Request().Context()

	if envSlug == "" {
		aggs, err := h.svc.ListAll(ctx, h.db)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, map[string]any{"results": aggs})
	}

	if _, err := h.envSvc.Get(ctx, envSlug); err != nil {
		return err
	}

	aggs, err := h.svc.ListByEnv(ctx, h.db, envSlug)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"results": aggs})
}
