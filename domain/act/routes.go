package act

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes registers the action-dispatch route.
func RegisterRoutes(e *echo.Echo, h *Handler) {
	e.PUT("/act/:env", h.Act)
}
