package environments

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes registers the environment admin routes.
func RegisterRoutes(e *echo.Echo, h *Handler) {
	e.PUT("/makeenv/:env", h.MakeEnv)
	e.GET("/getenvs", h.GetEnvs)
	e.DELETE("/deleteenv/:env", h.DeleteEnv)
}
