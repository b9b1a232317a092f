package agentdata

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes registers the results read path.
func RegisterRoutes(e *echo.Echo, h *Handler) {
	e.GET("/results", h.Results)
	e.GET("/results/:env", h.Results)
}
