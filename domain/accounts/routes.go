package accounts

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes registers the agent-account admin routes.
func RegisterRoutes(e *echo.Echo, h *Handler) {
	e.POST("/makeagent/:env/:agent", h.MakeAgent)
	e.PUT("/blockagent/:env/:agent", h.BlockAgent)
	e.PUT("/unblockagent/:env/:agent", h.UnblockAgent)
	e.DELETE("/deleteunusedagents/:env", h.DeleteUnusedAgents)
}
