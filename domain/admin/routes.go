package admin

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes registers the admin/ops routes.
func RegisterRoutes(e *echo.Echo, h *Handler) {
	e.PUT("/uploadplugin", h.UploadPlugin)
	e.GET("/errors", h.Errors)
	e.GET("/diskusage", h.DiskUsage)
	e.GET("/removenonrecentruns", h.RemoveNonRecentRuns)
}
