// handlers_health.go - Health check handlers
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// HealthHandlerImpl implements the HealthHandler interface
type HealthHandlerImpl struct {
	version   string
	generator string
	history   HistoryReader
}

// NewHealthHandler creates a new health handler.
// generator names the active insight generator ("gemini" or "fallback").
func NewHealthHandler(version, generator string, history HistoryReader) HealthHandler {
	return &HealthHandlerImpl{
		version:   version,
		generator: generator,
		history:   history,
	}
}

// HandleHealth returns server health status
func (h *HealthHandlerImpl) HandleHealth(c echo.Context) error {
	videos := 0
	if h.history != nil {
		videos = len(h.history.List())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"version":   h.version,
		"generator": h.generator,
		"videos":    videos,
	})
}
