package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
)

// LongRequestDeadlines lifts the server read and write timeouts for routes
// that outlive them: job event streams, WebSocket uploads and upload bodies.
// It must run before any middleware that wraps the response writer.
func LongRequestDeadlines() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if isLongRequest(c) {
				rc := http.NewResponseController(c.Response().Writer)
				// recorders in tests report http.ErrNotSupported
				_ = rc.SetReadDeadline(time.Time{})
				_ = rc.SetWriteDeadline(time.Time{})
			}
			return next(c)
		}
	}
}

func isLongRequest(c echo.Context) bool {
	path := c.Path()
	switch {
	case strings.HasSuffix(path, "/uploads/:jobId/stream"), strings.HasSuffix(path, "/ws/uploads"):
		return true
	case c.Request().Method == http.MethodPost:
		return strings.HasSuffix(path, "/videos") || strings.HasSuffix(path, "/uploads")
	}
	return false
}
