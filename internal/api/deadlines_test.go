package api

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/streamshort/backend/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLongRequestDeadlines(t *testing.T) {
	e := echo.New()
	SetupMiddleware(e, false, logger.Component(logger.Discard(), "test"))

	slow := func(c echo.Context) error {
		time.Sleep(200 * time.Millisecond)
		return c.String(http.StatusOK, "ok")
	}
	g := e.Group("/api")
	g.POST("/videos", slow)
	g.POST("/uploads", slow)
	g.GET("/uploads/:jobId/stream", slow)
	g.GET("/uploads/:jobId", slow)

	srv := httptest.NewUnstartedServer(e)
	srv.Config.WriteTimeout = 50 * time.Millisecond
	srv.Start()
	t.Cleanup(srv.Close)

	tests := []struct {
		name     string
		method   string
		path     string
		survives bool
	}{
		{name: "synchronous upload", method: http.MethodPost, path: "/api/videos", survives: true},
		{name: "background upload", method: http.MethodPost, path: "/api/uploads", survives: true},
		{name: "job stream", method: http.MethodGet, path: "/api/uploads/" + testJobID + "/stream", survives: true},
		{name: "job poll keeps the timeout", method: http.MethodGet, path: "/api/uploads/" + testJobID, survives: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, srv.URL+tt.path, strings.NewReader("body"))
			require.NoError(t, err)
			req.Close = true

			resp, err := srv.Client().Do(req)
			if !tt.survives {
				if err == nil {
					_, err = io.ReadAll(resp.Body)
					resp.Body.Close()
				}
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			defer resp.Body.Close()
			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, "ok", string(body))
		})
	}
}
