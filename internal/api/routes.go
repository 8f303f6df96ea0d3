// routes.go - Route registration helpers
package api

import (
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Pipeline  Pipeline
	History   HistoryReader
	Previews  PreviewOpener
	SpoolDir  string
	Version   string
	Generator string
	Log       *logrus.Entry
}

// Handlers holds all handler instances
type Handlers struct {
	Health    HealthHandler
	Videos    VideoHandler
	UploadJob UploadJobHandler
	Preview   PreviewHandler
	WebSocket *WebSocketHandler
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	return &Handlers{
		Health:    NewHealthHandler(deps.Version, deps.Generator, deps.History),
		Videos:    NewVideoHandler(deps.Pipeline, deps.History, deps.SpoolDir, deps.Log),
		UploadJob: NewUploadJobHandler(deps.Pipeline),
		Preview:   NewPreviewHandler(deps.Previews),
		WebSocket: NewWebSocketHandler(deps.Pipeline, deps.SpoolDir, deps.Log.WithField("transport", "websocket")),
	}
}

// RegisterRoutes registers all API routes on the /api group.
// Delete routes are only registered when allowDeletion is set.
func RegisterRoutes(g *echo.Group, handlers *Handlers, allowDeletion bool) {
	// Health check
	g.GET("/health", handlers.Health.HandleHealth)

	// Uploads
	g.POST("/videos", handlers.Videos.HandleUploadVideo)
	g.POST("/uploads", handlers.Videos.HandleStartUpload)
	g.GET("/uploads/:jobId", handlers.UploadJob.HandleGetUploadJob)
	g.GET("/uploads/:jobId/stream", handlers.UploadJob.HandleUploadJobStream)

	// History
	g.GET("/videos", handlers.Videos.HandleListVideos)
	g.GET("/videos/export", handlers.Videos.HandleExportVideos)
	g.GET("/videos/:id", handlers.Videos.HandleGetVideo)
	g.GET("/videos/:id/share", handlers.Videos.HandleShareVideo)

	if allowDeletion {
		g.DELETE("/videos", handlers.Videos.HandleClearVideos)
		g.DELETE("/videos/:id", handlers.Videos.HandleDeleteVideo)
	}

	// Previews
	g.GET("/previews/:id", handlers.Preview.HandleGetPreview)
}

// RegisterWebSocketRoutes registers WebSocket routes
func RegisterWebSocketRoutes(g *echo.Group, handlers *Handlers) {
	g.GET("/ws/uploads", handlers.WebSocket.HandleWebSocket)
}

// SetupMiddleware installs the API error handler and the deadline override
// for long-lived routes. Call it before registering other middleware.
func SetupMiddleware(e *echo.Echo, showErrorDetails bool, log *logrus.Entry) {
	e.HTTPErrorHandler = NewErrorHandler(showErrorDetails, log)
	e.Use(LongRequestDeadlines())
}
