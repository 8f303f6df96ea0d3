// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"context"
	"os"

	"github.com/labstack/echo/v4"
	"github.com/streamshort/backend/internal/models"
	"github.com/streamshort/backend/internal/preview"
	"github.com/streamshort/backend/internal/upload"
)

// VideoHandler handles uploads and the video history
type VideoHandler interface {
	HandleUploadVideo(c echo.Context) error
	HandleStartUpload(c echo.Context) error
	HandleListVideos(c echo.Context) error
	HandleGetVideo(c echo.Context) error
	HandleShareVideo(c echo.Context) error
	HandleDeleteVideo(c echo.Context) error
	HandleClearVideos(c echo.Context) error
	HandleExportVideos(c echo.Context) error
}

// UploadJobHandler handles upload job status and streaming
type UploadJobHandler interface {
	HandleGetUploadJob(c echo.Context) error
	HandleUploadJobStream(c echo.Context) error
}

// PreviewHandler serves session-scoped previews
type PreviewHandler interface {
	HandleGetPreview(c echo.Context) error
}

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}

// Pipeline is the part of the upload manager the handlers use.
// This allows mocking in tests
type Pipeline interface {
	Run(ctx context.Context, src models.FileSource, jobID string, obs upload.Observer) (*models.VideoRecord, error)
	Start(src models.FileSource, done func()) upload.Job
	GetJob(id string) (upload.Job, bool)
	Delete(id string) error
	Clear(confirmed bool) error
}

// HistoryReader gives read access to the stored history.
type HistoryReader interface {
	List() []models.VideoRecord
	Get(id string) (models.VideoRecord, bool)
}

// PreviewOpener opens preview files for serving.
type PreviewOpener interface {
	Open(id string) (*os.File, *preview.Reference, error)
}
