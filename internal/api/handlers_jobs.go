// handlers_jobs.go - Upload job status and SSE progress
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/streamshort/backend/internal/upload"
)

const (
	jobPollInterval = 100 * time.Millisecond
	// a client that picked its own job id may subscribe before the upload request arrives
	jobAppearTimeout = 10 * time.Second
	jobStreamTimeout = 5 * time.Minute
)

// UploadJobHandlerImpl implements the UploadJobHandler interface
type UploadJobHandlerImpl struct {
	pipeline      Pipeline
	appearTimeout time.Duration
}

// NewUploadJobHandler creates a new upload job handler
func NewUploadJobHandler(pipeline Pipeline) UploadJobHandler {
	return &UploadJobHandlerImpl{
		pipeline:      pipeline,
		appearTimeout: jobAppearTimeout,
	}
}

// HandleGetUploadJob returns a job snapshot
func (h *UploadJobHandlerImpl) HandleGetUploadJob(c echo.Context) error {
	id := c.Param("jobId")
	job, ok := h.pipeline.GetJob(id)
	if !ok {
		return NewNotFoundError("upload job", id)
	}
	return c.JSON(http.StatusOK, job)
}

// HandleUploadJobStream streams job snapshots via SSE until the job is back to idle
func (h *UploadJobHandlerImpl) HandleUploadJobStream(c echo.Context) error {
	id := c.Param("jobId")
	if id == "" {
		return NewValidationError("jobId")
	}

	// Set SSE headers
	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().Header().Set("X-Accel-Buffering", "no")
	c.Response().WriteHeader(http.StatusOK)

	ticker := time.NewTicker(jobPollInterval)
	defer ticker.Stop()

	appear := time.NewTimer(h.appearTimeout)
	defer appear.Stop()

	timeout := time.NewTimer(jobStreamTimeout)
	defer timeout.Stop()

	ctx := c.Request().Context()
	var last *upload.Job

	for {
		job, ok := h.pipeline.GetJob(id)
		if ok && (last == nil || changed(*last, job)) {
			sendSSEData(c, job)
			last = &job
		}
		if ok && job.State == upload.StateIdle && job.Done() {
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-appear.C:
			if last == nil {
				sendSSEError(c, "upload job not found")
				return nil
			}
		case <-timeout.C:
			sendSSEError(c, "stream timeout")
			return nil
		case <-ticker.C:
		}
	}
}

func changed(a, b upload.Job) bool {
	return a.State != b.State || a.Progress != b.Progress || a.Error != b.Error ||
		(a.Record == nil) != (b.Record == nil)
}

func sendSSEData(c echo.Context, data interface{}) {
	jsonData, _ := json.Marshal(data)
	fmt.Fprintf(c.Response(), "data: %s\n\n", jsonData)
	c.Response().Flush()
}

func sendSSEError(c echo.Context, message string) {
	sendSSEData(c, map[string]string{"error": message})
}
