// handlers_videos.go - Upload and history handlers
package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/streamshort/backend/internal/models"
	"github.com/streamshort/backend/internal/upload"
	"github.com/vmihailenco/msgpack/v5"
)

// VideoHandlerImpl implements the VideoHandler interface
type VideoHandlerImpl struct {
	pipeline Pipeline
	history  HistoryReader
	spoolDir string
	log      *logrus.Entry
}

// NewVideoHandler creates a new video handler. spoolDir holds request bodies
// of background uploads; empty means the system temp directory.
func NewVideoHandler(pipeline Pipeline, history HistoryReader, spoolDir string, log *logrus.Entry) VideoHandler {
	return &VideoHandlerImpl{
		pipeline: pipeline,
		history:  history,
		spoolDir: spoolDir,
		log:      log,
	}
}

// HandleUploadVideo runs the upload pipeline for the multipart "file" field
// and returns the stored record. An optional "jobId" form value lets the
// client follow progress on the job stream while the request is in flight.
func (h *VideoHandlerImpl) HandleUploadVideo(c echo.Context) error {
	jobID := c.FormValue("jobId")
	if jobID != "" {
		if _, err := uuid.Parse(jobID); err != nil {
			return NewValidationError("jobId")
		}
	}

	src, closeFn, err := formFileSource(c)
	if err != nil {
		return err
	}
	defer closeFn()

	// the record is saved even if the client goes away mid-request
	ctx := context.WithoutCancel(c.Request().Context())

	rec, err := h.pipeline.Run(ctx, src, jobID, nil)
	if err != nil {
		return FromPipelineError(err)
	}

	return c.JSON(http.StatusCreated, rec)
}

// HandleStartUpload spools the multipart "file" field to disk and runs the
// pipeline in the background.
func (h *VideoHandlerImpl) HandleStartUpload(c echo.Context) error {
	src, closeFn, err := formFileSource(c)
	if err != nil {
		return err
	}
	defer closeFn()

	if src.Body == nil {
		return FromPipelineError(upload.ErrNoFile)
	}

	spool, err := os.CreateTemp(h.spoolDir, "upload-*")
	if err != nil {
		return NewInternalError("failed to spool upload", err)
	}
	cleanup := func() {
		spool.Close()
		os.Remove(spool.Name())
	}

	if _, err := io.Copy(spool, src.Body); err != nil {
		cleanup()
		return NewBadRequestError("failed to read upload", err)
	}
	if _, err := spool.Seek(0, io.SeekStart); err != nil {
		cleanup()
		return NewInternalError("failed to spool upload", err)
	}

	src.Body = spool
	job := h.pipeline.Start(src, cleanup)

	h.log.WithFields(logrus.Fields{"job": job.ID, "file": src.Name}).Debug("Background upload started")

	return c.JSON(http.StatusAccepted, map[string]interface{}{
		"jobId": job.ID,
		"state": job.State,
	})
}

// HandleListVideos returns the history, newest first
func (h *VideoHandlerImpl) HandleListVideos(c echo.Context) error {
	return c.JSON(http.StatusOK, h.history.List())
}

// HandleGetVideo returns a single record
func (h *VideoHandlerImpl) HandleGetVideo(c echo.Context) error {
	id := c.Param("id")
	rec, ok := h.history.Get(id)
	if !ok {
		return NewNotFoundError("video", id)
	}
	return c.JSON(http.StatusOK, rec)
}

// HandleShareVideo returns the short link to copy for a record
func (h *VideoHandlerImpl) HandleShareVideo(c echo.Context) error {
	id := c.Param("id")
	rec, ok := h.history.Get(id)
	if !ok {
		return NewNotFoundError("video", id)
	}
	return c.JSON(http.StatusOK, map[string]string{
		"shortLink": rec.ShortLink,
	})
}

// HandleDeleteVideo removes a record. Unknown ids succeed.
func (h *VideoHandlerImpl) HandleDeleteVideo(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return NewValidationError("id")
	}

	if err := h.pipeline.Delete(id); err != nil {
		return NewInternalError("failed to delete video", err)
	}

	return c.NoContent(http.StatusNoContent)
}

// HandleClearVideos removes every record. Requires ?confirm=true.
func (h *VideoHandlerImpl) HandleClearVideos(c echo.Context) error {
	confirmed := false
	if raw := c.QueryParam("confirm"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return NewValidationError("confirm")
		}
		confirmed = v
	}

	if err := h.pipeline.Clear(confirmed); err != nil {
		return FromPipelineError(err)
	}

	return c.NoContent(http.StatusNoContent)
}

// HandleExportVideos returns the history in MessagePack format
func (h *VideoHandlerImpl) HandleExportVideos(c echo.Context) error {
	videos := h.history.List()

	data, err := msgpack.Marshal(map[string]interface{}{
		"videos":     videos,
		"count":      len(videos),
		"exportedAt": time.Now().UnixMilli(),
	})
	if err != nil {
		return NewInternalError("failed to encode export", err)
	}

	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="streamshort-history.msgpack"`)
	return c.Blob(http.StatusOK, "application/msgpack", data)
}

// formFileSource opens the multipart "file" field. A missing field yields a
// FileSource with a nil Body.
func formFileSource(c echo.Context) (models.FileSource, func(), error) {
	noop := func() {}

	fh, err := c.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return models.FileSource{}, noop, nil
		}
		return models.FileSource{}, noop, NewBadRequestError("invalid multipart form", err)
	}

	f, err := fh.Open()
	if err != nil {
		return models.FileSource{}, noop, NewBadRequestError("failed to open uploaded file", err)
	}

	src := models.FileSource{
		Name:     fh.Filename,
		Size:     fh.Size,
		MimeType: fh.Header.Get(echo.HeaderContentType),
		Body:     f,
	}
	return src, func() { f.Close() }, nil
}
