// handlers_preview.go - Session-scoped preview playback
package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/streamshort/backend/internal/preview"
)

// PreviewHandlerImpl implements the PreviewHandler interface
type PreviewHandlerImpl struct {
	previews PreviewOpener
}

// NewPreviewHandler creates a new preview handler
func NewPreviewHandler(previews PreviewOpener) PreviewHandler {
	return &PreviewHandlerImpl{previews: previews}
}

// HandleGetPreview streams a preview file with range support. References from
// an earlier server run never resolve.
func (h *PreviewHandlerImpl) HandleGetPreview(c echo.Context) error {
	id := c.Param("id")

	f, ref, err := h.previews.Open(id)
	if err != nil {
		if errors.Is(err, preview.ErrNotFound) {
			return NewNotFoundError("preview", id)
		}
		return NewInternalError("failed to open preview", err)
	}
	defer f.Close()

	c.Response().Header().Set("Cache-Control", "no-store")
	http.ServeContent(c.Response(), c.Request(), ref.Name, ref.CreatedAt, f)
	return nil
}
