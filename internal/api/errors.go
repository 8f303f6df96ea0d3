// errors.go - Structured error handling for API responses
package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/streamshort/backend/internal/preview"
	"github.com/streamshort/backend/internal/upload"
)

// APIError represents a structured API error response
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error constructors for consistent error handling

// NewBadRequestError creates a 400 Bad Request error
func NewBadRequestError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusBadRequest,
		Code:    "BAD_REQUEST",
		Message: message,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// NewValidationError creates a 400 validation error for a specific field
func NewValidationError(field string) *APIError {
	return &APIError{
		Status:  http.StatusBadRequest,
		Code:    "VALIDATION_ERROR",
		Message: fmt.Sprintf("validation failed for field: %s", field),
	}
}

// NewInvalidFileTypeError creates the 400 error shown when the selected file is not a video
func NewInvalidFileTypeError() *APIError {
	return &APIError{
		Status:  http.StatusBadRequest,
		Code:    "INVALID_FILE_TYPE",
		Message: "Please upload a valid video file.",
	}
}

// NewNotFoundError creates a 404 Not Found error
func NewNotFoundError(resource string, id string) *APIError {
	return &APIError{
		Status:  http.StatusNotFound,
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s not found: %s", resource, id),
	}
}

// NewConfirmationRequiredError creates the 409 returned when clear-all is not confirmed
func NewConfirmationRequiredError() *APIError {
	return &APIError{
		Status:  http.StatusConflict,
		Code:    "CONFIRMATION_REQUIRED",
		Message: "Clear all history?",
	}
}

// NewPipelineError creates the 500 returned when an upload could not be completed
func NewPipelineError(cause error) *APIError {
	err := &APIError{
		Status:  http.StatusInternalServerError,
		Code:    "PIPELINE_FAILED",
		Message: "Something went wrong during the AI analysis.",
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// NewInternalError creates a 500 Internal Server Error
func NewInternalError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusInternalServerError,
		Code:    "INTERNAL_ERROR",
		Message: message,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// FromPipelineError maps errors from the upload manager onto API errors.
func FromPipelineError(err error) *APIError {
	var apiErr *APIError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &apiErr):
		return apiErr
	case errors.Is(err, upload.ErrNoFile):
		return NewBadRequestError("No file selected.", nil)
	case errors.Is(err, upload.ErrInvalidFileType):
		return NewInvalidFileTypeError()
	case errors.Is(err, upload.ErrConfirmationRequired):
		return NewConfirmationRequiredError()
	case errors.Is(err, preview.ErrNotFound):
		return NewNotFoundError("preview", "")
	case errors.Is(err, upload.ErrPipeline):
		return NewPipelineError(err)
	default:
		return NewInternalError("unexpected failure", err)
	}
}

// NewErrorHandler returns an echo.HTTPErrorHandler that renders every error
// as an APIError. showDetails exposes raw error text for unknown errors.
func NewErrorHandler(showDetails bool, log *logrus.Entry) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var apiErr *APIError
		var httpErr *echo.HTTPError

		switch {
		case errors.As(err, &apiErr):
		case errors.As(err, &httpErr):
			apiErr = &APIError{
				Status:  httpErr.Code,
				Code:    "HTTP_ERROR",
				Message: fmt.Sprintf("%v", httpErr.Message),
			}
		default:
			apiErr = &APIError{
				Status:  http.StatusInternalServerError,
				Code:    "UNKNOWN_ERROR",
				Message: "An unexpected error occurred",
			}
			if showDetails {
				apiErr.Details = err.Error()
			}
		}

		if apiErr.Status >= http.StatusInternalServerError {
			log.WithError(err).WithField("path", c.Request().URL.Path).Error("Request failed")
		}

		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(apiErr.Status)
			return
		}
		_ = c.JSON(apiErr.Status, apiErr)
	}
}
