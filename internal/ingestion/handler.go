package ingestion

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"

	v1 "github.com/eventinbox-lab/eventinbox/internal/api/v1"
	httperr "github.com/eventinbox-lab/eventinbox/internal/core/errors"
	"github.com/eventinbox-lab/eventinbox/internal/core/storage"
	"github.com/eventinbox-lab/eventinbox/internal/server"
	"github.com/gin-gonic/gin"
)

const (
	msgReadBodyFailed = "Failed to read request body"
	msgBodyTooLarge   = "Request body exceeds maximum allowed size"
	msgInvalidJSON    = "Invalid JSON body"
	msgPersistFailed  = "Failed to persist event"
	msgDuplicateEvent = "Event already exists"
	msgCreated        = "Event successfully created and queued for processing"
)

// ingestionError carries the structured HTTP error shape from a helper back
// to the orchestrator. Helpers return this instead of writing to gin.Context
// directly, keeping them decoupled from HTTP.
type ingestionError struct {
	statusCode int
	code       string
	message    string
	details    []v1.FieldError
}

func (e *ingestionError) Error() string {
	return e.message
}

// RegisterRoutes registers the ingestion routes.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	r.POST("/v1/events", s.IngestHandler)
}

// IngestHandler handles HTTP POST requests for event ingestion.
func (s *Service) IngestHandler(c *gin.Context) {
	input, payloadSize, ierr := parseInput(c)
	if ierr != nil {
		writeError(c, ierr)
		return
	}

	meta := RequestMeta{
		SourceIP:      c.ClientIP(),
		UserAgent:     c.Request.UserAgent(),
		CorrelationID: server.RequestIDFrom(c),
	}

	evt, fieldErrs, err := s.CreateEvent(c.Request.Context(), server.OwnerFrom(c), input, meta)
	if len(fieldErrs) > 0 {
		slog.Warn("Event validation failed",
			"owner_id", server.OwnerFrom(c),
			"field_errors", len(fieldErrs))
		writeError(c, &ingestionError{
			statusCode: http.StatusBadRequest,
			code:       httperr.CodeValidationError,
			message:    "Event validation failed",
			details:    fieldErrs,
		})
		return
	}
	if err != nil {
		writeError(c, persistError(err, server.OwnerFrom(c)))
		return
	}

	slog.Info("Event accepted",
		"event_id", evt.EventID,
		"owner_id", evt.OwnerID,
		"event_type", evt.EventType,
		"payload_size", payloadSize)

	c.JSON(http.StatusCreated, v1.EventResponse{
		EventID:   evt.EventID,
		Status:    evt.Status,
		Timestamp: evt.Timestamp.Format(v1.TimeFormat),
		Message:   msgCreated,
	})
}

// parseInput reads the raw request body, enforcing the size cap, and binds
// it into an EventInput. Returns the raw body size for structured logging
// upstream.
func parseInput(c *gin.Context) (*v1.EventInput, int, *ingestionError) {
	maxBytes := int64(v1.MaxPayloadBytes)
	limitedBody := io.LimitReader(c.Request.Body, maxBytes+1) // +1 to detect oversized requests

	bodyBytes, err := io.ReadAll(limitedBody)
	if err != nil {
		slog.Error("Failed to read request body", "error", err)
		return nil, 0, &ingestionError{
			statusCode: http.StatusInternalServerError,
			code:       httperr.CodeInternalError,
			message:    msgReadBodyFailed,
		}
	}

	if int64(len(bodyBytes)) > maxBytes {
		slog.Warn("Request body exceeds maximum size", "size", len(bodyBytes), "max", maxBytes)
		return nil, len(bodyBytes), &ingestionError{
			statusCode: http.StatusRequestEntityTooLarge,
			code:       httperr.CodeValidationError,
			message:    msgBodyTooLarge,
		}
	}

	c.Request.Body = io.NopCloser(bytes.NewReader(bodyBytes))

	var input v1.EventInput
	if err := c.ShouldBindJSON(&input); err != nil {
		slog.Warn("Invalid JSON body received", "error", err, "payload_size", len(bodyBytes))
		return nil, len(bodyBytes), &ingestionError{
			statusCode: http.StatusBadRequest,
			code:       httperr.CodeValidationError,
			message:    msgInvalidJSON,
		}
	}

	return &input, len(bodyBytes), nil
}

func persistError(err error, ownerID string) *ingestionError {
	if errors.Is(err, storage.ErrDuplicate) {
		slog.Info("Duplicate event rejected", "owner_id", ownerID)
		return &ingestionError{
			statusCode: http.StatusConflict,
			code:       httperr.CodeConflict,
			message:    msgDuplicateEvent,
		}
	}

	slog.Error("Failed to persist event", "error", err, "owner_id", ownerID)
	return &ingestionError{
		statusCode: http.StatusInternalServerError,
		code:       httperr.CodeInternalError,
		message:    msgPersistFailed,
	}
}

// writeError serializes an ingestionError as the JSON HTTP response.
func writeError(c *gin.Context, ierr *ingestionError) {
	c.JSON(ierr.statusCode, httperr.Envelope(
		ierr.code,
		ierr.message,
		server.RequestIDFrom(c),
		ierr.details...,
	))
}
