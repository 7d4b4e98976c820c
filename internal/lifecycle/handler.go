package lifecycle

import (
	"errors"
	"log/slog"
	"net/http"

	v1 "github.com/eventinbox-lab/eventinbox/internal/api/v1"
	httperr "github.com/eventinbox-lab/eventinbox/internal/core/errors"
	"github.com/eventinbox-lab/eventinbox/internal/core/storage"
	"github.com/eventinbox-lab/eventinbox/internal/server"
	"github.com/gin-gonic/gin"
)

// nackBody is the optional request body for delivery-failure notifications.
type nackBody struct {
	Error string `json:"error"`
}

// RegisterRoutes registers the lifecycle routes.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	r.POST("/v1/events/:event_id/ack", s.AckHandler)
	r.POST("/v1/events/:event_id/nack", s.NackHandler)
	r.DELETE("/v1/events/:event_id", s.DeleteHandler)
	r.GET("/v1/events/:event_id/status", s.StatusHandler)
}

// AckHandler handles POST /v1/events/:event_id/ack.
// Idempotent: acknowledging an already-delivered event succeeds again with
// the original delivered_at.
func (s *Service) AckHandler(c *gin.Context) {
	ownerID := server.OwnerFrom(c)
	eventID := c.Param("event_id")

	evt, err := s.Acknowledge(c.Request.Context(), ownerID, eventID)
	if err != nil {
		writeLifecycleError(c, err, "Failed to acknowledge event")
		return
	}

	resp := v1.AckResponse{
		EventID: evt.EventID,
		Status:  evt.Status,
	}
	if evt.DeliveredAt != nil {
		resp.DeliveredAt = evt.DeliveredAt.UTC().Format(v1.TimeFormat)
	}
	c.JSON(http.StatusOK, resp)
}

// NackHandler handles POST /v1/events/:event_id/nack: a consumer reporting
// that it failed to process a pulled event. Routes through the retry state
// machine, which either re-queues with a backoff delay or fails the event
// permanently.
func (s *Service) NackHandler(c *gin.Context) {
	ownerID := server.OwnerFrom(c)
	eventID := c.Param("event_id")

	var body nackBody
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, httperr.Envelope(
				httperr.CodeValidationError,
				"Invalid JSON body",
				server.RequestIDFrom(c),
			))
			return
		}
	}

	result, err := s.ScheduleRetry(c.Request.Context(), ownerID, eventID, body.Error)
	if err != nil {
		writeLifecycleError(c, err, "Failed to schedule retry")
		return
	}

	c.JSON(http.StatusOK, result)
}

// DeleteHandler handles DELETE /v1/events/:event_id.
func (s *Service) DeleteHandler(c *gin.Context) {
	ownerID := server.OwnerFrom(c)
	eventID := c.Param("event_id")

	if err := s.DeleteEvent(c.Request.Context(), ownerID, eventID); err != nil {
		writeLifecycleError(c, err, "Failed to delete event")
		return
	}

	c.Status(http.StatusNoContent)
}

// StatusHandler handles GET /v1/events/:event_id/status.
func (s *Service) StatusHandler(c *gin.Context) {
	ownerID := server.OwnerFrom(c)
	eventID := c.Param("event_id")

	snapshot, err := s.EventStatus(c.Request.Context(), ownerID, eventID)
	if err != nil {
		writeLifecycleError(c, err, "Failed to get event status")
		return
	}

	c.JSON(http.StatusOK, snapshot)
}

// writeLifecycleError maps storage sentinels to the HTTP error envelope.
// Not-found never distinguishes "absent" from "owned by someone else".
func writeLifecycleError(c *gin.Context, err error, logMsg string) {
	requestID := server.RequestIDFrom(c)

	switch {
	case errors.Is(err, storage.ErrNotFound):
		c.JSON(http.StatusNotFound, httperr.Envelope(
			httperr.CodeNotFound,
			"Event not found",
			requestID,
		))
	case errors.Is(err, storage.ErrTerminalState):
		c.JSON(http.StatusConflict, httperr.Envelope(
			httperr.CodeConflict,
			"Event is in a terminal state",
			requestID,
		))
	default:
		slog.Error(logMsg, "error", err, "request_id", requestID)
		c.JSON(http.StatusInternalServerError, httperr.Envelope(
			httperr.CodeInternalError,
			logMsg,
			requestID,
		))
	}
}
