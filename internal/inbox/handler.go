package inbox

import (
	"errors"
	"log/slog"
	"net/http"

	httperr "github.com/eventinbox-lab/eventinbox/internal/core/errors"
	"github.com/eventinbox-lab/eventinbox/internal/pagination"
	"github.com/eventinbox-lab/eventinbox/internal/server"
	"github.com/gin-gonic/gin"
)

type inboxQuery struct {
	Limit      int      `form:"limit,default=50"`
	Cursor     string   `form:"cursor"`
	EventTypes []string `form:"event_type"`
	Status     string   `form:"status,default=received"`
}

// RegisterRoutes registers the inbox retrieval route.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	r.GET("/v1/inbox", s.InboxHandler)
}

// InboxHandler handles GET /v1/inbox.
// Query parameters: limit, cursor, event_type (repeatable), status.
func (s *Service) InboxHandler(c *gin.Context) {
	ownerID := server.OwnerFrom(c)
	requestID := server.RequestIDFrom(c)

	var query inboxQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, httperr.Envelope(
			httperr.CodeValidationError,
			"Invalid query parameters",
			requestID,
		))
		return
	}

	resp, err := s.GetInboxEvents(c.Request.Context(), ownerID, Params{
		Limit:      query.Limit,
		Cursor:     query.Cursor,
		EventTypes: query.EventTypes,
		Status:     query.Status,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidLimit), errors.Is(err, ErrInvalidStatus):
			c.JSON(http.StatusBadRequest, httperr.Envelope(
				httperr.CodeValidationError,
				err.Error(),
				requestID,
			))
		case errors.Is(err, pagination.ErrInvalidCursor):
			c.JSON(http.StatusBadRequest, httperr.Envelope(
				httperr.CodeInvalidCursor,
				err.Error(),
				requestID,
			))
		default:
			slog.Error("Failed to retrieve inbox events",
				"owner_id", ownerID,
				"request_id", requestID,
				"error", err)
			c.JSON(http.StatusInternalServerError, httperr.Envelope(
				httperr.CodeInternalError,
				"Failed to retrieve inbox events",
				requestID,
			))
		}
		return
	}

	c.JSON(http.StatusOK, resp)
}
