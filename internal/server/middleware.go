package server

import (
	"net/http"

	httperr "github.com/eventinbox-lab/eventinbox/internal/core/errors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	ctxKeyRequestID = "request_id"
	ctxKeyOwnerID   = "owner_id"

	// HeaderOwnerID is the identity header installed by the upstream
	// authenticator (API gateway). Key issuance and verification are out of
	// scope here; the service trusts this header.
	HeaderOwnerID = "X-Owner-ID"

	// HeaderRequestID carries the client correlation id, echoed back on
	// every response.
	HeaderRequestID = "X-Request-ID"
)

// RequestID attaches a correlation id to every request, reusing the
// client-supplied one when present.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(ctxKeyRequestID, id)
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

// RequireOwner rejects requests without an owner identity. Mounted on every
// route group that reads or mutates events.
func RequireOwner() gin.HandlerFunc {
	return func(c *gin.Context) {
		owner := c.GetHeader(HeaderOwnerID)
		if owner == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, httperr.Envelope(
				httperr.CodeUnauthorized,
				"Missing owner identity",
				RequestIDFrom(c),
			))
			return
		}
		c.Set(ctxKeyOwnerID, owner)
		c.Next()
	}
}

// OwnerFrom returns the authenticated owner id for the request.
func OwnerFrom(c *gin.Context) string {
	return c.GetString(ctxKeyOwnerID)
}

// RequestIDFrom returns the request correlation id.
func RequestIDFrom(c *gin.Context) string {
	return c.GetString(ctxKeyRequestID)
}
