package ratelimit

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	httperr "github.com/eventinbox-lab/eventinbox/internal/core/errors"
	"github.com/eventinbox-lab/eventinbox/internal/server"
	"github.com/gin-gonic/gin"
)

// Middleware enforces the per-owner quota on every request in the group.
// Fails open: if the counter store is unreachable the request proceeds, on
// the grounds that shedding all traffic during a database blip is worse
// than briefly not limiting.
func Middleware(l *Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		now := time.Now()
		err := l.Allow(c.Request.Context(), server.OwnerFrom(c), now)
		if err == nil {
			c.Next()
			return
		}

		if errors.Is(err, ErrLimitExceeded) {
			c.Header("Retry-After", strconv.FormatInt(l.RetryAfter(now), 10))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, httperr.Envelope(
				httperr.CodeRateLimitExceeded,
				"Rate limit exceeded",
				server.RequestIDFrom(c),
			))
			return
		}

		slog.Warn("Rate limiter unavailable, allowing request",
			"owner_id", server.OwnerFrom(c),
			"error", err)
		c.Next()
	}
}
