package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/eventinbox-lab/eventinbox/internal/server"
)

var windowTime = time.Date(2026, 3, 1, 12, 0, 30, 0, time.UTC)

func newMockLimiter(t *testing.T, limit int) (*Limiter, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mock.ExpectPrepare(regexp.QuoteMeta(queryIncrement))
	limiter, err := NewLimiter(db, limit)
	require.NoError(t, err)

	return limiter, mock
}

func expectedKey(owner string, now time.Time) string {
	windowStart := now.UTC().Truncate(WindowSeconds * time.Second)
	return fmt.Sprintf("rl#%s#%d", owner, windowStart.Unix())
}

func TestNewLimiter_InvalidLimit(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	_, err = NewLimiter(db, 0)
	require.Error(t, err)
}

func TestLimiter_Allow(t *testing.T) {
	limiter, mock := newMockLimiter(t, 100)

	windowStart := windowTime.Truncate(time.Minute)
	mock.ExpectQuery(regexp.QuoteMeta(queryIncrement)).
		WithArgs(expectedKey("owner-1", windowTime), windowStart, windowStart.Add(2*time.Minute), 100).
		WillReturnRows(sqlmock.NewRows([]string{"request_count"}).AddRow(1))

	require.NoError(t, limiter.Allow(context.Background(), "owner-1", windowTime))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLimiter_Allow_Exceeded(t *testing.T) {
	limiter, mock := newMockLimiter(t, 100)

	// The conditional upsert returns no row once the counter is at the
	// limit.
	mock.ExpectQuery(regexp.QuoteMeta(queryIncrement)).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), 100).
		WillReturnRows(sqlmock.NewRows([]string{"request_count"}))

	err := limiter.Allow(context.Background(), "owner-1", windowTime)
	require.ErrorIs(t, err, ErrLimitExceeded)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLimiter_Allow_InfrastructureError(t *testing.T) {
	limiter, mock := newMockLimiter(t, 100)

	mock.ExpectQuery(regexp.QuoteMeta(queryIncrement)).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), 100).
		WillReturnError(fmt.Errorf("connection reset"))

	err := limiter.Allow(context.Background(), "owner-1", windowTime)
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrLimitExceeded)
}

func TestLimiter_RetryAfter(t *testing.T) {
	limiter, _ := newMockLimiter(t, 100)

	// 30s into a 60s window leaves 30s.
	require.Equal(t, int64(30), limiter.RetryAfter(windowTime))

	// On the boundary a full window remains.
	require.Equal(t, int64(60), limiter.RetryAfter(windowTime.Truncate(time.Minute)))
}

func TestLimiter_DeleteExpired(t *testing.T) {
	limiter, mock := newMockLimiter(t, 100)

	mock.ExpectExec(regexp.QuoteMeta(queryDeleteExpired)).
		WithArgs(windowTime).
		WillReturnResult(sqlmock.NewResult(0, 5))

	deleted, err := limiter.DeleteExpired(context.Background(), windowTime)
	require.NoError(t, err)
	require.Equal(t, int64(5), deleted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func newLimitedRouter(limiter *Limiter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(server.RequestID(), server.RequireOwner(), Middleware(limiter))
	r.GET("/v1/inbox", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func doLimitedRequest(r *gin.Engine) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/v1/inbox", nil)
	req.Header.Set(server.HeaderOwnerID, "owner-1")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestMiddleware_Allows(t *testing.T) {
	limiter, mock := newMockLimiter(t, 100)
	mock.ExpectQuery(regexp.QuoteMeta(queryIncrement)).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), 100).
		WillReturnRows(sqlmock.NewRows([]string{"request_count"}).AddRow(1))

	resp := doLimitedRequest(newLimitedRouter(limiter))
	require.Equal(t, http.StatusOK, resp.Code)
}

func TestMiddleware_Rejects(t *testing.T) {
	limiter, mock := newMockLimiter(t, 100)
	mock.ExpectQuery(regexp.QuoteMeta(queryIncrement)).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), 100).
		WillReturnRows(sqlmock.NewRows([]string{"request_count"}))

	resp := doLimitedRequest(newLimitedRouter(limiter))
	require.Equal(t, http.StatusTooManyRequests, resp.Code)
	require.NotEmpty(t, resp.Header().Get("Retry-After"))
}

func TestMiddleware_FailsOpen(t *testing.T) {
	limiter, mock := newMockLimiter(t, 100)
	mock.ExpectQuery(regexp.QuoteMeta(queryIncrement)).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), 100).
		WillReturnError(fmt.Errorf("connection reset"))

	resp := doLimitedRequest(newLimitedRouter(limiter))
	require.Equal(t, http.StatusOK, resp.Code)
}
