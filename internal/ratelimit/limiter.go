// Package ratelimit enforces a per-owner fixed-window request quota backed
// by an atomic counter row in Postgres.
package ratelimit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrLimitExceeded reports that the owner's window quota is exhausted.
var ErrLimitExceeded = errors.New("rate limit exceeded")

// WindowSeconds is the fixed-window size.
const WindowSeconds = 60

// queryIncrement bumps the window counter only while it is under the limit.
// The WHERE clause on the conflict arm makes check-and-increment a single
// atomic statement; zero rows back means the quota is spent.
const queryIncrement = `
	INSERT INTO rate_limits (limit_key, window_start, request_count, expires_at)
	VALUES ($1, $2, 1, $3)
	ON CONFLICT (limit_key) DO UPDATE
	SET request_count = rate_limits.request_count + 1
	WHERE rate_limits.request_count < $4
	RETURNING request_count
`

const queryDeleteExpired = `
	DELETE FROM rate_limits
	WHERE expires_at <= $1
`

// Limiter counts requests per owner per window.
type Limiter struct {
	stmt   *sql.Stmt
	db     *sql.DB
	limit  int
	window time.Duration
}

func NewLimiter(db *sql.DB, requestsPerMinute int) (*Limiter, error) {
	if requestsPerMinute <= 0 {
		return nil, fmt.Errorf("requests per minute must be positive, got %d", requestsPerMinute)
	}

	stmt, err := db.Prepare(queryIncrement)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rate limit statement: %w", err)
	}

	return &Limiter{
		stmt:   stmt,
		db:     db,
		limit:  requestsPerMinute,
		window: WindowSeconds * time.Second,
	}, nil
}

// Allow records one request for the owner in the window containing now.
// Returns ErrLimitExceeded when the quota is spent; any other error is an
// infrastructure failure and callers decide whether to fail open.
func (l *Limiter) Allow(ctx context.Context, ownerID string, now time.Time) error {
	windowStart := now.UTC().Truncate(l.window)
	key := fmt.Sprintf("rl#%s#%d", ownerID, windowStart.Unix())
	// Keep counter rows around for two windows so in-flight requests near
	// the boundary never race the sweeper.
	expires := windowStart.Add(2 * l.window)

	var count int
	err := l.stmt.QueryRowContext(ctx, key, windowStart, expires, l.limit).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrLimitExceeded
	}
	if err != nil {
		return fmt.Errorf("failed to increment rate limit counter: %w", err)
	}
	return nil
}

// RetryAfter reports the seconds until the window containing now rolls over.
func (l *Limiter) RetryAfter(now time.Time) int64 {
	windowStart := now.UTC().Truncate(l.window)
	remaining := windowStart.Add(l.window).Sub(now.UTC())
	secs := int64(remaining / time.Second)
	if remaining%time.Second > 0 {
		secs++
	}
	if secs < 1 {
		secs = 1
	}
	return secs
}

// DeleteExpired drops counter rows whose windows have closed. Invoked by the
// background janitor.
func (l *Limiter) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := l.db.ExecContext(ctx, queryDeleteExpired, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired rate limit rows: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected, nil
}

func (l *Limiter) Close() error {
	return l.stmt.Close()
}
