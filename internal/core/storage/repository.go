package storage

import (
	"context"
	"errors"
	"time"

	v1 "github.com/eventinbox-lab/eventinbox/internal/api/v1"
)

// ErrDuplicate is returned when an event with the same (owner_id, event_id)
// already exists.
var ErrDuplicate = errors.New("event already exists")

// ErrNotFound is returned when an event does not exist for the given owner.
// Absent and not-owned are deliberately indistinguishable so lookups never
// leak existence across owners.
var ErrNotFound = errors.New("event not found")

// ErrTerminalState is returned when an update would move an event backwards
// out of a terminal state (delivered -> failed or failed -> delivered).
var ErrTerminalState = errors.New("event is in a terminal state")

// ResumeKey is the store's native pagination position: the sort key of the
// last item of the previous page.
type ResumeKey struct {
	Timestamp time.Time
	EventID   string
}

// CountPageSize is the page size used while summing counts.
const CountPageSize = 100

// CountSafetyCeiling bounds how many events CountByStatus will walk before
// giving up and returning the partial sum.
const CountSafetyCeiling = 10000

// EventStore defines owner-scoped persistence for events.
//
// All query results are ordered ascending by (timestamp, event_id) so inbox
// consumers drain oldest-first. Store errors (unavailability, throttling)
// propagate unmodified; the read path performs no retries.
type EventStore interface {
	// CreateEvent persists a new event. Returns ErrDuplicate when the
	// (owner_id, event_id) pair already exists.
	CreateEvent(ctx context.Context, event *v1.Event) error

	// GetEventByID fetches one event. Returns ErrNotFound when absent or
	// owned by someone else.
	GetEventByID(ctx context.Context, ownerID, eventID string) (*v1.Event, error)

	// QueryByStatus returns up to limit events with the given status,
	// ascending by (timestamp, event_id), resuming after resume when
	// non-nil. The next resume key is derived from the last item of the
	// untrimmed page; eventTypes filtering is applied afterwards, so a page
	// may come back shorter than limit even when more matches exist.
	QueryByStatus(ctx context.Context, ownerID string, status v1.Status, limit int, resume *ResumeKey, eventTypes []string) ([]*v1.Event, *ResumeKey, error)

	// QueryByStatusWithCursor is the cursor-typed wrapper around
	// QueryByStatus. A zero cursorTimestamp with empty cursorEventID means
	// "from the beginning".
	QueryByStatusWithCursor(ctx context.Context, ownerID string, status v1.Status, limit int, cursorTimestamp time.Time, cursorEventID string, eventTypes []string) ([]*v1.Event, bool, error)

	// CountByStatus walks all matching pages summing their sizes, bounded
	// by CountSafetyCeiling. Approximate under type filtering and expensive
	// for large result sets.
	CountByStatus(ctx context.Context, ownerID string, status v1.Status, eventTypes []string) (int, error)

	// UpdateRetryState moves a received/retrying event to retrying with a
	// new retry count, last error, and last retry time. ErrTerminalState
	// when the event has already reached delivered or failed.
	UpdateRetryState(ctx context.Context, ownerID, eventID string, retryCount int, lastError string, at time.Time) (*v1.Event, error)

	// MarkDelivered transitions to delivered, setting delivered_at exactly
	// once. Idempotent for already-delivered events; ErrTerminalState for
	// failed ones.
	MarkDelivered(ctx context.Context, ownerID, eventID string, at time.Time) (*v1.Event, error)

	// MarkFailed transitions to failed, setting failed_at exactly once and
	// recording the reason. Idempotent for already-failed events;
	// ErrTerminalState for delivered ones.
	MarkFailed(ctx context.Context, ownerID, eventID, reason string, at time.Time) (*v1.Event, error)

	// DeleteEvent permanently removes an event. ErrNotFound when absent.
	DeleteEvent(ctx context.Context, ownerID, eventID string) error

	// DeleteExpired purges up to limit events whose retention TTL has
	// passed and reports how many were removed.
	DeleteExpired(ctx context.Context, now time.Time, limit int) (int64, error)
}
