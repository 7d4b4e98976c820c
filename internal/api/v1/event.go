package v1

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// TimeFormat is the wire format for all event timestamps (ISO-8601 UTC).
const TimeFormat = time.RFC3339Nano

// MaxPayloadBytes bounds the serialized payload size of a single event.
const MaxPayloadBytes = 1024 * 1024

// Status is the delivery lifecycle state of an event.
//
// Transitions only move forward: received -> delivered, or
// received -> retrying -> ... -> failed. Delivered and failed are terminal.
type Status string

const (
	StatusReceived  Status = "received"
	StatusRetrying  Status = "retrying"
	StatusDelivered Status = "delivered"
	StatusFailed    Status = "failed"
)

// ParseStatus converts a client-supplied string into a Status.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusReceived, StatusRetrying, StatusDelivered, StatusFailed:
		return Status(s), nil
	default:
		return "", fmt.Errorf("invalid status %q (must be one of: received, retrying, delivered, failed)", s)
	}
}

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusFailed
}

// Event is the persisted record for one ingested event.
//
// OwnerID scopes every read and write; it is never serialized back to
// clients. The (OwnerID, Timestamp, EventID) triple uniquely identifies an
// event and doubles as the pagination resume position.
type Event struct {
	EventID   string                 `json:"event_id"`
	OwnerID   string                 `json:"-"`
	EventType string                 `json:"event_type"`
	Payload   map[string]interface{} `json:"payload"`
	Status    Status                 `json:"status"`

	// Timestamp is the server-side creation time and the primary sort key.
	Timestamp time.Time `json:"timestamp"`

	RetryCount  int        `json:"retry_count"`
	LastError   string     `json:"last_error,omitempty"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	FailedAt    *time.Time `json:"failed_at,omitempty"`
	LastRetryAt *time.Time `json:"last_retry_at,omitempty"`

	// ExpiresAt is the purge deadline (creation time + retention TTL).
	ExpiresAt time.Time `json:"-"`

	// Metadata carries side-channel request context (source ip, user agent,
	// correlation id). Internal only.
	Metadata map[string]string `json:"-"`
}

// EventItem is the public projection of an event exposed through the inbox.
// Internal fields (owner, status, retry bookkeeping, metadata) never leave
// the service through this path.
type EventItem struct {
	EventID   string                 `json:"event_id"`
	EventType string                 `json:"event_type"`
	Timestamp string                 `json:"timestamp"`
	Payload   map[string]interface{} `json:"payload"`
}

// PublicItem projects the event to its client-facing fields.
func (e *Event) PublicItem() EventItem {
	return EventItem{
		EventID:   e.EventID,
		EventType: e.EventType,
		Timestamp: e.Timestamp.UTC().Format(TimeFormat),
		Payload:   e.Payload,
	}
}

// EventInput is the request body for POST /v1/events.
type EventInput struct {
	EventType string                 `json:"event_type"`
	Payload   map[string]interface{} `json:"payload"`
}

// FieldError describes a single field-level validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Validate checks the input shape and returns all field-level errors at once.
func (in *EventInput) Validate() []FieldError {
	var errs []FieldError

	if strings.TrimSpace(in.EventType) == "" {
		errs = append(errs, FieldError{Field: "event_type", Message: "event_type must be a non-empty string"})
	}

	switch {
	case in.Payload == nil:
		errs = append(errs, FieldError{Field: "payload", Message: "payload cannot be null"})
	case len(in.Payload) == 0:
		errs = append(errs, FieldError{Field: "payload", Message: "payload cannot be empty"})
	default:
		serialized, err := json.Marshal(in.Payload)
		if err != nil {
			errs = append(errs, FieldError{Field: "payload", Message: "payload must be a JSON object"})
		} else if len(serialized) > MaxPayloadBytes {
			errs = append(errs, FieldError{
				Field:   "payload",
				Message: fmt.Sprintf("payload exceeds maximum size of 1MB (current size: %d bytes)", len(serialized)),
			})
		}
	}

	return errs
}

// EventResponse is the 201 body for a successful ingestion.
type EventResponse struct {
	EventID   string `json:"event_id"`
	Status    Status `json:"status"`
	Timestamp string `json:"timestamp"`
	Message   string `json:"message"`
}

// AckResponse is the 200 body for an acknowledgment.
type AckResponse struct {
	EventID     string `json:"event_id"`
	Status      Status `json:"status"`
	DeliveredAt string `json:"delivered_at"`
}

// RetryResult reports the outcome of one delivery-failure notification.
// NextRetryDelaySeconds is nil once the event is permanently failed.
type RetryResult struct {
	EventID               string `json:"event_id"`
	RetryCount            int    `json:"retry_count"`
	NextRetryDelaySeconds *int64 `json:"next_retry_delay"`
	Status                Status `json:"status"`
}

// StatusSnapshot is the lifecycle view returned by GET /v1/events/:id/status.
// NextRetryAt is computed from the backoff schedule and is nil whenever the
// event is not awaiting a retry.
type StatusSnapshot struct {
	EventID     string     `json:"event_id"`
	Status      Status     `json:"status"`
	RetryCount  int        `json:"retry_count"`
	LastError   string     `json:"last_error,omitempty"`
	LastRetryAt *time.Time `json:"last_retry_at"`
	NextRetryAt *time.Time `json:"next_retry_at"`
	DeliveredAt *time.Time `json:"delivered_at"`
	FailedAt    *time.Time `json:"failed_at"`
}

// PaginationInfo is the pagination block of an inbox page.
// Cursor is nil on the final page.
type PaginationInfo struct {
	Limit      int     `json:"limit"`
	Cursor     *string `json:"cursor"`
	HasMore    bool    `json:"has_more"`
	TotalCount int     `json:"total_count"`
}

// InboxResponse is the 200 body for GET /v1/inbox.
type InboxResponse struct {
	Events     []EventItem    `json:"events"`
	Pagination PaginationInfo `json:"pagination"`
}
