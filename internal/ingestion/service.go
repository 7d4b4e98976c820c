// Package ingestion accepts events over HTTP and persists them to the
// event store, tagging each one with ownership and delivery metadata.
package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	v1 "github.com/eventinbox-lab/eventinbox/internal/api/v1"
	"github.com/eventinbox-lab/eventinbox/internal/core/storage"
	"github.com/eventinbox-lab/eventinbox/internal/notify"
)

// DefaultTTLDays is how long an accepted event is retained before the
// janitor reclaims it, unless configured otherwise.
const DefaultTTLDays = 30

// RequestMeta captures transport-level attributes recorded alongside the
// event for auditing.
type RequestMeta struct {
	SourceIP      string
	UserAgent     string
	CorrelationID string
}

type Service struct {
	store     storage.EventStore
	publisher notify.Publisher
	ttl       time.Duration
	now       func() time.Time
}

func NewService(store storage.EventStore, publisher notify.Publisher, ttlDays int) *Service {
	if store == nil {
		panic("ingestion: nil event store")
	}
	if publisher == nil {
		publisher = notify.Nop{}
	}
	if ttlDays <= 0 {
		ttlDays = DefaultTTLDays
	}
	return &Service{
		store:     store,
		publisher: publisher,
		ttl:       time.Duration(ttlDays) * 24 * time.Hour,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CreateEvent validates the input, persists a new event in the received
// state and enqueues a delivery notification. Notification failures are
// logged and do not fail the request.
func (s *Service) CreateEvent(ctx context.Context, ownerID string, input *v1.EventInput, meta RequestMeta) (*v1.Event, []v1.FieldError, error) {
	if fieldErrs := input.Validate(); len(fieldErrs) > 0 {
		return nil, fieldErrs, nil
	}

	now := s.now()
	event := &v1.Event{
		EventID:    uuid.NewString(),
		OwnerID:    ownerID,
		EventType:  input.EventType,
		Payload:    input.Payload,
		Status:     v1.StatusReceived,
		Timestamp:  now,
		RetryCount: 0,
		ExpiresAt:  now.Add(s.ttl),
		Metadata: map[string]string{
			"source_ip":      meta.SourceIP,
			"user_agent":     meta.UserAgent,
			"api_version":    "v1",
			"correlation_id": meta.CorrelationID,
		},
	}

	if err := s.store.CreateEvent(ctx, event); err != nil {
		return nil, nil, fmt.Errorf("failed to persist event: %w", err)
	}

	if err := s.publisher.Publish(ctx, notify.Notification{
		OwnerID:    event.OwnerID,
		EventID:    event.EventID,
		EventType:  event.EventType,
		ReceivedAt: event.Timestamp,
	}); err != nil {
		slog.Warn("failed to enqueue delivery notification",
			"event_id", event.EventID,
			"error", err)
	}

	return event, nil, nil
}
