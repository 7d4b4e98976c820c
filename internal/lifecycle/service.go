package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	v1 "github.com/eventinbox-lab/eventinbox/internal/api/v1"
	"github.com/eventinbox-lab/eventinbox/internal/core/storage"
)

// MaxRetryAttempts is the retry budget before an event fails permanently.
const MaxRetryAttempts = 3

// retryDelays is the fixed backoff schedule, indexed by retry count.
// Deliberately a lookup table, not computed exponential backoff.
var retryDelays = [MaxRetryAttempts]time.Duration{
	60 * time.Second,
	5 * time.Minute,
	15 * time.Minute,
}

// RetryDelay returns the backoff delay for the given retry count, or false
// once the retry budget is exhausted.
func RetryDelay(retryCount int) (time.Duration, bool) {
	if retryCount < 0 || retryCount >= MaxRetryAttempts {
		return 0, false
	}
	return retryDelays[retryCount], true
}

// Service drives the event delivery lifecycle: acknowledgment, retry
// scheduling, permanent failure, deletion, and status reads.
type Service struct {
	store storage.EventStore
	now   func() time.Time
}

func NewService(store storage.EventStore) *Service {
	if store == nil {
		panic("lifecycle: store must not be nil")
	}
	return &Service{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// ScheduleRetry records one failed delivery attempt for an event.
//
// It reads the current retry count and decides: when incrementing would
// reach MaxRetryAttempts the event transitions to failed and the delay is
// nil; otherwise the count is incremented, the event stays retrying, and
// the schedule delay for the new attempt is returned.
//
// Already-failed events are a no-op returning the current terminal result;
// delivered events return storage.ErrTerminalState.
func (s *Service) ScheduleRetry(ctx context.Context, ownerID, eventID, errMsg string) (*v1.RetryResult, error) {
	evt, err := s.store.GetEventByID(ctx, ownerID, eventID)
	if err != nil {
		return nil, err
	}

	switch evt.Status {
	case v1.StatusDelivered:
		return nil, fmt.Errorf("cannot retry a delivered event: %w", storage.ErrTerminalState)
	case v1.StatusFailed:
		return &v1.RetryResult{
			EventID:    eventID,
			RetryCount: evt.RetryCount,
			Status:     v1.StatusFailed,
		}, nil
	}

	newCount := evt.RetryCount + 1

	if newCount >= MaxRetryAttempts {
		reason := errMsg
		if reason == "" {
			reason = "max retry attempts exceeded"
		}
		if _, err := s.store.MarkFailed(ctx, ownerID, eventID, reason, s.now()); err != nil {
			return nil, err
		}

		slog.Info("Max retries exceeded, event marked failed",
			"owner_id", ownerID,
			"event_id", eventID,
			"retry_count", newCount)

		return &v1.RetryResult{
			EventID:    eventID,
			RetryCount: newCount,
			Status:     v1.StatusFailed,
		}, nil
	}

	if _, err := s.store.UpdateRetryState(ctx, ownerID, eventID, newCount, errMsg, s.now()); err != nil {
		return nil, err
	}

	delay, _ := RetryDelay(newCount)
	delaySeconds := int64(delay / time.Second)

	slog.Info("Retry scheduled",
		"owner_id", ownerID,
		"event_id", eventID,
		"retry_count", newCount,
		"next_retry_delay_seconds", delaySeconds)

	return &v1.RetryResult{
		EventID:               eventID,
		RetryCount:            newCount,
		NextRetryDelaySeconds: &delaySeconds,
		Status:                v1.StatusRetrying,
	}, nil
}

// Acknowledge marks an event delivered. Idempotent: a second call returns
// the same terminal state without error. Acknowledging a failed event
// returns storage.ErrTerminalState.
func (s *Service) Acknowledge(ctx context.Context, ownerID, eventID string) (*v1.Event, error) {
	evt, err := s.store.MarkDelivered(ctx, ownerID, eventID, s.now())
	if err != nil {
		return nil, err
	}

	slog.Info("Event acknowledged",
		"owner_id", ownerID,
		"event_id", eventID,
		"delivered_at", evt.DeliveredAt)
	return evt, nil
}

// MarkFailed transitions an event to permanent failure. Idempotent on
// already-failed events; marking a delivered event returns
// storage.ErrTerminalState.
func (s *Service) MarkFailed(ctx context.Context, ownerID, eventID, reason string) (*v1.Event, error) {
	evt, err := s.store.MarkFailed(ctx, ownerID, eventID, reason, s.now())
	if err != nil {
		return nil, err
	}

	slog.Info("Event marked permanently failed",
		"owner_id", ownerID,
		"event_id", eventID,
		"reason", reason)
	return evt, nil
}

// DeleteEvent permanently removes an event for its owner.
func (s *Service) DeleteEvent(ctx context.Context, ownerID, eventID string) error {
	return s.store.DeleteEvent(ctx, ownerID, eventID)
}

// EventStatus returns the lifecycle snapshot for one event, with
// next_retry_at computed from the backoff schedule. The ETA is nil whenever
// the event is not awaiting a retry or the schedule is exhausted.
func (s *Service) EventStatus(ctx context.Context, ownerID, eventID string) (*v1.StatusSnapshot, error) {
	evt, err := s.store.GetEventByID(ctx, ownerID, eventID)
	if err != nil {
		return nil, err
	}

	snapshot := &v1.StatusSnapshot{
		EventID:     evt.EventID,
		Status:      evt.Status,
		RetryCount:  evt.RetryCount,
		LastError:   evt.LastError,
		LastRetryAt: evt.LastRetryAt,
		DeliveredAt: evt.DeliveredAt,
		FailedAt:    evt.FailedAt,
	}

	if evt.Status == v1.StatusRetrying && evt.LastRetryAt != nil {
		if delay, ok := RetryDelay(evt.RetryCount); ok {
			next := evt.LastRetryAt.Add(delay)
			snapshot.NextRetryAt = &next
		}
	}

	return snapshot, nil
}
