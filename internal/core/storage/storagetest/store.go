// Package storagetest provides an in-memory EventStore for tests.
package storagetest

import (
	"context"
	"sort"
	"sync"
	"time"

	v1 "github.com/eventinbox-lab/eventinbox/internal/api/v1"
	"github.com/eventinbox-lab/eventinbox/internal/core/storage"
)

// Store is an in-memory storage.EventStore with the same ordering,
// pagination, and transition-guard semantics as the postgres adapter.
//
// Err, when set, is returned by every operation; tests use it to simulate
// store unavailability.
type Store struct {
	mu     sync.Mutex
	events map[string]map[string]*v1.Event // ownerID -> eventID -> event

	Err error
}

func New() *Store {
	return &Store{events: make(map[string]map[string]*v1.Event)}
}

func (s *Store) CreateEvent(ctx context.Context, event *v1.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}

	owned := s.events[event.OwnerID]
	if owned == nil {
		owned = make(map[string]*v1.Event)
		s.events[event.OwnerID] = owned
	}
	if _, exists := owned[event.EventID]; exists {
		return storage.ErrDuplicate
	}

	clone := *event
	owned[event.EventID] = &clone
	return nil
}

func (s *Store) GetEventByID(ctx context.Context, ownerID, eventID string) (*v1.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(ownerID, eventID)
}

func (s *Store) getLocked(ownerID, eventID string) (*v1.Event, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	evt, ok := s.events[ownerID][eventID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	clone := *evt
	return &clone, nil
}

func (s *Store) QueryByStatus(ctx context.Context, ownerID string, status v1.Status, limit int, resume *storage.ResumeKey, eventTypes []string) ([]*v1.Event, *storage.ResumeKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, nil, s.Err
	}

	var matched []*v1.Event
	for _, evt := range s.events[ownerID] {
		if evt.Status != status {
			continue
		}
		if resume != nil && !after(evt, resume) {
			continue
		}
		clone := *evt
		matched = append(matched, &clone)
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].Timestamp.Equal(matched[j].Timestamp) {
			return matched[i].Timestamp.Before(matched[j].Timestamp)
		}
		return matched[i].EventID < matched[j].EventID
	})

	var next *storage.ResumeKey
	if len(matched) > limit {
		matched = matched[:limit]
		last := matched[len(matched)-1]
		next = &storage.ResumeKey{Timestamp: last.Timestamp, EventID: last.EventID}
	}

	if len(eventTypes) > 0 {
		wanted := make(map[string]struct{}, len(eventTypes))
		for _, t := range eventTypes {
			wanted[t] = struct{}{}
		}
		filtered := matched[:0]
		for _, evt := range matched {
			if _, ok := wanted[evt.EventType]; ok {
				filtered = append(filtered, evt)
			}
		}
		matched = filtered
	}

	return matched, next, nil
}

func (s *Store) QueryByStatusWithCursor(ctx context.Context, ownerID string, status v1.Status, limit int, cursorTimestamp time.Time, cursorEventID string, eventTypes []string) ([]*v1.Event, bool, error) {
	var resume *storage.ResumeKey
	if cursorEventID != "" && !cursorTimestamp.IsZero() {
		resume = &storage.ResumeKey{Timestamp: cursorTimestamp, EventID: cursorEventID}
	}
	events, next, err := s.QueryByStatus(ctx, ownerID, status, limit, resume, eventTypes)
	if err != nil {
		return nil, false, err
	}
	return events, next != nil, nil
}

func (s *Store) CountByStatus(ctx context.Context, ownerID string, status v1.Status, eventTypes []string) (int, error) {
	count := 0
	var resume *storage.ResumeKey
	for {
		events, next, err := s.QueryByStatus(ctx, ownerID, status, storage.CountPageSize, resume, eventTypes)
		if err != nil {
			return 0, err
		}
		count += len(events)
		if next == nil || count > storage.CountSafetyCeiling {
			return count, nil
		}
		resume = next
	}
}

func (s *Store) UpdateRetryState(ctx context.Context, ownerID, eventID string, retryCount int, lastError string, at time.Time) (*v1.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}

	evt, ok := s.events[ownerID][eventID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	if evt.Status.Terminal() {
		return nil, storage.ErrTerminalState
	}

	evt.Status = v1.StatusRetrying
	evt.RetryCount = retryCount
	evt.LastError = lastError
	retryAt := at
	evt.LastRetryAt = &retryAt

	clone := *evt
	return &clone, nil
}

func (s *Store) MarkDelivered(ctx context.Context, ownerID, eventID string, at time.Time) (*v1.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}

	evt, ok := s.events[ownerID][eventID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	if evt.Status == v1.StatusFailed {
		return nil, storage.ErrTerminalState
	}

	evt.Status = v1.StatusDelivered
	if evt.DeliveredAt == nil {
		deliveredAt := at
		evt.DeliveredAt = &deliveredAt
	}

	clone := *evt
	return &clone, nil
}

func (s *Store) MarkFailed(ctx context.Context, ownerID, eventID, reason string, at time.Time) (*v1.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}

	evt, ok := s.events[ownerID][eventID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	if evt.Status == v1.StatusDelivered {
		return nil, storage.ErrTerminalState
	}

	evt.Status = v1.StatusFailed
	if evt.FailedAt == nil {
		failedAt := at
		evt.FailedAt = &failedAt
	}
	if reason != "" {
		evt.LastError = reason
	}

	clone := *evt
	return &clone, nil
}

func (s *Store) DeleteEvent(ctx context.Context, ownerID, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}

	if _, ok := s.events[ownerID][eventID]; !ok {
		return storage.ErrNotFound
	}
	delete(s.events[ownerID], eventID)
	return nil
}

func (s *Store) DeleteExpired(ctx context.Context, now time.Time, limit int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return 0, s.Err
	}

	var purged int64
	for _, owned := range s.events {
		for id, evt := range owned {
			if purged >= int64(limit) {
				return purged, nil
			}
			if !evt.ExpiresAt.After(now) {
				delete(owned, id)
				purged++
			}
		}
	}
	return purged, nil
}

func after(evt *v1.Event, key *storage.ResumeKey) bool {
	if evt.Timestamp.After(key.Timestamp) {
		return true
	}
	return evt.Timestamp.Equal(key.Timestamp) && evt.EventID > key.EventID
}

var _ storage.EventStore = (*Store)(nil)
