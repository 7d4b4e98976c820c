package inbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	v1 "github.com/eventinbox-lab/eventinbox/internal/api/v1"
	"github.com/eventinbox-lab/eventinbox/internal/core/storage"
	"github.com/eventinbox-lab/eventinbox/internal/pagination"
	"github.com/coocood/freecache"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultLimit is the page size when the client does not specify one.
	DefaultLimit = 50
	// MaxLimit caps the page size.
	MaxLimit = 100

	// countCacheBytes sizes the freecache arena for memoized total counts.
	countCacheBytes = 512 * 1024
)

// ErrInvalidLimit rejects page sizes outside [1, MaxLimit].
var ErrInvalidLimit = fmt.Errorf("limit must be between 1 and %d", MaxLimit)

// ErrInvalidStatus rejects unknown lifecycle states.
var ErrInvalidStatus = errors.New("invalid status filter")

// Params are the query parameters for one inbox page.
type Params struct {
	Limit      int
	Cursor     string
	EventTypes []string
	Status     string
}

// Service is the inbox orchestrator: it composes cursor decoding, the
// status-indexed page query, total counting, and cursor re-encoding into a
// single paginated retrieval operation.
type Service struct {
	store    storage.EventStore
	cursors  *pagination.Codec
	counts   *freecache.Cache
	countTTL time.Duration
}

// NewService creates the inbox service. countTTL > 0 enables an in-process
// cache for the expensive total-count scan; zero disables it and every page
// request re-counts.
func NewService(store storage.EventStore, cursors *pagination.Codec, countTTL time.Duration) *Service {
	if store == nil {
		panic("inbox: store must not be nil")
	}
	if cursors == nil {
		panic("inbox: cursor codec must not be nil")
	}

	s := &Service{
		store:    store,
		cursors:  cursors,
		countTTL: countTTL,
	}
	if countTTL > 0 {
		s.counts = freecache.NewCache(countCacheBytes)
	}
	return s
}

// GetInboxEvents returns one page of an owner's inbox.
//
// The page query and the total count run concurrently. Events are projected
// to their public fields only; a fresh signed cursor is issued whenever more
// results exist beyond this page.
func (s *Service) GetInboxEvents(ctx context.Context, ownerID string, p Params) (*v1.InboxResponse, error) {
	if p.Limit < 1 || p.Limit > MaxLimit {
		return nil, ErrInvalidLimit
	}

	statusName := p.Status
	if statusName == "" {
		statusName = string(v1.StatusReceived)
	}
	status, err := v1.ParseStatus(statusName)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidStatus, err)
	}

	var (
		cursorTimestamp time.Time
		cursorEventID   string
	)
	if p.Cursor != "" {
		rawTimestamp, eventID, err := s.cursors.Decode(p.Cursor, ownerID)
		if err != nil {
			return nil, err
		}
		cursorTimestamp, err = time.Parse(v1.TimeFormat, rawTimestamp)
		if err != nil {
			return nil, fmt.Errorf("%w: unparsable timestamp", pagination.ErrInvalidCursor)
		}
		cursorEventID = eventID
	}

	var (
		events     []*v1.Event
		hasMore    bool
		totalCount int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		events, hasMore, err = s.store.QueryByStatusWithCursor(
			gctx, ownerID, status, p.Limit, cursorTimestamp, cursorEventID, p.EventTypes)
		return err
	})
	g.Go(func() error {
		var err error
		totalCount, err = s.totalCount(gctx, ownerID, status, p.EventTypes)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	items := make([]v1.EventItem, 0, len(events))
	for _, evt := range events {
		items = append(items, evt.PublicItem())
	}

	// Encode the resume point from the last returned item. When the type
	// filter empties a page, has_more stays true but no cursor is issued;
	// callers treat has_more as a hint, not a fullness guarantee.
	var nextCursor *string
	if hasMore && len(events) > 0 {
		last := events[len(events)-1]
		encoded, err := s.cursors.Encode(
			last.Timestamp.UTC().Format(v1.TimeFormat),
			last.EventID,
			ownerID,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to encode pagination cursor: %w", err)
		}
		nextCursor = &encoded
	}

	slog.Info("Inbox page retrieved",
		"owner_id", ownerID,
		"status", status,
		"events_count", len(items),
		"has_more", hasMore,
		"total_count", totalCount)

	return &v1.InboxResponse{
		Events: items,
		Pagination: v1.PaginationInfo{
			Limit:      p.Limit,
			Cursor:     nextCursor,
			HasMore:    hasMore,
			TotalCount: totalCount,
		},
	}, nil
}

// totalCount memoizes the O(n) count scan for countTTL. Best-effort by
// design: concurrent writes within the TTL window are not reflected.
func (s *Service) totalCount(ctx context.Context, ownerID string, status v1.Status, eventTypes []string) (int, error) {
	if s.counts == nil {
		return s.store.CountByStatus(ctx, ownerID, status, eventTypes)
	}

	key := countCacheKey(ownerID, status, eventTypes)
	if cached, err := s.counts.Get(key); err == nil {
		if count, err := strconv.Atoi(string(cached)); err == nil {
			return count, nil
		}
	}

	count, err := s.store.CountByStatus(ctx, ownerID, status, eventTypes)
	if err != nil {
		return 0, err
	}

	if err := s.counts.Set(key, []byte(strconv.Itoa(count)), int(s.countTTL/time.Second)); err != nil {
		slog.Warn("Failed to cache inbox count", "owner_id", ownerID, "error", err)
	}
	return count, nil
}

func countCacheKey(ownerID string, status v1.Status, eventTypes []string) []byte {
	types := append([]string(nil), eventTypes...)
	sort.Strings(types)
	return []byte("count#" + ownerID + "#" + string(status) + "#" + strings.Join(types, ","))
}
