package janitor

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	v1 "github.com/eventinbox-lab/eventinbox/internal/api/v1"
	"github.com/eventinbox-lab/eventinbox/internal/core/storage/storagetest"
)

func seedWithExpiry(t *testing.T, store *storagetest.Store, n int, expiresAt time.Time) {
	t.Helper()
	for i := 0; i < n; i++ {
		err := store.CreateEvent(context.Background(), &v1.Event{
			EventID:   fmt.Sprintf("evt-%03d-%d", i, expiresAt.Unix()),
			OwnerID:   "owner-1",
			EventType: "user.created",
			Payload:   map[string]interface{}{"seq": i},
			Status:    v1.StatusReceived,
			Timestamp: time.Now().UTC(),
			ExpiresAt: expiresAt,
		})
		require.NoError(t, err)
	}
}

func TestSweep_PurgesExpiredInBatches(t *testing.T) {
	store := storagetest.New()
	now := time.Now().UTC()
	seedWithExpiry(t, store, 7, now.Add(-time.Hour))   // expired
	seedWithExpiry(t, store, 3, now.Add(24*time.Hour)) // live

	j := New(time.Minute, 2, store, nil)
	j.sweep(context.Background())

	// Only the live events survive.
	live, _, err := store.QueryByStatus(context.Background(), "owner-1", v1.StatusReceived, 100, nil, nil)
	require.NoError(t, err)
	require.Len(t, live, 3)
	for _, evt := range live {
		require.True(t, evt.ExpiresAt.After(now))
	}
}

func TestSweep_NothingExpired(t *testing.T) {
	store := storagetest.New()
	seedWithExpiry(t, store, 2, time.Now().UTC().Add(time.Hour))

	j := New(time.Minute, 100, store, nil)
	j.sweep(context.Background())

	live, _, err := store.QueryByStatus(context.Background(), "owner-1", v1.StatusReceived, 100, nil, nil)
	require.NoError(t, err)
	require.Len(t, live, 2)
}

func TestSweep_StoreFailureStops(t *testing.T) {
	store := storagetest.New()
	store.Err = fmt.Errorf("connection reset")

	// Must not panic or loop; the sweep logs and returns.
	j := New(time.Minute, 100, store, nil)
	j.sweep(context.Background())
}

func TestStart_StopsOnContextCancel(t *testing.T) {
	store := storagetest.New()
	seedWithExpiry(t, store, 1, time.Now().UTC().Add(-time.Hour))

	j := New(time.Hour, 100, store, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- j.Start(ctx) }()

	// The initial sweep runs before the first tick.
	require.Eventually(t, func() bool {
		events, _, err := store.QueryByStatus(context.Background(), "owner-1", v1.StatusReceived, 10, nil, nil)
		return err == nil && len(events) == 0
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("janitor did not stop after context cancellation")
	}
}
