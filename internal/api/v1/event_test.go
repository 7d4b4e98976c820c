package v1

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseStatus(t *testing.T) {
	for _, s := range []string{"received", "retrying", "delivered", "failed"} {
		status, err := ParseStatus(s)
		require.NoError(t, err)
		require.Equal(t, Status(s), status)
	}

	for _, s := range []string{"", "pending", "RECEIVED", "done"} {
		_, err := ParseStatus(s)
		require.Error(t, err, "status %q", s)
	}
}

func TestStatus_Terminal(t *testing.T) {
	require.False(t, StatusReceived.Terminal())
	require.False(t, StatusRetrying.Terminal())
	require.True(t, StatusDelivered.Terminal())
	require.True(t, StatusFailed.Terminal())
}

func TestEventInput_Validate(t *testing.T) {
	valid := EventInput{
		EventType: "user.created",
		Payload:   map[string]interface{}{"id": 42},
	}
	require.Empty(t, valid.Validate())

	missingType := EventInput{Payload: map[string]interface{}{"id": 42}}
	errs := missingType.Validate()
	require.Len(t, errs, 1)
	require.Equal(t, "event_type", errs[0].Field)

	blankType := EventInput{EventType: "   ", Payload: map[string]interface{}{"id": 42}}
	errs = blankType.Validate()
	require.Len(t, errs, 1)
	require.Equal(t, "event_type", errs[0].Field)

	nilPayload := EventInput{EventType: "user.created"}
	errs = nilPayload.Validate()
	require.Len(t, errs, 1)
	require.Equal(t, "payload", errs[0].Field)
	require.Contains(t, errs[0].Message, "null")

	emptyPayload := EventInput{EventType: "user.created", Payload: map[string]interface{}{}}
	errs = emptyPayload.Validate()
	require.Len(t, errs, 1)
	require.Equal(t, "payload", errs[0].Field)
	require.Contains(t, errs[0].Message, "empty")

	// Both fields invalid: all errors reported in one pass.
	bothBad := EventInput{}
	require.Len(t, bothBad.Validate(), 2)
}

func TestEventInput_Validate_OversizedPayload(t *testing.T) {
	in := EventInput{
		EventType: "bulk.import",
		Payload: map[string]interface{}{
			"blob": strings.Repeat("x", MaxPayloadBytes),
		},
	}
	errs := in.Validate()
	require.Len(t, errs, 1)
	require.Equal(t, "payload", errs[0].Field)
	require.Contains(t, errs[0].Message, "maximum size")
}

func TestEvent_PublicItem(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 6, time.UTC)
	evt := Event{
		EventID:    "evt-001",
		OwnerID:    "owner-1",
		EventType:  "user.created",
		Payload:    map[string]interface{}{"id": 42},
		Status:     StatusRetrying,
		Timestamp:  ts,
		RetryCount: 2,
		LastError:  "connection refused",
		Metadata:   map[string]string{"source_ip": "10.0.0.1"},
	}

	item := evt.PublicItem()
	require.Equal(t, "evt-001", item.EventID)
	require.Equal(t, "user.created", item.EventType)
	require.Equal(t, ts.Format(TimeFormat), item.Timestamp)
	require.Equal(t, evt.Payload, item.Payload)
}
