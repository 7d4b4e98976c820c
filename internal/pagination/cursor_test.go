package pagination

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestCodec(t *testing.T) *Codec {
	t.Helper()
	codec, err := NewCodec("test-secret")
	require.NoError(t, err)
	return codec
}

func TestNewCodec_EmptySecret(t *testing.T) {
	_, err := NewCodec("")
	require.Error(t, err)
}

func TestCodec_RoundTrip(t *testing.T) {
	codec := newTestCodec(t)

	ts := time.Now().UTC().Format(time.RFC3339Nano)
	cursor, err := codec.Encode(ts, "evt-001", "owner-1")
	require.NoError(t, err)
	require.NotEmpty(t, cursor)

	gotTS, gotID, err := codec.Decode(cursor, "owner-1")
	require.NoError(t, err)
	require.Equal(t, ts, gotTS)
	require.Equal(t, "evt-001", gotID)
}

func TestCodec_Deterministic(t *testing.T) {
	codec := newTestCodec(t)

	a, err := codec.Encode("2026-01-02T03:04:05.000000006Z", "evt-001", "owner-1")
	require.NoError(t, err)
	b, err := codec.Encode("2026-01-02T03:04:05.000000006Z", "evt-001", "owner-1")
	require.NoError(t, err)

	require.Equal(t, a, b)
}

func TestCodec_Encode_MissingFields(t *testing.T) {
	codec := newTestCodec(t)

	for _, tc := range []struct{ ts, id, owner string }{
		{"", "evt-001", "owner-1"},
		{"2026-01-02T03:04:05Z", "", "owner-1"},
		{"2026-01-02T03:04:05Z", "evt-001", ""},
	} {
		_, err := codec.Encode(tc.ts, tc.id, tc.owner)
		require.Error(t, err)
	}
}

func TestCodec_Decode_TamperedSignature(t *testing.T) {
	codec := newTestCodec(t)

	cursor, err := codec.Encode("2026-01-02T03:04:05Z", "evt-001", "owner-1")
	require.NoError(t, err)

	raw, err := base64.URLEncoding.DecodeString(cursor)
	require.NoError(t, err)

	// Flip a byte in the hex signature at the end of the token.
	if raw[len(raw)-1] == 'a' {
		raw[len(raw)-1] = 'b'
	} else {
		raw[len(raw)-1] = 'a'
	}
	tampered := base64.URLEncoding.EncodeToString(raw)

	_, _, err = codec.Decode(tampered, "owner-1")
	require.ErrorIs(t, err, ErrInvalidCursor)
}

func TestCodec_Decode_TamperedPayload(t *testing.T) {
	codec := newTestCodec(t)

	cursor, err := codec.Encode("2026-01-02T03:04:05Z", "evt-001", "owner-1")
	require.NoError(t, err)

	raw, err := base64.URLEncoding.DecodeString(cursor)
	require.NoError(t, err)

	// Flip a byte inside the JSON payload; the signature no longer matches.
	raw[10] ^= 0x01
	tampered := base64.URLEncoding.EncodeToString(raw)

	_, _, err = codec.Decode(tampered, "owner-1")
	require.ErrorIs(t, err, ErrInvalidCursor)
}

func TestCodec_Decode_WrongOwner(t *testing.T) {
	codec := newTestCodec(t)

	cursor, err := codec.Encode("2026-01-02T03:04:05Z", "evt-001", "owner-1")
	require.NoError(t, err)

	_, _, err = codec.Decode(cursor, "owner-2")
	require.ErrorIs(t, err, ErrInvalidCursor)
}

func TestCodec_Decode_WrongSecret(t *testing.T) {
	codec := newTestCodec(t)
	other, err := NewCodec("another-secret")
	require.NoError(t, err)

	cursor, err := codec.Encode("2026-01-02T03:04:05Z", "evt-001", "owner-1")
	require.NoError(t, err)

	_, _, err = other.Decode(cursor, "owner-1")
	require.ErrorIs(t, err, ErrInvalidCursor)
}

func TestCodec_Decode_Malformed(t *testing.T) {
	codec := newTestCodec(t)

	for _, cursor := range []string{
		"",
		"not base64!!!",
		base64.URLEncoding.EncodeToString([]byte("no separator")),
		base64.URLEncoding.EncodeToString([]byte("payload.deadbeef")),
	} {
		_, _, err := codec.Decode(cursor, "owner-1")
		require.ErrorIs(t, err, ErrInvalidCursor, "cursor %q", cursor)
	}
}

func TestCodec_Decode_MissingPayloadFields(t *testing.T) {
	codec := newTestCodec(t)

	// A correctly signed payload with an empty event_id must still be
	// rejected.
	payload := []byte(`{"event_id":"","owner_id":"owner-1","timestamp":"2026-01-02T03:04:05Z"}`)
	token := append(payload, '.')
	token = append(token, codec.sign(payload)...)
	cursor := base64.URLEncoding.EncodeToString(token)

	_, _, err := codec.Decode(cursor, "owner-1")
	require.ErrorIs(t, err, ErrInvalidCursor)
}
