package pagination

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidCursor is returned for any cursor that cannot be decoded:
// malformed encoding, tampered signature, missing fields, or a cursor that
// belongs to a different owner. Callers match it with errors.Is.
var ErrInvalidCursor = errors.New("invalid cursor")

// cursorPayload is the signed continuation token content. Field order is
// alphabetical so the canonical JSON form is deterministic and re-encoding
// the same triple is byte-identical.
type cursorPayload struct {
	EventID   string `json:"event_id"`
	OwnerID   string `json:"owner_id"`
	Timestamp string `json:"timestamp"`
}

// Codec encodes and decodes opaque pagination cursors.
//
// Format: urlsafe_base64(canonical_json + "." + hex(hmac_sha256(canonical_json))).
// The tag prevents tampering, not inspection; cursor fields are non-secret
// resume metadata.
type Codec struct {
	secret []byte
}

// NewCodec creates a cursor codec with the given server-held signing secret.
func NewCodec(secret string) (*Codec, error) {
	if secret == "" {
		return nil, errors.New("pagination: signing secret must not be empty")
	}
	return &Codec{secret: []byte(secret)}, nil
}

// Encode serializes the resume triple into a signed opaque cursor.
func (c *Codec) Encode(timestamp, eventID, ownerID string) (string, error) {
	if timestamp == "" || eventID == "" || ownerID == "" {
		return "", errors.New("pagination: timestamp, event id, and owner id are all required")
	}

	payload, err := json.Marshal(cursorPayload{
		EventID:   eventID,
		OwnerID:   ownerID,
		Timestamp: timestamp,
	})
	if err != nil {
		return "", fmt.Errorf("pagination: failed to encode cursor payload: %w", err)
	}

	token := append(payload, '.')
	token = append(token, c.sign(payload)...)

	return base64.URLEncoding.EncodeToString(token), nil
}

// Decode inverts Encode and validates the signature with a constant-time
// comparison. ownerID must match the owner embedded at encode time.
func (c *Codec) Decode(cursor, ownerID string) (timestamp, eventID string, err error) {
	raw, err := base64.URLEncoding.DecodeString(cursor)
	if err != nil {
		return "", "", fmt.Errorf("%w: malformed encoding", ErrInvalidCursor)
	}

	// The payload is JSON and may itself contain dots; the signature never
	// does, so split on the last one.
	sep := bytes.LastIndexByte(raw, '.')
	if sep < 0 {
		return "", "", fmt.Errorf("%w: malformed token", ErrInvalidCursor)
	}
	payload, tag := raw[:sep], raw[sep+1:]

	if !hmac.Equal(tag, c.sign(payload)) {
		return "", "", fmt.Errorf("%w: signature mismatch", ErrInvalidCursor)
	}

	var decoded cursorPayload
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return "", "", fmt.Errorf("%w: malformed payload", ErrInvalidCursor)
	}

	if decoded.Timestamp == "" || decoded.EventID == "" || decoded.OwnerID == "" {
		return "", "", fmt.Errorf("%w: missing required fields", ErrInvalidCursor)
	}

	if decoded.OwnerID != ownerID {
		return "", "", fmt.Errorf("%w: cursor does not belong to this owner", ErrInvalidCursor)
	}

	return decoded.Timestamp, decoded.EventID, nil
}

// sign computes the hex-encoded HMAC-SHA256 tag over the payload bytes.
func (c *Codec) sign(payload []byte) []byte {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write(payload)
	sum := mac.Sum(nil)

	tag := make([]byte, hex.EncodedLen(len(sum)))
	hex.Encode(tag, sum)
	return tag
}
