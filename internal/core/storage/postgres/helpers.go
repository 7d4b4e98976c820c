package postgres

import (
	"database/sql"
	"encoding/json"
	"fmt"

	v1 "github.com/eventinbox-lab/eventinbox/internal/api/v1"
)

// marshalEventJSON marshals an event's payload and metadata for storage.
// Nil metadata produces nil (SQL NULL) rather than a JSON "null" string.
func marshalEventJSON(event *v1.Event) (payloadJSON, metadataJSON []byte, err error) {
	payloadJSON, err = json.Marshal(event.Payload)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	if len(event.Metadata) > 0 {
		metadataJSON, err = json.Marshal(event.Metadata)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}

	return payloadJSON, metadataJSON, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

// scanEventRow scans one row in eventColumns order into an Event.
// Compatible with both sql.Row and sql.Rows.
func scanEventRow(row scanner) (*v1.Event, error) {
	var (
		evt          v1.Event
		payloadJSON  []byte
		metadataJSON []byte
		lastError    sql.NullString
		deliveredAt  sql.NullTime
		failedAt     sql.NullTime
		lastRetryAt  sql.NullTime
	)

	err := row.Scan(
		&evt.OwnerID,
		&evt.EventID,
		&evt.EventType,
		&payloadJSON,
		&evt.Status,
		&evt.Timestamp,
		&evt.RetryCount,
		&lastError,
		&deliveredAt,
		&failedAt,
		&lastRetryAt,
		&evt.ExpiresAt,
		&metadataJSON,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(payloadJSON, &evt.Payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &evt.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	evt.LastError = lastError.String
	if deliveredAt.Valid {
		t := deliveredAt.Time
		evt.DeliveredAt = &t
	}
	if failedAt.Valid {
		t := failedAt.Time
		evt.FailedAt = &t
	}
	if lastRetryAt.Valid {
		t := lastRetryAt.Time
		evt.LastRetryAt = &t
	}

	return &evt, nil
}
