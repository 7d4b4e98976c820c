// Package notify hands freshly ingested events to the downstream delivery
// pipeline. Publishing is best-effort: the create path logs and continues
// when it fails.
package notify

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Notification is the minimal pointer handed downstream; the event body
// stays in the events table.
type Notification struct {
	OwnerID    string
	EventID    string
	EventType  string
	ReceivedAt time.Time
}

// Publisher enqueues a notification for asynchronous processing.
type Publisher interface {
	Publish(ctx context.Context, n Notification) error
}

const queryEnqueue = `
	INSERT INTO notifications_outbox (owner_id, event_id, event_type, received_at, enqueued_at)
	VALUES ($1, $2, $3, $4, $5)
`

// OutboxPublisher writes notifications to a transactional outbox table that
// a downstream relay drains.
type OutboxPublisher struct {
	stmt *sql.Stmt
}

func NewOutboxPublisher(db *sql.DB) (*OutboxPublisher, error) {
	stmt, err := db.Prepare(queryEnqueue)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare outbox enqueue statement: %w", err)
	}
	return &OutboxPublisher{stmt: stmt}, nil
}

func (p *OutboxPublisher) Publish(ctx context.Context, n Notification) error {
	if _, err := p.stmt.ExecContext(ctx, n.OwnerID, n.EventID, n.EventType, n.ReceivedAt, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to enqueue notification: %w", err)
	}
	return nil
}

func (p *OutboxPublisher) Close() error {
	return p.stmt.Close()
}

// Nop discards notifications. Used when the outbox is disabled and in tests.
type Nop struct{}

func (Nop) Publish(context.Context, Notification) error { return nil }
