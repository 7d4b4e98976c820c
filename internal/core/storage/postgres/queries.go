package postgres

// SQL for owner-scoped event storage. The composite indexes
// (owner_id, status, received_at, event_id) and
// (owner_id, event_type, received_at) back the status and type query paths;
// see migrations/001_create_core_tables.up.sql.

const eventColumns = `
			owner_id, event_id, event_type, payload, status,
			received_at, retry_count, last_error,
			delivered_at, failed_at, last_retry_at,
			expires_at, metadata`

const (
	// querySaveEvent inserts a new event. ON CONFLICT DO NOTHING keeps the
	// insert idempotent per (owner_id, event_id); zero rows affected means
	// a duplicate.
	querySaveEvent = `
		INSERT INTO events (
			owner_id, event_id, event_type, payload, status,
			received_at, retry_count, expires_at, metadata
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (owner_id, event_id) DO NOTHING
	`

	queryGetEventByID = `
		SELECT` + eventColumns + `
		FROM events
		WHERE owner_id = $1 AND event_id = $2
	`

	// queryEventsByStatusFirst fetches the first page of a status scan,
	// ascending by (received_at, event_id) for FIFO-like delivery.
	queryEventsByStatusFirst = `
		SELECT` + eventColumns + `
		FROM events
		WHERE owner_id = $1 AND status = $2
		ORDER BY received_at ASC, event_id ASC
		LIMIT $3
	`

	// queryEventsByStatusAfter resumes a status scan strictly after the
	// (received_at, event_id) position of the previous page's last item.
	queryEventsByStatusAfter = `
		SELECT` + eventColumns + `
		FROM events
		WHERE owner_id = $1 AND status = $2
		  AND (received_at, event_id) > ($3, $4)
		ORDER BY received_at ASC, event_id ASC
		LIMIT $5
	`

	// queryMarkDelivered acknowledges an event. COALESCE sets delivered_at
	// exactly once, making repeated acknowledgments idempotent. The status
	// guard refuses to resurrect failed events; zero rows means either
	// not-found or failed, which the adapter disambiguates with a read.
	queryMarkDelivered = `
		UPDATE events
		SET status = 'delivered',
		    delivered_at = COALESCE(delivered_at, $3)
		WHERE owner_id = $1 AND event_id = $2 AND status <> 'failed'
		RETURNING` + eventColumns + `
	`

	// queryMarkFailed is the terminal failure transition, idempotent on
	// already-failed events. The reason only overwrites last_error when
	// provided.
	queryMarkFailed = `
		UPDATE events
		SET status = 'failed',
		    failed_at = COALESCE(failed_at, $3),
		    last_error = COALESCE(NULLIF($4, ''), last_error)
		WHERE owner_id = $1 AND event_id = $2 AND status <> 'delivered'
		RETURNING` + eventColumns + `
	`

	// queryUpdateRetryState records one failed delivery attempt. Only
	// non-terminal events may move to retrying.
	queryUpdateRetryState = `
		UPDATE events
		SET status = 'retrying',
		    retry_count = $3,
		    last_error = $4,
		    last_retry_at = $5
		WHERE owner_id = $1 AND event_id = $2
		  AND status IN ('received', 'retrying')
		RETURNING` + eventColumns + `
	`

	queryDeleteEvent = `
		DELETE FROM events
		WHERE owner_id = $1 AND event_id = $2
	`

	// queryDeleteExpired purges a bounded batch of events past their
	// retention deadline. The ctid subquery keeps each sweep small so the
	// janitor never holds long row locks.
	queryDeleteExpired = `
		DELETE FROM events
		WHERE ctid IN (
			SELECT ctid FROM events
			WHERE expires_at <= $1
			LIMIT $2
		)
	`
)
