// Package janitor reclaims storage: expired events past their retention
// window and closed rate limit counter windows.
package janitor

import (
	"context"
	"log/slog"
	"time"

	"github.com/eventinbox-lab/eventinbox/internal/core/storage"
	"github.com/eventinbox-lab/eventinbox/internal/ratelimit"
)

// Janitor runs periodic cleanup sweeps.
// It is stateless: each tick independently deletes whatever has expired.
type Janitor struct {
	interval  time.Duration
	batchSize int
	store     storage.EventStore
	limiter   *ratelimit.Limiter
}

// New creates a janitor. The limiter may be nil when rate limiting is
// disabled.
func New(interval time.Duration, batchSize int, store storage.EventStore, limiter *ratelimit.Limiter) *Janitor {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &Janitor{
		interval:  interval,
		batchSize: batchSize,
		store:     store,
		limiter:   limiter,
	}
}

// Start begins periodic cleanup. Runs until context is cancelled, then
// performs one final sweep on a detached timeout.
func (j *Janitor) Start(ctx context.Context) error {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	slog.Info("[Janitor] Starting cleanup loop",
		"interval", j.interval,
		"batch_size", j.batchSize,
	)

	// Initial sweep to catch up with anything that expired while down
	j.sweep(ctx)

	for {
		select {
		case <-ticker.C:
			j.sweep(ctx)
		case <-ctx.Done():
			slog.Info("[Janitor] Stopping (context cancelled)")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			j.sweep(shutdownCtx)
			slog.Info("[Janitor] Final sweep complete")
			return nil
		}
	}
}

// sweep deletes expired rows in batches until a short batch signals the
// backlog is drained.
func (j *Janitor) sweep(ctx context.Context) {
	now := time.Now().UTC()
	batchCount := 0
	maxConsecutiveBatches := 100 // Safety limit to prevent infinite loop
	var totalDeleted int64

	for batchCount < maxConsecutiveBatches {
		select {
		case <-ctx.Done():
			slog.Info("[Janitor] Sweep interrupted by context cancellation",
				"batches_processed", batchCount)
			return
		default:
		}

		deleted, err := j.store.DeleteExpired(ctx, now, j.batchSize)
		if err != nil {
			slog.Error("[Janitor] Failed to delete expired events",
				"error", err,
				"batch_number", batchCount+1)
			return
		}

		batchCount++
		totalDeleted += deleted

		if deleted < int64(j.batchSize) {
			break
		}
	}

	if totalDeleted > 0 {
		slog.Info("[Janitor] Expired events deleted",
			"deleted", totalDeleted,
			"batches", batchCount)
	}

	if j.limiter != nil {
		deleted, err := j.limiter.DeleteExpired(ctx, now)
		if err != nil {
			slog.Error("[Janitor] Failed to delete expired rate limit rows", "error", err)
			return
		}
		if deleted > 0 {
			slog.Info("[Janitor] Expired rate limit rows deleted", "deleted", deleted)
		}
	}
}
