// Package maintenance runs background housekeeping for the chat store.
package maintenance

import (
	"context"
	"log/slog"
	"time"

	"github.com/parleylabs/parley/internal/store"
)

// StartRetentionWorker runs a background goroutine that periodically deletes
// sessions idle for longer than maxIdle, transcripts included. A zero
// maxIdle disables the worker.
func StartRetentionWorker(ctx context.Context, repo store.Repository, interval, maxIdle time.Duration) {
	if maxIdle <= 0 {
		slog.Info("Retention worker disabled")
		return
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Retention worker started", "interval", interval, "max_idle", maxIdle)

		for {
			select {
			case <-ticker.C:
				sweep(ctx, repo, maxIdle)
			case <-ctx.Done():
				slog.Info("Retention worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func sweep(ctx context.Context, repo store.Repository, maxIdle time.Duration) {
	sessions, messages, err := repo.DeleteIdleSessions(ctx, maxIdle)
	if err != nil {
		slog.Error("Retention sweep failed", "error", err)
		return
	}
	if sessions > 0 {
		slog.Info("Retention sweep removed idle sessions",
			"sessions", sessions,
			"messages", messages,
			"max_idle", maxIdle)
	}
}
