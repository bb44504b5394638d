package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/m3rciful/orderbot/core/logger"
)

// RunReaper removes sessions idle for longer than ttl every interval until
// ctx is cancelled. A zero ttl disables reaping.
func RunReaper(ctx context.Context, store Store, ttl, interval time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Info(ctx, "store", "reaper.start",
		slog.String("status", "ok"),
		slog.Duration("idle_ttl", ttl),
		slog.Duration("interval", interval),
	)
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			ReapOnce(ctx, store, now.Add(-ttl))
		}
	}
}

// ReapOnce runs a single reaping pass and logs the outcome.
func ReapOnce(ctx context.Context, store Store, before time.Time) int {
	start := time.Now()
	n, err := store.Reap(ctx, before)
	if err != nil {
		logger.Warn(ctx, "store", "reaper.run",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		return 0
	}
	if n > 0 {
		logger.Info(ctx, "store", "reaper.run",
			slog.String("status", "ok"),
			slog.Int("reaped", n),
			slog.Duration("duration", logger.Took(start)),
		)
	}
	return n
}
