package chat

import (
	"context"
	"log/slog"
	"time"

	"github.com/djwesty/rust-irc/internal/registry"
)

// RunMetrics logs delivery stats every interval until ctx is canceled.
// Silent while the server is idle.
func RunMetrics(ctx context.Context, reg *registry.Registry, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			messages, bytes := reg.Stats()
			users, rooms := reg.Counts()
			if users > 0 || messages > 0 {
				slog.Info("stats",
					"users", users,
					"rooms", rooms,
					"messages", messages,
					"bytes", bytes,
					"kbps", float64(bytes)/interval.Seconds()/1024)
			}
		}
	}
}
