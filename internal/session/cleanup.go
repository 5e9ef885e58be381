package session

import (
	"context"
	"time"
)

// StartCleanupWorker launches a background loop that periodically purges
// the stored session once it passes the max age. Load already purges
// lazily; the sweep keeps expired identities from lingering on disk while
// the UI is idle.
func (s *Store) StartCleanupWorker(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.Load(ctx); err != nil {
					s.logger.Warn("session cleanup sweep failed", "error", err)
				}
			}
		}
	}()
}
