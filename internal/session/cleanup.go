package session

import (
	"context"
	"time"

	"github.com/crewdesk/crewdesk/internal/log"
)

// CleanupManager periodically removes expired sessions from a Store.
type CleanupManager struct {
	store    Store
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
}

// NewCleanupManager creates a cleanup manager. Call Start to begin sweeping.
func NewCleanupManager(store Store, interval time.Duration) *CleanupManager {
	return &CleanupManager{
		store:    store,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the background sweep goroutine.
func (c *CleanupManager) Start() {
	go func() {
		defer close(c.done)
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				removed, err := c.store.CleanupExpired(ctx)
				cancel()
				if err != nil {
					log.LogWarn("Session cleanup failed: %v", err)
				} else if removed > 0 {
					log.LogInfoWithFields("session", "Cleaned up expired sessions", map[string]any{
						"removed": removed,
					})
				}
			case <-c.stop:
				return
			}
		}
	}()
}

// Stop halts the sweep goroutine and waits for it to exit.
func (c *CleanupManager) Stop() {
	close(c.stop)
	<-c.done
}
