package session

import (
	"sync"
	"time"
)

// cooldownTracker records per-market cooldown windows after an
// upstream rate-limit response. While a market is cooling down,
// Acquire fails fast instead of attempting a new handshake.
type cooldownTracker struct {
	mu     sync.Mutex
	window time.Duration
	until  map[string]time.Time
}

func newCooldownTracker(window time.Duration) *cooldownTracker {
	return &cooldownTracker{
		window: window,
		until:  make(map[string]time.Time),
	}
}

// trip starts a cooldown window for the market.
func (c *cooldownTracker) trip(marketKey string) {
	c.mu.Lock()
	c.until[marketKey] = time.Now().Add(c.window)
	c.mu.Unlock()
}

// active reports whether the market is still cooling down. Expired
// windows are cleared on read.
func (c *cooldownTracker) active(marketKey string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	deadline, ok := c.until[marketKey]
	if !ok {
		return false
	}
	if time.Now().After(deadline) {
		delete(c.until, marketKey)
		return false
	}
	return true
}
