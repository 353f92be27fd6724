package websearch

import (
	"sync/atomic"
	"time"
)

// Cooldown remembers that search is temporarily disabled, typically after a
// quota error. It is the only piece of process-wide mutable assistant state;
// the deadline is held as a single atomically replaced timestamp. The clock
// is injected so expiry can be tested deterministically.
type Cooldown struct {
	now   func() time.Time
	until atomic.Int64 // unix nanoseconds, 0 when inactive
}

// NewCooldown creates a cooldown using the given clock. A nil clock means
// time.Now.
func NewCooldown(now func() time.Time) *Cooldown {
	if now == nil {
		now = time.Now
	}
	return &Cooldown{now: now}
}

// Trip disables search for the given duration.
func (c *Cooldown) Trip(d time.Duration) {
	c.until.Store(c.now().Add(d).UnixNano())
}

// Active reports whether search is currently disabled.
func (c *Cooldown) Active() bool {
	until := c.until.Load()
	return until != 0 && c.now().UnixNano() < until
}
