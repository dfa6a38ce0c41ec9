package testutil

import (
	"sync"
	"time"
)

// Clock is a manually advanced time source. Hand its Now method to any
// component with an injectable clock, then drive probe cycles or alert
// transitions deterministically with Advance.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a Clock starting at the given time, or at a fixed
// 2026-01-05 09:00 UTC (a Monday morning, inside typical expected-on
// schedule windows) when none is given.
func NewClock(now ...time.Time) *Clock {
	t := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	if len(now) > 0 {
		t = now[0]
	}
	return &Clock{now: t}
}

// Now returns the clock's current time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set overrides the clock's current time.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}
