package testing

import (
	"sync"
	"time"
)

// Clock is a manually advanced time source used to drive lazy turn expiry in
// tests without sleeping
type Clock struct {
	mu sync.Mutex
	t  time.Time
}

// NewClock returns a Clock frozen at start
func NewClock(start time.Time) *Clock {
	return &Clock{t: start}
}

// Now returns the clock's current instant
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

// Advance moves the clock forward by d
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}
