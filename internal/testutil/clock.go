package testutil

import (
	"sync"
	"time"
)

// Epoch is the wall-clock instant ManualClock starts at.
var Epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// ManualClock is a wall clock that only moves when told to.
//
// Pass clock.Now wherever a func() time.Time is injected (the real-time
// driver) to make wall-clock driven code deterministic.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock creates a clock at Epoch.
func NewManualClock() *ManualClock {
	return &ManualClock{now: Epoch}
}

// Now returns the current instant.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Reset moves the clock back to Epoch for test reuse.
func (c *ManualClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = Epoch
}
