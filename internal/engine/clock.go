package engine

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Clock is the engine's virtual clock, measured from program start.
// Time only moves forward.
type Clock struct {
	now time.Duration
}

// NewClock creates a clock at t=0.
func NewClock() *Clock {
	return &Clock{}
}

// Now returns the current virtual time.
func (c *Clock) Now() time.Duration {
	return c.now
}

// Advance moves the clock forward by d.
// Returns an error for negative d; the clock is unchanged.
func (c *Clock) Advance(d time.Duration) error {
	if d < 0 {
		return &RuntimeError{
			Code:    ErrCodeNegativeAdvance,
			Message: fmt.Sprintf("cannot advance by %s", d),
		}
	}
	c.now += d
	return nil
}

// AdvanceTo moves the clock to t. Moving backwards is an error.
func (c *Clock) AdvanceTo(t time.Duration) error {
	return c.Advance(t - c.now)
}

// sequence stamps events with strictly increasing numbers.
type sequence struct {
	n atomic.Int64
}

// Next returns the next sequence number, starting at 1.
func (s *sequence) Next() int64 {
	return s.n.Add(1)
}

// Current returns the last issued number without incrementing.
func (s *sequence) Current() int64 {
	return s.n.Load()
}
