// Package testfixtures holds deterministic helpers shared by package tests.
package testfixtures

import (
	"sync"
	"time"
)

// ReferenceTime is the instant fixture clocks start from by default.
func ReferenceTime() time.Time {
	return time.Date(2025, time.February, 1, 8, 0, 0, 0, time.UTC)
}

// Clock is a controllable time source.
type Clock struct {
	mu      sync.Mutex
	current time.Time
}

// NewClock returns a clock at start, or at ReferenceTime when start is zero.
func NewClock(start time.Time) *Clock {
	if start.IsZero() {
		start = ReferenceTime()
	}
	return &Clock{current: start}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Advance moves the clock forward by d and returns the new time.
func (c *Clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
	return c.current
}

// Tick returns a time source that advances the clock by step on every call,
// so successive writes get strictly increasing timestamps.
func (c *Clock) Tick(step time.Duration) func() time.Time {
	return func() time.Time {
		return c.Advance(step)
	}
}
