// Package clock provides the wall clock used for deadlines and a manual
// clock for tests.
package clock

import (
	"sync"
	"time"
)

// System reads the wall clock in UTC.
type System struct{}

// Now returns the current UTC time.
func (System) Now() time.Time { return time.Now().UTC() }

// Manual is a clock that only moves when told to.
type Manual struct {
	mu      sync.RWMutex
	current time.Time
}

// NewManual returns a Manual clock set to 2020-01-01 00:00:00 UTC.
func NewManual() *Manual {
	return &Manual{current: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)}
}

// NewManualAt returns a Manual clock set to t.
func NewManualAt(t time.Time) *Manual {
	return &Manual{current: t}
}

// Now returns the clock's current time.
func (c *Manual) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// Advance moves the clock forward by d.
func (c *Manual) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
}

// Set moves the clock to t.
func (c *Manual) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = t
}
