// Package clock implements the single global logical clock shared by every
// site and transaction in the engine.
package clock

import "sync"

// Clock is a monotonically non-decreasing logical timestamp. It advances by
// exactly one on every externally visible event (begin, beginRO, fail,
// recover, and every commit, with or without writes); reads, writes, and
// aborts never advance it. Because advances are always by exactly one and
// always driven by a single caller, no two commits ever share a timestamp.
type Clock struct {
	mu  sync.Mutex
	now int64
}

// New returns a Clock starting at time zero, the time at which T0's initial
// versions are considered committed.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time without advancing it.
func (c *Clock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by one and returns the new time.
func (c *Clock) Advance() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now++
	return c.now
}

// Reset returns the clock to time zero, used when a `// Test <n>` marker
// starts a fresh run.
func (c *Clock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = 0
}
