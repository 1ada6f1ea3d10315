package clock

import (
	"sort"
	"sync"
	"time"
)

// MockClock is a deterministic Clock for tests. Time only moves when
// Advance is called; pending AfterFunc callbacks whose deadline has been
// reached fire synchronously, in deadline order, before Advance returns.
type MockClock struct {
	mu      sync.Mutex
	now     time.Time
	pending []*mockTimer
}

// NewMockClock creates a MockClock starting at the given time.
func NewMockClock(start time.Time) *MockClock {
	return &MockClock{now: start}
}

// Now returns the mock's current time.
func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// AfterFunc registers f to run when the mock clock advances past d from now.
func (c *MockClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &mockTimer{clock: c, deadline: c.now.Add(d), fn: f}
	c.pending = append(c.pending, t)
	return t
}

// Advance moves the clock forward by d and fires due callbacks in order.
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	target := c.now

	var due []*mockTimer
	var rest []*mockTimer
	for _, t := range c.pending {
		if !t.stopped && !t.deadline.After(target) {
			due = append(due, t)
		} else {
			rest = append(rest, t)
		}
	}
	c.pending = rest
	sort.Slice(due, func(i, j int) bool { return due[i].deadline.Before(due[j].deadline) })
	c.mu.Unlock()

	for _, t := range due {
		t.fn()
	}
}

// PendingTimers returns the number of timers that have not fired or been stopped.
func (c *MockClock) PendingTimers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.pending {
		if !t.stopped {
			n++
		}
	}
	return n
}

type mockTimer struct {
	clock    *MockClock
	deadline time.Time
	fn       func()
	stopped  bool
}

func (t *mockTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped {
		return false
	}
	t.stopped = true
	return true
}
