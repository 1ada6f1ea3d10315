// Package clock abstracts time so the timer-driven retry scheduling can run
// against a deterministic clock in tests.
package clock

import "time"

// Clock is the slice of the time package the pipeline needs: reading the
// current time and scheduling callbacks.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
	// AfterFunc runs f in its own goroutine once d has elapsed.
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a pending AfterFunc callback.
type Timer interface {
	// Stop cancels the callback. It reports false when the callback already
	// fired or was stopped before.
	Stop() bool
}

// RealClock delegates to the time package.
type RealClock struct{}

func NewRealClock() *RealClock { return &RealClock{} }

func (c *RealClock) Now() time.Time { return time.Now() }

func (c *RealClock) AfterFunc(d time.Duration, f func()) Timer {
	return realTimer{time.AfterFunc(d, f)}
}

type realTimer struct {
	t *time.Timer
}

func (rt realTimer) Stop() bool { return rt.t.Stop() }
