// Package timer implements the deadline-tracking abstraction ServerCore uses
// for its four cooperating timers (idle, disconnect, connect, frame). It
// deliberately does not run its own goroutine: the core is single-threaded
// and cooperative, so timers are polled from the same dispatch loop that
// drives everything else, the same way the desktop's frame clock is polled.
package timer

import "time"

// Timer tracks a single deadline relative to a caller-supplied clock. It has
// no background goroutine; callers must poll Expired(now) from their own
// event loop and call Stop/Repeat/Start in response.
type Timer struct {
	started  bool
	deadline time.Time
}

// Start arms the timer to expire after d, measured from now.
func (t *Timer) Start(now time.Time, d time.Duration) {
	t.started = true
	t.deadline = now.Add(d)
}

// Stop disarms the timer. Remaining/Expired report zero/false until Start or
// Repeat rearms it.
func (t *Timer) Stop() {
	t.started = false
}

// Repeat reschedules the timer d after its previous deadline rather than
// after now, so a sequence of Repeat calls doesn't accumulate drift from the
// time spent doing work between polls. The timer must already be started.
func (t *Timer) Repeat(d time.Duration) {
	t.deadline = t.deadline.Add(d)
}

// IsStarted reports whether the timer is currently armed.
func (t *Timer) IsStarted() bool {
	return t.started
}

// Remaining returns how long until the timer expires, relative to now. It is
// zero or negative once the deadline has passed, and zero for a disarmed
// timer.
func (t *Timer) Remaining(now time.Time) time.Duration {
	if !t.started {
		return 0
	}
	return t.deadline.Sub(now)
}

// Expired reports whether the timer is armed and its deadline is at or
// before now.
func (t *Timer) Expired(now time.Time) bool {
	return t.started && !now.Before(t.deadline)
}
