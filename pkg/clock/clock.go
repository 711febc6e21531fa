package clock

import "time"

// Timer is a handle to a pending single-shot callback.
type Timer interface {
	// Stop prevents the callback from firing. It returns false if the timer
	// already fired or was stopped.
	Stop() bool
}

// Clock abstracts wall time and single-shot timers so that timing-driven
// components can be driven deterministically in tests.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// RealClock implements Clock on top of the time package.
type RealClock struct{}

// New returns a Clock backed by the system clock.
func New() Clock {
	return RealClock{}
}

// Now returns the current local time.
func (RealClock) Now() time.Time {
	return time.Now()
}

// AfterFunc calls f in its own goroutine after d has elapsed.
func (RealClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
