package interfaces

import "time"

// Clock abstracts wall-clock reads and the periodic-tick primitive so the
// countdown subsystem can be driven deterministically in tests.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that fires once after d elapses.
	After(d time.Duration) <-chan time.Time
}

// SystemClock is the real-time Clock used in production.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
