// Package clock separates the wall clock (what gets persisted) from the
// monotonic clock (what measures elapsed time inside one process).
package clock

import "time"

// Clock is the time source injected into timing-sensitive components.
type Clock interface {
	// Now returns the wall-clock time. It may jump when the device clock is
	// adjusted and is only used for values that are persisted.
	Now() time.Time
	// Monotonic returns the time elapsed since the clock was created. It never
	// goes backwards and ignores wall-clock adjustments.
	Monotonic() time.Duration
	// NewTicker returns a ticker firing every d on this clock.
	NewTicker(d time.Duration) Ticker
}

// Ticker is the subset of time.Ticker the session loop needs.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type realClock struct {
	origin time.Time
}

// Real returns a Clock backed by the time package.
func Real() Clock {
	return &realClock{origin: time.Now()}
}

func (c *realClock) Now() time.Time {
	return time.Now()
}

// Monotonic relies on time.Since using the monotonic reading captured in origin.
func (c *realClock) Monotonic() time.Duration {
	return time.Since(c.origin)
}

func (c *realClock) NewTicker(d time.Duration) Ticker {
	return &realTicker{t: time.NewTicker(d)}
}

type realTicker struct {
	t *time.Ticker
}

func (t *realTicker) C() <-chan time.Time { return t.t.C }
func (t *realTicker) Stop()               { t.t.Stop() }
