package clock

import (
	"sync"
	"time"
)

// Fake is a manually driven Clock for tests.
//
// Advance moves both the wall and the monotonic reading and fires every
// ticker whose deadline was crossed. SetWall moves only the wall clock, which
// is how a user changing the device time looks to the process.
//
// Thread-safety: all methods are safe for concurrent use.
type Fake struct {
	mu      sync.Mutex
	wall    time.Time
	mono    time.Duration
	tickers []*fakeTicker
}

// NewFake creates a fake clock whose wall time starts at start.
func NewFake(start time.Time) *Fake {
	return &Fake{wall: start}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.wall
}

func (f *Fake) Monotonic() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mono
}

// Advance moves the clock forward by d and fires due tickers.
// A ticker crossed several times in one call fires once, like time.Ticker
// dropping ticks for a slow receiver.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.wall = f.wall.Add(d)
	f.mono += d
	now := f.wall
	var due []*fakeTicker
	for _, t := range f.tickers {
		if t.stopped {
			continue
		}
		if f.mono >= t.next {
			for t.next <= f.mono {
				t.next += t.period
			}
			due = append(due, t)
		}
	}
	f.mu.Unlock()

	for _, t := range due {
		select {
		case t.ch <- now:
		default:
		}
	}
}

// SetWall jumps the wall clock without touching the monotonic reading.
func (f *Fake) SetWall(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.wall = t
}

func (f *Fake) NewTicker(d time.Duration) Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTicker{
		clock:  f,
		ch:     make(chan time.Time, 1),
		period: d,
		next:   f.mono + d,
	}
	f.tickers = append(f.tickers, t)
	return t
}

// ActiveTickers returns the number of tickers that have not been stopped.
func (f *Fake) ActiveTickers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, t := range f.tickers {
		if !t.stopped {
			n++
		}
	}
	return n
}

type fakeTicker struct {
	clock   *Fake
	ch      chan time.Time
	period  time.Duration
	next    time.Duration
	stopped bool
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }

func (t *fakeTicker) Stop() {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	t.stopped = true
}
