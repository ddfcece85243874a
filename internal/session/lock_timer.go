package session

import (
	"time"

	"github.com/stemsi/pisaprep/internal/clock"
)

// LockTimer gates option selection until the owner has spent a minimum
// dwell time on the current question. It reads the monotonic clock only.
// Not safe for concurrent use; the controller serializes access.
type LockTimer struct {
	clk     clock.Clock
	delay   time.Duration
	armedAt time.Duration
}

// NewLockTimer returns an armed timer.
func NewLockTimer(clk clock.Clock, delay time.Duration) *LockTimer {
	return &LockTimer{clk: clk, delay: delay, armedAt: clk.Monotonic()}
}

// Arm restarts the countdown.
func (l *LockTimer) Arm() {
	l.armedAt = l.clk.Monotonic()
}

// Remaining returns the time left before selection unlocks, never negative.
func (l *LockTimer) Remaining() time.Duration {
	left := l.delay - (l.clk.Monotonic() - l.armedAt)
	if left < 0 {
		return 0
	}
	return left
}

func (l *LockTimer) Unlocked() bool {
	return l.Remaining() == 0
}
