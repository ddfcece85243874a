package session

// CheatThreshold is the visibility-loss count that cancels an attempt.
const CheatThreshold = 2

// Verdict is the monitor's reaction to one visibility loss.
type Verdict int

const (
	VerdictNone Verdict = iota
	VerdictWarn
	VerdictCancel
)

func (v Verdict) String() string {
	switch v {
	case VerdictWarn:
		return "warn"
	case VerdictCancel:
		return "cancel"
	default:
		return "none"
	}
}

// AntiCheatMonitor counts visibility losses for the current attempt.
// The count only ever grows until Reset starts a new attempt.
type AntiCheatMonitor struct {
	losses int
}

func (m *AntiCheatMonitor) Reset() {
	m.losses = 0
}

// Restore reloads a persisted count on resume.
func (m *AntiCheatMonitor) Restore(n int) {
	if n < 0 {
		n = 0
	}
	m.losses = n
}

func (m *AntiCheatMonitor) Losses() int {
	return m.losses
}

// VisibilityLost records a loss and decides what the session must do.
func (m *AntiCheatMonitor) VisibilityLost() Verdict {
	m.losses++
	if m.losses >= CheatThreshold {
		return VerdictCancel
	}
	return VerdictWarn
}
