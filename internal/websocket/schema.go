package websocket

import "github.com/stemsi/pisaprep/internal/session"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionSelect         Action = "select"
	ActionNext           Action = "next"
	ActionPrev           Action = "prev"
	ActionSubmit         Action = "submit"
	ActionVisibilityLost Action = "visibility_lost"
	ActionDismissWarning Action = "dismiss_warning"
	ActionPing           Action = "ping"
)

// Request is every client message. OptionID is only read for select.
type Request struct {
	Action   Action `json:"action"`
	OptionID string `json:"option_id,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventSnapshot Event = "snapshot"
	EventAck      Event = "ack"
	EventError    Event = "error"
	EventPong     Event = "pong"
)

// SnapshotEvent is pushed whenever the session state changes.
type SnapshotEvent struct {
	Event   Event            `json:"event"`
	Session session.Snapshot `json:"session"`
}

// AckEvent answers an action. Accepted is false when the engine ignored it,
// e.g. a selection inside the lock window.
type AckEvent struct {
	Event    Event  `json:"event"`
	Action   Action `json:"action"`
	Accepted bool   `json:"accepted"`
	Verdict  string `json:"verdict,omitempty"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Code  string `json:"code"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
