package model

import (
	"time"
)

// AttemptStatus enumerates attempt lifecycle states.
type AttemptStatus string

const (
	AttemptStatusInProgress     AttemptStatus = "IN_PROGRESS"
	AttemptStatusCompleted      AttemptStatus = "COMPLETED"
	AttemptStatusAutoSubmit     AttemptStatus = "AUTO_SUBMIT"
	AttemptStatusCancelledCheat AttemptStatus = "CANCELLED_CHEAT"
)

// IsTerminal reports whether the status ends an attempt.
func (s AttemptStatus) IsTerminal() bool {
	switch s {
	case AttemptStatusCompleted, AttemptStatusAutoSubmit, AttemptStatusCancelledCheat:
		return true
	}
	return false
}

// Valid reports whether s is a known status.
func (s AttemptStatus) Valid() bool {
	return s == AttemptStatusInProgress || s.IsTerminal()
}

// Origin records whether an attempt was started with or without connectivity.
type Origin string

const (
	OriginOffline Origin = "OFFLINE"
	OriginOnline  Origin = "ONLINE"
)

// Attempt is one timed exam session instance for one owner/pack pair.
type Attempt struct {
	ID               string        `json:"id"`
	OwnerID          string        `json:"owner_id"`
	PackID           string        `json:"pack_id"`
	Subject          *string       `json:"subject,omitempty"`
	StartedAt        time.Time     `json:"started_at"`
	FinishedAt       *time.Time    `json:"finished_at,omitempty"`
	Duration         time.Duration `json:"duration"`
	Status           AttemptStatus `json:"status"`
	Score            int           `json:"score"`
	ValidatedScore   *int          `json:"validated_score,omitempty"`
	Origin           Origin        `json:"origin"`
	SyncState        SyncState     `json:"sync_state"`
	VisibilityLosses int           `json:"visibility_losses"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// Completion is the notification handed to the reward collaborator when an
// attempt ends without a cheat cancellation.
type Completion struct {
	AttemptID string        `json:"attempt_id"`
	OwnerID   string        `json:"owner_id"`
	Score     int           `json:"score"`
	Status    AttemptStatus `json:"status"`
}
