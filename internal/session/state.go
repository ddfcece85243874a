package session

import (
	"encoding/json"
	"time"

	"github.com/stemsi/pisaprep/internal/model"
)

// Stage is the controller's position in Start -> InProgress -> Finished.
type Stage string

const (
	StageStart      Stage = "START"
	StageInProgress Stage = "IN_PROGRESS"
	StageFinished   Stage = "FINISHED"
)

// Snapshot is a read-only copy of the controller state.
type Snapshot struct {
	Stage            Stage                   `json:"stage"`
	AttemptID        string                  `json:"attempt_id,omitempty"`
	PackID           string                  `json:"pack_id,omitempty"`
	Remaining        time.Duration           `json:"-"`
	LockRemaining    time.Duration           `json:"-"`
	Index            int                     `json:"index"`
	Total            int                     `json:"total"`
	Question         *model.QuestionForOwner `json:"question,omitempty"`
	Answers          map[string]string       `json:"answers"`
	Warning          bool                    `json:"warning"`
	VisibilityLosses int                     `json:"visibility_losses"`
	Status           model.AttemptStatus     `json:"status,omitempty"`
	Score            *int                    `json:"score,omitempty"`
}

// MarshalJSON renders durations as milliseconds.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	type alias Snapshot
	return json.Marshal(struct {
		alias
		RemainingMS     int64 `json:"remaining_ms"`
		LockRemainingMS int64 `json:"lock_remaining_ms"`
	}{
		alias:           alias(s),
		RemainingMS:     s.Remaining.Milliseconds(),
		LockRemainingMS: s.LockRemaining.Milliseconds(),
	})
}

// Result is the post-hoc review of one attempt.
type Result struct {
	Attempt model.Attempt  `json:"attempt"`
	Answers []model.Answer `json:"answers"`
	Summary Summary        `json:"summary"`
}
