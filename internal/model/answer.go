package model

import "time"

// Answer is one ledger entry, unique per (AttemptID, QuestionID).
// Correct is computed at write time against the question's correct option.
type Answer struct {
	AttemptID  string        `json:"attempt_id"`
	QuestionID string        `json:"question_id"`
	OptionID   string        `json:"option_id"`
	Correct    bool          `json:"correct"`
	TimeSpent  time.Duration `json:"time_spent"`
	AnsweredAt time.Time     `json:"answered_at"`
}
