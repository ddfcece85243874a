package session

import (
	"time"

	"github.com/stemsi/pisaprep/internal/model"
)

// Score counts correct answers in a full ledger snapshot.
func Score(answers []model.Answer) int {
	n := 0
	for _, a := range answers {
		if a.Correct {
			n++
		}
	}
	return n
}

// Summary is the post-hoc review of an attempt.
type Summary struct {
	Total     int           `json:"total"`
	Answered  int           `json:"answered"`
	Correct   int           `json:"correct"`
	TimeSpent time.Duration `json:"time_spent"`
}

// Summarize counts answers against the attempt's question set. Answers to
// questions no longer in the set still count towards Correct, matching Score.
func Summarize(questions []model.Question, answers []model.Answer) Summary {
	s := Summary{Total: len(questions), Answered: len(answers), Correct: Score(answers)}
	for _, a := range answers {
		s.TimeSpent += a.TimeSpent
	}
	return s
}

// ResumeRemaining is the exam time left for an attempt started at startedAt,
// clamped to [0, duration]. A wall clock behind startedAt yields duration.
func ResumeRemaining(duration time.Duration, startedAt, now time.Time) time.Duration {
	left := duration - now.Sub(startedAt)
	if left < 0 {
		return 0
	}
	if left > duration {
		return duration
	}
	return left
}
