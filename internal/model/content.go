package model

import (
	"time"
)

// ContentPack is a periodically published set of questions.
type ContentPack struct {
	ID          string        `json:"id"`
	Version     int           `json:"version"`
	Title       string        `json:"title"`
	Duration    time.Duration `json:"duration"`
	PublishedAt time.Time     `json:"published_at"`
}

// Question is a single multiple-choice item of a pack.
type Question struct {
	ID              string   `json:"id"`
	PackID          string   `json:"pack_id"`
	Subject         string   `json:"subject"`
	TextID          string   `json:"text_id,omitempty"`
	Prompt          string   `json:"prompt"`
	CorrectOptionID string   `json:"correct_option_id"`
	OrderNum        int      `json:"order_num"`
	Options         []Option `json:"options"`
}

// HasOption reports whether optionID belongs to the question.
func (q *Question) HasOption(optionID string) bool {
	for _, o := range q.Options {
		if o.ID == optionID {
			return true
		}
	}
	return false
}

// Option is one selectable answer of a question.
type Option struct {
	ID       string `json:"id"`
	Label    string `json:"label"`
	OrderNum int    `json:"order_num"`
}

// QuestionForOwner is a question without the correct option, as shown during a session.
type QuestionForOwner struct {
	ID       string   `json:"id"`
	Subject  string   `json:"subject"`
	TextID   string   `json:"text_id,omitempty"`
	Prompt   string   `json:"prompt"`
	OrderNum int      `json:"order_num"`
	Options  []Option `json:"options"`
}

// ForOwner strips the correct option.
func (q *Question) ForOwner() QuestionForOwner {
	return QuestionForOwner{
		ID:       q.ID,
		Subject:  q.Subject,
		TextID:   q.TextID,
		Prompt:   q.Prompt,
		OrderNum: q.OrderNum,
		Options:  q.Options,
	}
}

// ContentMeta describes the currently published pack on the remote store.
type ContentMeta struct {
	PackID          string    `json:"packId"`
	Version         int       `json:"version"`
	Title           string    `json:"title"`
	DurationMinutes int       `json:"durationMinutes"`
	QuestionIDs     []string  `json:"questionIds"`
	PublishedAt     time.Time `json:"publishedAt"`
}

// StartSessionRequest is the payload for starting (or resuming) a session.
type StartSessionRequest struct {
	PackID  string  `json:"pack_id" binding:"required,min=1,max=64,identifier"`
	Subject *string `json:"subject" binding:"omitempty,min=1,max=64,identifier"`
}

// SelectOptionRequest is the payload for answering the current question.
type SelectOptionRequest struct {
	OptionID string `json:"option_id" binding:"required,min=1,max=64,identifier"`
}
