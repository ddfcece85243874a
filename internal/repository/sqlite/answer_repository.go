package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/stemsi/pisaprep/internal/model"
	"github.com/stemsi/pisaprep/internal/repository"
)

type answerRepository struct {
	db *sql.DB
}

// NewAnswerRepository creates the SQLite-backed answer ledger.
func NewAnswerRepository(db *sql.DB) repository.AnswerRepository {
	return &answerRepository{db: db}
}

// Upsert creates or replaces the answer for (attempt, question) in one statement.
func (r *answerRepository) Upsert(ctx context.Context, a model.Answer) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO answers (attempt_id, question_id, option_id, correct, time_spent_ms, answered_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (attempt_id, question_id) DO UPDATE SET
    option_id     = excluded.option_id,
    correct       = excluded.correct,
    time_spent_ms = excluded.time_spent_ms,
    answered_at   = excluded.answered_at
`, a.AttemptID, a.QuestionID, a.OptionID, a.Correct, a.TimeSpent.Milliseconds(), toMillis(a.AnsweredAt))
	if err != nil {
		return fmt.Errorf("upsert answer: %w", err)
	}
	return nil
}

func (r *answerRepository) ListByAttempt(ctx context.Context, attemptID string) ([]model.Answer, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT attempt_id, question_id, option_id, correct, time_spent_ms, answered_at
FROM answers
WHERE attempt_id = ?
`, attemptID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	defer rows.Close()

	var answers []model.Answer
	for rows.Next() {
		var (
			a          model.Answer
			spentMS    int64
			answeredAt int64
		)
		if err := rows.Scan(&a.AttemptID, &a.QuestionID, &a.OptionID, &a.Correct, &spentMS, &answeredAt); err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		a.TimeSpent = time.Duration(spentMS) * time.Millisecond
		a.AnsweredAt = fromMillis(answeredAt)
		answers = append(answers, a)
	}
	return answers, rows.Err()
}
