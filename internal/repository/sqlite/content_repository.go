package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/stemsi/pisaprep/internal/model"
	"github.com/stemsi/pisaprep/internal/repository"
)

type contentRepository struct {
	db *sql.DB
}

// NewContentRepository creates a new ContentRepository backed by SQLite.
func NewContentRepository(db *sql.DB) repository.ContentRepository {
	return &contentRepository{db: db}
}

func (r *contentRepository) GetPack(ctx context.Context, packID string) (*model.ContentPack, error) {
	var (
		p           model.ContentPack
		durationMS  int64
		publishedAt int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, version, title, duration_ms, published_at FROM content_packs WHERE id = ?`, packID,
	).Scan(&p.ID, &p.Version, &p.Title, &durationMS, &publishedAt)
	if err != nil {
		return nil, notFound(err)
	}
	p.Duration = time.Duration(durationMS) * time.Millisecond
	p.PublishedAt = fromMillis(publishedAt)
	return &p, nil
}

func (r *contentRepository) ListQuestions(ctx context.Context, packID string, subject *string) ([]model.Question, error) {
	q := sqlBuilder.
		Select("id", "pack_id", "subject", "text_id", "prompt", "correct_option_id", "order_num").
		From("questions").
		Where(squirrel.Eq{"pack_id": packID}).
		OrderBy("order_num ASC", "id ASC")
	if subject != nil {
		q = q.Where(squirrel.Eq{"subject": *subject})
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	defer rows.Close()

	var questions []model.Question
	index := make(map[string]int)
	for rows.Next() {
		var qn model.Question
		if err := rows.Scan(&qn.ID, &qn.PackID, &qn.Subject, &qn.TextID, &qn.Prompt, &qn.CorrectOptionID, &qn.OrderNum); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		index[qn.ID] = len(questions)
		questions = append(questions, qn)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(questions) == 0 {
		return nil, nil
	}

	optRows, err := r.db.QueryContext(ctx, `
SELECT o.question_id, o.id, o.label, o.order_num
FROM options o
JOIN questions q ON q.id = o.question_id
WHERE q.pack_id = ?
ORDER BY o.question_id, o.order_num, o.id
`, packID)
	if err != nil {
		return nil, fmt.Errorf("list options: %w", err)
	}
	defer optRows.Close()

	for optRows.Next() {
		var (
			questionID string
			o          model.Option
		)
		if err := optRows.Scan(&questionID, &o.ID, &o.Label, &o.OrderNum); err != nil {
			return nil, fmt.Errorf("scan option: %w", err)
		}
		if i, ok := index[questionID]; ok {
			questions[i].Options = append(questions[i].Options, o)
		}
	}
	return questions, optRows.Err()
}

func (r *contentRepository) SavePack(ctx context.Context, pack model.ContentPack, questions []model.Question) error {
	return tx(ctx, r.db, func(t *sql.Tx) error {
		_, err := t.ExecContext(ctx, `
INSERT INTO content_packs (id, version, title, duration_ms, published_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    version      = excluded.version,
    title        = excluded.title,
    duration_ms  = excluded.duration_ms,
    published_at = excluded.published_at
`, pack.ID, pack.Version, pack.Title, pack.Duration.Milliseconds(), toMillis(pack.PublishedAt))
		if err != nil {
			return fmt.Errorf("save pack: %w", err)
		}

		// Options cascade with their questions.
		if _, err := t.ExecContext(ctx, `DELETE FROM questions WHERE pack_id = ?`, pack.ID); err != nil {
			return fmt.Errorf("clear questions: %w", err)
		}

		for _, q := range questions {
			_, err := t.ExecContext(ctx, `
INSERT INTO questions (id, pack_id, subject, text_id, prompt, correct_option_id, order_num)
VALUES (?, ?, ?, ?, ?, ?, ?)
`, q.ID, pack.ID, q.Subject, q.TextID, q.Prompt, q.CorrectOptionID, q.OrderNum)
			if err != nil {
				return fmt.Errorf("insert question %s: %w", q.ID, err)
			}
			for _, o := range q.Options {
				_, err := t.ExecContext(ctx,
					`INSERT INTO options (id, question_id, label, order_num) VALUES (?, ?, ?, ?)`,
					o.ID, q.ID, o.Label, o.OrderNum)
				if err != nil {
					return fmt.Errorf("insert option %s/%s: %w", q.ID, o.ID, err)
				}
			}
		}
		return nil
	})
}
