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

var attemptColumns = []string{
	"id", "owner_id", "pack_id", "subject", "started_at", "finished_at", "duration_ms",
	"status", "score", "validated_score", "origin", "sync_state", "visibility_losses", "updated_at",
}

var terminalStatuses = []string{
	string(model.AttemptStatusCompleted),
	string(model.AttemptStatusAutoSubmit),
	string(model.AttemptStatusCancelledCheat),
}

type attemptRepository struct {
	db *sql.DB
}

// NewAttemptRepository creates a new AttemptRepository backed by SQLite.
func NewAttemptRepository(db *sql.DB) repository.AttemptRepository {
	return &attemptRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttempt(row rowScanner) (*model.Attempt, error) {
	var (
		a              model.Attempt
		subject        sql.NullString
		startedAt      int64
		finishedAt     sql.NullInt64
		durationMS     int64
		validatedScore sql.NullInt64
		updatedAt      int64
	)
	err := row.Scan(&a.ID, &a.OwnerID, &a.PackID, &subject, &startedAt, &finishedAt, &durationMS,
		&a.Status, &a.Score, &validatedScore, &a.Origin, &a.SyncState, &a.VisibilityLosses, &updatedAt)
	if err != nil {
		return nil, err
	}
	if subject.Valid {
		s := subject.String
		a.Subject = &s
	}
	a.StartedAt = fromMillis(startedAt)
	if finishedAt.Valid {
		t := fromMillis(finishedAt.Int64)
		a.FinishedAt = &t
	}
	a.Duration = time.Duration(durationMS) * time.Millisecond
	if validatedScore.Valid {
		v := int(validatedScore.Int64)
		a.ValidatedScore = &v
	}
	a.UpdatedAt = fromMillis(updatedAt)
	return &a, nil
}

func (r *attemptRepository) Create(ctx context.Context, a *model.Attempt) error {
	var validated sql.NullInt64
	if a.ValidatedScore != nil {
		validated = sql.NullInt64{Int64: int64(*a.ValidatedScore), Valid: true}
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO attempts (id, owner_id, pack_id, subject, started_at, finished_at, duration_ms,
                      status, score, validated_score, origin, sync_state, visibility_losses, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		a.ID, a.OwnerID, a.PackID, nullString(a.Subject), toMillis(a.StartedAt), nullMillis(a.FinishedAt),
		a.Duration.Milliseconds(), a.Status, a.Score, validated, a.Origin, a.SyncState,
		a.VisibilityLosses, toMillis(a.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("insert attempt: %w", err)
	}
	return nil
}

func (r *attemptRepository) Get(ctx context.Context, id string) (*model.Attempt, error) {
	query, args, err := sqlBuilder.Select(attemptColumns...).From("attempts").
		Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, err
	}
	a, err := scanAttempt(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, notFound(err)
	}
	return a, nil
}

func (r *attemptRepository) GetInProgress(ctx context.Context, ownerID, packID string) (*model.Attempt, error) {
	query, args, err := sqlBuilder.Select(attemptColumns...).From("attempts").
		Where(squirrel.Eq{
			"owner_id": ownerID,
			"pack_id":  packID,
			"status":   string(model.AttemptStatusInProgress),
		}).ToSql()
	if err != nil {
		return nil, err
	}
	a, err := scanAttempt(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, notFound(err)
	}
	return a, nil
}

func (r *attemptRepository) Finish(ctx context.Context, id string, status model.AttemptStatus, finishedAt time.Time, score int) (bool, error) {
	if !status.IsTerminal() {
		return false, fmt.Errorf("finish attempt: %s is not a terminal status", status)
	}
	res, err := r.db.ExecContext(ctx, `
UPDATE attempts
SET status = ?, finished_at = ?, score = ?, sync_state = ?, updated_at = ?
WHERE id = ? AND status = ?
`, status, toMillis(finishedAt), score, model.SyncStatePending, toMillis(finishedAt),
		id, model.AttemptStatusInProgress)
	if err != nil {
		return false, fmt.Errorf("finish attempt: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("finish attempt: %w", err)
	}
	return n == 1, nil
}

func (r *attemptRepository) UpdateVisibilityLosses(ctx context.Context, id string, n int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE attempts SET visibility_losses = ? WHERE id = ? AND status = ?`,
		n, id, model.AttemptStatusInProgress)
	if err != nil {
		return fmt.Errorf("update visibility losses: %w", err)
	}
	return nil
}

func (r *attemptRepository) List(ctx context.Context, filter repository.AttemptFilter) ([]model.Attempt, error) {
	q := applyAttemptFilter(sqlBuilder.Select(attemptColumns...).From("attempts"), filter).
		OrderBy("started_at DESC", "id DESC")
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}
	return r.query(ctx, q)
}

func (r *attemptRepository) Count(ctx context.Context, filter repository.AttemptFilter) (int, error) {
	query, args, err := applyAttemptFilter(sqlBuilder.Select("COUNT(*)").From("attempts"), filter).ToSql()
	if err != nil {
		return 0, err
	}
	var n int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count attempts: %w", err)
	}
	return n, nil
}

func applyAttemptFilter(q squirrel.SelectBuilder, filter repository.AttemptFilter) squirrel.SelectBuilder {
	if filter.OwnerID != "" {
		q = q.Where(squirrel.Eq{"owner_id": filter.OwnerID})
	}
	if filter.PackID != "" {
		q = q.Where(squirrel.Eq{"pack_id": filter.PackID})
	}
	if len(filter.Status) > 0 {
		q = q.Where(squirrel.Eq{"status": statusStrings(filter.Status)})
	}
	return q
}

func (r *attemptRepository) ListPendingSync(ctx context.Context, limit int) ([]model.Attempt, error) {
	q := sqlBuilder.Select(attemptColumns...).From("attempts").
		Where(squirrel.Eq{
			"status":     terminalStatuses,
			"sync_state": []string{string(model.SyncStatePending), string(model.SyncStateFailed)},
		}).
		OrderBy("finished_at ASC")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	return r.query(ctx, q)
}

func (r *attemptRepository) UpdateSyncState(ctx context.Context, id string, state model.SyncState) error {
	_, err := r.db.ExecContext(ctx, `UPDATE attempts SET sync_state = ? WHERE id = ?`, state, id)
	if err != nil {
		return fmt.Errorf("update attempt sync state: %w", err)
	}
	return nil
}

func (r *attemptRepository) query(ctx context.Context, q squirrel.SelectBuilder) ([]model.Attempt, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	var attempts []model.Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		attempts = append(attempts, *a)
	}
	return attempts, rows.Err()
}
