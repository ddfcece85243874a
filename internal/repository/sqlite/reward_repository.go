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

type rewardRepository struct {
	db *sql.DB
}

// NewRewardRepository creates a new RewardRepository backed by SQLite.
func NewRewardRepository(db *sql.DB) repository.RewardRepository {
	return &rewardRepository{db: db}
}

// Record inserts the reward event and bumps the profile in one transaction.
// A second call for the same attempt is silently ignored.
func (r *rewardRepository) Record(ctx context.Context, c model.Completion, grant model.Grant, now time.Time) (bool, error) {
	applied := false
	err := tx(ctx, r.db, func(t *sql.Tx) error {
		res, err := t.ExecContext(ctx, `
INSERT INTO reward_events (attempt_id, owner_id, score, status, currency, experience, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (attempt_id) DO NOTHING
`, c.AttemptID, c.OwnerID, c.Score, c.Status, grant.Currency, grant.Experience, toMillis(now))
		if err != nil {
			return fmt.Errorf("insert reward event: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}

		_, err = t.ExecContext(ctx, `
INSERT INTO profiles (owner_id, currency, experience, updated_at, sync_state)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (owner_id) DO UPDATE SET
    currency   = profiles.currency + excluded.currency,
    experience = profiles.experience + excluded.experience,
    updated_at = excluded.updated_at,
    sync_state = excluded.sync_state,
    revision   = profiles.revision + 1
`, c.OwnerID, grant.Currency, grant.Experience, toMillis(now), model.SyncStatePending)
		if err != nil {
			return fmt.Errorf("apply grant: %w", err)
		}
		applied = true
		return nil
	})
	return applied, err
}

func (r *rewardRepository) ListUnrewarded(ctx context.Context, ownerID string, limit int) ([]model.Completion, error) {
	q := sqlBuilder.Select("a.id", "a.owner_id", "a.score", "a.status").
		From("attempts a").
		LeftJoin("reward_events e ON e.attempt_id = a.id").
		Where(squirrel.Eq{
			"a.owner_id": ownerID,
			"a.status":   []string{string(model.AttemptStatusCompleted), string(model.AttemptStatusAutoSubmit)},
		}).
		Where("e.attempt_id IS NULL").
		OrderBy("a.finished_at ASC", "a.id ASC")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list unrewarded attempts: %w", err)
	}
	defer rows.Close()

	var out []model.Completion
	for rows.Next() {
		var c model.Completion
		if err := rows.Scan(&c.AttemptID, &c.OwnerID, &c.Score, &c.Status); err != nil {
			return nil, fmt.Errorf("scan completion: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
