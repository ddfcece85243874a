package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/stemsi/pisaprep/internal/model"
	"github.com/stemsi/pisaprep/internal/repository"
)

type profileRepository struct {
	db *sql.DB
}

// NewProfileRepository creates a new ProfileRepository backed by SQLite.
func NewProfileRepository(db *sql.DB) repository.ProfileRepository {
	return &profileRepository{db: db}
}

const profileColumns = `owner_id, currency, experience, cosmetic_id, updated_at, sync_state, revision`

func scanProfile(row rowScanner) (*model.Profile, error) {
	var (
		p         model.Profile
		updatedAt int64
	)
	if err := row.Scan(&p.OwnerID, &p.Currency, &p.Experience, &p.CosmeticID, &updatedAt, &p.SyncState, &p.Revision); err != nil {
		return nil, err
	}
	p.UpdatedAt = fromMillis(updatedAt)
	return &p, nil
}

func (r *profileRepository) Get(ctx context.Context, ownerID string) (*model.Profile, error) {
	p, err := scanProfile(r.db.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE owner_id = ?`, ownerID))
	if err != nil {
		return nil, notFound(err)
	}
	return p, nil
}

func (r *profileRepository) Ensure(ctx context.Context, ownerID string, now time.Time) (*model.Profile, error) {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO profiles (owner_id, updated_at, sync_state)
VALUES (?, ?, ?)
ON CONFLICT (owner_id) DO NOTHING
`, ownerID, toMillis(now), model.SyncStatePending)
	if err != nil {
		return nil, fmt.Errorf("ensure profile: %w", err)
	}
	return r.Get(ctx, ownerID)
}

func (r *profileRepository) SetCosmetic(ctx context.Context, ownerID, cosmeticID string, now time.Time) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE profiles SET cosmetic_id = ?, updated_at = ?, sync_state = ?, revision = revision + 1
WHERE owner_id = ?
`, cosmeticID, toMillis(now), model.SyncStatePending, ownerID)
	if err != nil {
		return fmt.Errorf("set cosmetic: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *profileRepository) ListPendingSync(ctx context.Context) ([]model.Profile, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE sync_state IN (?, ?) ORDER BY owner_id`,
		model.SyncStatePending, model.SyncStateFailed)
	if err != nil {
		return nil, fmt.Errorf("list pending profiles: %w", err)
	}
	defer rows.Close()

	var profiles []model.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		profiles = append(profiles, *p)
	}
	return profiles, rows.Err()
}

func (r *profileRepository) MarkSynced(ctx context.Context, ownerID string, seenRevision int64) (bool, error) {
	return r.markIfUnchanged(ctx, ownerID, seenRevision, model.SyncStateSynced)
}

func (r *profileRepository) MarkFailed(ctx context.Context, ownerID string, seenRevision int64) error {
	_, err := r.markIfUnchanged(ctx, ownerID, seenRevision, model.SyncStateFailed)
	return err
}

// markIfUnchanged is a compare-and-set on revision: a mutation that landed
// after the reconciler read the profile keeps the row PENDING, even within
// the same millisecond.
func (r *profileRepository) markIfUnchanged(ctx context.Context, ownerID string, seen int64, state model.SyncState) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
UPDATE profiles SET sync_state = ?
WHERE owner_id = ? AND revision = ?
`, state, ownerID, seen)
	if err != nil {
		return false, fmt.Errorf("mark profile %s: %w", state, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark profile %s: %w", state, err)
	}
	return n == 1, nil
}
