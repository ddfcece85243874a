package repository

import (
	"context"
	"errors"
	"time"

	"github.com/stemsi/pisaprep/internal/model"
)

// Storage errors shared by all implementations.
var (
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("record conflicts with an existing one")
)

// AttemptFilter narrows attempt listings.
type AttemptFilter struct {
	OwnerID string
	PackID  string
	Status  []model.AttemptStatus
	Limit   int
	Offset  int
}

// AttemptRepository persists attempts.
type AttemptRepository interface {
	// Create inserts a new attempt. It returns ErrConflict when the owner
	// already has an IN_PROGRESS attempt for the pack.
	Create(ctx context.Context, a *model.Attempt) error
	Get(ctx context.Context, id string) (*model.Attempt, error)
	GetInProgress(ctx context.Context, ownerID, packID string) (*model.Attempt, error)
	// Finish moves an IN_PROGRESS attempt to a terminal status. It reports
	// false when the attempt was no longer IN_PROGRESS.
	Finish(ctx context.Context, id string, status model.AttemptStatus, finishedAt time.Time, score int) (bool, error)
	UpdateVisibilityLosses(ctx context.Context, id string, n int) error
	List(ctx context.Context, filter AttemptFilter) ([]model.Attempt, error)
	// Count ignores Limit and Offset.
	Count(ctx context.Context, filter AttemptFilter) (int, error)
	// ListPendingSync returns terminal attempts whose sync state is PENDING or FAILED.
	ListPendingSync(ctx context.Context, limit int) ([]model.Attempt, error)
	UpdateSyncState(ctx context.Context, id string, state model.SyncState) error
}

// AnswerRepository is the answer ledger.
type AnswerRepository interface {
	// Upsert replaces any previous answer for (AttemptID, QuestionID).
	Upsert(ctx context.Context, a model.Answer) error
	// ListByAttempt returns a point-in-time snapshot. No ordering is guaranteed.
	ListByAttempt(ctx context.Context, attemptID string) ([]model.Answer, error)
}

// ProfileRepository persists the owner profile.
type ProfileRepository interface {
	Get(ctx context.Context, ownerID string) (*model.Profile, error)
	// Ensure returns the profile, creating an empty PENDING one if needed.
	Ensure(ctx context.Context, ownerID string, now time.Time) (*model.Profile, error)
	SetCosmetic(ctx context.Context, ownerID, cosmeticID string, now time.Time) error
	ListPendingSync(ctx context.Context) ([]model.Profile, error)
	// MarkSynced sets SYNCED only if the profile still carries seenRevision.
	// It reports false when a newer local mutation landed in between.
	MarkSynced(ctx context.Context, ownerID string, seenRevision int64) (bool, error)
	MarkFailed(ctx context.Context, ownerID string, seenRevision int64) error
}

// ContentRepository holds read-mostly pack reference data.
type ContentRepository interface {
	GetPack(ctx context.Context, packID string) (*model.ContentPack, error)
	// ListQuestions returns the pack's questions ordered by OrderNum,
	// optionally restricted to one subject.
	ListQuestions(ctx context.Context, packID string, subject *string) ([]model.Question, error)
	// SavePack replaces the pack and all of its questions.
	SavePack(ctx context.Context, pack model.ContentPack, questions []model.Question) error
}

// RewardRepository records reward grants.
type RewardRepository interface {
	// Record applies grant to the owner profile once per attempt. It reports
	// false when the attempt was already rewarded.
	Record(ctx context.Context, c model.Completion, grant model.Grant, now time.Time) (bool, error)
	// ListUnrewarded returns completions of finished, non-cheat attempts
	// that have no reward event yet, oldest first.
	ListUnrewarded(ctx context.Context, ownerID string, limit int) ([]model.Completion, error)
}
