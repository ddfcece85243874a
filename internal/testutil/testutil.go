package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stemsi/pisaprep/internal/model"
	"github.com/stemsi/pisaprep/internal/repository/sqlite"
	"github.com/stretchr/testify/require"
)

// Epoch is a millisecond-aligned reference time for tests.
var Epoch = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

// NewTestDB creates an in-memory SQLite database with all migrations applied.
func NewTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// MustClose closes a resource and fails the test on error.
func MustClose(t *testing.T, closer interface{ Close() error }) {
	require.NoError(t, closer.Close())
}

// SamplePack builds a pack with n questions. Every question has options
// "a" through "d" and "a" is correct. Even-numbered questions are "math",
// odd-numbered ones "reading".
func SamplePack(packID string, n int) (model.ContentPack, []model.Question) {
	pack := model.ContentPack{
		ID:          packID,
		Version:     1,
		Title:       "Pack " + packID,
		Duration:    120 * time.Minute,
		PublishedAt: Epoch,
	}
	questions := make([]model.Question, 0, n)
	for i := 0; i < n; i++ {
		subject := "math"
		if i%2 == 1 {
			subject = "reading"
		}
		questions = append(questions, model.Question{
			ID:              fmt.Sprintf("%s-q%02d", packID, i+1),
			PackID:          packID,
			Subject:         subject,
			Prompt:          fmt.Sprintf("Question %d", i+1),
			CorrectOptionID: "a",
			OrderNum:        i + 1,
			Options: []model.Option{
				{ID: "a", Label: "A", OrderNum: 1},
				{ID: "b", Label: "B", OrderNum: 2},
				{ID: "c", Label: "C", OrderNum: 3},
				{ID: "d", Label: "D", OrderNum: 4},
			},
		})
	}
	return pack, questions
}

// SeedPack stores a SamplePack in db and returns its questions.
func SeedPack(t *testing.T, db *sql.DB, packID string, n int) []model.Question {
	t.Helper()
	pack, questions := SamplePack(packID, n)
	err := sqlite.NewContentRepository(db).SavePack(context.Background(), pack, questions)
	require.NoError(t, err)
	return questions
}

// FinishedAttempt returns a terminal attempt that still needs a push.
func FinishedAttempt(id, ownerID, packID string, status model.AttemptStatus, score int) *model.Attempt {
	finished := Epoch.Add(30 * time.Minute)
	return &model.Attempt{
		ID:         id,
		OwnerID:    ownerID,
		PackID:     packID,
		StartedAt:  Epoch,
		FinishedAt: &finished,
		Duration:   120 * time.Minute,
		Status:     status,
		Score:      score,
		Origin:     model.OriginOffline,
		SyncState:  model.SyncStatePending,
		UpdatedAt:  finished,
	}
}
