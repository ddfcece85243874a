package sqlite_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stemsi/pisaprep/internal/model"
	"github.com/stemsi/pisaprep/internal/repository"
	"github.com/stemsi/pisaprep/internal/repository/sqlite"
	"github.com/stemsi/pisaprep/internal/testutil"
	"github.com/stretchr/testify/suite"
)

type AttemptRepositorySuite struct {
	suite.Suite
	db   *sql.DB
	repo repository.AttemptRepository
}

func (s *AttemptRepositorySuite) SetupTest() {
	s.db = testutil.NewTestDB(s.T())
	s.repo = sqlite.NewAttemptRepository(s.db)
}

func inProgress(id, owner, pack string) *model.Attempt {
	return &model.Attempt{
		ID:        id,
		OwnerID:   owner,
		PackID:    pack,
		StartedAt: testutil.Epoch,
		Duration:  90 * time.Minute,
		Status:    model.AttemptStatusInProgress,
		Origin:    model.OriginOffline,
		SyncState: model.SyncStatePending,
		UpdatedAt: testutil.Epoch,
	}
}

func (s *AttemptRepositorySuite) TestCreateAndGet() {
	ctx := context.Background()
	a := inProgress("att-1", "owner-1", "pack-1")
	subject := "math"
	a.Subject = &subject

	s.Require().NoError(s.repo.Create(ctx, a))

	got, err := s.repo.Get(ctx, "att-1")
	s.Require().NoError(err)
	s.Assert().Equal("owner-1", got.OwnerID)
	s.Assert().Equal(model.AttemptStatusInProgress, got.Status)
	s.Assert().Equal(90*time.Minute, got.Duration)
	s.Assert().True(testutil.Epoch.Equal(got.StartedAt))
	s.Assert().Nil(got.FinishedAt)
	s.Require().NotNil(got.Subject)
	s.Assert().Equal("math", *got.Subject)
}

func (s *AttemptRepositorySuite) TestGet_NotFound() {
	got, err := s.repo.Get(context.Background(), "missing")
	s.Assert().ErrorIs(err, repository.ErrNotFound)
	s.Assert().Nil(got)
}

func (s *AttemptRepositorySuite) TestCreate_SecondInProgressConflicts() {
	ctx := context.Background()
	s.Require().NoError(s.repo.Create(ctx, inProgress("att-1", "owner-1", "pack-1")))

	err := s.repo.Create(ctx, inProgress("att-2", "owner-1", "pack-1"))
	s.Assert().ErrorIs(err, repository.ErrConflict)

	// A different pack is fine.
	s.Assert().NoError(s.repo.Create(ctx, inProgress("att-3", "owner-1", "pack-2")))
}

func (s *AttemptRepositorySuite) TestFinish_OnlyOnce() {
	ctx := context.Background()
	s.Require().NoError(s.repo.Create(ctx, inProgress("att-1", "owner-1", "pack-1")))
	at := testutil.Epoch.Add(10 * time.Minute)

	won, err := s.repo.Finish(ctx, "att-1", model.AttemptStatusCompleted, at, 7)
	s.Require().NoError(err)
	s.Assert().True(won)

	won, err = s.repo.Finish(ctx, "att-1", model.AttemptStatusAutoSubmit, at.Add(time.Minute), 9)
	s.Require().NoError(err)
	s.Assert().False(won)

	got, err := s.repo.Get(ctx, "att-1")
	s.Require().NoError(err)
	s.Assert().Equal(model.AttemptStatusCompleted, got.Status)
	s.Assert().Equal(7, got.Score)
	s.Require().NotNil(got.FinishedAt)
	s.Assert().True(at.Equal(*got.FinishedAt))

	// The in-progress slot is free again.
	_, err = s.repo.GetInProgress(ctx, "owner-1", "pack-1")
	s.Assert().ErrorIs(err, repository.ErrNotFound)
	s.Assert().NoError(s.repo.Create(ctx, inProgress("att-2", "owner-1", "pack-1")))
}

func (s *AttemptRepositorySuite) TestFinish_RejectsNonTerminal() {
	_, err := s.repo.Finish(context.Background(), "att-1", model.AttemptStatusInProgress, testutil.Epoch, 0)
	s.Assert().Error(err)
}

func (s *AttemptRepositorySuite) TestUpdateVisibilityLosses() {
	ctx := context.Background()
	s.Require().NoError(s.repo.Create(ctx, inProgress("att-1", "owner-1", "pack-1")))
	s.Require().NoError(s.repo.UpdateVisibilityLosses(ctx, "att-1", 1))

	got, err := s.repo.GetInProgress(ctx, "owner-1", "pack-1")
	s.Require().NoError(err)
	s.Assert().Equal(1, got.VisibilityLosses)
}

func (s *AttemptRepositorySuite) TestListPendingSync_SkipsInProgressAndSynced() {
	ctx := context.Background()
	s.Require().NoError(s.repo.Create(ctx, inProgress("running", "owner-1", "pack-1")))
	s.Require().NoError(s.repo.Create(ctx, testutil.FinishedAttempt("done", "owner-1", "pack-2", model.AttemptStatusCompleted, 3)))
	s.Require().NoError(s.repo.Create(ctx, testutil.FinishedAttempt("cheat", "owner-1", "pack-3", model.AttemptStatusCancelledCheat, 1)))
	s.Require().NoError(s.repo.Create(ctx, testutil.FinishedAttempt("synced", "owner-1", "pack-4", model.AttemptStatusAutoSubmit, 2)))
	s.Require().NoError(s.repo.UpdateSyncState(ctx, "synced", model.SyncStateSynced))
	s.Require().NoError(s.repo.UpdateSyncState(ctx, "cheat", model.SyncStateFailed))

	pending, err := s.repo.ListPendingSync(ctx, 0)
	s.Require().NoError(err)

	ids := make([]string, 0, len(pending))
	for _, a := range pending {
		ids = append(ids, a.ID)
	}
	s.Assert().ElementsMatch([]string{"done", "cheat"}, ids)
}

func (s *AttemptRepositorySuite) TestList_Filter() {
	ctx := context.Background()
	s.Require().NoError(s.repo.Create(ctx, inProgress("a1", "owner-1", "pack-1")))
	s.Require().NoError(s.repo.Create(ctx, testutil.FinishedAttempt("a2", "owner-1", "pack-2", model.AttemptStatusCompleted, 3)))
	s.Require().NoError(s.repo.Create(ctx, testutil.FinishedAttempt("a3", "owner-2", "pack-2", model.AttemptStatusCompleted, 3)))

	list, err := s.repo.List(ctx, repository.AttemptFilter{
		OwnerID: "owner-1",
		Status:  []model.AttemptStatus{model.AttemptStatusCompleted},
	})
	s.Require().NoError(err)
	s.Require().Len(list, 1)
	s.Assert().Equal("a2", list[0].ID)

	all, err := s.repo.List(ctx, repository.AttemptFilter{OwnerID: "owner-1", Limit: 1})
	s.Require().NoError(err)
	s.Assert().Len(all, 1)

	next, err := s.repo.List(ctx, repository.AttemptFilter{OwnerID: "owner-1", Limit: 1, Offset: 1})
	s.Require().NoError(err)
	s.Require().Len(next, 1)
	s.Assert().NotEqual(all[0].ID, next[0].ID)

	n, err := s.repo.Count(ctx, repository.AttemptFilter{OwnerID: "owner-1", Limit: 1})
	s.Require().NoError(err)
	s.Assert().Equal(2, n)
}

func TestAttemptRepositorySuite(t *testing.T) {
	suite.Run(t, new(AttemptRepositorySuite))
}
