package sqlite_test

import (
	"context"
	"testing"

	"github.com/stemsi/pisaprep/internal/repository"
	"github.com/stemsi/pisaprep/internal/repository/sqlite"
	"github.com/stemsi/pisaprep/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentRepository_SaveAndList(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewTestDB(t)
	repo := sqlite.NewContentRepository(db)
	testutil.SeedPack(t, db, "pack-1", 5)

	pack, err := repo.GetPack(ctx, "pack-1")
	require.NoError(t, err)
	assert.Equal(t, 1, pack.Version)

	all, err := repo.ListQuestions(ctx, "pack-1", nil)
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, "pack-1-q01", all[0].ID)
	assert.Equal(t, "pack-1-q05", all[4].ID)
	require.Len(t, all[0].Options, 4)
	assert.Equal(t, "a", all[0].Options[0].ID)
	assert.Equal(t, "a", all[0].CorrectOptionID)

	reading := "reading"
	subset, err := repo.ListQuestions(ctx, "pack-1", &reading)
	require.NoError(t, err)
	require.Len(t, subset, 2)
	assert.Equal(t, "pack-1-q02", subset[0].ID)
	assert.Equal(t, "pack-1-q04", subset[1].ID)
}

func TestContentRepository_SaveReplacesQuestions(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewTestDB(t)
	repo := sqlite.NewContentRepository(db)
	testutil.SeedPack(t, db, "pack-1", 5)

	pack, questions := testutil.SamplePack("pack-1", 2)
	pack.Version = 2
	require.NoError(t, repo.SavePack(ctx, pack, questions))

	got, err := repo.GetPack(ctx, "pack-1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Version)

	list, err := repo.ListQuestions(ctx, "pack-1", nil)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestContentRepository_Missing(t *testing.T) {
	ctx := context.Background()
	repo := sqlite.NewContentRepository(testutil.NewTestDB(t))

	_, err := repo.GetPack(ctx, "nope")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	list, err := repo.ListQuestions(ctx, "nope", nil)
	require.NoError(t, err)
	assert.Empty(t, list)
}
