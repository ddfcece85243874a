package content_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stemsi/pisaprep/internal/content"
	"github.com/stemsi/pisaprep/internal/remote"
	"github.com/stemsi/pisaprep/internal/repository/sqlite"
	"github.com/stemsi/pisaprep/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishWrites_RefreshesIntoEmptyDevice(t *testing.T) {
	ctx := context.Background()
	pack, questions := testutil.SamplePack("pack-9", 12)

	writes, err := content.PublishWrites(pack, questions)
	require.NoError(t, err)
	require.Len(t, writes, 13)
	assert.Equal(t, remote.CollectionContentMeta, writes[12].Collection)

	store := remote.NewMemoryStore()
	require.NoError(t, store.Merge(ctx, writes))
	gw := remote.NewGateway(store, nil, remote.GatewayConfig{}, zerolog.Nop())

	repo := sqlite.NewContentRepository(testutil.NewTestDB(t))
	require.NoError(t, content.NewRefresher(gw, repo, zerolog.Nop()).Execute(ctx))

	got, err := repo.GetPack(ctx, "pack-9")
	require.NoError(t, err)
	assert.Equal(t, pack.Version, got.Version)
	assert.Equal(t, pack.Duration, got.Duration)

	stored, err := repo.ListQuestions(ctx, "pack-9", nil)
	require.NoError(t, err)
	assert.Equal(t, questions, stored)
}
