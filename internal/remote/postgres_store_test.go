package remote_test

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/pisaprep/internal/remote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Runs against a migrated database only when REMOTE_TEST_DATABASE_URL is set.
func TestPostgresStore_MergeKeepsExistingKeys(t *testing.T) {
	url := os.Getenv("REMOTE_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("REMOTE_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	require.NoError(t, err)
	defer pool.Close()

	store := remote.NewPostgresStore(pool)
	require.NoError(t, store.Ping(ctx))

	id := t.Name()
	_, err = pool.Exec(ctx, `DELETE FROM documents WHERE collection = $1 AND id = $2`, remote.CollectionAttempts, id)
	require.NoError(t, err)

	require.NoError(t, store.Merge(ctx, []remote.DocumentWrite{{Collection: remote.CollectionAttempts, ID: id, Data: map[string]any{"a": 1, "b": 1}}}))
	require.NoError(t, store.Merge(ctx, []remote.DocumentWrite{{Collection: remote.CollectionAttempts, ID: id, Data: map[string]any{"b": 2}}}))

	docs, err := store.Get(ctx, remote.CollectionAttempts, []string{id, "nope"})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.JSONEq(t, `{"a": 1, "b": 2}`, string(docs[0].Data))
}
