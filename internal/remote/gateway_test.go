package remote_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/pisaprep/internal/config"
	"github.com/stemsi/pisaprep/internal/model"
	"github.com/stemsi/pisaprep/internal/remote"
	"github.com/stemsi/pisaprep/internal/testutil"
	"github.com/stemsi/pisaprep/internal/testutil/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// recordingStore wraps a MemoryStore and remembers the size of every Get.
type recordingStore struct {
	*remote.MemoryStore
	mu       sync.Mutex
	getSizes []int
}

func (s *recordingStore) Get(ctx context.Context, collection string, ids []string) ([]remote.Document, error) {
	s.mu.Lock()
	s.getSizes = append(s.getSizes, len(ids))
	s.mu.Unlock()
	return s.MemoryStore.Get(ctx, collection, ids)
}

func newGateway(store remote.DocumentStore, rdb *redis.Client) *remote.Gateway {
	return remote.NewGateway(store, rdb, remote.GatewayConfig{ChunkSize: 10, MetaTTL: time.Minute}, zerolog.Nop())
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func decode(t *testing.T, raw json.RawMessage) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestFetchByIDs_ChunksAndKeepsInputOrder(t *testing.T) {
	ctx := context.Background()
	store := &recordingStore{MemoryStore: remote.NewMemoryStore()}
	in := ids(23)
	var writes []remote.DocumentWrite
	for _, id := range in {
		writes = append(writes, remote.DocumentWrite{Collection: remote.CollectionQuestions, ID: id, Data: map[string]any{"prompt": id}})
	}
	require.NoError(t, store.Merge(ctx, writes))

	// Ask in reverse order, with one id that does not exist.
	want := make([]string, 0, len(in))
	for i := len(in) - 1; i >= 0; i-- {
		want = append(want, in[i])
	}
	query := append([]string{"missing"}, want...)

	docs, err := newGateway(store, nil).FetchByIDs(ctx, remote.CollectionQuestions, query)
	require.NoError(t, err)

	got := make([]string, 0, len(docs))
	for _, d := range docs {
		got = append(got, d.ID)
	}
	assert.Equal(t, want, got)
	assert.ElementsMatch(t, []int{10, 10, 4}, store.getSizes)
}

func TestFetchByIDs_Empty(t *testing.T) {
	store := &recordingStore{MemoryStore: remote.NewMemoryStore()}
	docs, err := newGateway(store, nil).FetchByIDs(context.Background(), remote.CollectionQuestions, nil)
	require.NoError(t, err)
	assert.Empty(t, docs)
	assert.Empty(t, store.getSizes)
}

func TestFetchByIDs_PropagatesTransportError(t *testing.T) {
	store := new(mocks.MockDocumentStore)
	store.On("Get", mock.Anything, remote.CollectionQuestions, mock.Anything).Return(nil, errors.New("unreachable"))

	_, err := newGateway(store, nil).FetchByIDs(context.Background(), remote.CollectionQuestions, ids(3))
	assert.Error(t, err)
}

func TestPushAttempt_MergesWithoutRemovingRemoteFields(t *testing.T) {
	ctx := context.Background()
	store := remote.NewMemoryStore()
	gw := newGateway(store, nil)

	// Server-side validation wrote a field this device never sends.
	require.NoError(t, store.Merge(ctx, []remote.DocumentWrite{
		{Collection: remote.CollectionAttempts, ID: "att-1", Data: map[string]any{"validatedScore": 3}},
		{Collection: remote.CollectionAttemptAnswers, ID: "att-1", Data: map[string]any{"q-remote": map[string]any{"optionId": "x"}}},
	}))

	a := *testutil.FinishedAttempt("att-1", "owner-1", "pack-1", model.AttemptStatusCompleted, 2)
	answers := []model.Answer{
		{AttemptID: "att-1", QuestionID: "q1", OptionID: "a", Correct: true, TimeSpent: 6 * time.Second, AnsweredAt: testutil.Epoch},
		{AttemptID: "att-1", QuestionID: "q2", OptionID: "b", Correct: true, TimeSpent: 7 * time.Second, AnsweredAt: testutil.Epoch},
	}
	require.True(t, gw.PushAttempt(ctx, a, answers))
	// Pushing twice is harmless.
	require.True(t, gw.PushAttempt(ctx, a, answers))

	docs, err := store.Get(ctx, remote.CollectionAttempts, []string{"att-1"})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	attempt := decode(t, docs[0].Data)
	assert.Equal(t, "COMPLETED", attempt["status"])
	assert.EqualValues(t, 2, attempt["score"])
	assert.EqualValues(t, 3, attempt["validatedScore"])

	docs, err = store.Get(ctx, remote.CollectionAttemptAnswers, []string{"att-1"})
	require.NoError(t, err)
	set := decode(t, docs[0].Data)
	assert.Len(t, set, 3)
	assert.Contains(t, set, "q-remote")
	assert.EqualValues(t, 7000, set["q2"].(map[string]any)["timeSpentMs"])
}

func TestPushes_ConvertTransportFailuresToFalse(t *testing.T) {
	ctx := context.Background()
	a := *testutil.FinishedAttempt("att-1", "owner-1", "pack-1", model.AttemptStatusCompleted, 2)
	p := model.Profile{OwnerID: "owner-1", UpdatedAt: testutil.Epoch}

	failing := new(mocks.MockDocumentStore)
	failing.On("Merge", mock.Anything, mock.Anything).Return(errors.New("permission denied"))
	failing.On("Ping", mock.Anything).Return(errors.New("network unreachable"))
	gw := newGateway(failing, nil)
	assert.False(t, gw.PushAttempt(ctx, a, nil))
	assert.False(t, gw.PushProfile(ctx, p))
	assert.False(t, gw.Online(ctx))

	panicking := new(mocks.MockDocumentStore)
	panicking.On("Merge", mock.Anything, mock.Anything).Panic("driver bug")
	assert.NotPanics(t, func() {
		assert.False(t, newGateway(panicking, nil).PushProfile(ctx, p))
	})
}

func TestFetchProfile(t *testing.T) {
	ctx := context.Background()
	store := remote.NewMemoryStore()
	gw := newGateway(store, nil)

	missing, err := gw.FetchProfile(ctx, "owner-1")
	require.NoError(t, err)
	assert.Nil(t, missing)

	p := model.Profile{OwnerID: "owner-1", Currency: 5, UpdatedAt: testutil.Epoch}
	require.True(t, gw.PushProfile(ctx, p))

	got, err := gw.FetchProfile(ctx, "owner-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, testutil.Epoch.Equal(got.UpdatedAt))
}

func TestFetchCurrentContentMeta_CachesInRedis(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newRedis(t)

	store := new(mocks.MockDocumentStore)
	raw, err := json.Marshal(model.ContentMeta{PackID: "pack-7", Version: 3, QuestionIDs: []string{"q1", "q2"}})
	require.NoError(t, err)
	store.On("Get", mock.Anything, remote.CollectionContentMeta, []string{remote.CurrentContentMetaID}).
		Return([]remote.Document{{Collection: remote.CollectionContentMeta, ID: remote.CurrentContentMetaID, Data: raw}}, nil).
		Once()

	gw := newGateway(store, rdb)
	meta, err := gw.FetchCurrentContentMeta(ctx)
	require.NoError(t, err)
	assert.Equal(t, "pack-7", meta.PackID)

	again, err := gw.FetchCurrentContentMeta(ctx)
	require.NoError(t, err)
	assert.Equal(t, meta, again)
	store.AssertNumberOfCalls(t, "Get", 1)

	assert.True(t, mr.Exists(config.CacheKey.ContentMetaKey()))
	assert.Greater(t, mr.TTL(config.CacheKey.ContentMetaKey()), time.Duration(0))
}

func TestFetchCurrentContentMeta_RedisDownFallsBackToStore(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newRedis(t)
	mr.Close()

	store := remote.NewMemoryStore()
	require.NoError(t, store.Merge(ctx, []remote.DocumentWrite{{
		Collection: remote.CollectionContentMeta,
		ID:         remote.CurrentContentMetaID,
		Data:       map[string]any{"packId": "pack-1", "version": 2},
	}}))

	meta, err := newGateway(store, rdb).FetchCurrentContentMeta(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, meta.Version)
}

func TestFetchCurrentContentMeta_Missing(t *testing.T) {
	_, err := newGateway(remote.NewMemoryStore(), nil).FetchCurrentContentMeta(context.Background())
	assert.ErrorIs(t, err, remote.ErrNotFound)
}
