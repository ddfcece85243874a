package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stemsi/pisaprep/internal/clock"
	"github.com/stemsi/pisaprep/internal/config"
	"github.com/stemsi/pisaprep/internal/model"
	"github.com/stemsi/pisaprep/internal/repository"
	"github.com/stemsi/pisaprep/internal/repository/sqlite"
	"github.com/stemsi/pisaprep/internal/service"
	"github.com/stemsi/pisaprep/internal/session"
	"github.com/stemsi/pisaprep/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthService_IssueAndValidate(t *testing.T) {
	auth := service.NewAuthService(&config.Config{JWTSecret: "test-secret"})

	token, err := auth.IssueToken("owner-1", time.Hour)
	require.NoError(t, err)

	claims, err := auth.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "owner-1", claims.OwnerID)
	assert.Equal(t, "owner-1", claims.Subject)
	assert.NotEmpty(t, claims.ID)
}

func TestAuthService_RejectsBadTokens(t *testing.T) {
	auth := service.NewAuthService(&config.Config{JWTSecret: "test-secret"})
	other := service.NewAuthService(&config.Config{JWTSecret: "other-secret"})

	foreign, err := other.IssueToken("owner-1", time.Hour)
	require.NoError(t, err)
	_, err = auth.ValidateToken(foreign)
	assert.ErrorIs(t, err, service.ErrInvalidToken)

	expired, err := auth.IssueToken("owner-1", -time.Minute)
	require.NoError(t, err)
	_, err = auth.ValidateToken(expired)
	assert.ErrorIs(t, err, service.ErrTokenExpired)

	_, err = auth.ValidateToken("not-a-jwt")
	assert.ErrorIs(t, err, service.ErrInvalidToken)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, service.Claims{OwnerID: "owner-1"})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = auth.ValidateToken(unsigned)
	assert.ErrorIs(t, err, service.ErrInvalidToken)

	_, err = auth.IssueToken("", time.Hour)
	assert.Error(t, err)
}

func TestRewardPolicy_Grant(t *testing.T) {
	policy := service.RewardPolicy{XPPerCorrect: 10, CurrencyPerCorrect: 2}

	assert.Equal(t, model.Grant{Currency: 14, Experience: 70}, policy.Grant(model.Completion{Score: 7}))
	assert.Equal(t, model.Grant{}, policy.Grant(model.Completion{Score: 0}))
}

func newRewardService(t *testing.T, onGrant func(context.Context)) (*service.RewardService, repository.ProfileRepository) {
	db := testutil.NewTestDB(t)
	svc := service.NewRewardService(
		sqlite.NewRewardRepository(db),
		service.RewardPolicy{XPPerCorrect: 10, CurrencyPerCorrect: 1},
		clock.NewFake(testutil.Epoch),
		onGrant,
		zerolog.Nop(),
	)
	return svc, sqlite.NewProfileRepository(db)
}

func TestRewardService_GrantsOncePerAttempt(t *testing.T) {
	ctx := context.Background()
	grants := 0
	svc, profiles := newRewardService(t, func(context.Context) { grants++ })

	c := model.Completion{AttemptID: "att-1", OwnerID: "owner-1", Score: 3, Status: model.AttemptStatusAutoSubmit}
	require.NoError(t, svc.AttemptCompleted(ctx, c))
	require.NoError(t, svc.AttemptCompleted(ctx, c))

	p, err := profiles.Get(ctx, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, int64(30), p.Experience)
	assert.Equal(t, int64(3), p.Currency)
	assert.Equal(t, 1, grants)
}

func TestRewardService_RejectsCheatCancellation(t *testing.T) {
	ctx := context.Background()
	svc, profiles := newRewardService(t, nil)

	err := svc.AttemptCompleted(ctx, model.Completion{AttemptID: "att-1", OwnerID: "owner-1", Score: 5, Status: model.AttemptStatusCancelledCheat})
	assert.Error(t, err)

	_, err = profiles.Get(ctx, "owner-1")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

// busyRewards fails the first Record call the way a locked database would.
type busyRewards struct {
	repository.RewardRepository
	failures int
}

func (r *busyRewards) Record(ctx context.Context, c model.Completion, grant model.Grant, now time.Time) (bool, error) {
	if r.failures > 0 {
		r.failures--
		return false, errors.New("database is locked")
	}
	return r.RewardRepository.Record(ctx, c, grant, now)
}

func TestRewardService_RedeliversFailedNotification(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewTestDB(t)
	clk := clock.NewFake(testutil.Epoch)
	questions := testutil.SeedPack(t, db, "pack-1", 2)

	rewards := &busyRewards{RewardRepository: sqlite.NewRewardRepository(db), failures: 1}
	grants := 0
	svc := service.NewRewardService(rewards, service.RewardPolicy{XPPerCorrect: 10, CurrencyPerCorrect: 1}, clk, func(context.Context) { grants++ }, zerolog.Nop())

	ctrl := session.NewController(session.Config{
		OwnerID:      "owner-1",
		Duration:     30 * time.Minute,
		TickInterval: time.Second,
	}, session.Repositories{
		Attempts: sqlite.NewAttemptRepository(db),
		Answers:  sqlite.NewAnswerRepository(db),
		Content:  sqlite.NewContentRepository(db),
	}, svc, clk, zerolog.Nop())
	t.Cleanup(ctrl.Close)

	_, err := ctrl.Start(ctx, "pack-1", nil)
	require.NoError(t, err)
	accepted, err := ctrl.SelectOption(ctx, questions[0].CorrectOptionID)
	require.NoError(t, err)
	require.True(t, accepted)

	snap, err := ctrl.SubmitNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.AttemptStatusCompleted, snap.Status)

	profiles := sqlite.NewProfileRepository(db)
	_, err = profiles.Get(ctx, "owner-1")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	granted, err := svc.Redeliver(ctx, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, 1, granted)

	p, err := profiles.Get(ctx, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), p.Experience)
	assert.Equal(t, int64(1), p.Currency)

	task := service.NewRewardRedelivery(svc, "owner-1")
	assert.Equal(t, "reward_redelivery", task.Name())
	require.NoError(t, task.Execute(ctx))

	p, err = profiles.Get(ctx, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), p.Experience)
	assert.Zero(t, grants)
}

func TestProfileService_GetAndSelectCosmetic(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewTestDB(t)
	clk := clock.NewFake(testutil.Epoch)
	svc := service.NewProfileService(sqlite.NewProfileRepository(db), clk)

	p, err := svc.Get(ctx, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, "owner-1", p.OwnerID)
	assert.Empty(t, p.CosmeticID)
	assert.Equal(t, model.SyncStatePending, p.SyncState)

	clk.Advance(time.Minute)
	p, err = svc.SelectCosmetic(ctx, "owner-1", "hat-red")
	require.NoError(t, err)
	assert.Equal(t, "hat-red", p.CosmeticID)
	assert.True(t, testutil.Epoch.Add(time.Minute).Equal(p.UpdatedAt))

	p, err = svc.SelectCosmetic(ctx, "owner-2", "hat-blue")
	require.NoError(t, err)
	assert.Equal(t, "hat-blue", p.CosmeticID)
}
