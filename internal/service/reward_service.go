package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/stemsi/pisaprep/internal/clock"
	"github.com/stemsi/pisaprep/internal/model"
	"github.com/stemsi/pisaprep/internal/repository"
)

const redeliveryBatchSize = 100

// RewardPolicy maps a score to a grant.
type RewardPolicy struct {
	XPPerCorrect       int64
	CurrencyPerCorrect int64
}

// Grant computes the reward for a completion.
func (p RewardPolicy) Grant(c model.Completion) model.Grant {
	score := int64(max(c.Score, 0))
	return model.Grant{
		Currency:   score * p.CurrencyPerCorrect,
		Experience: score * p.XPPerCorrect,
	}
}

// RewardService applies grants for completed attempts. It satisfies
// session.RewardNotifier.
type RewardService struct {
	rewards repository.RewardRepository
	policy  RewardPolicy
	clk     clock.Clock
	onGrant func(ctx context.Context)
	log     zerolog.Logger
}

// NewRewardService creates a new RewardService. onGrant, when non-nil, runs
// after a grant was applied; the agent uses it to request a sync.
func NewRewardService(rewards repository.RewardRepository, policy RewardPolicy, clk clock.Clock, onGrant func(ctx context.Context), log zerolog.Logger) *RewardService {
	return &RewardService{
		rewards: rewards,
		policy:  policy,
		clk:     clk,
		onGrant: onGrant,
		log:     log.With().Str("component", "reward_service").Logger(),
	}
}

// AttemptCompleted grants the reward once per attempt id. Cheat
// cancellations never reach here but are rejected anyway.
func (s *RewardService) AttemptCompleted(ctx context.Context, c model.Completion) error {
	applied, err := s.grant(ctx, c)
	if err != nil {
		return err
	}
	if applied && s.onGrant != nil {
		s.onGrant(ctx)
	}
	return nil
}

// Redeliver grants every finished attempt of ownerID whose notification was
// lost, for example because the store was busy when the attempt ended. It
// returns how many grants were applied.
func (s *RewardService) Redeliver(ctx context.Context, ownerID string) (int, error) {
	pending, err := s.rewards.ListUnrewarded(ctx, ownerID, redeliveryBatchSize)
	if err != nil {
		return 0, fmt.Errorf("list unrewarded attempts: %w", err)
	}

	granted := 0
	for _, c := range pending {
		applied, err := s.grant(ctx, c)
		if err != nil {
			return granted, err
		}
		if applied {
			granted++
		}
	}
	if granted > 0 {
		s.log.Info().Str("owner_id", ownerID).Int("granted", granted).Msg("Redelivered rewards")
	}
	return granted, nil
}

func (s *RewardService) grant(ctx context.Context, c model.Completion) (bool, error) {
	if c.Status == model.AttemptStatusCancelledCheat || !c.Status.IsTerminal() {
		return false, fmt.Errorf("attempt %s is not rewardable (%s)", c.AttemptID, c.Status)
	}

	grant := s.policy.Grant(c)
	applied, err := s.rewards.Record(ctx, c, grant, s.clk.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("record reward: %w", err)
	}
	if !applied {
		s.log.Debug().Str("attempt_id", c.AttemptID).Msg("Reward already granted")
		return false, nil
	}

	s.log.Info().
		Str("attempt_id", c.AttemptID).
		Str("owner_id", c.OwnerID).
		Int64("experience", grant.Experience).
		Int64("currency", grant.Currency).
		Msg("Reward granted")
	return true, nil
}

// RewardRedelivery is the scheduled task form of RewardService.Redeliver.
type RewardRedelivery struct {
	svc     *RewardService
	ownerID string
}

// NewRewardRedelivery creates the task for ownerID.
func NewRewardRedelivery(svc *RewardService, ownerID string) *RewardRedelivery {
	return &RewardRedelivery{svc: svc, ownerID: ownerID}
}

func (t *RewardRedelivery) Name() string { return "reward_redelivery" }

func (t *RewardRedelivery) Execute(ctx context.Context) error {
	_, err := t.svc.Redeliver(ctx, t.ownerID)
	return err
}
