package session

import (
	"context"

	"github.com/stemsi/pisaprep/internal/model"
)

// RewardNotifier is told once per attempt that ended without a cheat
// cancellation. Errors are logged and never undo the finish.
type RewardNotifier interface {
	AttemptCompleted(ctx context.Context, c model.Completion) error
}

// RewardNotifierFunc adapts a function to RewardNotifier.
type RewardNotifierFunc func(ctx context.Context, c model.Completion) error

func (f RewardNotifierFunc) AttemptCompleted(ctx context.Context, c model.Completion) error {
	return f(ctx, c)
}
