// Package reconcile pushes locally recorded mutations to the remote store.
//
// Attempts and their answers are merge-never-delete: a push only sets fields.
// The profile is last-writer-wins on its own mutation timestamp. Remote
// failures mark the entity FAILED and are retried on the next run; they never
// reach the exam session.
package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/stemsi/pisaprep/internal/metrics"
	"github.com/stemsi/pisaprep/internal/model"
	"github.com/stemsi/pisaprep/internal/repository"
)

// ErrRetry is returned by Execute when nothing could be synced.
var ErrRetry = errors.New("sync incomplete, retry later")

// Gateway is the part of the remote gateway the reconciler uses.
type Gateway interface {
	FetchProfile(ctx context.Context, ownerID string) (*model.RemoteProfile, error)
	PushAttempt(ctx context.Context, a model.Attempt, answers []model.Answer) bool
	PushProfile(ctx context.Context, p model.Profile) bool
}

// Outcome is the job-level verdict of one run.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeRetry   Outcome = "retry"
)

// Result counts what one run did.
type Result struct {
	AttemptsSynced int `json:"attempts_synced"`
	AttemptsFailed int `json:"attempts_failed"`
	// ProfilesSynced counts profiles pushed to the remote store.
	ProfilesSynced int `json:"profiles_synced"`
	// ProfilesSkipped counts profiles that lost the timestamp race. They are
	// marked SYNCED without a remote write.
	ProfilesSkipped int `json:"profiles_skipped"`
	ProfilesFailed  int `json:"profiles_failed"`
}

// Pending is the number of entities the run found to push.
func (r Result) Pending() int {
	return r.AttemptsSynced + r.AttemptsFailed + r.ProfilesSynced + r.ProfilesSkipped + r.ProfilesFailed
}

// Synced is the number of entities that ended SYNCED.
func (r Result) Synced() int {
	return r.AttemptsSynced + r.ProfilesSynced + r.ProfilesSkipped
}

// Outcome is success when at least one entity synced or nothing was pending.
func (r Result) Outcome() Outcome {
	if r.Synced() > 0 || r.Pending() == 0 {
		return OutcomeSuccess
	}
	return OutcomeRetry
}

// Reconciler runs one sync pass per call. It only reads terminal attempts,
// so it can run while a session is active.
type Reconciler struct {
	attempts  repository.AttemptRepository
	answers   repository.AnswerRepository
	profiles  repository.ProfileRepository
	gw        Gateway
	batchSize int
	log       zerolog.Logger
}

// NewReconciler creates a reconciler. batchSize caps the attempts pushed per
// run; zero means no cap.
func NewReconciler(
	attempts repository.AttemptRepository,
	answers repository.AnswerRepository,
	profiles repository.ProfileRepository,
	gw Gateway,
	batchSize int,
	log zerolog.Logger,
) *Reconciler {
	return &Reconciler{
		attempts:  attempts,
		answers:   answers,
		profiles:  profiles,
		gw:        gw,
		batchSize: batchSize,
		log:       log.With().Str("component", "reconciler").Logger(),
	}
}

// Name identifies the task to the scheduler.
func (r *Reconciler) Name() string { return "sync" }

// Execute runs one pass and reports ErrRetry when the outcome is retry.
func (r *Reconciler) Execute(ctx context.Context) error {
	res, err := r.Run(ctx)
	if err != nil {
		return err
	}
	if res.Outcome() == OutcomeRetry {
		return ErrRetry
	}
	return nil
}

// Run pushes pending attempts then pending profiles. Errors are returned only
// for local storage failures while listing work.
func (r *Reconciler) Run(ctx context.Context) (Result, error) {
	var res Result

	pending, err := r.attempts.ListPendingSync(ctx, r.batchSize)
	if err != nil {
		return res, fmt.Errorf("list pending attempts: %w", err)
	}
	for _, a := range pending {
		if r.syncAttempt(ctx, a) {
			res.AttemptsSynced++
		} else {
			res.AttemptsFailed++
		}
	}

	profiles, err := r.profiles.ListPendingSync(ctx)
	if err != nil {
		return res, fmt.Errorf("list pending profiles: %w", err)
	}
	for _, p := range profiles {
		switch r.syncProfile(ctx, p) {
		case profilePushed:
			res.ProfilesSynced++
		case profileSkipped:
			res.ProfilesSkipped++
		default:
			res.ProfilesFailed++
		}
	}

	metrics.SyncEntities.WithLabelValues("attempt", "synced").Add(float64(res.AttemptsSynced))
	metrics.SyncEntities.WithLabelValues("attempt", "failed").Add(float64(res.AttemptsFailed))
	metrics.SyncEntities.WithLabelValues("profile", "synced").Add(float64(res.ProfilesSynced))
	metrics.SyncEntities.WithLabelValues("profile", "skipped").Add(float64(res.ProfilesSkipped))
	metrics.SyncEntities.WithLabelValues("profile", "failed").Add(float64(res.ProfilesFailed))

	r.log.Info().
		Int("attempts_synced", res.AttemptsSynced).
		Int("attempts_failed", res.AttemptsFailed).
		Int("profiles_synced", res.ProfilesSynced).
		Int("profiles_skipped", res.ProfilesSkipped).
		Int("profiles_failed", res.ProfilesFailed).
		Str("outcome", string(res.Outcome())).
		Msg("sync run finished")

	return res, nil
}

func (r *Reconciler) syncAttempt(ctx context.Context, a model.Attempt) bool {
	if !a.Status.IsTerminal() {
		// Never push a running attempt.
		return false
	}
	log := r.log.With().Str("attempt_id", a.ID).Logger()

	answers, err := r.answers.ListByAttempt(ctx, a.ID)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load answers")
		r.mark(ctx, a.ID, model.SyncStateFailed)
		return false
	}

	if !r.gw.PushAttempt(ctx, a, answers) {
		r.mark(ctx, a.ID, model.SyncStateFailed)
		return false
	}
	return r.mark(ctx, a.ID, model.SyncStateSynced)
}

func (r *Reconciler) mark(ctx context.Context, id string, state model.SyncState) bool {
	if err := r.attempts.UpdateSyncState(ctx, id, state); err != nil {
		r.log.Error().Err(err).Str("attempt_id", id).Str("state", string(state)).Msg("Failed to update sync state")
		return false
	}
	return true
}

type profileResult int

const (
	profileFailed profileResult = iota
	profilePushed
	profileSkipped
)

// syncProfile applies last-writer-wins. The remote read and the push are not
// atomic; a second device writing between them can be overwritten.
func (r *Reconciler) syncProfile(ctx context.Context, p model.Profile) profileResult {
	log := r.log.With().Str("owner_id", p.OwnerID).Logger()

	remote, err := r.gw.FetchProfile(ctx, p.OwnerID)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read remote profile")
		r.markProfileFailed(ctx, p)
		return profileFailed
	}

	result := profileSkipped
	if remote == nil || !p.UpdatedAt.Before(remote.UpdatedAt) {
		if !r.gw.PushProfile(ctx, p) {
			r.markProfileFailed(ctx, p)
			return profileFailed
		}
		result = profilePushed
	} else {
		log.Debug().
			Time("local_updated_at", p.UpdatedAt).
			Time("remote_updated_at", remote.UpdatedAt).
			Msg("Remote profile is newer, skipping push")
	}

	marked, err := r.profiles.MarkSynced(ctx, p.OwnerID, p.Revision)
	if err != nil {
		log.Error().Err(err).Msg("Failed to mark profile synced")
		return profileFailed
	}
	if !marked {
		log.Debug().Msg("Profile changed during sync, left pending")
	}
	return result
}

func (r *Reconciler) markProfileFailed(ctx context.Context, p model.Profile) {
	if err := r.profiles.MarkFailed(ctx, p.OwnerID, p.Revision); err != nil {
		r.log.Error().Err(err).Str("owner_id", p.OwnerID).Msg("Failed to mark profile failed")
	}
}
