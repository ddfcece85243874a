// Package session implements the exam session engine, a resumable state
// machine over the local answer ledger.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/pisaprep/internal/clock"
	"github.com/stemsi/pisaprep/internal/metrics"
	"github.com/stemsi/pisaprep/internal/model"
	"github.com/stemsi/pisaprep/internal/repository"
)

// Config holds the controller's policy values.
type Config struct {
	OwnerID string
	// Duration is used when the pack does not carry its own duration.
	Duration     time.Duration
	LockDelay    time.Duration
	TickInterval time.Duration
	// Online reports connectivity at attempt creation. Nil means offline.
	Online func(ctx context.Context) bool
}

// Repositories are the local stores the controller reads and writes.
type Repositories struct {
	Attempts repository.AttemptRepository
	Answers  repository.AnswerRepository
	Content  repository.ContentRepository
}

// Controller drives at most one active attempt. Every exported method is
// safe for concurrent use; all state lives behind mu.
type Controller struct {
	cfg      Config
	repos    Repositories
	notifier RewardNotifier
	clk      clock.Clock
	log      zerolog.Logger

	mu        sync.Mutex
	closed    bool
	stage     Stage
	attempt   *model.Attempt
	questions []model.Question
	answers   map[string]model.Answer
	index     int
	shownAt   time.Duration
	deadline  time.Duration
	warning   bool
	lock      *LockTimer
	monitor   AntiCheatMonitor

	stopLoop context.CancelFunc
	loopDone chan struct{}

	subs map[chan Snapshot]struct{}
}

// NewController creates a controller in StageStart. notifier may be nil.
func NewController(cfg Config, repos Repositories, notifier RewardNotifier, clk clock.Clock, log zerolog.Logger) *Controller {
	return &Controller{
		cfg:      cfg,
		repos:    repos,
		notifier: notifier,
		clk:      clk,
		log:      log.With().Str("component", "session_controller").Logger(),
		stage:    StageStart,
		answers:  make(map[string]model.Answer),
		lock:     NewLockTimer(clk, cfg.LockDelay),
		subs:     make(map[chan Snapshot]struct{}),
	}
}

// Start begins a new attempt for packID, or resumes the owner's IN_PROGRESS
// attempt for that pack, whether it is held in memory or only in storage.
func (c *Controller) Start(ctx context.Context, packID string, subject *string) (Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return Snapshot{}, ErrClosed
	}
	if c.stage == StageInProgress {
		if c.attempt.PackID == packID {
			return c.snapshotLocked(), nil
		}
		return c.snapshotLocked(), ErrSessionActive
	}
	if c.stage == StageFinished {
		c.resetLocked()
	}

	existing, err := c.repos.Attempts.GetInProgress(ctx, c.cfg.OwnerID, packID)
	switch {
	case err == nil:
		return c.resumeLocked(ctx, existing)
	case !errors.Is(err, repository.ErrNotFound):
		return c.snapshotLocked(), fmt.Errorf("check in-progress attempt: %w", err)
	}

	questions, err := c.repos.Content.ListQuestions(ctx, packID, subject)
	if err != nil {
		return c.snapshotLocked(), fmt.Errorf("load questions: %w", err)
	}
	if len(questions) == 0 {
		return c.snapshotLocked(), ErrNoQuestions
	}

	duration := c.cfg.Duration
	if pack, err := c.repos.Content.GetPack(ctx, packID); err == nil && pack.Duration > 0 {
		duration = pack.Duration
	}

	origin := model.OriginOffline
	if c.cfg.Online != nil && c.cfg.Online(ctx) {
		origin = model.OriginOnline
	}

	now := c.clk.Now().UTC().Truncate(time.Millisecond)
	attempt := &model.Attempt{
		ID:        uuid.NewString(),
		OwnerID:   c.cfg.OwnerID,
		PackID:    packID,
		Subject:   subject,
		StartedAt: now,
		Duration:  duration,
		Status:    model.AttemptStatusInProgress,
		Origin:    origin,
		SyncState: model.SyncStatePending,
		UpdatedAt: now,
	}

	if err := c.repos.Attempts.Create(ctx, attempt); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			// Concurrent start from another process; resume the winner.
			existing, fetchErr := c.repos.Attempts.GetInProgress(ctx, c.cfg.OwnerID, packID)
			if fetchErr != nil {
				return c.snapshotLocked(), fmt.Errorf("concurrent start detected, but fetch failed: %w", fetchErr)
			}
			return c.resumeLocked(ctx, existing)
		}
		return c.snapshotLocked(), fmt.Errorf("create attempt: %w", err)
	}

	c.monitor.Reset()
	c.install(attempt, questions, nil, duration)

	c.log.Info().
		Str("attempt_id", attempt.ID).
		Str("pack_id", packID).
		Int("questions", len(questions)).
		Dur("duration", duration).
		Msg("attempt started")

	snap := c.snapshotLocked()
	c.publishLocked(snap)
	return snap, nil
}

// resumeLocked reattaches a stored IN_PROGRESS attempt. An attempt whose
// budget ran out while the process was down is auto-submitted immediately.
func (c *Controller) resumeLocked(ctx context.Context, a *model.Attempt) (Snapshot, error) {
	questions, err := c.repos.Content.ListQuestions(ctx, a.PackID, a.Subject)
	if err != nil {
		return c.snapshotLocked(), fmt.Errorf("load questions: %w", err)
	}
	if len(questions) == 0 {
		return c.snapshotLocked(), ErrNoQuestions
	}
	answers, err := c.repos.Answers.ListByAttempt(ctx, a.ID)
	if err != nil {
		return c.snapshotLocked(), fmt.Errorf("load answers: %w", err)
	}

	remaining := ResumeRemaining(a.Duration, a.StartedAt, c.clk.Now())
	c.monitor.Restore(a.VisibilityLosses)
	c.install(a, questions, answers, remaining)

	c.log.Info().
		Str("attempt_id", a.ID).
		Int("answers", len(answers)).
		Dur("remaining", remaining).
		Msg("attempt resumed")

	if remaining <= 0 {
		completion, err := c.finishLocked(ctx, model.AttemptStatusAutoSubmit)
		snap := c.snapshotLocked()
		if err != nil {
			return snap, err
		}
		c.publishLocked(snap)
		c.notifyAsync(completion)
		return snap, nil
	}

	snap := c.snapshotLocked()
	c.publishLocked(snap)
	return snap, nil
}

// resetLocked drops a finished attempt and returns to StageStart.
func (c *Controller) resetLocked() {
	c.stage = StageStart
	c.attempt = nil
	c.questions = nil
	c.answers = make(map[string]model.Answer)
	c.index = 0
	c.warning = false
	c.monitor.Reset()
}

// install makes a the active attempt with remaining exam time and starts the
// tick loop. The loop also runs when no time is left so that a failed
// auto-submit is retried on the next tick.
func (c *Controller) install(a *model.Attempt, questions []model.Question, answers []model.Answer, remaining time.Duration) {
	c.attempt = a
	c.questions = questions
	c.answers = make(map[string]model.Answer, len(answers))
	for _, ans := range answers {
		c.answers[ans.QuestionID] = ans
	}
	c.index = firstUnanswered(questions, c.answers)
	c.warning = false
	c.stage = StageInProgress

	mono := c.clk.Monotonic()
	c.deadline = mono + remaining
	c.shownAt = mono
	c.lock.Arm()

	c.startLoop(a.ID)
}

func firstUnanswered(questions []model.Question, answers map[string]model.Answer) int {
	for i, q := range questions {
		if _, ok := answers[q.ID]; !ok {
			return i
		}
	}
	return 0
}

func (c *Controller) startLoop(attemptID string) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.stopLoop = cancel
	c.loopDone = done

	ticker := c.clk.NewTicker(c.cfg.TickInterval)
	go func() {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C():
				if !c.tick(ctx, attemptID) {
					return
				}
			}
		}
	}()
}

// tick recomputes the remaining time and auto-submits at zero. It reports
// whether the loop should keep running.
func (c *Controller) tick(ctx context.Context, attemptID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stage != StageInProgress || c.attempt == nil || c.attempt.ID != attemptID {
		return false
	}
	if c.remainingLocked() > 0 {
		c.publishLocked(c.snapshotLocked())
		return true
	}

	// finishLocked cancels ctx; the writes must outlive it.
	completion, err := c.finishLocked(context.WithoutCancel(ctx), model.AttemptStatusAutoSubmit)
	if err != nil {
		c.log.Error().Err(err).Str("attempt_id", attemptID).Msg("auto-submit failed, retrying on next tick")
		return true
	}
	c.publishLocked(c.snapshotLocked())
	c.notifyAsync(completion)
	return false
}

func (c *Controller) stopLoopLocked() {
	if c.stopLoop != nil {
		c.stopLoop()
		c.stopLoop = nil
	}
}

func (c *Controller) remainingLocked() time.Duration {
	left := c.deadline - c.clk.Monotonic()
	if left < 0 {
		return 0
	}
	return left
}

// SelectOption answers the current question. It reports false without error
// when the selection is ignored: no active attempt or the lock window has not
// elapsed. A selection arriving after the exam budget ran out auto-submits.
func (c *Controller) SelectOption(ctx context.Context, optionID string) (bool, error) {
	c.mu.Lock()
	if c.stage != StageInProgress {
		c.mu.Unlock()
		return false, nil
	}

	if c.remainingLocked() <= 0 {
		completion, err := c.finishLocked(ctx, model.AttemptStatusAutoSubmit)
		if err == nil {
			c.publishLocked(c.snapshotLocked())
		}
		c.mu.Unlock()
		c.notify(ctx, completion)
		return false, err
	}
	defer c.mu.Unlock()

	if !c.lock.Unlocked() {
		return false, nil
	}

	q := &c.questions[c.index]
	if !q.HasOption(optionID) {
		return false, ErrUnknownOption
	}

	answer := model.Answer{
		AttemptID:  c.attempt.ID,
		QuestionID: q.ID,
		OptionID:   optionID,
		Correct:    optionID == q.CorrectOptionID,
		TimeSpent:  c.clk.Monotonic() - c.shownAt,
		AnsweredAt: c.clk.Now().UTC(),
	}
	if err := c.repos.Answers.Upsert(ctx, answer); err != nil {
		return false, fmt.Errorf("record answer: %w", err)
	}
	c.answers[q.ID] = answer

	c.publishLocked(c.snapshotLocked())
	return true, nil
}

// Next moves to the following question. It reports whether the index changed.
func (c *Controller) Next() bool {
	return c.move(1)
}

// Prev moves to the previous question. It reports whether the index changed.
func (c *Controller) Prev() bool {
	return c.move(-1)
}

func (c *Controller) move(delta int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stage != StageInProgress {
		return false
	}
	target := c.index + delta
	if target < 0 || target >= len(c.questions) {
		return false
	}
	c.index = target
	c.lock.Arm()
	c.shownAt = c.clk.Monotonic()

	c.publishLocked(c.snapshotLocked())
	return true
}

// SubmitNow finishes the attempt as COMPLETED.
func (c *Controller) SubmitNow(ctx context.Context) (Snapshot, error) {
	return c.finish(ctx, model.AttemptStatusCompleted)
}

// OnVisibilityLost reports that the app left the foreground. The first loss
// raises a dismissible warning; the second cancels the attempt regardless of
// remaining time or lock state.
func (c *Controller) OnVisibilityLost(ctx context.Context) (Verdict, error) {
	c.mu.Lock()
	if c.stage != StageInProgress {
		c.mu.Unlock()
		return VerdictNone, nil
	}

	verdict := c.monitor.VisibilityLost()
	c.attempt.VisibilityLosses = c.monitor.Losses()
	if err := c.repos.Attempts.UpdateVisibilityLosses(ctx, c.attempt.ID, c.monitor.Losses()); err != nil {
		c.mu.Unlock()
		return verdict, fmt.Errorf("record visibility loss: %w", err)
	}

	c.log.Warn().
		Str("attempt_id", c.attempt.ID).
		Int("losses", c.monitor.Losses()).
		Stringer("verdict", verdict).
		Msg("visibility lost")

	if verdict == VerdictWarn {
		c.warning = true
		c.publishLocked(c.snapshotLocked())
		c.mu.Unlock()
		return verdict, nil
	}

	_, err := c.finishLocked(ctx, model.AttemptStatusCancelledCheat)
	if err == nil {
		c.publishLocked(c.snapshotLocked())
	}
	c.mu.Unlock()
	return verdict, err
}

// DismissWarning clears the visibility warning. The loss count is kept.
func (c *Controller) DismissWarning() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.warning {
		return
	}
	c.warning = false
	c.publishLocked(c.snapshotLocked())
}

func (c *Controller) finish(ctx context.Context, status model.AttemptStatus) (Snapshot, error) {
	c.mu.Lock()
	completion, err := c.finishLocked(ctx, status)
	snap := c.snapshotLocked()
	if err == nil {
		c.publishLocked(snap)
	}
	c.mu.Unlock()

	c.notify(ctx, completion)
	return snap, err
}

// finishLocked is the single terminal transition. Only the first call for an
// attempt has effect. It returns the completion to hand to the reward
// notifier, or nil when no notification is due.
func (c *Controller) finishLocked(ctx context.Context, status model.AttemptStatus) (*model.Completion, error) {
	if c.stage != StageInProgress {
		return nil, nil
	}

	answers, err := c.repos.Answers.ListByAttempt(ctx, c.attempt.ID)
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	score := Score(answers)

	finishedAt := c.clk.Now().UTC().Truncate(time.Millisecond)
	won, err := c.repos.Attempts.Finish(ctx, c.attempt.ID, status, finishedAt, score)
	if err != nil {
		return nil, fmt.Errorf("persist finish: %w", err)
	}

	c.stopLoopLocked()
	c.stage = StageFinished
	c.warning = false

	if !won {
		// Another writer finished the stored attempt first; adopt its outcome.
		c.log.Warn().Str("attempt_id", c.attempt.ID).Msg("attempt already finished in storage")
		if stored, err := c.repos.Attempts.Get(ctx, c.attempt.ID); err == nil {
			c.attempt = stored
		}
		return nil, nil
	}

	c.attempt.Status = status
	c.attempt.Score = score
	c.attempt.FinishedAt = &finishedAt
	c.attempt.SyncState = model.SyncStatePending
	c.attempt.UpdatedAt = finishedAt

	metrics.SessionFinished.WithLabelValues(string(status)).Inc()
	c.log.Info().
		Str("attempt_id", c.attempt.ID).
		Str("status", string(status)).
		Int("score", score).
		Msg("attempt finished")

	if status == model.AttemptStatusCancelledCheat {
		return nil, nil
	}
	return &model.Completion{
		AttemptID: c.attempt.ID,
		OwnerID:   c.attempt.OwnerID,
		Score:     score,
		Status:    status,
	}, nil
}

func (c *Controller) notify(ctx context.Context, completion *model.Completion) {
	if completion == nil || c.notifier == nil {
		return
	}
	if err := c.notifier.AttemptCompleted(ctx, *completion); err != nil {
		c.log.Warn().Err(err).Str("attempt_id", completion.AttemptID).Msg("reward notification failed")
	}
}

// notifyAsync is used from paths that hold mu.
func (c *Controller) notifyAsync(completion *model.Completion) {
	if completion == nil || c.notifier == nil {
		return
	}
	go c.notify(context.Background(), completion)
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	snap := Snapshot{
		Stage:   c.stage,
		Answers: make(map[string]string, len(c.answers)),
	}
	if c.attempt == nil {
		return snap
	}

	snap.AttemptID = c.attempt.ID
	snap.PackID = c.attempt.PackID
	snap.Index = c.index
	snap.Total = len(c.questions)
	snap.VisibilityLosses = c.monitor.Losses()
	snap.Warning = c.warning
	for qid, a := range c.answers {
		snap.Answers[qid] = a.OptionID
	}
	if c.index < len(c.questions) {
		q := c.questions[c.index].ForOwner()
		snap.Question = &q
	}

	switch c.stage {
	case StageInProgress:
		snap.Remaining = c.remainingLocked()
		snap.LockRemaining = c.lock.Remaining()
		snap.Status = model.AttemptStatusInProgress
	case StageFinished:
		score := c.attempt.Score
		snap.Status = c.attempt.Status
		snap.Score = &score
	}
	return snap
}

// Subscribe returns a channel that always holds the latest snapshot. Slow
// readers miss intermediate states. Call cancel to stop receiving.
func (c *Controller) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	c.mu.Lock()
	ch <- c.snapshotLocked()
	if c.closed {
		close(ch)
		c.mu.Unlock()
		return ch, func() {}
	}
	c.subs[ch] = struct{}{}
	c.mu.Unlock()

	cancel := func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if _, ok := c.subs[ch]; ok {
			delete(c.subs, ch)
			close(ch)
		}
	}
	return ch, cancel
}

func (c *Controller) publishLocked(snap Snapshot) {
	for ch := range c.subs {
		select {
		case ch <- snap:
			continue
		default:
		}
		// Replace the stale value.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

// LoadResult returns an attempt with its ledger for review.
func (c *Controller) LoadResult(ctx context.Context, attemptID string) (*Result, error) {
	a, err := c.repos.Attempts.Get(ctx, attemptID)
	if err != nil {
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	answers, err := c.repos.Answers.ListByAttempt(ctx, attemptID)
	if err != nil {
		return nil, fmt.Errorf("load answers: %w", err)
	}
	questions, err := c.repos.Content.ListQuestions(ctx, a.PackID, a.Subject)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	if answers == nil {
		answers = []model.Answer{}
	}
	return &Result{
		Attempt: *a,
		Answers: answers,
		Summary: Summarize(questions, answers),
	}, nil
}

// Close stops the tick loop and waits for it to exit. An active attempt
// stays IN_PROGRESS in storage and resumes on the next Start.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	done := c.loopDone
	c.stopLoopLocked()
	for ch := range c.subs {
		delete(c.subs, ch)
		close(ch)
	}
	c.mu.Unlock()

	if done != nil {
		<-done
	}
}
