package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/pisaprep/internal/config"
	"github.com/stemsi/pisaprep/internal/metrics"
)

const (
	PollTimeout       = 1 * time.Second // Must be >= 1s to satisfy Redis
	redisErrorBackoff = 3 * time.Second
)

// Task is one scheduled job.
type Task interface {
	Name() string
	Execute(ctx context.Context) error
}

// SyncWorker runs its tasks at startup, every interval, and whenever a run
// request is popped from the sync requests queue. A failed run is retried
// with exponential backoff capped at the interval.
type SyncWorker struct {
	rdb        *redis.Client
	tasks      []Task
	interval   time.Duration
	retryDelay time.Duration
	log        zerolog.Logger

	wake chan struct{}
	mu   sync.Mutex
	last RunReport
}

// NewSyncWorker creates a worker. rdb may be nil, in which case Trigger
// wakes the worker in-process.
func NewSyncWorker(rdb *redis.Client, interval, retryDelay time.Duration, log zerolog.Logger, tasks ...Task) *SyncWorker {
	if retryDelay <= 0 || retryDelay > interval {
		retryDelay = interval
	}
	return &SyncWorker{
		rdb:        rdb,
		tasks:      tasks,
		interval:   interval,
		retryDelay: retryDelay,
		log:        log.With().Str("component", "sync_worker").Logger(),
		wake:       make(chan struct{}, 1),
	}
}

type syncRequest struct {
	Reason      string `json:"reason"`
	RequestedAt int64  `json:"requested_at"`
}

// RunReport describes the latest run.
type RunReport struct {
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	Failed     map[string]string `json:"failed,omitempty"`
}

// Trigger asks the worker to run now.
func (w *SyncWorker) Trigger(ctx context.Context, reason string) error {
	if w.rdb == nil {
		w.poke()
		return nil
	}
	raw, _ := json.Marshal(syncRequest{Reason: reason, RequestedAt: time.Now().UnixMilli()})
	return w.rdb.RPush(ctx, config.WorkerKey.SyncRequestsQueue, raw).Err()
}

// LastRun returns the report of the most recent run.
func (w *SyncWorker) LastRun() RunReport {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last
}

func (w *SyncWorker) poke() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Start begins the worker loop. Call in a goroutine; it returns after ctx is
// done and the queue listener has stopped.
func (w *SyncWorker) Start(ctx context.Context) {
	w.log.Info().Dur("interval", w.interval).Int("tasks", len(w.tasks)).Msg("SyncWorker started")

	var listener sync.WaitGroup
	if w.rdb != nil {
		listener.Add(1)
		go func() {
			defer listener.Done()
			w.listen(ctx)
		}()
	}
	defer func() {
		listener.Wait()
		w.log.Info().Msg("SyncWorker stopped")
	}()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	retry := time.NewTimer(w.interval)
	retry.Stop()
	defer retry.Stop()
	backoff := w.retryDelay

	run := func() {
		if w.runAll(ctx) {
			backoff = w.retryDelay
			retry.Stop()
			return
		}
		if ctx.Err() != nil {
			return
		}
		w.log.Warn().Dur("retry_in", backoff).Msg("Sync run incomplete, scheduling retry")
		retry.Reset(backoff)
		backoff = min(backoff*2, w.interval)
	}

	run()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			run()
		case <-retry.C:
			run()
		case <-w.wake:
			run()
		}
	}
}

// listen turns queued requests into wake-ups. Bursts collapse into one run.
func (w *SyncWorker) listen(ctx context.Context) {
	for {
		result, err := w.rdb.BLPop(ctx, PollTimeout, config.WorkerKey.SyncRequestsQueue).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			w.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
			select {
			case <-ctx.Done():
				return
			case <-time.After(redisErrorBackoff):
			}
			continue
		}
		if len(result) < 2 {
			continue
		}

		var req syncRequest
		if err := json.Unmarshal([]byte(result[1]), &req); err != nil {
			w.log.Error().Err(err).Msg("Invalid JSON payload")
			continue
		}
		w.log.Debug().Str("reason", req.Reason).Msg("Sync requested")
		w.poke()
	}
}

// runAll executes every task and reports whether all succeeded.
func (w *SyncWorker) runAll(ctx context.Context) bool {
	report := RunReport{StartedAt: time.Now()}
	ok := true
	for _, t := range w.tasks {
		if ctx.Err() != nil {
			return false
		}
		if err := t.Execute(ctx); err != nil {
			ok = false
			if report.Failed == nil {
				report.Failed = make(map[string]string)
			}
			report.Failed[t.Name()] = err.Error()
			metrics.SyncRuns.WithLabelValues(t.Name(), "retry").Inc()
			w.log.Warn().Err(err).Str("task", t.Name()).Msg("Task failed")
			continue
		}
		metrics.SyncRuns.WithLabelValues(t.Name(), "success").Inc()
	}
	report.FinishedAt = time.Now()

	w.mu.Lock()
	w.last = report
	w.mu.Unlock()
	return ok
}
