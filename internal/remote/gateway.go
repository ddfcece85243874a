package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/pisaprep/internal/config"
	"github.com/stemsi/pisaprep/internal/model"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// ErrNotFound is returned when a remote document does not exist.
var ErrNotFound = errors.New("remote document not found")

const maxParallelFetches = 4

// GatewayConfig tunes the gateway.
type GatewayConfig struct {
	ChunkSize  int
	RatePerSec float64
	MetaTTL    time.Duration
}

// Gateway is the batched fetch/push boundary to the remote store. Pushes never
// return errors: every transport failure becomes false here.
type Gateway struct {
	store   DocumentStore
	rdb     *redis.Client
	limiter *rate.Limiter
	chunk   int
	metaTTL time.Duration
	log     zerolog.Logger
}

// NewGateway creates a gateway. rdb may be nil, which disables meta caching.
func NewGateway(store DocumentStore, rdb *redis.Client, cfg GatewayConfig, log zerolog.Logger) *Gateway {
	chunk := cfg.ChunkSize
	if chunk <= 0 || chunk > MaxIDsPerFetch {
		chunk = MaxIDsPerFetch
	}
	limit := rate.Inf
	burst := 1
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
		burst = max(1, int(cfg.RatePerSec))
	}
	return &Gateway{
		store:   store,
		rdb:     rdb,
		limiter: rate.NewLimiter(limit, burst),
		chunk:   chunk,
		metaTTL: cfg.MetaTTL,
		log:     log.With().Str("component", "remote_gateway").Logger(),
	}
}

// FetchCurrentContentMeta returns the published pack meta, cached in Redis.
// Cache failures fall through to the store.
func (g *Gateway) FetchCurrentContentMeta(ctx context.Context) (*model.ContentMeta, error) {
	key := config.CacheKey.ContentMetaKey()

	if g.rdb != nil {
		raw, err := g.rdb.Get(ctx, key).Bytes()
		switch {
		case err == nil:
			var meta model.ContentMeta
			if err := json.Unmarshal(raw, &meta); err == nil {
				return &meta, nil
			}
			g.log.Warn().Msg("Invalid cached content meta, refetching")
		case !errors.Is(err, redis.Nil):
			g.log.Warn().Err(err).Msg("Content meta cache unavailable")
		}
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	docs, err := g.store.Get(ctx, CollectionContentMeta, []string{CurrentContentMetaID})
	if err != nil {
		return nil, fmt.Errorf("fetch content meta: %w", err)
	}
	if len(docs) == 0 {
		return nil, ErrNotFound
	}

	var meta model.ContentMeta
	if err := json.Unmarshal(docs[0].Data, &meta); err != nil {
		return nil, fmt.Errorf("decode content meta: %w", err)
	}

	if g.rdb != nil && g.metaTTL > 0 {
		if err := g.rdb.Set(ctx, key, []byte(docs[0].Data), g.metaTTL).Err(); err != nil {
			g.log.Warn().Err(err).Msg("Failed to cache content meta")
		}
	}
	return &meta, nil
}

// FetchByIDs fetches documents in chunks of at most the configured size and
// returns them in the order of ids. Missing ids are skipped.
func (g *Gateway) FetchByIDs(ctx context.Context, collection string, ids []string) ([]Document, error) {
	chunks, err := Chunk(ids, g.chunk)
	if err != nil {
		return nil, err
	}

	results := make([][]Document, len(chunks))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(maxParallelFetches)
	for i, chunk := range chunks {
		eg.Go(func() error {
			if err := g.limiter.Wait(egCtx); err != nil {
				return err
			}
			docs, err := g.store.Get(egCtx, collection, chunk)
			if err != nil {
				return fmt.Errorf("fetch %s chunk %d: %w", collection, i, err)
			}
			results[i] = docs
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	byID := make(map[string]Document, len(ids))
	for _, docs := range results {
		for _, d := range docs {
			byID[d.ID] = d
		}
	}
	ordered := make([]Document, 0, len(byID))
	for _, id := range ids {
		if d, ok := byID[id]; ok {
			ordered = append(ordered, d)
		}
	}
	return ordered, nil
}

type remoteProfile struct {
	UpdatedAt int64 `json:"updatedAt"`
}

// FetchProfile reads the remote profile's last-mutation time. A missing
// remote profile is reported as nil without error.
func (g *Gateway) FetchProfile(ctx context.Context, ownerID string) (*model.RemoteProfile, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	docs, err := g.store.Get(ctx, CollectionProfiles, []string{ownerID})
	if err != nil {
		return nil, fmt.Errorf("fetch profile: %w", err)
	}
	if len(docs) == 0 {
		return nil, nil
	}
	var p remoteProfile
	if err := json.Unmarshal(docs[0].Data, &p); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	return &model.RemoteProfile{OwnerID: ownerID, UpdatedAt: time.UnixMilli(p.UpdatedAt).UTC()}, nil
}

// PushAttempt merges the attempt document and its answers, keyed by question
// id, in one write. It never removes remote fields.
func (g *Gateway) PushAttempt(ctx context.Context, a model.Attempt, answers []model.Answer) bool {
	return g.guard(ctx, "push attempt", a.ID, func() error {
		return g.store.Merge(ctx, AttemptWrites(a, answers))
	})
}

// PushProfile overwrites the remote profile fields. The timestamp comparison
// is the caller's job.
func (g *Gateway) PushProfile(ctx context.Context, p model.Profile) bool {
	return g.guard(ctx, "push profile", p.OwnerID, func() error {
		return g.store.Merge(ctx, []DocumentWrite{ProfileWrite(p)})
	})
}

// Online reports whether the remote store answers a ping.
func (g *Gateway) Online(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return g.guard(ctx, "ping", "", func() error { return g.store.Ping(ctx) })
}

func (g *Gateway) guard(ctx context.Context, op, id string, fn func() error) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			g.log.Error().Interface("panic", r).Str("op", op).Str("id", id).Msg("Remote transport panicked")
			ok = false
		}
	}()

	if err := g.limiter.Wait(ctx); err != nil {
		g.log.Warn().Err(err).Str("op", op).Str("id", id).Msg("Remote call aborted")
		return false
	}
	if err := fn(); err != nil {
		g.log.Warn().Err(err).Str("op", op).Str("id", id).Msg("Remote call failed")
		return false
	}
	return true
}

// AttemptWrites builds the merge writes for one attempt.
func AttemptWrites(a model.Attempt, answers []model.Answer) []DocumentWrite {
	doc := map[string]any{
		"ownerId":          a.OwnerID,
		"packId":           a.PackID,
		"startedAt":        a.StartedAt.UnixMilli(),
		"durationMs":       a.Duration.Milliseconds(),
		"status":           string(a.Status),
		"score":            a.Score,
		"origin":           string(a.Origin),
		"visibilityLosses": a.VisibilityLosses,
		"updatedAt":        a.UpdatedAt.UnixMilli(),
	}
	if a.Subject != nil {
		doc["subject"] = *a.Subject
	}
	if a.FinishedAt != nil {
		doc["finishedAt"] = a.FinishedAt.UnixMilli()
	}

	writes := []DocumentWrite{{Collection: CollectionAttempts, ID: a.ID, Data: doc}}
	if len(answers) > 0 {
		set := make(map[string]any, len(answers))
		for _, ans := range answers {
			set[ans.QuestionID] = map[string]any{
				"optionId":    ans.OptionID,
				"correct":     ans.Correct,
				"timeSpentMs": ans.TimeSpent.Milliseconds(),
				"answeredAt":  ans.AnsweredAt.UnixMilli(),
			}
		}
		writes = append(writes, DocumentWrite{Collection: CollectionAttemptAnswers, ID: a.ID, Data: set})
	}
	return writes
}

// ProfileWrite builds the merge write for a profile.
func ProfileWrite(p model.Profile) DocumentWrite {
	return DocumentWrite{
		Collection: CollectionProfiles,
		ID:         p.OwnerID,
		Data: map[string]any{
			"currency":   p.Currency,
			"experience": p.Experience,
			"cosmeticId": p.CosmeticID,
			"updatedAt":  p.UpdatedAt.UnixMilli(),
		},
	}
}
