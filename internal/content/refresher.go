// Package content keeps the local copy of the published content pack current.
package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/pisaprep/internal/model"
	"github.com/stemsi/pisaprep/internal/remote"
	"github.com/stemsi/pisaprep/internal/repository"
)

// Source is the remote side of a refresh.
type Source interface {
	FetchCurrentContentMeta(ctx context.Context) (*model.ContentMeta, error)
	FetchByIDs(ctx context.Context, collection string, ids []string) ([]remote.Document, error)
}

// Refresher downloads a newer pack when one is published.
type Refresher struct {
	src  Source
	repo repository.ContentRepository
	log  zerolog.Logger
}

func NewRefresher(src Source, repo repository.ContentRepository, log zerolog.Logger) *Refresher {
	return &Refresher{
		src:  src,
		repo: repo,
		log:  log.With().Str("component", "content_refresher").Logger(),
	}
}

func (r *Refresher) Name() string { return "content_refresh" }

// QuestionDocument is the remote shape of a question.
type QuestionDocument struct {
	PackID          string           `json:"packId"`
	Subject         string           `json:"subject"`
	TextID          string           `json:"textId"`
	Prompt          string           `json:"prompt"`
	CorrectOptionID string           `json:"correctOptionId"`
	OrderNum        int              `json:"orderNum"`
	Options         []OptionDocument `json:"options"`
}

type OptionDocument struct {
	ID       string `json:"id"`
	Label    string `json:"label"`
	OrderNum int    `json:"orderNum"`
}

// Execute fetches the current meta and stores the pack if the local copy is
// missing or older. Up-to-date content is a successful no-op.
func (r *Refresher) Execute(ctx context.Context) error {
	meta, err := r.src.FetchCurrentContentMeta(ctx)
	if err != nil {
		if errors.Is(err, remote.ErrNotFound) {
			r.log.Debug().Msg("No content published yet")
			return nil
		}
		return fmt.Errorf("fetch content meta: %w", err)
	}

	local, err := r.repo.GetPack(ctx, meta.PackID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("get local pack: %w", err)
	}
	if local != nil && local.Version >= meta.Version {
		return nil
	}

	docs, err := r.src.FetchByIDs(ctx, remote.CollectionQuestions, meta.QuestionIDs)
	if err != nil {
		return fmt.Errorf("fetch questions: %w", err)
	}
	if len(docs) != len(meta.QuestionIDs) {
		return fmt.Errorf("pack %s v%d: got %d of %d questions", meta.PackID, meta.Version, len(docs), len(meta.QuestionIDs))
	}

	questions := make([]model.Question, 0, len(docs))
	for i, d := range docs {
		q, err := decodeQuestion(d, meta.PackID, i+1)
		if err != nil {
			return err
		}
		questions = append(questions, q)
	}

	pack := model.ContentPack{
		ID:          meta.PackID,
		Version:     meta.Version,
		Title:       meta.Title,
		Duration:    time.Duration(meta.DurationMinutes) * time.Minute,
		PublishedAt: meta.PublishedAt,
	}
	if err := r.repo.SavePack(ctx, pack, questions); err != nil {
		return fmt.Errorf("save pack: %w", err)
	}

	r.log.Info().
		Str("pack_id", pack.ID).
		Int("version", pack.Version).
		Int("questions", len(questions)).
		Msg("Content pack updated")
	return nil
}

// decodeQuestion falls back to the position in the meta list when the
// document carries no order.
func decodeQuestion(d remote.Document, packID string, position int) (model.Question, error) {
	var doc QuestionDocument
	if err := json.Unmarshal(d.Data, &doc); err != nil {
		return model.Question{}, fmt.Errorf("decode question %s: %w", d.ID, err)
	}
	q := model.Question{
		ID:              d.ID,
		PackID:          packID,
		Subject:         doc.Subject,
		TextID:          doc.TextID,
		Prompt:          doc.Prompt,
		CorrectOptionID: doc.CorrectOptionID,
		OrderNum:        doc.OrderNum,
	}
	if q.OrderNum == 0 {
		q.OrderNum = position
	}
	for _, o := range doc.Options {
		q.Options = append(q.Options, model.Option{ID: o.ID, Label: o.Label, OrderNum: o.OrderNum})
	}
	if !q.HasOption(q.CorrectOptionID) {
		return model.Question{}, fmt.Errorf("question %s: correct option %q is not among its options", d.ID, q.CorrectOptionID)
	}
	return q, nil
}
