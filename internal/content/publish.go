package content

import (
	"encoding/json"
	"fmt"

	"github.com/stemsi/pisaprep/internal/model"
	"github.com/stemsi/pisaprep/internal/remote"
)

// PublishWrites encodes a pack as the remote documents a Refresher reads:
// one document per question and the current content meta.
func PublishWrites(pack model.ContentPack, questions []model.Question) ([]remote.DocumentWrite, error) {
	writes := make([]remote.DocumentWrite, 0, len(questions)+1)
	ids := make([]string, 0, len(questions))

	for _, q := range questions {
		doc := QuestionDocument{
			PackID:          pack.ID,
			Subject:         q.Subject,
			TextID:          q.TextID,
			Prompt:          q.Prompt,
			CorrectOptionID: q.CorrectOptionID,
			OrderNum:        q.OrderNum,
		}
		for _, o := range q.Options {
			doc.Options = append(doc.Options, OptionDocument{ID: o.ID, Label: o.Label, OrderNum: o.OrderNum})
		}
		data, err := toMap(doc)
		if err != nil {
			return nil, fmt.Errorf("encode question %s: %w", q.ID, err)
		}
		writes = append(writes, remote.DocumentWrite{Collection: remote.CollectionQuestions, ID: q.ID, Data: data})
		ids = append(ids, q.ID)
	}

	meta, err := toMap(model.ContentMeta{
		PackID:          pack.ID,
		Version:         pack.Version,
		Title:           pack.Title,
		DurationMinutes: int(pack.Duration.Minutes()),
		QuestionIDs:     ids,
		PublishedAt:     pack.PublishedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("encode content meta: %w", err)
	}
	writes = append(writes, remote.DocumentWrite{Collection: remote.CollectionContentMeta, ID: remote.CurrentContentMetaID, Data: meta})
	return writes, nil
}

func toMap(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}
