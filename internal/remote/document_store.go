// Package remote talks to the authoritative document store: batched fetches
// with id chunking and merge-only pushes.
package remote

import (
	"context"
	"encoding/json"
	"time"
)

// Collections of the remote document store.
const (
	CollectionAttempts       = "attempts"
	CollectionAttemptAnswers = "attempt_answers"
	CollectionProfiles       = "profiles"
	CollectionQuestions      = "questions"
	CollectionContentMeta    = "content_meta"

	// CurrentContentMetaID is the document holding the published pack meta.
	CurrentContentMetaID = "current"
)

// Document is one stored JSON document.
type Document struct {
	Collection string          `json:"collection"`
	ID         string          `json:"id"`
	Data       json.RawMessage `json:"data"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// DocumentWrite sets top-level fields of a document, creating it if needed.
// Fields not named in Data are left untouched.
type DocumentWrite struct {
	Collection string
	ID         string
	Data       map[string]any
}

// DocumentStore is the remote transport.
type DocumentStore interface {
	// Get returns the documents among ids that exist, in no particular order.
	Get(ctx context.Context, collection string, ids []string) ([]Document, error)
	// Merge applies all writes atomically.
	Merge(ctx context.Context, writes []DocumentWrite) error
	Ping(ctx context.Context) error
}
