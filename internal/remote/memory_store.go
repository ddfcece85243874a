package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"sync"
	"time"
)

// MemoryStore is an in-process DocumentStore with the same merge semantics
// as PostgresStore. The server falls back to it when no remote database is
// configured.
type MemoryStore struct {
	mu   sync.Mutex
	docs map[string]map[string]map[string]any
	now  func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: make(map[string]map[string]map[string]any),
		now:  time.Now,
	}
}

func (s *MemoryStore) Get(_ context.Context, collection string, ids []string) ([]Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var docs []Document
	for _, id := range ids {
		data, ok := s.docs[collection][id]
		if !ok {
			continue
		}
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("encode %s/%s: %w", collection, id, err)
		}
		docs = append(docs, Document{Collection: collection, ID: id, Data: raw, UpdatedAt: s.now()})
	}
	return docs, nil
}

func (s *MemoryStore) Merge(_ context.Context, writes []DocumentWrite) error {
	// Round-trip through JSON first so a bad write leaves the store untouched.
	decoded := make([]map[string]any, len(writes))
	for i, w := range writes {
		raw, err := json.Marshal(w.Data)
		if err != nil {
			return fmt.Errorf("encode %s/%s: %w", w.Collection, w.ID, err)
		}
		if err := json.Unmarshal(raw, &decoded[i]); err != nil {
			return fmt.Errorf("decode %s/%s: %w", w.Collection, w.ID, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, w := range writes {
		coll, ok := s.docs[w.Collection]
		if !ok {
			coll = make(map[string]map[string]any)
			s.docs[w.Collection] = coll
		}
		doc, ok := coll[w.ID]
		if !ok {
			doc = make(map[string]any)
			coll[w.ID] = doc
		}
		maps.Copy(doc, decoded[i])
	}
	return nil
}

func (s *MemoryStore) Ping(context.Context) error {
	return nil
}
