package document

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Document is a stored document as returned by MemoryStore.
type Document struct {
	ID        string
	Fields    map[string]any
	CreatedAt time.Time
}

// MemoryStore is a concurrency-safe in-memory Store implementation, suitable
// for local development and a single instance.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]Document
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]map[string]Document)}
}

func (s *MemoryStore) Insert(_ context.Context, collection string, fields map[string]any) (string, error) {
	if collection == "" {
		return "", ErrEmptyCollection
	}

	doc := Document{
		ID:        uuid.NewString(),
		Fields:    maps.Clone(fields),
		CreatedAt: time.Now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	docs, ok := s.collections[collection]
	if !ok {
		docs = make(map[string]Document)
		s.collections[collection] = docs
	}
	docs[doc.ID] = doc

	return doc.ID, nil
}

func (s *MemoryStore) Get(collection, id string) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.collections[collection][id]
	if !ok {
		return Document{}, fmt.Errorf("document: %s/%s not found", collection, id)
	}
	// Return a copy to prevent callers from mutating internal state.
	doc.Fields = maps.Clone(doc.Fields)
	return doc, nil
}

// List returns the documents of a collection, oldest first.
func (s *MemoryStore) List(collection string) []Document {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := make([]Document, 0, len(s.collections[collection]))
	for _, doc := range s.collections[collection] {
		doc.Fields = maps.Clone(doc.Fields)
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool {
		return docs[i].CreatedAt.Before(docs[j].CreatedAt)
	})
	return docs
}
