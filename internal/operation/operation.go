// Package operation records the history of project submissions. A
// submission that passes validation becomes an Operation and moves through a
// linear lifecycle:
//
//	pending → running → complete | failed.
//
// The store is the authoritative source of truth for submission state; HTTP
// handlers only read through it.
package operation

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no operation has the requested ID.
var ErrNotFound = errors.New("operation: not found")

// Status represents the lifecycle state of an operation.
type Status string

const (
	StatusPending  Status = "pending"
	StatusRunning  Status = "running"
	StatusComplete Status = "complete"
	StatusFailed   Status = "failed"
)

// Operation represents a single submission attempt.
type Operation struct {
	ID        string    `json:"id"`
	Status    Status    `json:"status"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// ObjectName is the storage key the image is written under.
	ObjectName string `json:"object_name"`

	// ImageURL and DocumentID are populated once the operation reaches
	// StatusComplete.
	ImageURL   string `json:"image_url,omitempty"`
	DocumentID string `json:"document_id,omitempty"`

	// FailureKind classifies the failed step; Error holds the underlying
	// message. Both are empty unless the operation reached StatusFailed.
	FailureKind string `json:"failure_kind,omitempty"`
	Error       string `json:"error,omitempty"`

	// BlobOrphaned is true when the image was written but the submission
	// failed afterwards and the blob was left in place.
	BlobOrphaned bool `json:"blob_orphaned,omitempty"`
}

// Store is the interface for persisting and retrieving operations.
type Store interface {
	Create(title, objectName string) (*Operation, error)
	Get(id string) (*Operation, error)
	MarkRunning(id string) error
	MarkComplete(id, imageURL, documentID string) error
	MarkFailed(id, kind string, err error, orphaned bool) error
}

// MemoryStore is a concurrency-safe in-memory Store implementation.
type MemoryStore struct {
	mu  sync.RWMutex
	ops map[string]*Operation
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{ops: make(map[string]*Operation)}
}

func (s *MemoryStore) Create(title, objectName string) (*Operation, error) {
	now := time.Now()
	op := &Operation{
		ID:         uuid.New().String(),
		Status:     StatusPending,
		Title:      title,
		ObjectName: objectName,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	s.mu.Lock()
	s.ops[op.ID] = op
	s.mu.Unlock()

	copy := *op
	return &copy, nil
}

func (s *MemoryStore) Get(id string) (*Operation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	op, ok := s.ops[id]
	if !ok {
		return nil, fmt.Errorf("operation %q: %w", id, ErrNotFound)
	}
	// Return a copy to prevent callers from mutating internal state.
	copy := *op
	return &copy, nil
}

func (s *MemoryStore) MarkRunning(id string) error {
	return s.update(id, func(op *Operation) {
		op.Status = StatusRunning
	})
}

func (s *MemoryStore) MarkComplete(id, imageURL, documentID string) error {
	return s.update(id, func(op *Operation) {
		op.Status = StatusComplete
		op.ImageURL = imageURL
		op.DocumentID = documentID
	})
}

func (s *MemoryStore) MarkFailed(id, kind string, err error, orphaned bool) error {
	return s.update(id, func(op *Operation) {
		op.Status = StatusFailed
		op.FailureKind = kind
		if err != nil {
			op.Error = err.Error()
		}
		op.BlobOrphaned = orphaned
	})
}

func (s *MemoryStore) update(id string, fn func(*Operation)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	op, ok := s.ops[id]
	if !ok {
		return fmt.Errorf("operation %q: %w", id, ErrNotFound)
	}
	fn(op)
	op.UpdatedAt = time.Now()
	return nil
}
