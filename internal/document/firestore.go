package document

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/option"
)

// FirestoreStore writes documents to Cloud Firestore.
type FirestoreStore struct {
	client *firestore.Client
}

// NewFirestoreStore creates a client for the given Google Cloud project. opts
// are passed through to the underlying client, allowing credential
// injection.
func NewFirestoreStore(ctx context.Context, projectID string, opts ...option.ClientOption) (*FirestoreStore, error) {
	if projectID == "" {
		return nil, errors.New("document: Firestore project ID must not be empty")
	}
	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("document: failed to create Firestore client: %w", err)
	}
	return &FirestoreStore{client: client}, nil
}

// Insert adds a document with an auto-generated ID.
func (s *FirestoreStore) Insert(ctx context.Context, collection string, fields map[string]any) (string, error) {
	if collection == "" {
		return "", ErrEmptyCollection
	}
	ref, _, err := s.client.Collection(collection).Add(ctx, fields)
	if err != nil {
		return "", fmt.Errorf("document: failed to add to %q: %w", collection, err)
	}
	return ref.ID, nil
}

func (s *FirestoreStore) Close() error {
	return s.client.Close()
}
