// Package document provides the document database the workflow writes
// project records to. Every backend generates its own identifiers; callers
// never supply a key.
package document

import (
	"context"
	"errors"
)

// ErrEmptyCollection is returned when Insert is called without a collection
// name.
var ErrEmptyCollection = errors.New("document: collection name must not be empty")

// Store inserts documents into named collections.
type Store interface {
	Insert(ctx context.Context, collection string, fields map[string]any) (string, error)
}
