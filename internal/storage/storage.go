// Package storage provides an abstraction for writing project images to an
// object store and resolving durable URLs for retrieval. The GCS
// implementation is the production backend and produces the same download
// URLs a Firebase client would; S3 and local disk implementations share the
// interface.
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned when a referenced object does not exist.
var ErrNotFound = errors.New("storage: object not found")

// BlobStore persists named binaries and resolves retrieval URLs for them.
// Writing to an existing ObjectName silently replaces the previous content.
type BlobStore interface {
	Put(ctx context.Context, req *PutRequest) (*BlobRef, error)
	ResolveDownloadURI(ctx context.Context, ref *BlobRef) (string, error)
	Delete(ctx context.Context, ref *BlobRef) error
}

type PutRequest struct {
	// ObjectName is the object path within the configured bucket, for
	// example "projects/cover.png".
	ObjectName string

	// Content is the data to be uploaded.
	Content io.Reader

	// ContentType is the MIME type of the content, e.g. "image/png".
	ContentType string
}

// BlobRef identifies an object written by Put.
type BlobRef struct {
	// Bucket is the bucket (or base directory) holding the object.
	Bucket string

	// ObjectName is the object path within Bucket.
	ObjectName string
}

func (r *BlobRef) String() string {
	if r == nil {
		return ""
	}
	return r.Bucket + "/" + r.ObjectName
}
