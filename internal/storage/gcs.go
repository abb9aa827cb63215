package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"google.golang.org/api/option"
)

// downloadTokenKey is the custom metadata key Firebase uses to hold the
// token embedded in download URLs. Objects carrying it can be fetched by
// anyone holding the URL, without expiry.
const downloadTokenKey = "firebaseStorageDownloadTokens"

var downloadBaseURL = "https://firebasestorage.googleapis.com/v0/b"

// GCSStore writes objects to a Google Cloud Storage bucket.
type GCSStore struct {
	client *storage.Client
	bucket string
}

// NewGCSStore creates a GCSStore for the given bucket. opts are passed
// through to the underlying GCS client, allowing credential injection.
func NewGCSStore(ctx context.Context, bucket string, opts ...option.ClientOption) (*GCSStore, error) {
	if bucket == "" {
		return nil, errors.New("storage: GCS bucket must not be empty")
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage: failed to create GCS client: %w", err)
	}
	return &GCSStore{client: client, bucket: bucket}, nil
}

// Put writes content to GCS at ObjectName with a fresh download token.
func (s *GCSStore) Put(ctx context.Context, req *PutRequest) (*BlobRef, error) {
	obj := s.client.Bucket(s.bucket).Object(req.ObjectName)
	w := obj.NewWriter(ctx)
	w.ContentType = req.ContentType
	w.Metadata = map[string]string{downloadTokenKey: uuid.NewString()}

	if _, err := io.Copy(w, req.Content); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("storage: upload write failed for %q: %w", req.ObjectName, err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("storage: upload close failed for %q: %w", req.ObjectName, err)
	}

	return &BlobRef{Bucket: s.bucket, ObjectName: req.ObjectName}, nil
}

// ResolveDownloadURI reads the object's download token and returns the
// tokenised URL for it.
func (s *GCSStore) ResolveDownloadURI(ctx context.Context, ref *BlobRef) (string, error) {
	attrs, err := s.client.Bucket(ref.Bucket).Object(ref.ObjectName).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return "", fmt.Errorf("storage: %q: %w", ref.ObjectName, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("storage: failed to read attributes of %q: %w", ref.ObjectName, err)
	}

	token := attrs.Metadata[downloadTokenKey]
	if token == "" {
		return "", fmt.Errorf("storage: object %q has no download token", ref.ObjectName)
	}
	return downloadURL(ref.Bucket, ref.ObjectName, token), nil
}

// Delete removes the object. Deleting a missing object reports ErrNotFound.
func (s *GCSStore) Delete(ctx context.Context, ref *BlobRef) error {
	err := s.client.Bucket(ref.Bucket).Object(ref.ObjectName).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("storage: %q: %w", ref.ObjectName, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("storage: failed to delete %q: %w", ref.ObjectName, err)
	}
	return nil
}

// Close releases the underlying client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}

// downloadURL builds a Firebase download URL. The object path is escaped as
// a single segment, so "projects/a.png" becomes "projects%2Fa.png".
func downloadURL(bucket, objectName, token string) string {
	return fmt.Sprintf("%s/%s/o/%s?alt=media&token=%s",
		downloadBaseURL, bucket, url.PathEscape(objectName), url.QueryEscape(token))
}
