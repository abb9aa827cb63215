package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// DiskStore writes objects to a directory on the local filesystem. Download
// URIs are file:// URLs.
type DiskStore struct {
	baseDir string
}

// NewDiskStore creates a DiskStore that writes objects under baseDir. The
// directory is created if it does not already exist.
func NewDiskStore(baseDir string) (*DiskStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: failed to create local base directory %q: %w", baseDir, err)
	}
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("storage: failed to resolve absolute path for %q: %w", baseDir, err)
	}
	return &DiskStore{baseDir: abs}, nil
}

// Put writes content to baseDir/ObjectName, creating any intermediate
// directories as needed. An existing file is truncated.
func (s *DiskStore) Put(_ context.Context, req *PutRequest) (*BlobRef, error) {
	dest, err := s.path(req.ObjectName)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return nil, fmt.Errorf("storage: failed to create directory for %q: %w", req.ObjectName, err)
	}

	f, err := os.Create(dest)
	if err != nil {
		return nil, fmt.Errorf("storage: failed to create file %q: %w", dest, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, req.Content); err != nil {
		return nil, fmt.Errorf("storage: failed to write file %q: %w", dest, err)
	}

	return &BlobRef{Bucket: s.baseDir, ObjectName: req.ObjectName}, nil
}

// ResolveDownloadURI returns a file:// URL for the written file.
func (s *DiskStore) ResolveDownloadURI(_ context.Context, ref *BlobRef) (string, error) {
	dest, err := s.path(ref.ObjectName)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(dest); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("storage: %q: %w", ref.ObjectName, ErrNotFound)
		}
		return "", fmt.Errorf("storage: failed to stat %q: %w", dest, err)
	}

	fileURL := &url.URL{Scheme: "file", Path: filepath.ToSlash(dest)}
	return fileURL.String(), nil
}

func (s *DiskStore) Delete(_ context.Context, ref *BlobRef) error {
	dest, err := s.path(ref.ObjectName)
	if err != nil {
		return err
	}
	if err := os.Remove(dest); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("storage: %q: %w", ref.ObjectName, ErrNotFound)
		}
		return fmt.Errorf("storage: failed to delete %q: %w", ref.ObjectName, err)
	}
	return nil
}

// path maps an object name onto the filesystem. Names that would resolve
// outside baseDir are rejected.
func (s *DiskStore) path(objectName string) (string, error) {
	dest := filepath.Join(s.baseDir, filepath.FromSlash(objectName))
	rel, err := filepath.Rel(s.baseDir, dest)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("storage: object name %q escapes base directory", objectName)
	}
	return dest, nil
}
