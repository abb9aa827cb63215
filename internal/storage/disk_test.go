package storage

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDiskStorePutResolveDelete(t *testing.T) {
	ctx := context.Background()
	s, err := NewDiskStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewDiskStore failed: %v", err)
	}

	ref, err := s.Put(ctx, &PutRequest{
		ObjectName:  "projects/cover.png",
		Content:     bytes.NewReader([]byte("first")),
		ContentType: "image/png",
	})
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	uri, err := s.ResolveDownloadURI(ctx, ref)
	if err != nil {
		t.Fatalf("ResolveDownloadURI failed: %v", err)
	}
	if !strings.HasPrefix(uri, "file://") || !strings.HasSuffix(uri, "/projects/cover.png") {
		t.Errorf("unexpected uri %q", uri)
	}

	if err := s.Delete(ctx, ref); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := s.ResolveDownloadURI(ctx, ref); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := s.Delete(ctx, ref); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestDiskStoreOverwritesSameName(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewDiskStore(dir)
	if err != nil {
		t.Fatalf("NewDiskStore failed: %v", err)
	}

	for _, content := range []string{"first upload", "second"} {
		if _, err := s.Put(ctx, &PutRequest{ObjectName: "projects/a.png", Content: strings.NewReader(content)}); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	got, err := os.ReadFile(filepath.Join(dir, "projects", "a.png"))
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(got) != "second" {
		t.Errorf("content = %q, want %q", got, "second")
	}
}

func TestDiskStoreRejectsEscapingNames(t *testing.T) {
	s, err := NewDiskStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewDiskStore failed: %v", err)
	}

	for _, name := range []string{"../outside.png", "projects/../../outside.png", ""} {
		if _, err := s.Put(context.Background(), &PutRequest{ObjectName: name, Content: strings.NewReader("x")}); err == nil {
			t.Errorf("expected error for object name %q", name)
		}
	}
}
