package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/tomasbasham/project-upload/internal/config"
	"github.com/tomasbasham/project-upload/internal/document"
	"github.com/tomasbasham/project-upload/internal/operation"
	"github.com/tomasbasham/project-upload/internal/storage"
	"github.com/tomasbasham/project-upload/internal/workflow"
)

// BackendOptions are the storage settings shared by every command that runs
// the upload workflow. Flag defaults come from the environment.
type BackendOptions struct {
	config.Config

	loadErr error
}

// NewBackendOptions provides a BackendOptions seeded from the environment.
// A malformed environment is reported by Validate.
func NewBackendOptions() *BackendOptions {
	cfg, err := config.Load()
	if cfg == nil {
		cfg = &config.Config{}
	}
	return &BackendOptions{Config: *cfg, loadErr: err}
}

// AddFlags binds the backend flags to cmd.
func (o *BackendOptions) AddFlags(cmd *cobra.Command) {
	flags := cmd.Flags()

	flags.StringVar(&o.BlobBackend, "blob-backend", o.BlobBackend, "Image storage backend: local, gcs or s3")
	flags.StringVar(&o.LocalDir, "local-dir", o.LocalDir, "Directory images are written to by the local backend")
	flags.StringVarP(&o.GCSBucket, "bucket", "b", o.GCSBucket, "GCS bucket name for the gcs backend")
	flags.StringVar(&o.S3Bucket, "s3-bucket", o.S3Bucket, "Bucket name for the s3 backend")
	flags.StringVar(&o.S3PublicBaseURL, "s3-public-base-url", o.S3PublicBaseURL, "Public origin serving the S3 bucket")
	flags.StringVar(&o.S3Endpoint, "s3-endpoint", o.S3Endpoint, "Endpoint override for S3-compatible providers")

	flags.StringVar(&o.DocBackend, "doc-backend", o.DocBackend, "Document backend: memory, firestore or postgres")
	flags.StringVar(&o.FirestoreProject, "firestore-project", o.FirestoreProject, "Google Cloud project hosting Firestore")
	flags.StringVar(&o.DatabaseURL, "database-url", o.DatabaseURL, "Postgres connection string for the postgres backend")
	flags.StringVar(&o.Collection, "collection", o.Collection, "Collection project records are inserted into")

	flags.BoolVar(&o.UniqueKeys, "unique-keys", o.UniqueKeys, "Prefix storage keys with a generated identifier")
	flags.BoolVar(&o.CleanupOrphans, "cleanup-orphans", o.CleanupOrphans, "Delete the uploaded image when a later step fails")
	flags.StringVar(&o.LogLevel, "log-level", o.LogLevel, "Log level: debug, info, warn or error")
}

func (o *BackendOptions) Validate() error {
	if o.loadErr != nil {
		return fmt.Errorf("failed to load configuration: %w", o.loadErr)
	}
	if _, err := zerolog.ParseLevel(o.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q", o.LogLevel)
	}
	return o.Config.Validate()
}

// Logger returns a console logger writing to w at the configured level.
func (o *BackendOptions) Logger(w io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(o.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}).
		Level(level).
		With().
		Timestamp().
		Logger()
}

// WorkflowOptions builds the workflow options for these settings.
func (o *BackendOptions) WorkflowOptions(history operation.Store, logger zerolog.Logger) workflow.Options {
	return workflow.Options{
		Collection:     o.Collection,
		UniqueKeys:     o.UniqueKeys,
		CleanupOrphans: o.CleanupOrphans,
		History:        history,
		Logger:         logger,
	}
}

// backends holds the opened stores and anything that must be closed with
// them.
type backends struct {
	blobs   storage.BlobStore
	docs    document.Store
	closers []io.Closer
}

// Open connects to the selected blob and document backends.
func (o *BackendOptions) Open(ctx context.Context) (*backends, error) {
	b := &backends{}

	switch o.BlobBackend {
	case config.BlobGCS:
		s, err := storage.NewGCSStore(ctx, o.GCSBucket)
		if err != nil {
			return nil, fmt.Errorf("failed to initialise GCS store: %w", err)
		}
		b.blobs = s
		b.closers = append(b.closers, s)
	case config.BlobS3:
		s, err := storage.NewS3Store(ctx, storage.S3Config{
			Bucket:        o.S3Bucket,
			PublicBaseURL: o.S3PublicBaseURL,
			Endpoint:      o.S3Endpoint,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialise S3 store: %w", err)
		}
		b.blobs = s
	default:
		s, err := storage.NewDiskStore(o.LocalDir)
		if err != nil {
			return nil, fmt.Errorf("failed to initialise local store: %w", err)
		}
		b.blobs = s
	}

	switch o.DocBackend {
	case config.DocFirestore:
		s, err := document.NewFirestoreStore(ctx, o.FirestoreProject)
		if err != nil {
			_ = b.Close()
			return nil, fmt.Errorf("failed to initialise Firestore store: %w", err)
		}
		b.docs = s
		b.closers = append(b.closers, s)
	case config.DocPostgres:
		s, err := document.NewGormStore(o.DatabaseURL)
		if err != nil {
			_ = b.Close()
			return nil, fmt.Errorf("failed to initialise Postgres store: %w", err)
		}
		b.docs = s
		b.closers = append(b.closers, s)
	default:
		b.docs = document.NewMemoryStore()
	}

	return b, nil
}

func (b *backends) Close() error {
	var errs []error
	for _, c := range b.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
