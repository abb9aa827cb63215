// Package config loads environment defaults for the upload commands. Values
// come from the process environment, optionally seeded from a .env file;
// command-line flags override them.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Blob store backends.
const (
	BlobLocal = "local"
	BlobGCS   = "gcs"
	BlobS3    = "s3"
)

// Document store backends.
const (
	DocMemory    = "memory"
	DocFirestore = "firestore"
	DocPostgres  = "postgres"
)

// Config centralises settings loaded from the environment.
type Config struct {
	Port int

	BlobBackend     string
	LocalDir        string
	GCSBucket       string
	S3Bucket        string
	S3PublicBaseURL string
	S3Endpoint      string

	DocBackend       string
	FirestoreProject string
	DatabaseURL      string

	Collection     string
	UniqueKeys     bool
	CleanupOrphans bool

	LogLevel string
}

// Load reads the environment, applying defaults for unset keys. A missing
// .env file is not an error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	port, err := getIntEnv("PORT", 8080)
	if err != nil {
		return nil, err
	}
	uniqueKeys, err := getBoolEnv("UNIQUE_KEYS", false)
	if err != nil {
		return nil, err
	}
	cleanup, err := getBoolEnv("CLEANUP_ORPHANS", false)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:             port,
		BlobBackend:      strings.ToLower(getEnv("BLOB_BACKEND", BlobLocal)),
		LocalDir:         getEnv("LOCAL_DIR", "uploads"),
		GCSBucket:        getEnv("GCS_BUCKET", ""),
		S3Bucket:         getEnv("S3_BUCKET", ""),
		S3PublicBaseURL:  getEnv("S3_PUBLIC_BASE_URL", ""),
		S3Endpoint:       getEnv("S3_ENDPOINT", ""),
		DocBackend:       strings.ToLower(getEnv("DOC_BACKEND", DocMemory)),
		FirestoreProject: getEnv("FIRESTORE_PROJECT", ""),
		DatabaseURL:      getEnv("DATABASE_URL", ""),
		Collection:       getEnv("COLLECTION", "projects"),
		UniqueKeys:       uniqueKeys,
		CleanupOrphans:   cleanup,
		LogLevel:         getEnv("LOG_LEVEL", "info"),
	}
	return cfg, nil
}

// Validate checks that the selected backends have what they need.
func (c *Config) Validate() error {
	switch c.BlobBackend {
	case BlobLocal:
		if c.LocalDir == "" {
			return fmt.Errorf("LOCAL_DIR is required for the %s blob backend", BlobLocal)
		}
	case BlobGCS:
		if c.GCSBucket == "" {
			return fmt.Errorf("GCS_BUCKET is required for the %s blob backend", BlobGCS)
		}
	case BlobS3:
		if c.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required for the %s blob backend", BlobS3)
		}
	default:
		return fmt.Errorf("unsupported blob backend %q", c.BlobBackend)
	}

	switch c.DocBackend {
	case DocMemory:
	case DocFirestore:
		if c.FirestoreProject == "" {
			return fmt.Errorf("FIRESTORE_PROJECT is required for the %s document backend", DocFirestore)
		}
	case DocPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the %s document backend", DocPostgres)
		}
	default:
		return fmt.Errorf("unsupported document backend %q", c.DocBackend)
	}

	if c.Collection == "" {
		return fmt.Errorf("collection must not be empty")
	}
	return nil
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getIntEnv(key string, def int) (int, error) {
	val := getEnv(key, "")
	if val == "" {
		return def, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s: invalid positive integer %q", key, val)
	}
	return n, nil
}

func getBoolEnv(key string, def bool) (bool, error) {
	val := getEnv(key, "")
	if val == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("%s: invalid boolean %q", key, val)
	}
	return b, nil
}
