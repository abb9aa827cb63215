package document

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// row is the SQL representation of a document: one table for every
// collection, with the fields held as JSONB.
type row struct {
	ID         uuid.UUID         `gorm:"type:uuid;primaryKey;not null"`
	Collection string            `gorm:"type:text;not null;index"`
	Fields     datatypes.JSONMap `gorm:"type:jsonb;not null"`
	CreatedAt  time.Time         `gorm:"not null"`
}

func (row) TableName() string {
	return "documents"
}

func newRow(collection string, fields map[string]any) row {
	return row{
		ID:         uuid.New(),
		Collection: collection,
		Fields:     datatypes.JSONMap(fields),
		CreatedAt:  time.Now().UTC(),
	}
}

// GormStore writes documents to PostgreSQL through GORM.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore connects to PostgreSQL and migrates the documents table.
func NewGormStore(dsn string) (*GormStore, error) {
	if dsn == "" {
		return nil, errors.New("document: database DSN must not be empty")
	}
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  dsn,
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("document: failed to connect to database: %w", err)
	}
	return NewGormStoreWithDB(db)
}

// NewGormStoreWithDB wraps an existing connection and migrates the documents
// table.
func NewGormStoreWithDB(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&row{}); err != nil {
		return nil, fmt.Errorf("document: failed to migrate documents table: %w", err)
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) Insert(ctx context.Context, collection string, fields map[string]any) (string, error) {
	if collection == "" {
		return "", ErrEmptyCollection
	}
	r := newRow(collection, fields)
	if err := s.db.WithContext(ctx).Create(&r).Error; err != nil {
		return "", fmt.Errorf("document: failed to insert into %q: %w", collection, err)
	}
	return r.ID.String(), nil
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
