// Package store persists JSON values under fixed string keys, the durable
// analog of the browser localStorage the web UI used.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// Record is one persisted key with its JSON-encoded value.
type Record struct {
	Key       string `gorm:"primaryKey;size:128"`
	Value     string `gorm:"type:text"`
	UpdatedAt time.Time
}

// TableName overrides the default table name.
func (Record) TableName() string {
	return "kv_records"
}

// Store is a gorm-backed key-value store.
type Store struct {
	db *gorm.DB
}

// Open creates a store backed by a sqlite file at path.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}
	return New(db), nil
}

// New wraps an existing gorm handle.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate ensures the schema is available.
func (s *Store) AutoMigrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&Record{})
}

// Put marshals value and writes it through under key, replacing any previous
// value.
func (s *Store) Put(ctx context.Context, key string, value any) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return err
	}
	record := Record{Key: key, Value: string(encoded), UpdatedAt: time.Now().UTC()}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&record).Error
}

// Get unmarshals the value stored under key into out. A missing key is not
// an error; found reports whether anything was read.
func (s *Store) Get(ctx context.Context, key string, out any) (found bool, err error) {
	var record Record
	if err := s.db.WithContext(ctx).First(&record, "key = ?", key).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal([]byte(record.Value), out); err != nil {
		return false, err
	}
	return true, nil
}

// Delete removes the value stored under key, if any.
func (s *Store) Delete(ctx context.Context, key string) error {
	return s.db.WithContext(ctx).Delete(&Record{}, "key = ?", key).Error
}
