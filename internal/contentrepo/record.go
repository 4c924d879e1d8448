// Package contentrepo is the content repository: a small blob service that
// stores uploaded files with a time-to-live and serves them until they
// expire. Metadata lives in SQLite, bytes live in a storage.BlobStore.
package contentrepo

import (
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// DefaultTTL applies when an upload carries no X-TTL-Seconds header
const DefaultTTL = time.Hour

// FileRecord is the metadata row of one stored blob
type FileRecord struct {
	ID          string    `gorm:"primaryKey" json:"id"`
	Filename    string    `json:"filename"`
	StoragePath string    `json:"storage_path"`
	BlobKey     string    `gorm:"not null" json:"-"`
	MimeType    string    `json:"mime_type"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"created_at"`
	TTL         int64     `gorm:"column:ttl" json:"ttl"`
	ExpiresAt   time.Time `gorm:"index" json:"expires_at"`
}

// TableName keeps the table name of existing metadata files
func (FileRecord) TableName() string {
	return "files"
}

// Expired reports whether the blob may no longer be served at now
func (r FileRecord) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// OpenDB opens the SQLite metadata database at dsn and migrates it
func OpenDB(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open metadata db: %w", err)
	}
	if err := db.AutoMigrate(&FileRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate metadata db: %w", err)
	}
	return db, nil
}
