package contentrepo

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/geoaware/backend/internal/logger"
	"github.com/geoaware/backend/internal/metrics"
	"github.com/geoaware/backend/internal/storage"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DefaultCleanupInterval is how often expired blobs are purged
const DefaultCleanupInterval = 5 * time.Minute

// Cleaner periodically deletes expired metadata rows and their blobs
type Cleaner struct {
	db       *gorm.DB
	blobs    storage.BlobStore
	interval time.Duration
	now      func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewCleaner creates a cleaner; interval <= 0 selects DefaultCleanupInterval
func NewCleaner(db *gorm.DB, blobs storage.BlobStore, interval time.Duration) *Cleaner {
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	return &Cleaner{db: db, blobs: blobs, interval: interval, now: time.Now}
}

// Start runs a purge immediately and then on every interval until Stop or
// ctx is done.
func (c *Cleaner) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	logger.Log.Info("Starting content cleanup", zap.Duration("interval", c.interval))

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run(ctx)
	}()
}

// Stop cancels the loop and waits for an in-flight purge
func (c *Cleaner) Stop() {
	if c.cancel == nil {
		return
	}
	logger.Log.Info("Stopping content cleanup")
	c.cancel()
	c.wg.Wait()
}

func (c *Cleaner) run(ctx context.Context) {
	c.purge(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.purge(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (c *Cleaner) purge(ctx context.Context) {
	if _, err := c.RunOnce(ctx); err != nil && ctx.Err() == nil {
		logger.Log.Error("Content cleanup failed", zap.Error(err))
	}
}

// RunOnce deletes every expired file and returns how many rows were removed.
// A blob that cannot be deleted is logged; its row is removed anyway.
func (c *Cleaner) RunOnce(ctx context.Context) (int, error) {
	start := time.Now()

	var expired []FileRecord
	if err := c.db.WithContext(ctx).Where("expires_at < ?", c.now().UTC()).Find(&expired).Error; err != nil {
		return 0, fmt.Errorf("failed to query expired files: %w", err)
	}
	if len(expired) == 0 {
		return 0, nil
	}

	deleted, blobErrors := 0, 0
	for _, record := range expired {
		if err := c.blobs.Delete(ctx, record.BlobKey); err != nil {
			blobErrors++
			logger.Log.Warn("Failed to delete expired blob", zap.String("id", record.ID), zap.Error(err))
		}
		if err := c.db.WithContext(ctx).Delete(&FileRecord{}, "id = ?", record.ID).Error; err != nil {
			logger.Log.Error("Failed to delete file metadata", zap.String("id", record.ID), zap.Error(err))
			continue
		}
		deleted++
	}

	metrics.RecordContentPurged(deleted)
	logger.Log.Info("Content cleanup completed",
		zap.Int("deleted", deleted),
		zap.Int("blob_errors", blobErrors),
		zap.Duration("took", time.Since(start)),
	)
	return deleted, nil
}
