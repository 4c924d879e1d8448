package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/geoaware/backend/internal/logger"
	"github.com/geoaware/backend/internal/metrics"
	"go.uber.org/zap"
)

const (
	// AnalyticsTTL is how long computed reports stay cached
	AnalyticsTTL = 60 * time.Second

	analyticsPrefix = "analytics:"
	analyticsName   = "analytics"
)

// Analytics caches computed analytics reports as JSON. A nil receiver or a
// nil store turns every call into a miss so callers never branch on Redis.
type Analytics struct {
	store Store
	ttl   time.Duration
}

// NewAnalytics creates an analytics cache over store
func NewAnalytics(store Store, ttl time.Duration) *Analytics {
	if ttl <= 0 {
		ttl = AnalyticsTTL
	}
	return &Analytics{store: store, ttl: ttl}
}

// Key namespaces a report name
func (a *Analytics) Key(report string) string {
	return analyticsPrefix + report
}

// Load decodes the cached report into dest and reports whether it was found
func (a *Analytics) Load(ctx context.Context, report string, dest interface{}) bool {
	if a == nil || a.store == nil {
		return false
	}

	start := time.Now()
	raw, err := a.store.Get(ctx, a.Key(report))
	metrics.RecordCacheOperation("get", analyticsName, time.Since(start))
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			logger.Log.Warn("Analytics cache read failed", zap.String("report", report), zap.Error(err))
		}
		metrics.RecordCacheMiss(analyticsName)
		return false
	}

	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		logger.Log.Warn("Analytics cache entry corrupt", zap.String("report", report), zap.Error(err))
		metrics.RecordCacheMiss(analyticsName)
		return false
	}

	metrics.RecordCacheHit(analyticsName)
	return true
}

// Save stores the report; failures are logged and otherwise ignored
func (a *Analytics) Save(ctx context.Context, report string, value interface{}) {
	if a == nil || a.store == nil {
		return
	}

	data, err := json.Marshal(value)
	if err != nil {
		logger.Log.Warn("Analytics cache encode failed", zap.String("report", report), zap.Error(err))
		return
	}

	start := time.Now()
	err = a.store.SetEx(ctx, a.Key(report), string(data), a.ttl)
	metrics.RecordCacheOperation("set", analyticsName, time.Since(start))
	if err != nil {
		logger.Log.Warn("Analytics cache write failed", zap.String("report", report), zap.Error(err))
	}
}

// Invalidate drops every cached report
func (a *Analytics) Invalidate(ctx context.Context) {
	if a == nil || a.store == nil {
		return
	}

	keys, err := a.store.Keys(ctx, analyticsPrefix+"*")
	if err != nil {
		logger.Log.Warn("Analytics cache scan failed", zap.Error(err))
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := a.store.Del(ctx, keys...); err != nil {
		logger.Log.Warn("Analytics cache invalidation failed", zap.Error(err))
		return
	}
	metrics.RecordCacheEviction(analyticsName, int64(len(keys)))
}
