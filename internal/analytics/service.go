package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/geoaware/backend/internal/cache"
	"github.com/geoaware/backend/internal/logger"
	"github.com/geoaware/backend/internal/metrics"
	"github.com/geoaware/backend/internal/models"
	"github.com/geoaware/backend/internal/telemetry"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const (
	reportStats   = "stats"
	reportHeatmap = "heatmap"
)

// Service loads the event log from the database and serves the analytics
// reports, caching the expensive parts.
type Service struct {
	db     *gorm.DB
	cache  *cache.Analytics
	tracer *telemetry.BusinessEvents
	now    func() time.Time
}

// NewService creates an analytics service. cache may be nil.
func NewService(db *gorm.DB, reportCache *cache.Analytics) *Service {
	return &Service{
		db:     db,
		cache:  reportCache,
		tracer: telemetry.NewBusinessEvents(),
		now:    time.Now,
	}
}

// Metrics returns the formatted per-fence metrics
func (s *Service) Metrics(ctx context.Context) ([]Metric, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return Metrics(stats), nil
}

// Clustering returns the per-fence metrics with a cluster category
func (s *Service) Clustering(ctx context.Context) ([]Metric, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	out, err := Classify(stats)
	metrics.RecordAnalyticsCompute("clustering", time.Since(start))
	return out, err
}

// Stats returns the raw counters per fence, from cache when possible
func (s *Service) Stats(ctx context.Context) (stats []FenceStats, err error) {
	if s.cache.Load(ctx, reportStats, &stats) {
		_, span := s.tracer.TraceAnalytics(ctx, reportStats, true)
		span.End()
		return stats, nil
	}

	ctx, span := s.tracer.TraceAnalytics(ctx, reportStats, false)
	defer func() { telemetry.EndSpan(span, err) }()

	start := time.Now()
	var (
		fences []FenceRef
		events []EventRecord
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.db.WithContext(gctx).Model(&models.Geofence{}).
			Select("id, name").
			Order("created_at ASC").
			Find(&fences).Error
	})
	g.Go(func() error {
		return s.db.WithContext(gctx).Model(&models.Event{}).
			Select("type, fence_id, user_id, timestamp").
			Where("fence_id IS NOT NULL").
			Order("timestamp ASC").
			Find(&events).Error
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to load analytics data: %w", err)
	}

	stats = Compute(fences, events)
	metrics.RecordAnalyticsCompute(reportStats, time.Since(start))
	logger.Log.Debug("Computed fence statistics",
		zap.Int("fences", len(fences)),
		zap.Int("events", len(events)),
	)

	s.cache.Save(ctx, reportStats, stats)
	return stats, nil
}

// Heatmap returns the entry locations of the last 30 days as GeoJSON
func (s *Service) Heatmap(ctx context.Context) (_ *geojson.FeatureCollection, err error) {
	var points []HeatmapPoint
	if s.cache.Load(ctx, reportHeatmap, &points) {
		_, span := s.tracer.TraceAnalytics(ctx, reportHeatmap, true)
		span.End()
		return BuildHeatmap(points), nil
	}

	ctx, span := s.tracer.TraceAnalytics(ctx, reportHeatmap, false)
	defer func() { telemetry.EndSpan(span, err) }()

	start := time.Now()
	err = s.db.WithContext(ctx).Model(&models.Event{}).
		Select("ST_Y(location) AS lat, ST_X(location) AS lon").
		Where("type = ? AND timestamp > ?", models.EventEntry, s.now().Add(-HeatmapWindow)).
		Scan(&points).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load heatmap points: %w", err)
	}
	metrics.RecordAnalyticsCompute(reportHeatmap, time.Since(start))

	s.cache.Save(ctx, reportHeatmap, points)
	return BuildHeatmap(points), nil
}

// Invalidate drops cached reports after the event log changes
func (s *Service) Invalidate(ctx context.Context) {
	s.cache.Invalidate(ctx)
}
