package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ApplicationMetrics tracks domain metrics: tracking events, analytics,
// the privacy simulation, realtime fan-out and the content repository.
type ApplicationMetrics struct {
	EventsRecordedTotal prometheus.CounterVec
	GeofenceChanges     prometheus.CounterVec

	AnalyticsComputeDuration prometheus.HistogramVec

	PrivacySamplesTotal   prometheus.Counter
	PrivacyQoSRetainedPct prometheus.Gauge

	WebsocketBroadcastsTotal prometheus.CounterVec

	ContentUploadsTotal  prometheus.CounterVec
	ContentUploadBytes   prometheus.Histogram
	ContentExpiredPurged prometheus.Counter
}

var (
	appInstance *ApplicationMetrics
	appOnce     sync.Once
)

// InitializeApplicationMetrics creates and registers all application metrics
func InitializeApplicationMetrics() *ApplicationMetrics {
	appOnce.Do(func() {
		appInstance = &ApplicationMetrics{
			EventsRecordedTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "geoaware_events_recorded_total",
					Help: "Tracking events accepted by the API",
				},
				[]string{"type"},
			),
			GeofenceChanges: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "geoaware_geofence_changes_total",
					Help: "Geofence create, update and delete operations",
				},
				[]string{"action"},
			),
			AnalyticsComputeDuration: *promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "geoaware_analytics_compute_duration_seconds",
					Help:    "Time spent computing an analytics report",
					Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10},
				},
				[]string{"report"},
			),
			PrivacySamplesTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "geoaware_privacy_samples_total",
					Help: "Cloaking simulation samples stored",
				},
			),
			PrivacyQoSRetainedPct: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "geoaware_privacy_qos_retained_percent",
					Help: "Share of samples whose fence membership survived cloaking in the last simulation",
				},
			),
			WebsocketBroadcastsTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "geoaware_websocket_broadcasts_total",
					Help: "Messages fanned out to realtime clients",
				},
				[]string{"type"},
			),
			ContentUploadsTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "content_repo_uploads_total",
					Help: "Blob uploads handled by the content repository",
				},
				[]string{"status"},
			),
			ContentUploadBytes: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "content_repo_upload_bytes",
					Help:    "Size of uploaded blobs",
					Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
				},
			),
			ContentExpiredPurged: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "content_repo_expired_purged_total",
					Help: "Expired blobs removed by the cleanup worker",
				},
			),
		}
	})
	return appInstance
}

// App returns the global application metrics instance
func App() *ApplicationMetrics {
	return InitializeApplicationMetrics()
}
