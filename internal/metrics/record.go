package metrics

import "time"

// RecordCacheHit counts a cache hit
func RecordCacheHit(cacheName string) {
	Get().CacheHitsTotal.WithLabelValues(cacheName).Inc()
}

// RecordCacheMiss counts a cache miss
func RecordCacheMiss(cacheName string) {
	Get().CacheMissesTotal.WithLabelValues(cacheName).Inc()
}

func RecordCacheOperation(operation, cacheName string, duration time.Duration) {
	Get().CacheOperationDuration.WithLabelValues(operation, cacheName).Observe(duration.Seconds())
}

func RecordCacheEviction(cacheName string, count int64) {
	Get().CacheEvictionsTotal.WithLabelValues(cacheName).Add(float64(count))
}

func RecordRateLimitExceeded(endpoint, method string) {
	Get().RateLimitExceededTotal.WithLabelValues(endpoint, method).Inc()
}

// RecordDatabaseQuery observes a query and counts it by outcome
func RecordDatabaseQuery(queryType, table string, duration time.Duration, err error) {
	m := Get()
	status := "success"
	if err != nil {
		status = "error"
	}
	m.DatabaseQueryDuration.WithLabelValues(queryType, table).Observe(duration.Seconds())
	m.DatabaseQueriesTotal.WithLabelValues(queryType, table, status).Inc()
}

func SetDatabaseConnections(database string, count int) {
	Get().DatabaseConnectionsOpen.WithLabelValues(database).Set(float64(count))
}

func RecordError(errorType, endpoint string) {
	Get().ErrorsTotal.WithLabelValues(errorType, endpoint).Inc()
}

func RecordEvent(eventType string) {
	App().EventsRecordedTotal.WithLabelValues(eventType).Inc()
}

func RecordGeofenceChange(action string) {
	App().GeofenceChanges.WithLabelValues(action).Inc()
}

func RecordAnalyticsCompute(report string, duration time.Duration) {
	App().AnalyticsComputeDuration.WithLabelValues(report).Observe(duration.Seconds())
}

// RecordPrivacySimulation adds a batch of samples and the share that kept QoS
func RecordPrivacySimulation(samples int, qosRetainedPct float64) {
	a := App()
	a.PrivacySamplesTotal.Add(float64(samples))
	a.PrivacyQoSRetainedPct.Set(qosRetainedPct)
}

func RecordBroadcast(messageType string) {
	App().WebsocketBroadcastsTotal.WithLabelValues(messageType).Inc()
}

// RecordContentUpload counts an upload; size is observed only on success
func RecordContentUpload(status string, size int64) {
	a := App()
	a.ContentUploadsTotal.WithLabelValues(status).Inc()
	if status == "success" {
		a.ContentUploadBytes.Observe(float64(size))
	}
}

func RecordContentPurged(count int) {
	App().ContentExpiredPurged.Add(float64(count))
}
