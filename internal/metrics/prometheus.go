package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics contains all Prometheus metrics for the logbook service
type PrometheusMetrics struct {
	// QSO metrics
	QSOsLoggedTotal   *prometheus.CounterVec
	QSOsImportedTotal *prometheus.CounterVec
	QSOsTotal         prometheus.Gauge

	// Lookup metrics
	LookupsTotal    *prometheus.CounterVec
	LookupDuration  *prometheus.HistogramVec
	LookupCacheHits prometheus.Counter

	// Sync metrics
	SyncRunsTotal       *prometheus.CounterVec
	SyncUploadedTotal   *prometheus.CounterVec
	SyncDownloadedTotal *prometheus.CounterVec
	SyncDuration        *prometheus.HistogramVec
	SyncErrorsTotal     *prometheus.CounterVec
	UnsyncedQSOs        *prometheus.GaugeVec

	// Spot feed metrics
	SpotsReceivedTotal *prometheus.CounterVec
	SpotFeedReconnects *prometheus.CounterVec
	SpotParseErrors    prometheus.Counter

	// Notification metrics
	NotificationsSentTotal    *prometheus.CounterVec
	NotificationFailuresTotal *prometheus.CounterVec

	// API metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Application health metrics
	ApplicationUptime prometheus.Gauge
	ComponentHealth   *prometheus.GaugeVec
	MemoryUsage       prometheus.Gauge
	GoroutineCount    prometheus.Gauge

	// Band conditions
	SolarFluxIndex prometheus.Gauge
	AIndex         prometheus.Gauge
	KIndex         prometheus.Gauge
}

// NewPrometheusMetrics creates and registers all Prometheus metrics
func NewPrometheusMetrics() *PrometheusMetrics {
	return &PrometheusMetrics{
		QSOsLoggedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cw_qsos_logged_total",
				Help: "Total number of QSOs logged",
			},
			[]string{"band", "mode"},
		),

		QSOsImportedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cw_qsos_imported_total",
				Help: "Total number of QSOs imported from files or backends",
			},
			[]string{"source"},
		),

		QSOsTotal: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "cw_qsos_total",
				Help: "Number of QSOs currently stored",
			},
		),

		LookupsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cw_callsign_lookups_total",
				Help: "Total number of callsign lookups",
			},
			[]string{"provider", "status"},
		),

		LookupDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cw_callsign_lookup_duration_seconds",
				Help:    "Duration of callsign lookups per provider",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider"},
		),

		LookupCacheHits: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "cw_callsign_lookup_cache_hits_total",
				Help: "Total number of callsign lookups served from cache",
			},
		),

		SyncRunsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cw_sync_runs_total",
				Help: "Total number of sync runs per backend",
			},
			[]string{"backend", "status"},
		),

		SyncUploadedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cw_sync_uploaded_total",
				Help: "Total number of QSOs uploaded per backend",
			},
			[]string{"backend"},
		),

		SyncDownloadedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cw_sync_downloaded_total",
				Help: "Total number of QSOs downloaded per backend",
			},
			[]string{"backend"},
		),

		SyncDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cw_sync_duration_seconds",
				Help:    "Duration of sync runs per backend",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"backend"},
		),

		SyncErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cw_sync_errors_total",
				Help: "Total number of sync errors per backend",
			},
			[]string{"backend", "error_type"},
		),

		UnsyncedQSOs: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "cw_unsynced_qsos",
				Help: "Number of QSOs not yet uploaded per backend",
			},
			[]string{"backend"},
		),

		SpotsReceivedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cw_spots_received_total",
				Help: "Total number of spots received per feed",
			},
			[]string{"source"},
		),

		SpotFeedReconnects: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cw_spot_feed_reconnects_total",
				Help: "Total number of spot feed reconnect attempts",
			},
			[]string{"source"},
		),

		SpotParseErrors: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "cw_spot_parse_errors_total",
				Help: "Total number of unparseable spot lines",
			},
		),

		NotificationsSentTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cw_notifications_sent_total",
				Help: "Total number of notifications sent",
			},
			[]string{"channel", "type"},
		),

		NotificationFailuresTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cw_notification_failures_total",
				Help: "Total number of failed notifications",
			},
			[]string{"channel", "type", "error"},
		),

		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cw_http_requests_total",
				Help: "Total number of HTTP requests received",
			},
			[]string{"method", "path", "status"},
		),

		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cw_http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		ApplicationUptime: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "cw_application_uptime_seconds",
				Help: "Application uptime in seconds",
			},
		),

		ComponentHealth: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "cw_component_health",
				Help: "Health status of application components (1=healthy, 0=unhealthy)",
			},
			[]string{"component"},
		),

		MemoryUsage: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "cw_memory_usage_bytes",
				Help: "Current memory usage in bytes",
			},
		),

		GoroutineCount: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "cw_goroutines",
				Help: "Number of running goroutines",
			},
		),

		SolarFluxIndex: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "cw_solar_flux_index",
				Help: "Latest 10.7cm solar flux index",
			},
		),

		AIndex: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "cw_geomagnetic_a_index",
				Help: "Latest planetary A index",
			},
		),

		KIndex: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "cw_geomagnetic_k_index",
				Help: "Latest planetary K index",
			},
		),
	}
}

// RecordQSOLogged records a newly logged QSO
func (m *PrometheusMetrics) RecordQSOLogged(band, mode string) {
	m.QSOsLoggedTotal.WithLabelValues(band, mode).Inc()
}

// RecordQSOsImported records QSOs imported from a file or backend
func (m *PrometheusMetrics) RecordQSOsImported(source string, count int) {
	m.QSOsImportedTotal.WithLabelValues(source).Add(float64(count))
}

// UpdateQSOsTotal updates the stored QSO count
func (m *PrometheusMetrics) UpdateQSOsTotal(count int64) {
	m.QSOsTotal.Set(float64(count))
}

// RecordLookup records a callsign lookup against a provider
func (m *PrometheusMetrics) RecordLookup(provider, status string, duration time.Duration) {
	m.LookupsTotal.WithLabelValues(provider, status).Inc()
	m.LookupDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordLookupCacheHit records a lookup served from cache
func (m *PrometheusMetrics) RecordLookupCacheHit() {
	m.LookupCacheHits.Inc()
}

// RecordSyncRun records a completed sync run
func (m *PrometheusMetrics) RecordSyncRun(backend, status string, duration time.Duration) {
	m.SyncRunsTotal.WithLabelValues(backend, status).Inc()
	m.SyncDuration.WithLabelValues(backend).Observe(duration.Seconds())
}

// RecordSyncUploaded records QSOs uploaded to a backend
func (m *PrometheusMetrics) RecordSyncUploaded(backend string, count int) {
	m.SyncUploadedTotal.WithLabelValues(backend).Add(float64(count))
}

// RecordSyncDownloaded records QSOs downloaded from a backend
func (m *PrometheusMetrics) RecordSyncDownloaded(backend string, count int) {
	m.SyncDownloadedTotal.WithLabelValues(backend).Add(float64(count))
}

// RecordSyncError records a sync failure
func (m *PrometheusMetrics) RecordSyncError(backend, errorType string) {
	m.SyncErrorsTotal.WithLabelValues(backend, errorType).Inc()
}

// UpdateUnsyncedQSOs updates the per-backend unsynced gauge
func (m *PrometheusMetrics) UpdateUnsyncedQSOs(backend string, count int64) {
	m.UnsyncedQSOs.WithLabelValues(backend).Set(float64(count))
}

// RecordSpotReceived records a spot received from a feed
func (m *PrometheusMetrics) RecordSpotReceived(source string) {
	m.SpotsReceivedTotal.WithLabelValues(source).Inc()
}

// RecordSpotFeedReconnect records a feed reconnect attempt
func (m *PrometheusMetrics) RecordSpotFeedReconnect(source string) {
	m.SpotFeedReconnects.WithLabelValues(source).Inc()
}

// RecordSpotParseError records an unparseable feed line
func (m *PrometheusMetrics) RecordSpotParseError() {
	m.SpotParseErrors.Inc()
}

// RecordNotificationSent records a sent notification
func (m *PrometheusMetrics) RecordNotificationSent(channel, notificationType string) {
	m.NotificationsSentTotal.WithLabelValues(channel, notificationType).Inc()
}

// RecordNotificationFailure records a failed notification
func (m *PrometheusMetrics) RecordNotificationFailure(channel, notificationType, errorType string) {
	m.NotificationFailuresTotal.WithLabelValues(channel, notificationType, errorType).Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *PrometheusMetrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// UpdateApplicationUptime updates the application uptime metric
func (m *PrometheusMetrics) UpdateApplicationUptime(startTime time.Time) {
	m.ApplicationUptime.Set(time.Since(startTime).Seconds())
}

// UpdateComponentHealth updates the health status of a component
func (m *PrometheusMetrics) UpdateComponentHealth(component string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	m.ComponentHealth.WithLabelValues(component).Set(value)
}

// UpdateMemoryUsage updates the memory usage metric
func (m *PrometheusMetrics) UpdateMemoryUsage(bytes uint64) {
	m.MemoryUsage.Set(float64(bytes))
}

// UpdateGoroutineCount updates the goroutine count metric
func (m *PrometheusMetrics) UpdateGoroutineCount(count int) {
	m.GoroutineCount.Set(float64(count))
}

// UpdateSolarConditions updates the band condition gauges
func (m *PrometheusMetrics) UpdateSolarConditions(sfi, aIndex, kIndex float64) {
	m.SolarFluxIndex.Set(sfi)
	m.AIndex.Set(aIndex)
	m.KIndex.Set(kIndex)
}
