// Lineagehub - Collaborative Lineage Snapshot Exchange
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lineagehub

package metrics

import (
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus Metrics Integration for Production Observability
// This package provides instrumentation for:
// - Snapshot uploads, downloads and listings per dataset
// - Dataset lifecycle (registered datasets, removals)
// - Event bus throughput and subscriber drops
// - Progress rendering (gnuplot, HTML)
// - API endpoint latency and throughput
// - WebSocket activity feed connections

var (
	// Snapshot Exchange Metrics
	SnapshotUploads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snapshot_uploads_total",
			Help: "Total number of snapshot files uploaded",
		},
		[]string{"dataset"},
	)

	SnapshotDownloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snapshot_downloads_total",
			Help: "Total number of snapshot files served",
		},
		[]string{"dataset"},
	)

	SnapshotListings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snapshot_listings_total",
			Help: "Total number of file listing requests",
		},
		[]string{"dataset"},
	)

	SnapshotUploadBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snapshot_upload_bytes_total",
			Help: "Total bytes received in snapshot uploads",
		},
		[]string{"dataset"},
	)

	SnapshotRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snapshot_rejected_total",
			Help: "Total number of rejected snapshot requests",
		},
		[]string{"dataset", "reason"}, // "bad_name", "bad_count", "traversal"
	)

	// Dataset Lifecycle Metrics
	DatasetsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "datasets_active",
			Help: "Current number of registered datasets",
		},
	)

	DatasetsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datasets_created_total",
			Help: "Total number of datasets registered",
		},
		[]string{"mode"}, // "plain", "secret", "scan"
	)

	DatasetsRemoved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "datasets_removed_total",
			Help: "Total number of datasets removed",
		},
	)

	// Event Bus Metrics
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_published_total",
			Help: "Total number of events published on the bus",
		},
		[]string{"scope", "type"}, // scope: "dataset", "server"
	)

	EventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_dropped_total",
			Help: "Total number of events dropped by slow subscribers",
		},
		[]string{"scope"},
	)

	ListenersRegistered = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "listeners_registered",
			Help: "Current number of registered listeners",
		},
		[]string{"scope"},
	)

	// Progress Rendering Metrics
	ProgressRenders = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "progress_renders_total",
			Help: "Total number of progress artifact renders",
		},
		[]string{"renderer"}, // "gnuplot", "html"
	)

	ProgressRenderFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "progress_render_failures_total",
			Help: "Total number of failed progress renders",
		},
		[]string{"renderer"},
	)

	ProgressRenderDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "progress_render_duration_seconds",
			Help:    "Duration of progress renders in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"renderer"},
	)

	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of active API requests",
		},
	)

	APIRateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_rate_limit_hits_total",
			Help: "Total number of rate limit rejections",
		},
		[]string{"endpoint"},
	)

	// WebSocket Metrics
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections",
			Help: "Current number of active WebSocket connections",
		},
	)

	WSMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_messages_sent_total",
			Help: "Total number of WebSocket messages sent",
		},
	)

	WSErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_errors_total",
			Help: "Total number of WebSocket errors",
		},
		[]string{"error_type"},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	// System Metrics
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_info",
			Help: "Application version and build information",
		},
		[]string{"version", "go_version"},
	)

	AppUptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "app_uptime_seconds",
			Help: "Application uptime in seconds",
		},
	)
)

// RecordUpload records an accepted snapshot upload.
func RecordUpload(dataset string, bytes int64) {
	SnapshotUploads.WithLabelValues(dataset).Inc()
	SnapshotUploadBytes.WithLabelValues(dataset).Add(float64(bytes))
}

// RecordDownload records a served snapshot file.
func RecordDownload(dataset string) {
	SnapshotDownloads.WithLabelValues(dataset).Inc()
}

// RecordListing records a listing request.
func RecordListing(dataset string) {
	SnapshotListings.WithLabelValues(dataset).Inc()
}

// RecordRejection records a rejected snapshot request.
func RecordRejection(dataset, reason string) {
	SnapshotRejected.WithLabelValues(dataset, reason).Inc()
}

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordProgressRender records a progress render and its outcome.
func RecordProgressRender(renderer string, duration time.Duration, err error) {
	ProgressRenders.WithLabelValues(renderer).Inc()
	ProgressRenderDuration.WithLabelValues(renderer).Observe(duration.Seconds())
	if err != nil {
		ProgressRenderFailures.WithLabelValues(renderer).Inc()
	}
}

// TrackActiveRequest tracks active API requests
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// SetAppInfo publishes the build version and starts the uptime gauge.
// Called once at startup.
func SetAppInfo(version string) {
	AppInfo.WithLabelValues(version, runtime.Version()).Set(1)
	start := time.Now()
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			AppUptime.Set(time.Since(start).Seconds())
		}
	}()
}
