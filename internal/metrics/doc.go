// Lineagehub - Collaborative Lineage Snapshot Exchange
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lineagehub

/*
Package metrics provides Prometheus metrics collection and export for observability.

This package instruments the snapshot exchange with the Prometheus client library,
exposing metrics for monitoring throughput, errors, and system health.

# Metrics Endpoint

Metrics are exposed at the /metrics endpoint in Prometheus text format:

	curl http://localhost:7070/metrics

# Available Metrics

Snapshot Exchange Metrics:
  - snapshot_uploads_total: Uploaded snapshot files (counter)
    Labels: dataset
  - snapshot_downloads_total: Served snapshot files (counter)
    Labels: dataset
  - snapshot_listings_total: File listing requests (counter)
    Labels: dataset
  - snapshot_upload_bytes_total: Bytes received in uploads (counter)
    Labels: dataset
  - snapshot_rejected_total: Rejected requests (counter)
    Labels: dataset, reason (bad_name, bad_count, traversal)

Dataset Lifecycle Metrics:
  - datasets_active: Currently registered datasets (gauge)
  - datasets_created_total: Dataset registrations (counter)
    Labels: mode (plain, secret, scan)
  - datasets_removed_total: Dataset removals (counter)

Event Bus Metrics:
  - events_published_total: Events published (counter)
    Labels: scope (dataset, server), type
  - events_dropped_total: Events dropped by slow subscribers (counter)
    Labels: scope
  - listeners_registered: Registered listeners (gauge)
    Labels: scope

Progress Rendering Metrics:
  - progress_renders_total: Artifact renders (counter)
    Labels: renderer (gnuplot, html)
  - progress_render_failures_total: Failed renders (counter)
    Labels: renderer
  - progress_render_duration_seconds: Render latency (histogram)
    Labels: renderer

API Metrics:
  - api_requests_total: Total API requests (counter)
    Labels: method, endpoint, status_code
  - api_request_duration_seconds: Request latency (histogram)
    Labels: method, endpoint
  - api_active_requests: Active requests (gauge)
  - api_rate_limit_hits_total: Rate limit rejections (counter)
    Labels: endpoint

WebSocket Metrics:
  - websocket_connections: Active activity feed connections (gauge)
  - websocket_messages_sent_total: Messages sent (counter)
  - websocket_errors_total: WebSocket errors (counter)
    Labels: error_type

Circuit Breaker Metrics:
  - circuit_breaker_state: Current state (gauge)
    Labels: name
    Values: 0=closed, 1=half-open, 2=open
  - circuit_breaker_requests_total: Requests through breaker (counter)
    Labels: name, result

# Usage Example

	import (
	    "github.com/tomtom215/lineagehub/internal/metrics"
	    "github.com/prometheus/client_golang/prometheus/promhttp"
	)

	func main() {
	    http.Handle("/metrics", promhttp.Handler())

	    metrics.RecordUpload("mydataset", 4096)
	    metrics.RecordAPIRequest("GET", "/mydataset/list", "200", 23*time.Millisecond)
	}

# Cardinality Management

Dataset names are the only user-controlled label dimension. Deployments share
datasets among small research groups, so dataset cardinality stays in the tens.
Rejection reasons and renderer names are fixed constants.

# Thread Safety

All metric recording functions are thread-safe and designed for concurrent use
from multiple goroutines. The Prometheus client library handles synchronization
internally.

# See Also

  - internal/middleware: HTTP middleware with metrics integration
  - internal/dataset: Upload and download metrics recording
  - https://prometheus.io/docs/practices/naming/: Metric naming conventions
*/
package metrics
