// Lineagehub - Collaborative Lineage Snapshot Exchange
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lineagehub

/*
Package middleware provides HTTP middleware for the snapshot exchange API.

The middleware here wraps plain http.HandlerFunc values and is composed by
the api package. Chi-native middleware factories (CORS, rate limiting) live
in internal/api alongside the router.

# Middleware

  - RequestID: assigns or propagates X-Request-ID and seeds the logging
    context so every log line during a request carries the ID.
  - PrometheusMetrics: records per-request counters, latency histograms,
    and the active request gauge.
  - Compression: gzip-compresses responses for clients that accept it.

# Composition Order

Request ID first so metrics and log lines can reference it:

	handler = middleware.RequestID(
	    middleware.PrometheusMetrics(
	        middleware.Compression(handler)))
*/
package middleware
