// Lineagehub - Collaborative Lineage Snapshot Exchange
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lineagehub

package logging

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Context keys for logging.
type contextKey string

const (
	// requestIDKey is the context key for HTTP request IDs.
	requestIDKey contextKey = "request_id"

	// datasetKey is the context key for the dataset a request targets.
	datasetKey contextKey = "dataset"
)

// GenerateRequestID creates a new unique request ID.
func GenerateRequestID() string {
	return uuid.New().String()
}

// ContextWithRequestID returns a new context with the given request ID.
//
//	ctx = logging.ContextWithRequestID(ctx, requestID)
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext retrieves the request ID from context.
// Returns empty string if not present.
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// ContextWithDataset returns a new context tagged with a dataset name so
// all downstream log lines carry it.
func ContextWithDataset(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, datasetKey, name)
}

// DatasetFromContext retrieves the dataset name from context.
// Returns empty string if not present.
func DatasetFromContext(ctx context.Context) string {
	if name, ok := ctx.Value(datasetKey).(string); ok {
		return name
	}
	return ""
}

// Ctx returns a logger with context values (request_id, dataset) automatically
// added. This is the recommended way to log with context in handlers.
//
//	logging.Ctx(ctx).Info().Msg("Processing request")
func Ctx(ctx context.Context) *zerolog.Logger {
	contextLogger := Logger()

	if requestID := RequestIDFromContext(ctx); requestID != "" {
		contextLogger = contextLogger.With().Str("request_id", requestID).Logger()
	}
	if dataset := DatasetFromContext(ctx); dataset != "" {
		contextLogger = contextLogger.With().Str("dataset", dataset).Logger()
	}

	return &contextLogger
}

// CtxErr starts an error level message with context fields and the error.
// Shorthand for Ctx(ctx).Err(err).
func CtxErr(ctx context.Context, err error) *zerolog.Event {
	return Ctx(ctx).Err(err)
}

// WithComponent creates a child logger with a component field.
//
//	regLogger := logging.WithComponent("registry")
//	regLogger.Info().Msg("Startup scan complete")
func WithComponent(component string) zerolog.Logger {
	return With().Str("component", component).Logger()
}
