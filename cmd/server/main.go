// Lineagehub - Collaborative Lineage Snapshot Exchange
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lineagehub

// Package main is the entry point for the lineagehub server.
//
// Lineagehub is a self-hosted exchange point for collaborative lineage
// tracking: team members push timestamped snapshot files into shared
// datasets, pull each other's snapshots back, and optionally watch a
// per-dataset progress summary grow as work lands.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: settings from environment variables and an optional
//     YAML file (Koanf v2)
//  2. Event bus: in-process pub/sub carrying upload and lifecycle events
//  3. Dataset registry: routing table over the storage root, including
//     auto-activation of directories found at startup
//  4. Progress aggregators (optional): per-dataset counters with gnuplot
//     and HTML rendering
//  5. Activity feed: websocket hub broadcasting server-wide events
//  6. HTTP server: management routes plus per-dataset file operations
//
// All long-running pieces run under a suture supervisor tree, so a
// crashed component restarts without taking the process down.
//
// # Configuration
//
// STORAGE_ROOT is mandatory; everything else has defaults:
//
//	export STORAGE_ROOT=/var/lib/lineagehub
//	export HTTP_PORT=7070
//	export PROGRESS_ENABLED=true
//	export PROGRESS_GNUPLOT=true
//	./lineagehub
//
// # Signal Handling
//
// SIGINT and SIGTERM trigger graceful shutdown: the listener stops
// accepting connections, in-flight requests get a bounded drain, and
// the event bus closes last.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/lineagehub/internal/api"
	"github.com/tomtom215/lineagehub/internal/config"
	"github.com/tomtom215/lineagehub/internal/listeners"
	"github.com/tomtom215/lineagehub/internal/logging"
	"github.com/tomtom215/lineagehub/internal/metrics"
	"github.com/tomtom215/lineagehub/internal/progress"
	"github.com/tomtom215/lineagehub/internal/registry"
	"github.com/tomtom215/lineagehub/internal/supervisor"
	"github.com/tomtom215/lineagehub/internal/supervisor/services"
	ws "github.com/tomtom215/lineagehub/internal/websocket"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("version", version).
		Str("storage_root", cfg.Storage.Root).
		Str("addr", cfg.Addr()).
		Bool("progress", cfg.Progress.Enabled).
		Msg("Starting lineagehub")

	metrics.SetAppInfo(version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := listeners.NewBus(cfg.Events.Buffer)
	defer bus.Close()

	serverListeners, err := listeners.NewServerListeners(bus)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to start server listener registry")
	}
	defer serverListeners.Close()

	var attach registry.Attacher
	if cfg.Progress.Enabled {
		attach = progress.Attacher(progress.Options{
			Gnuplot:       cfg.Progress.Gnuplot,
			HTML:          cfg.Progress.HTML,
			BucketSeconds: cfg.Progress.BucketSeconds,
		}, nil)
		logging.Info().
			Bool("gnuplot", cfg.Progress.Gnuplot).
			Bool("html", cfg.Progress.HTML).
			Int64("bucket_seconds", cfg.Progress.BucketSeconds).
			Msg("Progress aggregation enabled")
	}

	reg := registry.New(cfg.Storage.Root, bus, serverListeners, attach)
	defer reg.Close()

	// Directories already under the storage root become datasets again.
	if err := reg.ScanExisting(); err != nil {
		logging.Fatal().Err(err).Msg("Failed to scan storage root")
	}

	hub := ws.NewHub()
	feed := ws.NewFeed(hub, bus)

	router := api.NewRouter(cfg, reg, hub)

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  60 * time.Second,
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddExchangeService(services.NewRunnerService("activity-hub", hub))
	tree.AddExchangeService(services.NewRunnerService("activity-feed", feed))
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish")
		if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error during shutdown")
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	if report, err := tree.UnstoppedServiceReport(); err == nil && len(report) > 0 {
		for _, svc := range report {
			logging.Warn().Str("service", svc.Name).Msg("Service did not stop in time")
		}
	}

	logging.Info().Msg("Shutdown complete")
}
