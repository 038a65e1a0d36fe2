// Lineagehub - Collaborative Lineage Snapshot Exchange
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lineagehub

// Package config loads server configuration via Koanf v2 with layered
// sources (highest priority wins): environment variables, optional YAML
// config file, built-in defaults.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config is the root configuration for the Lineagehub server.
type Config struct {
	Storage  StorageConfig  `koanf:"storage"`
	Server   ServerConfig   `koanf:"server"`
	Events   EventsConfig   `koanf:"events"`
	Progress ProgressConfig `koanf:"progress"`
	Security SecurityConfig `koanf:"security"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// StorageConfig locates the dataset root folder, the single source of truth
// for all snapshot data.
type StorageConfig struct {
	// Root is the folder under which every dataset directory lives.
	// Mandatory; the server refuses to start without it.
	Root string `koanf:"root"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"`
}

// EventsConfig tunes the in-process notification bus.
type EventsConfig struct {
	// Buffer is the per-subscriber channel buffer of the gochannel bus.
	// Uploads never block on notification delivery as long as the buffer
	// has room; once a subscriber's buffer fills, publishers block until
	// it drains.
	Buffer int `koanf:"buffer"`
}

// ProgressConfig controls the per-dataset progress aggregators.
type ProgressConfig struct {
	// Enabled attaches a progress aggregator to every dataset.
	Enabled bool `koanf:"enabled"`
	// Gnuplot renders per-user time-series files and invokes gnuplot.
	Gnuplot bool `koanf:"gnuplot"`
	// HTML renders the status.html summary table.
	HTML bool `koanf:"html"`
	// BucketSeconds is the coarse time resolution of the HTML summary.
	// 3600 (1h) and 43200 (12h) are both deployed values.
	BucketSeconds int64 `koanf:"bucket_seconds"`
}

// SecurityConfig holds the outer HTTP hardening knobs. There is no
// authentication by design: knowledge of an unguessable dataset name is the
// only credential.
type SecurityConfig struct {
	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

// LoggingConfig configures the zerolog output.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns a Config with all default values. Defaults are
// applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			Root: "",
		},
		Server: ServerConfig{
			Host:    "localhost",
			Port:    7070,
			Timeout: 30 * time.Second,
		},
		Events: EventsConfig{
			Buffer: 256,
		},
		Progress: ProgressConfig{
			Enabled:       false,
			Gnuplot:       false,
			HTML:          false,
			BucketSeconds: 3600,
		},
		Security: SecurityConfig{
			CORSOrigins:       []string{"*"},
			RateLimitReqs:     100,
			RateLimitWindow:   time.Minute,
			RateLimitDisabled: false,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Addr returns the host:port the HTTP server binds to.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Validate checks the configuration for fatal misconfiguration.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Storage.Root) == "" {
		return fmt.Errorf("storage.root is mandatory (set STORAGE_ROOT or storage.root)")
	}
	info, err := os.Stat(c.Storage.Root)
	if err != nil {
		return fmt.Errorf("storage.root %q: %w", c.Storage.Root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("storage.root %q is not a directory", c.Storage.Root)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Events.Buffer < 1 {
		return fmt.Errorf("events.buffer must be positive, got %d", c.Events.Buffer)
	}
	if c.Progress.BucketSeconds < 1 {
		return fmt.Errorf("progress.bucket_seconds must be positive, got %d", c.Progress.BucketSeconds)
	}
	return nil
}
