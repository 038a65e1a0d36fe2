// Lineagehub - Collaborative Lineage Snapshot Exchange
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lineagehub

// Package registry owns the dataset lifecycle: creating and destroying
// storage directories, wiring each dataset's file service and listener
// registry, and the name-to-service routing table.
package registry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tomtom215/lineagehub/internal/dataset"
	"github.com/tomtom215/lineagehub/internal/listeners"
	"github.com/tomtom215/lineagehub/internal/logging"
	"github.com/tomtom215/lineagehub/internal/metrics"
)

// Lifecycle errors. Handlers map all of these onto the literal ERROR body.
var (
	ErrInvalidName   = errors.New("invalid dataset name")
	ErrReservedName  = errors.New("dataset name is reserved")
	ErrAlreadyExists = errors.New("dataset already exists")
	ErrNotFound      = errors.New("dataset not found")
)

// reservedNames are top-level route prefixes a dataset may never shadow.
var reservedNames = map[string]struct{}{
	"add":       {},
	"addSecret": {},
	"remove":    {},
	"metrics":   {},
	"events":    {},
	"healthz":   {},
}

// Attacher hooks a progress aggregator (or any other observer) onto a
// freshly activated dataset. The returned detach func runs at removal.
type Attacher func(name, dir string, dl *listeners.DatasetListeners) (detach func(), err error)

// Registry is the server-side dataset table. One instance per process.
// A single registry-wide mutex guards the routing table and the listener
// map against lost updates under concurrent add and remove.
type Registry struct {
	root   string
	bus    *listeners.Bus
	server *listeners.ServerListeners
	attach Attacher

	mu       sync.Mutex
	services map[string]*dataset.Service
	detach   map[string]func()

	logger zerolog.Logger
}

// New creates a registry over the storage root. attach may be nil.
func New(root string, bus *listeners.Bus, server *listeners.ServerListeners, attach Attacher) *Registry {
	return &Registry{
		root:     root,
		bus:      bus,
		server:   server,
		attach:   attach,
		services: make(map[string]*dataset.Service),
		detach:   make(map[string]func()),
		logger:   logging.WithComponent("registry"),
	}
}

// Root returns the storage root directory.
func (r *Registry) Root() string { return r.root }

// Add activates a new dataset and returns its stored name.
func (r *Registry) Add(name string) (string, error) {
	if err := validateName(name); err != nil {
		return "", err
	}
	return r.activate(name, true, "plain")
}

// AddSecret activates a new dataset under an unguessable name
// <uuid>-<name> and returns the stored name. Knowledge of the full name
// is the only access credential.
func (r *Registry) AddSecret(name string) (string, error) {
	if err := validateName(name); err != nil {
		return "", err
	}
	stored := uuid.New().String() + "-" + name
	return r.activate(stored, true, "secret")
}

// Remove deactivates a dataset and recursively deletes its directory.
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.services[name]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	if detach := r.detach[name]; detach != nil {
		detach()
		delete(r.detach, name)
	}

	if dl := r.server.UnregisterDataset(name); dl != nil {
		dl.Close()
	}
	delete(r.services, name)

	dir := filepath.Join(r.root, name)
	files, folders, err := deleteTree(dir)
	if err != nil {
		r.logger.Error().Err(err).Str("dataset", name).Msg("Recursive delete incomplete")
	}
	r.logger.Info().Str("dataset", name).
		Int("files", files).Int("folders", folders).
		Msg("Removed dataset")

	metrics.DatasetsRemoved.Inc()
	metrics.DatasetsActive.Dec()
	r.server.NotifyDatasetRemoved(name)
	return nil
}

// Service returns the file service routing target for name, or nil.
func (r *Registry) Service(name string) *dataset.Service {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.services[name]
}

// Names returns the currently active dataset names.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.services))
	for name := range r.services {
		out = append(out, name)
	}
	return out
}

// ScanExisting auto-activates every subdirectory of the root as a dataset.
// Names are taken as-is: they were validated when originally created.
// Called once at startup before the HTTP listener opens.
func (r *Registry) ScanExisting() error {
	entries, err := os.ReadDir(r.root)
	if err != nil {
		return fmt.Errorf("scan storage root: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		if _, err := r.activate(name, false, "scan"); err != nil {
			r.logger.Error().Err(err).Str("dataset", name).Msg("Failed to auto-activate dataset")
			continue
		}
		r.logger.Info().Str("dataset", name).Msg("Auto-activated existing dataset")
	}
	return nil
}

// Close shuts down all dataset listener registries without touching storage.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name := range r.services {
		if detach := r.detach[name]; detach != nil {
			detach()
		}
		if dl := r.server.UnregisterDataset(name); dl != nil {
			dl.Close()
		}
		delete(r.services, name)
		delete(r.detach, name)
	}
}

// activate wires a dataset: directory, listener registry, file service,
// optional progress attachment, route table entry. createDir is false for
// startup-scanned datasets whose directories already exist.
func (r *Registry) activate(name string, createDir bool, mode string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.services[name]; ok {
		return "", fmt.Errorf("%w: %s", ErrAlreadyExists, name)
	}

	dir := filepath.Join(r.root, name)
	if createDir {
		if _, err := os.Stat(dir); err == nil {
			return "", fmt.Errorf("%w: %s", ErrAlreadyExists, name)
		}
		if err := os.Mkdir(dir, 0o755); err != nil {
			return "", fmt.Errorf("create dataset directory: %w", err)
		}
	}

	dl, err := listeners.NewDatasetListeners(name, r.bus, r.server)
	if err != nil {
		r.cleanupDir(dir, createDir)
		return "", fmt.Errorf("create dataset listeners: %w", err)
	}

	svc, err := dataset.New(name, dir, dl)
	if err != nil {
		dl.Close()
		r.cleanupDir(dir, createDir)
		return "", err
	}

	if r.attach != nil {
		detach, err := r.attach(name, dir, dl)
		if err != nil {
			// Progress is an observer, not part of the dataset contract.
			r.logger.Error().Err(err).Str("dataset", name).Msg("Progress attachment failed")
		} else if detach != nil {
			r.detach[name] = detach
		}
	}

	r.server.RegisterDataset(dl)
	r.services[name] = svc

	metrics.DatasetsCreated.WithLabelValues(mode).Inc()
	metrics.DatasetsActive.Inc()
	r.server.NotifyDatasetAdded(name)
	r.logger.Info().Str("dataset", name).Str("dir", dir).Str("mode", mode).Msg("Activated dataset")
	return name, nil
}

// cleanupDir removes a directory we created during a failed activation so
// no partial dataset registration is left routable.
func (r *Registry) cleanupDir(dir string, created bool) {
	if !created {
		return
	}
	if err := os.Remove(dir); err != nil {
		r.logger.Error().Err(err).Str("dir", dir).Msg("Failed to clean up dataset directory")
	}
}

func validateName(name string) error {
	if name == "" || name == "." || name == ".." {
		return fmt.Errorf("%w: empty", ErrInvalidName)
	}
	if strings.ContainsAny(name, "/\\") {
		return fmt.Errorf("%w: %s contains a path separator", ErrInvalidName, name)
	}
	if _, reserved := reservedNames[name]; reserved {
		return fmt.Errorf("%w: %s", ErrReservedName, name)
	}
	return nil
}

// deleteTree removes dir recursively, counting removed files and folders.
// The counts are informational; removal continues past individual errors
// and the first error seen is returned.
func deleteTree(dir string) (files, folders int, firstErr error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, 0, err
	}
	for _, entry := range entries {
		child := filepath.Join(dir, entry.Name())
		if entry.IsDir() {
			f, d, err := deleteTree(child)
			files += f
			folders += d
			if err != nil && firstErr == nil {
				firstErr = err
			}
			continue
		}
		if err := os.Remove(child); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		files++
	}
	if err := os.Remove(dir); err != nil {
		if firstErr == nil {
			firstErr = err
		}
	} else {
		folders++
	}
	return files, folders, firstErr
}
