// Lineagehub - Collaborative Lineage Snapshot Exchange
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lineagehub

// Package dataset implements the per-dataset file service: upload, skinny
// listing, and browse/download handlers bound to one storage directory.
package dataset

import (
	"fmt"
	"html"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/lineagehub/internal/lineage"
	"github.com/tomtom215/lineagehub/internal/listeners"
	"github.com/tomtom215/lineagehub/internal/logging"
	"github.com/tomtom215/lineagehub/internal/metrics"
)

// Upload defaults. Requests missing the query parameters are served with
// these instead of being rejected.
const (
	defaultUploadName = "fake_file"
	defaultCount      = "0"
)

// Service serves one dataset's files. The directory must exist before the
// service is constructed; the registry enforces that at creation time.
type Service struct {
	name      string
	dir       string
	listeners *listeners.DatasetListeners
}

// New binds a file service to an existing directory. dl may be nil when no
// notifications are wanted.
func New(name, dir string, dl *listeners.DatasetListeners) (*Service, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("dataset directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("dataset path %s is not a directory", dir)
	}
	return &Service{name: name, dir: dir, listeners: dl}, nil
}

// Name returns the dataset name this service is bound to.
func (s *Service) Name() string { return s.name }

// Dir returns the storage directory this service is bound to.
func (s *Service) Dir() string { return s.dir }

// Router mounts the dataset operations:
//
//	POST /put          store the request body under ?name=
//	GET  /list         newline-delimited valid snapshot names
//	GET  /files/*      browse and download, with byte-range support
//	GET  /             same as /files/
func (s *Service) Router() chi.Router {
	r := chi.NewRouter()
	r.Post("/put", s.handleUpload)
	r.Get("/list", s.handleList)
	r.Get("/files", s.handleBrowse)
	r.Get("/files/*", s.handleBrowse)
	r.Get("/", s.handleBrowse)
	return r
}

func (s *Service) handleUpload(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	name := query.Get("name")
	if name == "" {
		name = defaultUploadName
	}
	spotsStr := query.Get("spots")
	if spotsStr == "" {
		spotsStr = defaultCount
	}
	linksStr := query.Get("links")
	if linksStr == "" {
		linksStr = defaultCount
	}

	spots, err := strconv.Atoi(spotsStr)
	if err != nil {
		metrics.RecordRejection(s.name, "bad_count")
		http.Error(w, "malformed spots count", http.StatusBadRequest)
		return
	}
	links, err := strconv.Atoi(linksStr)
	if err != nil {
		metrics.RecordRejection(s.name, "bad_count")
		http.Error(w, "malformed links count", http.StatusBadRequest)
		return
	}

	if !safeName(name) {
		metrics.RecordRejection(s.name, "traversal")
		http.Error(w, "invalid file name", http.StatusBadRequest)
		return
	}

	dst := filepath.Join(s.dir, name)
	f, err := os.Create(dst)
	if err != nil {
		logging.CtxErr(r.Context(), err).Str("dataset", s.name).Str("file", name).
			Msg("Failed to open upload target")
		http.Error(w, "cannot store file", http.StatusInternalServerError)
		return
	}

	written, copyErr := io.Copy(f, r.Body)
	closeErr := f.Close()
	if copyErr != nil || closeErr != nil {
		if copyErr == nil {
			copyErr = closeErr
		}
		logging.CtxErr(r.Context(), copyErr).Str("dataset", s.name).Str("file", name).
			Int64("written", written).Msg("Upload write failed")
		// Client must treat the dropped response as upload failure.
		http.Error(w, "write failed", http.StatusInternalServerError)
		return
	}

	metrics.RecordUpload(s.name, written)
	logging.Ctx(r.Context()).Info().Str("dataset", s.name).Str("file", name).
		Int64("bytes", written).Msg("Stored upload")

	if s.listeners != nil {
		s.listeners.NotifyFileArrived(name)
		if lineage.ValidName(name) {
			ts, err := lineage.NameTimestamp(name)
			if err == nil {
				s.listeners.NotifyLineageArrived(ts, lineage.NameAuthor(name), spots, links)
			}
		}
	}
}

func (s *Service) handleList(w http.ResponseWriter, r *http.Request) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		logging.CtxErr(r.Context(), err).Str("dataset", s.name).Msg("Failed to list dataset directory")
		http.Error(w, "cannot list files", http.StatusInternalServerError)
		return
	}

	metrics.RecordListing(s.name)

	var sb strings.Builder
	for _, entry := range entries {
		if entry.Type().IsRegular() && lineage.ValidName(entry.Name()) {
			sb.WriteString(entry.Name())
			sb.WriteByte('\n')
		}
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, sb.String())
}

func (s *Service) handleBrowse(w http.ResponseWriter, r *http.Request) {
	rel := chi.URLParam(r, "*")

	clean := path.Clean("/" + rel)
	if strings.Contains(rel, "..") {
		metrics.RecordRejection(s.name, "traversal")
		http.Error(w, "invalid path", http.StatusBadRequest)
		return
	}

	target := filepath.Join(s.dir, filepath.FromSlash(clean))
	info, err := os.Stat(target)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	if info.IsDir() {
		s.serveDirListing(w, r, target, clean)
		return
	}

	// Notify before any bytes are written so observers see the request
	// even when the transfer later fails.
	if s.listeners != nil {
		s.listeners.NotifyFileRequested(filepath.Base(target))
	}
	metrics.RecordDownload(s.name)

	f, err := os.Open(target)
	if err != nil {
		logging.CtxErr(r.Context(), err).Str("dataset", s.name).Str("file", rel).
			Msg("Failed to open file for download")
		http.Error(w, "cannot open file", http.StatusInternalServerError)
		return
	}
	defer f.Close()

	// ServeContent handles byte ranges and conditional requests.
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

func (s *Service) serveDirListing(w http.ResponseWriter, r *http.Request, dir, rel string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		logging.CtxErr(r.Context(), err).Str("dataset", s.name).Msg("Failed to read directory")
		http.Error(w, "cannot read directory", http.StatusInternalServerError)
		return
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var sb strings.Builder
	sb.WriteString("<!DOCTYPE html>\n<html><head><title>")
	sb.WriteString(html.EscapeString(s.name + rel))
	sb.WriteString("</title></head><body>\n<h1>")
	sb.WriteString(html.EscapeString(s.name + rel))
	sb.WriteString("</h1>\n<ul>\n")
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			name += "/"
		}
		escaped := html.EscapeString(name)
		sb.WriteString(`<li><a href="` + escaped + `">` + escaped + "</a></li>\n")
	}
	sb.WriteString("</ul>\n</body></html>\n")

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = io.WriteString(w, sb.String())
}

// safeName rejects names that could escape the dataset directory.
func safeName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	if strings.ContainsAny(name, "/\\") {
		return false
	}
	return true
}
