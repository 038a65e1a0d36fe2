// Lineagehub - Collaborative Lineage Snapshot Exchange
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lineagehub

// Package progress accumulates per-user annotation progress over time for
// one dataset and renders it as gnuplot artifacts and an HTML table.
//
// A store observes lineage arrivals, keeps a user -> (epoch second ->
// cumulative spot+link count) series in memory, and replays history from
// the snapshot files already on disk when it attaches. Rendering is
// best-effort: a failed render is logged and never propagates back into
// the upload path that triggered it.
package progress

import (
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/tomtom215/lineagehub/internal/lineage"
	"github.com/tomtom215/lineagehub/internal/listeners"
	"github.com/tomtom215/lineagehub/internal/logging"
)

// DefaultBucketSeconds is the HTML table's time bucket width.
const DefaultBucketSeconds = 3600

// Options selects the side effects of a full store. The zero value keeps
// the series in memory only.
type Options struct {
	// Gnuplot enables per-user .dat series files and a plotting-tool
	// invocation under <dataset dir>/gnuplot.
	Gnuplot bool

	// HTML enables rendering <dataset dir>/status.html.
	HTML bool

	// BucketSeconds is the HTML time bucket width. Zero means
	// DefaultBucketSeconds.
	BucketSeconds int64
}

// Store aggregates one dataset's progress. A single store-wide mutex
// serializes Action against itself and against replay, so concurrent
// uploads from the same user cannot race on that user's series.
type Store struct {
	dataset string
	dir     string

	mu    sync.Mutex
	stats map[string]map[int64]int64

	gnuplotDir    string
	htmlPath      string
	bucketSeconds int64

	// Registration handles, populated by Attach.
	attachedDataset *listeners.DatasetListeners
	attachedServer  *listeners.ServerListeners
	datasetID       listeners.ListenerID
	serverID        listeners.ListenerID
	hooked          bool
}

// NewStatusStore creates the lightweight variant: in-memory series only.
func NewStatusStore(dataset, dir string) *Store {
	return &Store{
		dataset:       dataset,
		dir:           dir,
		stats:         make(map[string]map[int64]int64),
		bucketSeconds: DefaultBucketSeconds,
	}
}

// NewProgressStore creates the full variant with the side effects opts
// selects. The gnuplot working folder and script are prepared eagerly so
// a misconfigured output location fails at dataset activation, not at the
// first upload.
func NewProgressStore(dataset, dir string, opts Options) (*Store, error) {
	s := NewStatusStore(dataset, dir)
	if opts.BucketSeconds > 0 {
		s.bucketSeconds = opts.BucketSeconds
	}
	if opts.Gnuplot {
		gnuplotDir, err := setupGnuplotDir(dir)
		if err != nil {
			return nil, err
		}
		s.gnuplotDir = gnuplotDir
	}
	if opts.HTML {
		s.htmlPath = filepath.Join(dir, "status.html")
	}
	return s, nil
}

// Dataset returns the dataset this store aggregates.
func (s *Store) Dataset() string { return s.dataset }

// Action upserts stats[user][epoch seconds] = spots+links, then re-renders
// the enabled outputs. Render failures are logged and do not roll back the
// in-memory update.
func (s *Store) Action(date time.Time, user string, spots, links int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actionLocked(date, user, spots, links)
}

// ServerAction is the server-scoped shape of Action. Events for other
// datasets are ignored.
func (s *Store) ServerAction(dataset string, date time.Time, user string, spots, links int) {
	if dataset != s.dataset {
		return
	}
	s.Action(date, user, spots, links)
}

func (s *Store) actionLocked(date time.Time, user string, spots, links int) {
	series, ok := s.stats[user]
	if !ok {
		series = make(map[int64]int64)
		s.stats[user] = series
	}
	series[date.UTC().Unix()] = int64(spots) + int64(links)

	if s.gnuplotDir != "" {
		s.renderGnuplot(user, series)
	}
	if s.htmlPath != "" {
		s.renderHTML()
	}
}

// LatestCount returns the most recent cumulative count for user, or false
// when the user has no series.
func (s *Store) LatestCount(user string) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	series, ok := s.stats[user]
	if !ok || len(series) == 0 {
		return 0, false
	}
	var latest int64 = -1 << 62
	var count int64
	for t, c := range series {
		if t > latest {
			latest = t
			count = c
		}
	}
	return count, true
}

// Users returns the users with recorded progress, sorted.
func (s *Store) Users() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.stats))
	for user := range s.stats {
		out = append(out, user)
	}
	sort.Strings(out)
	return out
}

// EventCount returns the total number of recorded (user, time) points.
func (s *Store) EventCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, series := range s.stats {
		n += len(series)
	}
	return n
}

// Attach hooks the store onto the server's notifications, preferring the
// dataset-scoped registry when one exists, and then replays history from
// the snapshot files already in the dataset directory. counter decodes a
// snapshot just far enough to obtain its vertex and edge counts.
func (s *Store) Attach(srv *listeners.ServerListeners, counter lineage.GraphCounter) error {
	if dl := srv.Dataset(s.dataset); dl != nil {
		s.AttachListeners(dl)
	} else {
		s.attachedServer = srv
		s.serverID = srv.AddLineageArrivedListener(s.ServerAction)
		s.hooked = true
	}
	return s.Replay(counter)
}

// AttachListeners hooks the store directly onto a dataset-scoped registry.
// Used by the dataset registry, which holds the registry before it is
// published in the server-wide map.
func (s *Store) AttachListeners(dl *listeners.DatasetListeners) {
	s.attachedDataset = dl
	s.datasetID = dl.AddLineageArrivedListener(s.Action)
	s.hooked = true
}

// Detach removes the store's listener registrations. In-memory stats and
// rendered artifacts stay behind.
func (s *Store) Detach() {
	if !s.hooked {
		return
	}
	if s.attachedDataset != nil {
		s.attachedDataset.RemoveLineageArrivedListener(s.datasetID)
		s.attachedDataset = nil
	}
	if s.attachedServer != nil {
		s.attachedServer.RemoveLineageArrivedListener(s.serverID)
		s.attachedServer = nil
	}
	s.hooked = false
}

// Replay synthesizes one Action call per existing snapshot file, in
// filename order, calling the store's own handler directly so no live
// notifications reach other listeners. Undecodable snapshots are logged
// and skipped.
func (s *Store) Replay(counter lineage.GraphCounter) error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.Type().IsRegular() && lineage.ValidName(entry.Name()) {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, name := range names {
		ts, err := lineage.NameTimestamp(name)
		if err != nil {
			logging.Warn().Err(err).Str("dataset", s.dataset).Str("file", name).
				Msg("Skipping snapshot with undecodable timestamp")
			continue
		}
		spots, links, err := counter.Counts(filepath.Join(s.dir, name))
		if err != nil {
			logging.Warn().Err(err).Str("dataset", s.dataset).Str("file", name).
				Msg("Skipping snapshot with undecodable counts")
			continue
		}
		s.actionLocked(ts, lineage.NameAuthor(name), spots, links)
	}
	return nil
}
