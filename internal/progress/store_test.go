// Lineagehub - Collaborative Lineage Snapshot Exchange
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lineagehub

package progress

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tomtom215/lineagehub/internal/lineage"
	"github.com/tomtom215/lineagehub/internal/listeners"
)

func writeSnapshot(t *testing.T, dir, name string, spots, links int) {
	t.Helper()
	model := lineage.EncodeCountHeader(spots, links, []byte("graph body"))
	if err := lineage.WriteSnapshot(filepath.Join(dir, name), model, []byte("tags")); err != nil {
		t.Fatalf("WriteSnapshot %s: %v", name, err)
	}
}

func TestActionAccumulates(t *testing.T) {
	s := NewStatusStore("demo", t.TempDir())

	t1 := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	t2 := time.Date(2024, 1, 15, 11, 0, 0, 0, time.UTC)
	s.Action(t1, "alice", 5, 3)
	s.Action(t2, "alice", 8, 4)
	s.Action(t1, "bob", 1, 1)

	if got, ok := s.LatestCount("alice"); !ok || got != 12 {
		t.Errorf("alice latest = %d,%v, want 12,true", got, ok)
	}
	if got, ok := s.LatestCount("bob"); !ok || got != 2 {
		t.Errorf("bob latest = %d,%v, want 2,true", got, ok)
	}
	if _, ok := s.LatestCount("carol"); ok {
		t.Error("carol should have no series")
	}
	if users := s.Users(); len(users) != 2 || users[0] != "alice" || users[1] != "bob" {
		t.Errorf("Users() = %v", users)
	}
	if s.EventCount() != 3 {
		t.Errorf("EventCount = %d, want 3", s.EventCount())
	}
}

func TestActionSameSecondOverwrites(t *testing.T) {
	s := NewStatusStore("demo", t.TempDir())

	when := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	s.Action(when, "alice", 5, 3)
	s.Action(when, "alice", 9, 9)

	if got, _ := s.LatestCount("alice"); got != 18 {
		t.Errorf("latest = %d, want overwritten 18", got)
	}
	if s.EventCount() != 1 {
		t.Errorf("EventCount = %d, want 1", s.EventCount())
	}
}

func TestServerActionFiltersDataset(t *testing.T) {
	s := NewStatusStore("demo", t.TempDir())

	when := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	s.ServerAction("other", when, "alice", 5, 3)
	if s.EventCount() != 0 {
		t.Error("event for another dataset must be ignored")
	}
	s.ServerAction("demo", when, "alice", 5, 3)
	if s.EventCount() != 1 {
		t.Error("event for own dataset must be recorded")
	}
}

func TestReplayDeterminism(t *testing.T) {
	dir := t.TempDir()

	// Two authors, five files. Lexical order matches time order.
	writeSnapshot(t, dir, "2024-01-10__08-00-00__alice.mstdn", 1, 1)
	writeSnapshot(t, dir, "2024-01-11__08-00-00__alice.mstdn", 5, 3)
	writeSnapshot(t, dir, "2024-01-12__08-00-00__alice.mstdn", 10, 4)
	writeSnapshot(t, dir, "2024-01-10__09-00-00__bob.mstdn", 2, 0)
	writeSnapshot(t, dir, "2024-01-13__09-00-00__bob.mstdn", 7, 7)
	// Not a valid snapshot name; replay must skip it.
	if err := os.WriteFile(filepath.Join(dir, "README.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := NewStatusStore("demo", dir)
	if err := s.Replay(lineage.ContainerCounter{}); err != nil {
		t.Fatalf("Replay: %v", err)
	}

	if s.EventCount() != 5 {
		t.Errorf("EventCount = %d, want 5", s.EventCount())
	}
	if got, _ := s.LatestCount("alice"); got != 14 {
		t.Errorf("alice latest = %d, want 14 from lexically-last file", got)
	}
	if got, _ := s.LatestCount("bob"); got != 14 {
		t.Errorf("bob latest = %d, want 14 from lexically-last file", got)
	}
}

func TestReplaySkipsUndecodableSnapshots(t *testing.T) {
	dir := t.TempDir()
	writeSnapshot(t, dir, "2024-01-10__08-00-00__alice.mstdn", 3, 2)
	// Validly named but not a snapshot container.
	if err := os.WriteFile(filepath.Join(dir, "2024-01-11__08-00-00__alice.mstdn"), []byte("junk"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := NewStatusStore("demo", dir)
	if err := s.Replay(lineage.ContainerCounter{}); err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if s.EventCount() != 1 {
		t.Errorf("EventCount = %d, want 1 (junk skipped)", s.EventCount())
	}
}

func TestGnuplotArtifacts(t *testing.T) {
	dir := t.TempDir()
	s, err := NewProgressStore("demo", dir, Options{Gnuplot: true})
	if err != nil {
		t.Fatalf("NewProgressStore: %v", err)
	}

	script := filepath.Join(dir, "gnuplot", "refreshPlot.gnuplot")
	if _, err := os.Stat(script); err != nil {
		t.Fatalf("plot script not created: %v", err)
	}

	t1 := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	t2 := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	s.Action(t1, "alice", 5, 3)
	s.Action(t2, "alice", 9, 3)

	data, err := os.ReadFile(filepath.Join(dir, "gnuplot", "alice.dat"))
	if err != nil {
		t.Fatalf("series file: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("series lines = %d, want 2", len(lines))
	}
	if !strings.HasPrefix(lines[0], "2024-01-15T10:00:00\t") || !strings.HasSuffix(lines[0], "\t8") {
		t.Errorf("first line = %q", lines[0])
	}
	if !strings.HasSuffix(lines[1], "\t12") {
		t.Errorf("second line = %q", lines[1])
	}
}

func TestHTMLTable(t *testing.T) {
	dir := t.TempDir()
	s, err := NewProgressStore("demo", dir, Options{HTML: true, BucketSeconds: 3600})
	if err != nil {
		t.Fatalf("NewProgressStore: %v", err)
	}

	s.Action(time.Date(2024, 1, 15, 10, 20, 0, 0, time.UTC), "alice", 5, 3)
	s.Action(time.Date(2024, 1, 15, 10, 40, 0, 0, time.UTC), "bob", 2, 2)
	s.Action(time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC), "alice", 9, 9)

	data, err := os.ReadFile(filepath.Join(dir, "status.html"))
	if err != nil {
		t.Fatalf("status.html: %v", err)
	}
	body := string(data)
	for _, want := range []string{
		"<th>alice</th>", "<th>bob</th>",
		"reached 8 on 2024-01-15T10:20:00",
		"reached 4 on 2024-01-15T10:40:00",
		"reached 18 on 2024-01-15T12:00:00",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("status.html missing %q", want)
		}
	}
}

func TestAttachPrefersDatasetScope(t *testing.T) {
	dir := t.TempDir()
	writeSnapshot(t, dir, "2024-01-10__08-00-00__alice.mstdn", 3, 1)

	bus := listeners.NewBus(64)
	t.Cleanup(func() { _ = bus.Close() })
	srv, err := listeners.NewServerListeners(bus)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(srv.Close)
	dl, err := listeners.NewDatasetListeners("demo", bus, srv)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(dl.Close)
	srv.RegisterDataset(dl)

	s := NewStatusStore("demo", dir)
	if err := s.Attach(srv, lineage.ContainerCounter{}); err != nil {
		t.Fatalf("Attach: %v", err)
	}

	// Replay picked up the pre-existing file.
	if got, _ := s.LatestCount("alice"); got != 4 {
		t.Errorf("alice latest after replay = %d, want 4", got)
	}

	// Live event flows through the dataset-scoped hook.
	dl.NotifyLineageArrived(time.Date(2024, 1, 11, 8, 0, 0, 0, time.UTC), "alice", 6, 6)
	deadline := time.Now().Add(2 * time.Second)
	for {
		if got, _ := s.LatestCount("alice"); got == 12 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for live event")
		}
		time.Sleep(10 * time.Millisecond)
	}

	s.Detach()
	dl.NotifyLineageArrived(time.Date(2024, 1, 12, 8, 0, 0, 0, time.UTC), "alice", 9, 9)
	time.Sleep(100 * time.Millisecond)
	if got, _ := s.LatestCount("alice"); got != 12 {
		t.Errorf("latest after Detach = %d, want unchanged 12", got)
	}
}

func TestAttacherReplaysAndDetaches(t *testing.T) {
	dir := t.TempDir()
	writeSnapshot(t, dir, "2024-01-10__08-00-00__alice.mstdn", 2, 2)

	bus := listeners.NewBus(64)
	t.Cleanup(func() { _ = bus.Close() })
	dl, err := listeners.NewDatasetListeners("demo", bus, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(dl.Close)

	attach := Attacher(Options{}, nil)
	detach, err := attach("demo", dir, dl)
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	if detach == nil {
		t.Fatal("attach returned nil detach")
	}
	detach()
}
