// Lineagehub - Collaborative Lineage Snapshot Exchange
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lineagehub

package lineage

import (
	"testing"
	"time"
)

func TestFilename(t *testing.T) {
	at := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

	got := Filename("alice", at)
	want := "2024-01-15__10-30-00__alice.mstdn"
	if got != want {
		t.Errorf("Filename() = %q, want %q", got, want)
	}
	if !ValidName(got) {
		t.Errorf("Filename() produced a name that fails ValidName: %q", got)
	}
}

func TestValidName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"canonical", "2024-01-15__10-30-00__alice.mstdn", true},
		{"author with spaces", "2020-04-06__23-43-15__Vlado Da Tracker.mstdn", true},
		{"author with dots", "2024-02-01__00-00-00__b.ob.mstdn", true},
		{"midnight", "2024-02-01__00-00-00__bob.mstdn", true},
		// The grammar checks digit ranges, not the calendar.
		{"month 13 passes", "2024-13-01__00-00-00__bob.mstdn", true},
		{"hour 29 passes", "2024-01-01__29-00-00__bob.mstdn", true},
		{"year below 2000", "1999-01-15__10-30-00__alice.mstdn", false},
		{"minute 60", "2024-01-15__10-60-00__alice.mstdn", false},
		{"missing author", "2024-01-15__10-30-00__.mstdn", false},
		{"wrong extension", "2024-01-15__10-30-00__alice.txt", false},
		{"no extension", "2024-01-15__10-30-00__alice", false},
		{"single underscore", "2024-01-15_10-30-00__alice.mstdn", false},
		{"empty", "", false},
		{"plain file", "readme.md", false},
		{"prefix garbage", "x2024-01-15__10-30-00__alice.mstdn", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := ValidName(tc.input); got != tc.want {
				t.Errorf("ValidName(%q) = %v, want %v", tc.input, got, tc.want)
			}
		})
	}
}

func TestNameDecoding(t *testing.T) {
	const name = "2024-01-15__10-30-00__alice.mstdn"

	if got := NameDate(name); got != "2024-01-15__10-30-00" {
		t.Errorf("NameDate() = %q", got)
	}
	if got := NameAuthor(name); got != "alice" {
		t.Errorf("NameAuthor() = %q, want %q", got, "alice")
	}

	ts, err := NameTimestamp(name)
	if err != nil {
		t.Fatalf("NameTimestamp() error: %v", err)
	}
	want := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	if !ts.Equal(want) {
		t.Errorf("NameTimestamp() = %v, want %v", ts, want)
	}
}

func TestNameDecodingRoundTrip(t *testing.T) {
	authors := []string{"alice", "bob", "Vlado Da Tracker", "a_b", "x-y.z"}
	at := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	for _, author := range authors {
		name := Filename(author, at)
		if !ValidName(name) {
			t.Errorf("round trip: %q invalid", name)
			continue
		}
		if got := NameAuthor(name); got != author {
			t.Errorf("NameAuthor(%q) = %q, want %q", name, got, author)
		}
		ts, err := NameTimestamp(name)
		if err != nil {
			t.Errorf("NameTimestamp(%q) error: %v", name, err)
			continue
		}
		if !ts.Equal(at) {
			t.Errorf("NameTimestamp(%q) = %v, want %v", name, ts, at)
		}
	}
}

func TestTimestampLexicalOrder(t *testing.T) {
	// Lexical order of encoded names must match chronological order; the
	// progress replay relies on it.
	earlier := Filename("zed", time.Date(2024, 1, 15, 9, 59, 59, 0, time.UTC))
	later := Filename("ann", time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC))
	if !(earlier < later) {
		t.Errorf("expected %q < %q", earlier, later)
	}
}
