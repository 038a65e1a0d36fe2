// Lineagehub - Collaborative Lineage Snapshot Exchange
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lineagehub

// Package lineage implements the snapshot filename grammar and the snapshot
// container format shared between the server and its remote clients.
//
// A snapshot filename encodes its own metadata:
//
//	2024-01-15__10-30-00__alice.mstdn
//	^^^^^^^^^^  ^^^^^^^^  ^^^^^
//	date        time      author
//
// The filename IS the database: the server never stores snapshot metadata
// anywhere else, so all parsing of the fragile fixed-offset encoding is
// centralized here where it can be unit-tested.
package lineage

import (
	"fmt"
	"regexp"
	"time"
)

// Ext is the snapshot file extension, including the dot.
const Ext = ".mstdn"

// timestampLayout is the second-granularity wall-clock prefix of a snapshot
// filename. Lexical order of encoded timestamps equals chronological order.
const timestampLayout = "2006-01-02__15-04-05"

// timestampLen is the byte length of an encoded timestamp.
const timestampLen = len(timestampLayout)

// namePattern accepts exactly the filenames this system produces. Each digit
// position is range-checked individually; there is NO calendar validation,
// so e.g. month 13 passes. That matches the wire contract and must not be
// tightened without coordinating with deployed clients.
var namePattern = regexp.MustCompile(
	`^[2-9][0-9][0-9][0-9]-[01][0-9]-[0-3][0-9]__[012][0-9]-[0-5][0-9]-[0-5][0-9]__.+\.mstdn$`)

// Filename encodes author and wall-clock time into a snapshot filename.
//
// The author string is taken verbatim. It is not escaped, so an author name
// that itself contains ".mstdn" or "__" produces a filename whose decoding
// is ambiguous. Known limitation of the wire format, kept for compatibility.
func Filename(author string, now time.Time) string {
	return now.Format(timestampLayout) + "__" + author + Ext
}

// ValidName reports whether name matches the snapshot filename grammar.
// Decoding functions below require a valid name; their behavior on invalid
// input is unspecified.
func ValidName(name string) bool {
	return namePattern.MatchString(name)
}

// NameDate returns the raw timestamp component of a valid snapshot filename.
func NameDate(name string) string {
	return name[:timestampLen]
}

// NameTimestamp decodes the timestamp component of a valid snapshot filename.
// Timestamps carry no zone information; they are interpreted as UTC, which
// is also how the progress stores bucket them.
func NameTimestamp(name string) (time.Time, error) {
	t, err := time.ParseInLocation(timestampLayout, NameDate(name), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("decode snapshot timestamp: %w", err)
	}
	return t, nil
}

// NameAuthor returns the author component of a valid snapshot filename.
func NameAuthor(name string) string {
	return name[timestampLen+2 : len(name)-len(Ext)]
}
