// Lineagehub - Collaborative Lineage Snapshot Exchange
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lineagehub

package progress

import (
	"fmt"
	"html"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/tomtom215/lineagehub/internal/logging"
	"github.com/tomtom215/lineagehub/internal/metrics"
)

// renderHTML rewrites the status table from the current stats. Rows are
// coarse time buckets, columns are users, cells carry one "reached <count>
// on <timestamp>" message per sample in the bucket. Called with the store
// mutex held.
func (s *Store) renderHTML() {
	start := time.Now()
	err := s.writeHTMLTable()
	metrics.RecordProgressRender("html", time.Since(start), err)
	if err != nil {
		logging.Error().Err(err).Str("dataset", s.dataset).Msg("Failed to write status HTML")
	}
}

func (s *Store) writeHTMLTable() error {
	users := make([]string, 0, len(s.stats))
	for user := range s.stats {
		users = append(users, user)
	}
	sort.Strings(users)

	// bucket -> user -> messages in time order
	cells := make(map[int64]map[string][]string)
	for _, user := range users {
		series := s.stats[user]
		times := make([]int64, 0, len(series))
		for t := range series {
			times = append(times, t)
		}
		sort.Slice(times, func(i, j int) bool { return times[i] < times[j] })

		for _, t := range times {
			bucket := t / s.bucketSeconds
			row, ok := cells[bucket]
			if !ok {
				row = make(map[string][]string)
				cells[bucket] = row
			}
			msg := fmt.Sprintf("reached %d on %s",
				series[t], time.Unix(t, 0).UTC().Format("2006-01-02T15:04:05"))
			row[user] = append(row[user], msg)
		}
	}

	buckets := make([]int64, 0, len(cells))
	for b := range cells {
		buckets = append(buckets, b)
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i] < buckets[j] })

	var sb strings.Builder
	sb.WriteString("<!DOCTYPE html>\n<html><head><title>")
	sb.WriteString(html.EscapeString(s.dataset))
	sb.WriteString(" progress</title></head><body>\n<table border=\"1\">\n<tr><th>time</th>")
	for _, user := range users {
		sb.WriteString("<th>" + html.EscapeString(user) + "</th>")
	}
	sb.WriteString("</tr>\n")

	for _, bucket := range buckets {
		bucketStart := time.Unix(bucket*s.bucketSeconds, 0).UTC().Format("2006-01-02 15:04")
		sb.WriteString("<tr><td>" + bucketStart + "</td>")
		for _, user := range users {
			sb.WriteString("<td>")
			for i, msg := range cells[bucket][user] {
				if i > 0 {
					sb.WriteString("<br>")
				}
				sb.WriteString(html.EscapeString(msg))
			}
			sb.WriteString("</td>")
		}
		sb.WriteString("</tr>\n")
	}
	sb.WriteString("</table>\n</body></html>\n")

	return os.WriteFile(s.htmlPath, []byte(sb.String()), 0o644)
}
