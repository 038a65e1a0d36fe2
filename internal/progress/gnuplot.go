// Lineagehub - Collaborative Lineage Snapshot Exchange
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lineagehub

package progress

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/tomtom215/lineagehub/internal/logging"
	"github.com/tomtom215/lineagehub/internal/metrics"
)

// gnuplotScriptName is the script the external plotting tool is invoked
// with, placed once in the gnuplot working folder.
const gnuplotScriptName = "refreshPlot.gnuplot"

// gnuplotScript plots every user's .dat series into ../status.png.
const gnuplotScript = `# run me as "gnuplot refreshPlot.gnuplot" in this folder

set terminal png size 800,800
set output "../status.png"
set size 0.87, 0.93

files=system('ls *.dat')
set ylabel "progress (spots+links)"
unset xtics
set x2tics
set x2tics rotate by 45
set x2label "time"
set grid x2tics
set grid ytics
set key left top
plot for [D in files] D u 2:3:x2ticlabels(1) w lp t D ps 2 noenhanced
`

// setupGnuplotDir creates <dataset dir>/gnuplot and writes the plotting
// script into it.
func setupGnuplotDir(datasetDir string) (string, error) {
	dir := filepath.Join(datasetDir, "gnuplot")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create gnuplot folder: %w", err)
	}
	script := filepath.Join(dir, gnuplotScriptName)
	if err := os.WriteFile(script, []byte(gnuplotScript), 0o644); err != nil {
		return "", fmt.Errorf("write gnuplot script: %w", err)
	}
	return dir, nil
}

// renderGnuplot rewrites the user's series file and kicks off the plotting
// tool. Called with the store mutex held.
func (s *Store) renderGnuplot(user string, series map[int64]int64) {
	start := time.Now()
	err := s.writeUserSeries(user, series)
	metrics.RecordProgressRender("gnuplot", time.Since(start), err)
	if err != nil {
		logging.Error().Err(err).Str("dataset", s.dataset).Str("user", user).
			Msg("Failed to write gnuplot series")
		return
	}
	s.runGnuplot()
}

// writeUserSeries writes <user>.dat with one "<iso>\t<epoch>\t<count>"
// line per sample, in time order.
func (s *Store) writeUserSeries(user string, series map[int64]int64) error {
	times := make([]int64, 0, len(series))
	for t := range series {
		times = append(times, t)
	}
	sort.Slice(times, func(i, j int) bool { return times[i] < times[j] })

	var sb strings.Builder
	for _, t := range times {
		stamp := time.Unix(t, 0).UTC().Format("2006-01-02T15:04:05")
		fmt.Fprintf(&sb, "%s\t%d\t%d\n", stamp, t, series[t])
	}

	target := filepath.Join(s.gnuplotDir, user+".dat")
	return os.WriteFile(target, []byte(sb.String()), 0o644)
}

// runGnuplot invokes the external plotting tool fire-and-forget. The
// process is reaped in the background; a failed start or a non-zero exit
// is logged only.
func (s *Store) runGnuplot() {
	cmd := exec.Command("gnuplot", gnuplotScriptName)
	cmd.Dir = s.gnuplotDir
	if err := cmd.Start(); err != nil {
		logging.Warn().Err(err).Str("dataset", s.dataset).Msg("Failed to start gnuplot")
		metrics.ProgressRenderFailures.WithLabelValues("gnuplot").Inc()
		return
	}
	go func() {
		if err := cmd.Wait(); err != nil {
			logging.Warn().Err(err).Str("dataset", s.dataset).Msg("gnuplot exited with error")
		}
	}()
}
