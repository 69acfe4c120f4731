// Package evidence discovers videos, traces and screenshots left by the
// test runner in its results directory.
package evidence

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/harrison/selfheal/internal/models"
)

// Fixed filenames the runner writes into each per-test sub-directory.
const (
	VideoFile = "video.webm"
	TraceFile = "trace.zip"
)

// Collect scans every sub-directory of dir. A missing directory yields
// empty evidence. Unreadable entries are skipped and reported in the
// returned error, alongside whatever was found; callers log it and go on.
func Collect(dir string) (models.Evidence, error) {
	var ev models.Evidence
	if dir == "" {
		return ev, nil
	}
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		return ev, nil
	}

	var problems []error
	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			problems = append(problems, err)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		// Files directly in dir are reports, not per-test evidence.
		if filepath.Dir(path) == filepath.Clean(dir) {
			return nil
		}

		name := d.Name()
		switch {
		case name == VideoFile:
			ev.Videos = append(ev.Videos, path)
		case name == TraceFile:
			ev.Traces = append(ev.Traces, path)
		case strings.HasSuffix(strings.ToLower(name), ".png"):
			ev.Screenshots = append(ev.Screenshots, path)
		}
		return nil
	})
	if walkErr != nil {
		problems = append(problems, walkErr)
	}

	sort.Strings(ev.Videos)
	sort.Strings(ev.Traces)
	sort.Strings(ev.Screenshots)

	if len(problems) > 0 {
		return ev, fmt.Errorf("evidence scan of %s incomplete: %w", dir, errors.Join(problems...))
	}
	return ev, nil
}
