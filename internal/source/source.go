// Package source finds nginx access logs on disk and opens them for reading.
package source

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/GabrielNunesIT/go-libs/logger"

	"github.com/GabrielNunesIT/log-analyzer/internal/config"
)

// Stdin is the path that selects standard input.
const Stdin = "-"

// dateLayout is the layout of the date embedded in log file names.
const dateLayout = "20060102"

// ErrNoLogs is returned when no log file matches the configured pattern.
var ErrNoLogs = errors.New("no matching log files")

// LogFile is a log discovered on disk.
type LogFile struct {
	Path string
	Date time.Time
}

// Name returns the base name of the file, or "-" for stdin.
func (f LogFile) Name() string {
	if f.Path == Stdin {
		return Stdin
	}
	return filepath.Base(f.Path)
}

// Finder locates log files in a directory.
type Finder struct {
	cfg     config.SourceConfig
	pattern *regexp.Regexp
	logger  logger.ILogger
}

// NewFinder compiles the configured file name pattern. The pattern's first
// capture group must hold a YYYYMMDD date.
func NewFinder(cfg config.SourceConfig, log logger.ILogger) (*Finder, error) {
	re, err := regexp.Compile(cfg.Pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid source pattern %q: %w", cfg.Pattern, err)
	}
	if re.NumSubexp() < 1 {
		return nil, fmt.Errorf("source pattern %q has no date group", cfg.Pattern)
	}
	return &Finder{
		cfg:     cfg,
		pattern: re,
		logger:  log.SubLogger("Finder"),
	}, nil
}

// Dir returns the directory searched by the finder.
func (f *Finder) Dir() string {
	return f.cfg.Dir
}

// Match reports whether name is a log file name and returns its date.
// Names whose date does not parse are rejected.
func (f *Finder) Match(name string) (time.Time, bool) {
	base := filepath.Base(name)
	if f.isExcluded(base) {
		return time.Time{}, false
	}
	m := f.pattern.FindStringSubmatch(base)
	if m == nil {
		return time.Time{}, false
	}
	date, err := time.Parse(dateLayout, m[1])
	if err != nil {
		return time.Time{}, false
	}
	return date, true
}

// Find lists matching files. In latest mode only the file with the most
// recent date is returned; otherwise every match is returned oldest first.
func (f *Finder) Find() ([]LogFile, error) {
	entries, err := os.ReadDir(f.cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("reading log dir: %w", err)
	}

	var files []LogFile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		date, ok := f.Match(e.Name())
		if !ok {
			continue
		}
		files = append(files, LogFile{Path: filepath.Join(f.cfg.Dir, e.Name()), Date: date})
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("%s: %w", f.cfg.Dir, ErrNoLogs)
	}

	// Plain and gzip copies of the same day sort by path so the choice is stable.
	slices.SortFunc(files, func(a, b LogFile) int {
		if c := a.Date.Compare(b.Date); c != 0 {
			return c
		}
		return strings.Compare(a.Path, b.Path)
	})

	if f.cfg.Mode == config.ModeAll {
		f.logger.Debugf("found logs dir=%s count=%d", f.cfg.Dir, len(files))
		return files, nil
	}

	latest := files[len(files)-1]
	f.logger.Debugf("found latest log path=%s date=%s", latest.Path, latest.Date.Format(time.DateOnly))
	return []LogFile{latest}, nil
}

func (f *Finder) isExcluded(base string) bool {
	for _, pattern := range f.cfg.Exclude {
		if matched, _ := filepath.Match(pattern, base); matched {
			return true
		}
	}
	return false
}
