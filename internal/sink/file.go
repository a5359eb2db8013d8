package sink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/GabrielNunesIT/go-libs/logger"

	"github.com/GabrielNunesIT/log-analyzer/internal/config"
	"github.com/GabrielNunesIT/log-analyzer/internal/model"
	"github.com/GabrielNunesIT/log-analyzer/internal/report"
)

// Report file formats.
const (
	FormatHTML = "html"
	FormatJSON = "json"
)

// WriterFactory creates the writer for the report file at path. Data written
// must only become visible at path once Close succeeds.
type WriterFactory func(path string) (io.WriteCloser, error)

// FileOption configures the FileSink.
type FileOption func(*FileSink)

// WithWriterFactory sets a custom factory for creating report writers.
func WithWriterFactory(f WriterFactory) FileOption {
	return func(s *FileSink) {
		s.factory = f
	}
}

// FileSink writes HTML and JSON reports into the report directory.
type FileSink struct {
	cfg      config.ReportConfig
	formats  []string
	factory  WriterFactory
	template []byte
	mu       sync.Mutex
	logger   logger.ILogger
}

// NewFileSink creates a new file sink.
func NewFileSink(cfg config.ReportConfig, fileCfg config.FileSinkConfig, log logger.ILogger, opts ...FileOption) *FileSink {
	s := &FileSink{
		cfg:     cfg,
		formats: fileCfg.Formats,
		factory: createAtomic,
		logger:  log.SubLogger("FileSink"),
	}
	if len(s.formats) == 0 {
		s.formats = []string{FormatHTML}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the sink identifier.
func (s *FileSink) Name() string {
	return "file"
}

// Start creates the report directory and loads the HTML template.
func (s *FileSink) Start(ctx context.Context) error {
	if err := os.MkdirAll(s.cfg.Dir, 0755); err != nil {
		return fmt.Errorf("creating report dir: %w", err)
	}
	tmpl, err := report.LoadTemplate(s.cfg.Template)
	if err != nil {
		return err
	}
	s.template = tmpl
	s.logger.Debugf("file sink started: dir=%s formats=%v", s.cfg.Dir, s.formats)
	return nil
}

// Stop is a no-op; every report is closed as soon as it is written.
func (s *FileSink) Stop(ctx context.Context) error {
	return nil
}

// Exists reports whether any artifact of the named report is on disk.
func (s *FileSink) Exists(name string) bool {
	for _, format := range s.formats {
		if _, err := os.Stat(s.path(name, format)); err == nil {
			return true
		}
	}
	return false
}

// Write renders rep in every configured format. If the report is already on
// disk and overwriting is disabled, ErrReportExists is returned.
func (s *FileSink) Write(ctx context.Context, rep *model.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := rep.Name()
	if !s.cfg.Overwrite && s.Exists(name) {
		return fmt.Errorf("%s: %w", name, ErrReportExists)
	}

	for _, format := range s.formats {
		if err := ctx.Err(); err != nil {
			return err
		}

		data, err := s.render(format, rep)
		if err != nil {
			return err
		}

		path := s.path(name, format)
		if err := s.writeFile(path, data); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
		s.logger.Infof("report written: path=%s rows=%d", path, len(rep.Rows))
	}
	return nil
}

func (s *FileSink) render(format string, rep *model.Report) ([]byte, error) {
	switch format {
	case FormatHTML:
		return report.RenderHTML(s.template, rep.Rows)
	case FormatJSON:
		return report.RenderJSON(rep.Rows)
	default:
		return nil, fmt.Errorf("unknown report format %q", format)
	}
}

func (s *FileSink) writeFile(path string, data []byte) error {
	w, err := s.factory(path)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		if a, ok := w.(aborter); ok {
			return errors.Join(err, a.Abort())
		}
		return errors.Join(err, w.Close())
	}
	return w.Close()
}

// aborter is implemented by writers that can discard what was written.
type aborter interface {
	Abort() error
}

func (s *FileSink) path(name, format string) string {
	return filepath.Join(s.cfg.Dir, name+"."+format)
}

// atomicFile is written under a temporary name and renamed into place on Close.
type atomicFile struct {
	*os.File
	path string
}

func createAtomic(path string) (io.WriteCloser, error) {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return nil, err
	}
	return &atomicFile{File: f, path: path}, nil
}

// Abort removes the temporary file without touching path.
func (a *atomicFile) Abort() error {
	a.File.Close()
	return os.Remove(a.Name())
}

func (a *atomicFile) Close() error {
	tmp := a.Name()
	if err := a.File.Sync(); err != nil {
		a.File.Close()
		os.Remove(tmp)
		return err
	}
	if err := a.File.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Chmod(tmp, 0644); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, a.path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
