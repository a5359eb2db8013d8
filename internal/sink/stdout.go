package sink

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/GabrielNunesIT/go-libs/logger"
	"github.com/bytedance/sonic"

	"github.com/GabrielNunesIT/log-analyzer/internal/config"
	"github.com/GabrielNunesIT/log-analyzer/internal/model"
	"github.com/GabrielNunesIT/log-analyzer/internal/report"
)

// StdoutSink prints reports to standard output.
type StdoutSink struct {
	cfg    config.StdoutSinkConfig
	writer io.Writer
	mu     sync.Mutex
	logger logger.ILogger
}

// NewStdoutSink creates a new stdout sink.
func NewStdoutSink(cfg config.StdoutSinkConfig, log logger.ILogger) *StdoutSink {
	return NewStdoutSinkWithWriter(cfg, os.Stdout, log)
}

// NewStdoutSinkWithWriter creates a stdout sink with a custom writer (for testing).
func NewStdoutSinkWithWriter(cfg config.StdoutSinkConfig, w io.Writer, log logger.ILogger) *StdoutSink {
	return &StdoutSink{
		cfg:    cfg,
		writer: w,
		logger: log.SubLogger("StdoutSink"),
	}
}

// Name returns the sink identifier.
func (s *StdoutSink) Name() string {
	return "stdout"
}

// Start is a no-op for stdout.
func (s *StdoutSink) Start(ctx context.Context) error {
	s.logger.Debugf("stdout sink started: format=%s", s.cfg.Format)
	return nil
}

// Stop is a no-op for stdout.
func (s *StdoutSink) Stop(ctx context.Context) error {
	return nil
}

// Write prints rep as one JSON document per line, or as a text table.
func (s *StdoutSink) Write(ctx context.Context, rep *model.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.cfg.Format {
	case "text":
		return report.RenderText(s.writer, rep)
	case "json", "":
		data, err := sonic.Marshal(newReportDocument(rep))
		if err != nil {
			return fmt.Errorf("encoding report: %w", err)
		}
		_, err = s.writer.Write(append(data, '\n'))
		return err
	default:
		return fmt.Errorf("unknown stdout format %q", s.cfg.Format)
	}
}
