// Package sink defines the interface and implementations for report destinations.
package sink

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/GabrielNunesIT/go-libs/logger"

	"github.com/GabrielNunesIT/log-analyzer/internal/config"
	"github.com/GabrielNunesIT/log-analyzer/internal/model"
)

// ErrReportExists is returned when a report artifact is already on disk and
// overwriting is disabled.
var ErrReportExists = errors.New("report already exists")

// Sink receives finished reports and writes them to a destination.
type Sink interface {
	// Start prepares the sink (directories, connections, clients).
	// Called once before Write.
	Start(ctx context.Context) error

	// Write stores one report. Must be safe to call concurrently.
	Write(ctx context.Context, rep *model.Report) error

	// Stop flushes buffered data and releases resources.
	Stop(ctx context.Context) error

	// Name returns a unique identifier for this sink.
	Name() string
}

// Checker is implemented by sinks that can tell whether a report is already
// stored, so the source can be skipped before it is analysed.
type Checker interface {
	Exists(name string) bool
}

// HTTPDoer abstracts HTTP client operations for testing.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

var _ HTTPDoer = (*http.Client)(nil)

// FromConfig creates every sink enabled in cfg.
func FromConfig(cfg *config.Config, log logger.ILogger) ([]Sink, error) {
	var sinks []Sink

	if cfg.Sinks.File.Enabled {
		sinks = append(sinks, NewFileSink(cfg.Report, cfg.Sinks.File, log))
	}
	if cfg.Sinks.Stdout.Enabled {
		sinks = append(sinks, NewStdoutSink(cfg.Sinks.Stdout, log))
	}
	if cfg.Sinks.Elasticsearch.Enabled {
		sinks = append(sinks, NewElasticsearchSink(cfg.Sinks.Elasticsearch, log))
	}
	if cfg.Sinks.Loki.Enabled {
		sinks = append(sinks, NewLokiSink(cfg.Sinks.Loki, log))
	}
	if cfg.Sinks.VictoriaLogs.Enabled {
		sinks = append(sinks, NewVictoriaLogsSink(cfg.Sinks.VictoriaLogs, log))
	}
	if cfg.Sinks.MySQL.Enabled {
		sinks = append(sinks, NewMySQLSink(cfg.Sinks.MySQL, log))
	}

	if len(sinks) == 0 {
		return nil, errors.New("no sinks enabled")
	}
	return sinks, nil
}

// rowDocument is the per-row record shipped to search and log backends.
type rowDocument struct {
	Timestamp string `json:"@timestamp"`
	Report    string `json:"report"`
	Source    string `json:"source"`
	LogDate   string `json:"log_date,omitempty"`
	model.Row
}

// reportDocument is the whole-report JSON shape.
type reportDocument struct {
	Report      string      `json:"report"`
	Source      string      `json:"source"`
	LogDate     string      `json:"log_date,omitempty"`
	Lines       int         `json:"lines"`
	Records     int         `json:"records"`
	ParseErrors int         `json:"parse_errors"`
	ErrorRatio  float64     `json:"error_ratio"`
	TotalTime   float64     `json:"total_time"`
	GeneratedAt string      `json:"generated_at"`
	Rows        []model.Row `json:"rows"`
}

func newRowDocuments(rep *model.Report) []rowDocument {
	docs := make([]rowDocument, len(rep.Rows))
	for i, row := range rep.Rows {
		docs[i] = rowDocument{
			Timestamp: rep.GeneratedAt.Format(time.RFC3339Nano),
			Report:    rep.Name(),
			Source:    rep.Source,
			LogDate:   logDate(rep),
			Row:       row,
		}
	}
	return docs
}

func newReportDocument(rep *model.Report) reportDocument {
	rows := rep.Rows
	if rows == nil {
		rows = []model.Row{}
	}
	return reportDocument{
		Report:      rep.Name(),
		Source:      rep.Source,
		LogDate:     logDate(rep),
		Lines:       rep.Lines,
		Records:     rep.Records,
		ParseErrors: rep.ParseErrors,
		ErrorRatio:  rep.ErrorRatio,
		TotalTime:   rep.TotalTime,
		GeneratedAt: rep.GeneratedAt.Format(time.RFC3339),
		Rows:        rows,
	}
}

func logDate(rep *model.Report) string {
	if rep.Date.IsZero() {
		return ""
	}
	return rep.Date.Format(time.DateOnly)
}
