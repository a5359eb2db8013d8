package sink

import (
	"bytes"
	"context"
	"fmt"
	"maps"
	"net/http"
	"strconv"

	"github.com/GabrielNunesIT/go-libs/logger"
	"github.com/bytedance/sonic"

	"github.com/GabrielNunesIT/log-analyzer/internal/config"
	"github.com/GabrielNunesIT/log-analyzer/internal/model"
)

// lokiPushRequest is the Loki push API request format.
type lokiPushRequest struct {
	Streams []lokiStream `json:"streams"`
}

// lokiStream represents a log stream in Loki.
type lokiStream struct {
	Stream map[string]string `json:"stream"`
	Values [][]string        `json:"values"`
}

// LokiOption configures a LokiSink.
type LokiOption func(*LokiSink)

// WithLokiHTTPClient sets a custom HTTP client for testing.
func WithLokiHTTPClient(client HTTPDoer) LokiOption {
	return func(l *LokiSink) {
		l.client = client
	}
}

// LokiSink pushes each report to Grafana Loki as one stream with a line per row.
type LokiSink struct {
	cfg    config.LokiSinkConfig
	client HTTPDoer
	logger logger.ILogger
}

// NewLokiSink creates a new Loki sink.
func NewLokiSink(cfg config.LokiSinkConfig, log logger.ILogger, opts ...LokiOption) *LokiSink {
	l := &LokiSink{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: log.SubLogger("LokiSink"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Name returns the sink identifier.
func (l *LokiSink) Name() string {
	return "loki"
}

// Start is a no-op; the HTTP client connects lazily.
func (l *LokiSink) Start(ctx context.Context) error {
	l.logger.Infof("pushing reports to Loki: url=%s", l.cfg.URL)
	return nil
}

// Stop is a no-op; reports are pushed synchronously.
func (l *LokiSink) Stop(ctx context.Context) error {
	return nil
}

// Write pushes rep. Row order is kept by giving each line a timestamp one
// nanosecond after the previous one.
func (l *LokiSink) Write(ctx context.Context, rep *model.Report) error {
	if len(rep.Rows) == 0 {
		return nil
	}

	labels := map[string]string{"job": "log-analyzer"}
	maps.Copy(labels, l.cfg.Labels)
	labels["report"] = rep.Name()

	base := rep.GeneratedAt.UnixNano()
	values := make([][]string, 0, len(rep.Rows))
	for i, doc := range newRowDocuments(rep) {
		line, err := sonic.MarshalString(doc)
		if err != nil {
			return fmt.Errorf("encoding row: %w", err)
		}
		values = append(values, []string{strconv.FormatInt(base+int64(i), 10), line})
	}

	data, err := sonic.Marshal(lokiPushRequest{
		Streams: []lokiStream{{Stream: labels, Values: values}},
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.cfg.URL+"/loki/api/v1/push", bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if l.cfg.TenantID != "" {
		req.Header.Set("X-Scope-OrgID", l.cfg.TenantID)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return fmt.Errorf("loki push: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("loki push failed with status: %d", resp.StatusCode)
	}

	l.logger.Debugf("pushed %d rows to Loki: report=%s", len(values), rep.Name())
	return nil
}
