package sink

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/GabrielNunesIT/go-libs/logger"
	"github.com/bytedance/sonic"

	"github.com/GabrielNunesIT/log-analyzer/internal/config"
	"github.com/GabrielNunesIT/log-analyzer/internal/model"
)

// VictoriaLogsOption configures a VictoriaLogsSink.
type VictoriaLogsOption func(*VictoriaLogsSink)

// WithVictoriaLogsHTTPClient sets a custom HTTP client for testing.
func WithVictoriaLogsHTTPClient(client HTTPDoer) VictoriaLogsOption {
	return func(v *VictoriaLogsSink) {
		v.client = client
	}
}

// VictoriaLogsSink pushes report rows to VictoriaLogs as JSON lines.
type VictoriaLogsSink struct {
	cfg    config.VictoriaLogsSinkConfig
	client HTTPDoer
	logger logger.ILogger
}

// NewVictoriaLogsSink creates a new VictoriaLogs sink.
func NewVictoriaLogsSink(cfg config.VictoriaLogsSinkConfig, log logger.ILogger, opts ...VictoriaLogsOption) *VictoriaLogsSink {
	v := &VictoriaLogsSink{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: log.SubLogger("VictoriaLogsSink"),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Name returns the sink identifier.
func (v *VictoriaLogsSink) Name() string {
	return "victorialogs"
}

// Start is a no-op; the HTTP client connects lazily.
func (v *VictoriaLogsSink) Start(ctx context.Context) error {
	v.logger.Infof("pushing reports to VictoriaLogs: url=%s", v.cfg.URL)
	return nil
}

// Stop is a no-op; reports are pushed synchronously.
func (v *VictoriaLogsSink) Stop(ctx context.Context) error {
	return nil
}

// Write posts one JSON line per row. The URL becomes the log message and
// every report shares the stream identified by its name and source.
func (v *VictoriaLogsSink) Write(ctx context.Context, rep *model.Report) error {
	if len(rep.Rows) == 0 {
		return nil
	}

	var buf bytes.Buffer
	for _, doc := range newRowDocuments(rep) {
		data, err := sonic.Marshal(doc)
		if err != nil {
			return fmt.Errorf("encoding row: %w", err)
		}
		buf.Write(data)
		buf.WriteByte('\n')
	}

	params := url.Values{}
	params.Set("_msg_field", "url")
	params.Set("_time_field", "@timestamp")
	params.Set("_stream_fields", "report,source")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.cfg.URL+"/insert/jsonline?"+params.Encode(), &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-ndjson")

	resp, err := v.client.Do(req)
	if err != nil {
		return fmt.Errorf("victorialogs push: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("victorialogs push failed with status: %d", resp.StatusCode)
	}

	v.logger.Debugf("pushed %d rows to VictoriaLogs: report=%s", len(rep.Rows), rep.Name())
	return nil
}
