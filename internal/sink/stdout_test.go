package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GabrielNunesIT/log-analyzer/internal/config"
	"github.com/GabrielNunesIT/log-analyzer/internal/model"
	"github.com/GabrielNunesIT/log-analyzer/internal/testutil"
)

func TestStdoutSink_Name(t *testing.T) {
	s := NewStdoutSink(config.StdoutSinkConfig{}, testutil.NewTestLogger())
	assert.Equal(t, "stdout", s.Name())
}

func TestStdoutSink_JSON(t *testing.T) {
	var buf bytes.Buffer
	s := NewStdoutSinkWithWriter(config.StdoutSinkConfig{Format: "json"}, &buf, testutil.NewTestLogger())
	require.NoError(t, s.Start(context.Background()))

	require.NoError(t, s.Write(context.Background(), testReport()))
	require.NoError(t, s.Stop(context.Background()))

	assert.True(t, strings.HasSuffix(buf.String(), "\n"))

	var doc map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, "report-2017.06.30", doc["report"])
	assert.Equal(t, "2017-06-30", doc["log_date"])
	assert.Equal(t, "log/nginx-access-ui.log-20170630.gz", doc["source"])
	assert.EqualValues(t, 4, doc["records"])
	assert.Equal(t, "2026-01-18T12:00:00Z", doc["generated_at"])

	rows, ok := doc["rows"].([]any)
	require.True(t, ok)
	require.Len(t, rows, 2)
	assert.Equal(t, "/api/v1/x", rows[0].(map[string]any)["url"])
}

func TestStdoutSink_JSONEmptyReport(t *testing.T) {
	var buf bytes.Buffer
	s := NewStdoutSinkWithWriter(config.StdoutSinkConfig{Format: "json"}, &buf, testutil.NewTestLogger())

	require.NoError(t, s.Write(context.Background(), &model.Report{Source: "-"}))

	var doc map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, []any{}, doc["rows"])
	assert.NotContains(t, doc, "log_date")
}

func TestStdoutSink_Text(t *testing.T) {
	var buf bytes.Buffer
	s := NewStdoutSinkWithWriter(config.StdoutSinkConfig{Format: "text"}, &buf, testutil.NewTestLogger())

	require.NoError(t, s.Write(context.Background(), testReport()))

	out := buf.String()
	assert.Contains(t, out, "source=log/nginx-access-ui.log-20170630.gz lines=4 records=4")
	assert.Contains(t, out, "/api/v1/x")
	assert.Contains(t, out, "/other")
}

func TestStdoutSink_UnknownFormat(t *testing.T) {
	var buf bytes.Buffer
	s := NewStdoutSinkWithWriter(config.StdoutSinkConfig{Format: "yaml"}, &buf, testutil.NewTestLogger())

	assert.Error(t, s.Write(context.Background(), testReport()))
	assert.Empty(t, buf.String())
}
