package sink

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/GabrielNunesIT/log-analyzer/internal/config"
	"github.com/GabrielNunesIT/log-analyzer/internal/model"
	"github.com/GabrielNunesIT/log-analyzer/internal/report"
	"github.com/GabrielNunesIT/log-analyzer/internal/testutil"
	"github.com/GabrielNunesIT/log-analyzer/internal/testutil/mocks"
)

func testReport() *model.Report {
	return &model.Report{
		Source:      "log/nginx-access-ui.log-20170630.gz",
		Date:        time.Date(2017, 6, 30, 0, 0, 0, 0, time.UTC),
		Lines:       4,
		Records:     4,
		TotalTime:   1.1,
		GeneratedAt: time.Date(2026, 1, 18, 12, 0, 0, 0, time.UTC),
		Rows: []model.Row{
			{URL: "/api/v1/x", Count: 3, CountPerc: 0.75, TimeSum: 0.8, TimeAvg: 0.267, TimePerc: 0.727, TimeMax: 0.1, TimeMed: 0.2},
			{URL: "/other", Count: 1, CountPerc: 0.25, TimeSum: 0.3, TimeAvg: 0.3, TimePerc: 0.273, TimeMax: 0.3, TimeMed: 0.3},
		},
	}
}

func newFileSink(t *testing.T, dir string, overwrite bool, formats ...string) *FileSink {
	t.Helper()
	s := NewFileSink(
		config.ReportConfig{Dir: dir, Overwrite: overwrite},
		config.FileSinkConfig{Enabled: true, Formats: formats},
		testutil.NewTestLogger(),
	)
	require.NoError(t, s.Start(context.Background()))
	return s
}

func TestFileSink_WritesHTMLAndJSON(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	s := newFileSink(t, dir, false, FormatHTML, FormatJSON)

	require.NoError(t, s.Write(context.Background(), testReport()))

	html, err := os.ReadFile(filepath.Join(dir, "report-2017.06.30.html"))
	require.NoError(t, err)
	assert.NotContains(t, string(html), report.Placeholder)
	assert.Contains(t, string(html), `"url":"/api/v1/x"`)

	data, err := os.ReadFile(filepath.Join(dir, "report-2017.06.30.json"))
	require.NoError(t, err)
	var rows []model.Row
	require.NoError(t, json.Unmarshal(data, &rows))
	assert.Equal(t, testReport().Rows, rows)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "no temporary files may remain")
}

func TestFileSink_ExistingReportSkipped(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "report-2017.06.30.html")
	require.NoError(t, os.WriteFile(existing, []byte("old"), 0644))

	s := newFileSink(t, dir, false)
	assert.True(t, s.Exists("report-2017.06.30"))
	assert.False(t, s.Exists("report-2017.07.01"))

	err := s.Write(context.Background(), testReport())
	assert.ErrorIs(t, err, ErrReportExists)

	data, err := os.ReadFile(existing)
	require.NoError(t, err)
	assert.Equal(t, "old", string(data))
}

func TestFileSink_Overwrite(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "report-2017.06.30.html")
	require.NoError(t, os.WriteFile(existing, []byte("old"), 0644))

	s := newFileSink(t, dir, true)
	require.NoError(t, s.Write(context.Background(), testReport()))

	data, err := os.ReadFile(existing)
	require.NoError(t, err)
	assert.Contains(t, string(data), "/api/v1/x")
}

func TestFileSink_CustomTemplate(t *testing.T) {
	dir := t.TempDir()
	tmpl := filepath.Join(dir, "tmpl.html")
	require.NoError(t, os.WriteFile(tmpl, []byte("<script>var t = $table_json;</script>"), 0644))

	s := NewFileSink(config.ReportConfig{Dir: dir, Template: tmpl}, config.FileSinkConfig{}, testutil.NewTestLogger())
	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Write(context.Background(), &model.Report{Date: time.Date(2017, 6, 30, 0, 0, 0, 0, time.UTC)}))

	data, err := os.ReadFile(filepath.Join(dir, "report-2017.06.30.html"))
	require.NoError(t, err)
	assert.Equal(t, "<script>var t = [];</script>", string(data))
}

func TestFileSink_Start(t *testing.T) {
	t.Run("bad template", func(t *testing.T) {
		dir := t.TempDir()
		tmpl := filepath.Join(dir, "tmpl.html")
		require.NoError(t, os.WriteFile(tmpl, []byte("<html></html>"), 0644))

		s := NewFileSink(config.ReportConfig{Dir: dir, Template: tmpl}, config.FileSinkConfig{}, testutil.NewTestLogger())
		assert.ErrorIs(t, s.Start(context.Background()), report.ErrNoPlaceholder)
	})

	t.Run("dir is a file", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(file, nil, 0644))

		s := NewFileSink(config.ReportConfig{Dir: file}, config.FileSinkConfig{}, testutil.NewTestLogger())
		assert.ErrorContains(t, s.Start(context.Background()), "creating report dir")
	})
}

func TestFileSink_WriterFactory(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		mockWriter := mocks.NewWriteCloser(t)
		mockWriter.On("Write", mock.MatchedBy(func(p []byte) bool {
			return json.Valid(p)
		})).Return(10, nil)
		mockWriter.On("Close").Return(nil)

		var gotPath string
		factory := func(path string) (io.WriteCloser, error) {
			gotPath = path
			return mockWriter, nil
		}

		dir := t.TempDir()
		s := NewFileSink(config.ReportConfig{Dir: dir}, config.FileSinkConfig{Formats: []string{FormatJSON}},
			testutil.NewTestLogger(), WithWriterFactory(factory))
		require.NoError(t, s.Start(context.Background()))

		require.NoError(t, s.Write(context.Background(), testReport()))
		assert.Equal(t, filepath.Join(dir, "report-2017.06.30.json"), gotPath)
	})

	t.Run("write error", func(t *testing.T) {
		mockWriter := mocks.NewWriteCloser(t)
		mockWriter.On("Write", mock.Anything).Return(0, errors.New("disk full"))
		mockWriter.On("Close").Return(nil)

		factory := func(path string) (io.WriteCloser, error) {
			return mockWriter, nil
		}

		s := NewFileSink(config.ReportConfig{Dir: t.TempDir()}, config.FileSinkConfig{},
			testutil.NewTestLogger(), WithWriterFactory(factory))
		require.NoError(t, s.Start(context.Background()))

		err := s.Write(context.Background(), testReport())
		assert.ErrorContains(t, err, "disk full")
	})

	t.Run("factory error", func(t *testing.T) {
		factory := func(path string) (io.WriteCloser, error) {
			return nil, errors.New("factory error")
		}

		s := NewFileSink(config.ReportConfig{Dir: t.TempDir()}, config.FileSinkConfig{},
			testutil.NewTestLogger(), WithWriterFactory(factory))
		require.NoError(t, s.Start(context.Background()))

		err := s.Write(context.Background(), testReport())
		assert.ErrorContains(t, err, "factory error")
	})
}

func TestFileSink_UnknownFormat(t *testing.T) {
	s := newFileSink(t, t.TempDir(), false, "pdf")
	err := s.Write(context.Background(), testReport())
	assert.ErrorContains(t, err, `unknown report format "pdf"`)
}

func TestAtomicFile_Abort(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.html")

	w, err := createAtomic(path)
	require.NoError(t, err)
	_, err = w.Write([]byte("partial"))
	require.NoError(t, err)
	require.NoError(t, w.(aborter).Abort())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
