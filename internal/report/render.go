package report

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/bytedance/sonic"

	"github.com/GabrielNunesIT/log-analyzer/internal/model"
)

// Placeholder is replaced with the JSON table in HTML templates.
const Placeholder = "$table_json"

// ErrNoPlaceholder is returned for templates without Placeholder.
var ErrNoPlaceholder = errors.New("template has no " + Placeholder + " placeholder")

//go:embed template/report.html
var defaultTemplate []byte

// DefaultTemplate returns a copy of the built-in HTML template.
func DefaultTemplate() []byte {
	return bytes.Clone(defaultTemplate)
}

// LoadTemplate reads an HTML template from path, or returns the built-in one
// when path is empty.
func LoadTemplate(path string) ([]byte, error) {
	if path == "" {
		return DefaultTemplate(), nil
	}
	tmpl, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading template: %w", err)
	}
	if !bytes.Contains(tmpl, []byte(Placeholder)) {
		return nil, fmt.Errorf("%s: %w", path, ErrNoPlaceholder)
	}
	return tmpl, nil
}

// RenderJSON encodes rows as a JSON array with HTML-safe escaping. No rows
// encode as "[]".
func RenderJSON(rows []model.Row) ([]byte, error) {
	if rows == nil {
		rows = []model.Row{}
	}
	data, err := sonic.ConfigStd.Marshal(rows)
	if err != nil {
		return nil, fmt.Errorf("encoding rows: %w", err)
	}
	return data, nil
}

// RenderHTML substitutes the JSON table into tmpl.
func RenderHTML(tmpl []byte, rows []model.Row) ([]byte, error) {
	if !bytes.Contains(tmpl, []byte(Placeholder)) {
		return nil, ErrNoPlaceholder
	}
	table, err := RenderJSON(rows)
	if err != nil {
		return nil, err
	}
	return bytes.ReplaceAll(tmpl, []byte(Placeholder), table), nil
}

// RenderText writes a human readable summary and table of rep to w.
func RenderText(w io.Writer, rep *model.Report) error {
	fmt.Fprintf(w, "source=%s lines=%d records=%d parse_errors=%d error_ratio=%.4f total_time=%.3f\n",
		rep.Source, rep.Lines, rep.Records, rep.ParseErrors, rep.ErrorRatio, rep.TotalTime)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "count\tcount_perc\ttime_sum\ttime_perc\ttime_avg\ttime_max\ttime_med\t url")
	for _, r := range rep.Rows {
		fmt.Fprintf(tw, "%d\t%.3f\t%.3f\t%.3f\t%.3f\t%.3f\t%.3f\t %s\n",
			r.Count, r.CountPerc, r.TimeSum, r.TimePerc, r.TimeAvg, r.TimeMax, r.TimeMed, r.URL)
	}
	return tw.Flush()
}
