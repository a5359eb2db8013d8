// Package report orders aggregated statistics and renders them for sinks.
package report

import (
	"cmp"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/GabrielNunesIT/log-analyzer/internal/aggregator"
	"github.com/GabrielNunesIT/log-analyzer/internal/model"
)

// Orderings accepted by FormatOptions.Order.
const (
	OrderTimeSum  = "time_sum"
	OrderEmission = "emission"
)

// FormatOptions controls row ordering and truncation.
type FormatOptions struct {
	// Order is OrderTimeSum (default) or OrderEmission.
	Order string
	// Limit keeps the first Limit rows after ordering; 0 keeps all.
	Limit int
}

// Format flattens res into rows. With OrderTimeSum rows are sorted by
// time_sum descending and then URL ascending, so identical input always
// yields identical output. OrderEmission keeps first-seen URL order.
func Format(res *aggregator.Result, opts FormatOptions) []model.Row {
	stats := res.InOrder()

	if opts.Order != OrderEmission {
		slices.SortStableFunc(stats, func(a, b model.URLStats) int {
			if c := cmp.Compare(b.TimeSum, a.TimeSum); c != 0 {
				return c
			}
			return strings.Compare(a.URL, b.URL)
		})
	}

	if opts.Limit > 0 && len(stats) > opts.Limit {
		stats = stats[:opts.Limit]
	}

	rows := make([]model.Row, len(stats))
	for i, s := range stats {
		rows[i] = model.NewRow(s)
	}
	return rows
}

// Build assembles the report for one source. Float values in rows are
// rounded to precision decimals; a negative precision keeps them exact.
func Build(source string, date time.Time, res *aggregator.Result, rows []model.Row, precision int) *model.Report {
	return &model.Report{
		Source:      source,
		Date:        date,
		Lines:       res.Lines,
		Records:     res.Records,
		ParseErrors: res.ParseErrors,
		ErrorRatio:  res.ErrorRatio(),
		TotalTime:   res.TotalTime,
		Rows:        Round(rows, precision),
		GeneratedAt: time.Now(),
	}
}

// Round returns a copy of rows with float fields rounded to precision decimals.
func Round(rows []model.Row, precision int) []model.Row {
	out := make([]model.Row, len(rows))
	copy(out, rows)
	if precision < 0 {
		return out
	}

	for i := range out {
		r := &out[i]
		r.CountPerc = round(r.CountPerc, precision)
		r.TimeSum = round(r.TimeSum, precision)
		r.TimeAvg = round(r.TimeAvg, precision)
		r.TimePerc = round(r.TimePerc, precision)
		r.TimeMax = round(r.TimeMax, precision)
		r.TimeMed = round(r.TimeMed, precision)
	}
	return out
}

func round(v float64, precision int) float64 {
	p := math.Pow10(precision)
	return math.Round(v*p) / p
}
