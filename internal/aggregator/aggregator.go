// Package aggregator groups parsed records by URL and computes per-URL
// timing statistics for one log source.
package aggregator

import (
	"cmp"
	"context"
	"slices"

	"github.com/GabrielNunesIT/go-libs/logger"

	"github.com/GabrielNunesIT/log-analyzer/internal/model"
	"github.com/GabrielNunesIT/log-analyzer/internal/parser"
)

// maxLoggedParseErrors bounds the per-run debug output for rejected lines.
const maxLoggedParseErrors = 5

// Result is the outcome of one aggregation run.
type Result struct {
	// Stats maps URL to its statistics.
	Stats map[string]model.URLStats
	// Order lists the URLs in first-seen order.
	Order []string

	Lines       int
	Records     int
	ParseErrors int
	TotalTime   float64
}

// ErrorRatio is the share of lines that failed to parse.
func (r *Result) ErrorRatio() float64 {
	if r.Lines == 0 {
		return 0
	}
	return float64(r.ParseErrors) / float64(r.Lines)
}

// InOrder returns the statistics in first-seen URL order.
func (r *Result) InOrder() []model.URLStats {
	out := make([]model.URLStats, 0, len(r.Order))
	for _, url := range r.Order {
		out = append(out, r.Stats[url])
	}
	return out
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithTrueMax makes time_max the largest duration of a group. By default
// time_max is the last element of the descending sort, i.e. the smallest.
func WithTrueMax(enabled bool) Option {
	return func(a *Aggregator) {
		a.trueMax = enabled
	}
}

// Aggregator computes URLStats. Every call to Consume or Aggregate uses its
// own grouping state, so one Aggregator may serve several runs concurrently.
type Aggregator struct {
	parser  *parser.Parser
	trueMax bool
	logger  logger.ILogger
}

// New creates an aggregator that parses lines with p.
func New(p *parser.Parser, log logger.ILogger, opts ...Option) *Aggregator {
	a := &Aggregator{
		parser: p,
		logger: log.SubLogger("Aggregator"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Consume parses and aggregates every line received on in until it is closed.
// Lines that fail to parse are counted and dropped.
func (a *Aggregator) Consume(ctx context.Context, in <-chan model.Line) (*Result, error) {
	g := newGroups()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case line, ok := <-in:
			if !ok {
				return g.finish(a.trueMax), nil
			}
			g.lines++

			rec, err := a.parser.ParseLine(line)
			if err != nil {
				g.parseErrors++
				if g.parseErrors <= maxLoggedParseErrors {
					a.logger.Debugf("skipping line: %v", err)
				}
				continue
			}
			g.add(rec)
		}
	}
}

// Aggregate computes statistics over already parsed records.
func (a *Aggregator) Aggregate(records []model.LogRecord) *Result {
	g := newGroups()
	for _, rec := range records {
		g.lines++
		g.add(rec)
	}
	return g.finish(a.trueMax)
}

// groups is the per-run grouping state.
type groups struct {
	durations   map[string][]float64
	order       []string
	lines       int
	records     int
	parseErrors int
	totalTime   float64
}

func newGroups() *groups {
	return &groups{durations: make(map[string][]float64)}
}

func (g *groups) add(rec model.LogRecord) {
	d, seen := g.durations[rec.URL]
	if !seen {
		g.order = append(g.order, rec.URL)
	}
	g.durations[rec.URL] = append(d, rec.RequestTime)
	g.records++
	g.totalTime += rec.RequestTime
}

func (g *groups) finish(trueMax bool) *Result {
	res := &Result{
		Stats:       make(map[string]model.URLStats, len(g.order)),
		Order:       g.order,
		Lines:       g.lines,
		Records:     g.records,
		ParseErrors: g.parseErrors,
		TotalTime:   g.totalTime,
	}

	for _, url := range g.order {
		res.Stats[url] = computeStats(url, g.durations[url], g.records, g.totalTime, trueMax)
	}
	return res
}

// computeStats derives URLStats from a non-empty duration list. Percentages
// use the run-wide denominators and are 0 when those are 0.
func computeStats(url string, durations []float64, totalRecords int, totalTime float64, trueMax bool) model.URLStats {
	count := len(durations)

	var sum float64
	for _, d := range durations {
		sum += d
	}

	slices.SortFunc(durations, func(a, b float64) int {
		return cmp.Compare(b, a)
	})

	s := model.URLStats{
		URL:     url,
		Count:   count,
		TimeSum: sum,
		TimeAvg: sum / float64(count),
		TimeMed: durations[count/2],
		TimeMax: durations[count-1],
	}
	if trueMax {
		s.TimeMax = durations[0]
	}
	if totalRecords > 0 {
		s.CountPerc = float64(count) / float64(totalRecords)
	}
	if totalTime > 0 {
		s.TimePerc = sum / totalTime
	}
	return s
}
