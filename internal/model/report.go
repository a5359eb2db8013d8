package model

import "time"

// URLStats holds the timing statistics of every record sharing one URL.
// It is computed once per run and not modified afterwards.
type URLStats struct {
	URL       string
	Count     int
	CountPerc float64
	TimeSum   float64
	TimePerc  float64
	TimeAvg   float64
	TimeMax   float64
	TimeMed   float64
}

// Row is the flat, serialisable form of URLStats.
type Row struct {
	URL       string  `json:"url"`
	Count     int     `json:"count"`
	CountPerc float64 `json:"count_perc"`
	TimeSum   float64 `json:"time_sum"`
	TimeAvg   float64 `json:"time_avg"`
	TimePerc  float64 `json:"time_perc"`
	TimeMax   float64 `json:"time_max"`
	TimeMed   float64 `json:"time_med"`
}

// NewRow flattens s.
func NewRow(s URLStats) Row {
	return Row{
		URL:       s.URL,
		Count:     s.Count,
		CountPerc: s.CountPerc,
		TimeSum:   s.TimeSum,
		TimeAvg:   s.TimeAvg,
		TimePerc:  s.TimePerc,
		TimeMax:   s.TimeMax,
		TimeMed:   s.TimeMed,
	}
}

// Report is the outcome of analysing one log source.
type Report struct {
	// Source is the log path, or "-" for standard input.
	Source string
	// Date is the log date taken from the file name; zero when unknown.
	Date time.Time

	Lines       int
	Records     int
	ParseErrors int
	ErrorRatio  float64
	TotalTime   float64

	Rows        []Row
	GeneratedAt time.Time
}

// Name returns the base name used for report artifacts, e.g. "report-2017.06.30".
// Reports without a log date are named after the day they were generated.
func (r *Report) Name() string {
	if r.Date.IsZero() {
		return ReportName(r.GeneratedAt)
	}
	return ReportName(r.Date)
}

// ReportName returns the artifact base name for a report of date.
func ReportName(date time.Time) string {
	return "report-" + date.Format("2006.01.02")
}
