package model

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestParseError_IsErrParse(t *testing.T) {
	var err error = &ParseError{Line: 7, Reason: "bad status"}

	if !errors.Is(err, ErrParse) {
		t.Fatal("expected ParseError to match ErrParse")
	}

	wrapped := fmt.Errorf("file access.log: %w", err)
	if !errors.Is(wrapped, ErrParse) {
		t.Error("expected wrapped ParseError to match ErrParse")
	}

	var pe *ParseError
	if !errors.As(wrapped, &pe) || pe.Line != 7 {
		t.Errorf("expected line 7, got %+v", pe)
	}
}

func TestParseError_Message(t *testing.T) {
	withLine := &ParseError{Line: 3, Reason: "no match"}
	if got := withLine.Error(); got != "line 3: line does not match log format: no match" {
		t.Errorf("unexpected message %q", got)
	}

	noLine := &ParseError{Reason: "no match"}
	if got := noLine.Error(); got != "line does not match log format: no match" {
		t.Errorf("unexpected message %q", got)
	}
}

func TestNewRow(t *testing.T) {
	s := URLStats{URL: "/a", Count: 2, CountPerc: 0.5, TimeSum: 1, TimePerc: 0.25, TimeAvg: 0.5, TimeMax: 0.4, TimeMed: 0.6}
	row := NewRow(s)

	if row.URL != "/a" || row.Count != 2 || row.TimeMed != 0.6 || row.TimeMax != 0.4 {
		t.Errorf("unexpected row %+v", row)
	}
}

func TestReport_Name(t *testing.T) {
	r := &Report{Date: time.Date(2017, 6, 30, 0, 0, 0, 0, time.UTC)}
	if r.Name() != "report-2017.06.30" {
		t.Errorf("expected report-2017.06.30, got %s", r.Name())
	}

	stdin := &Report{GeneratedAt: time.Date(2026, 1, 18, 12, 0, 0, 0, time.UTC)}
	if stdin.Name() != "report-2026.01.18" {
		t.Errorf("expected report-2026.01.18, got %s", stdin.Name())
	}
}
