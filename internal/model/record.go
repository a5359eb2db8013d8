// Package model defines the core data structures shared by the analysis stages.
package model

import (
	"errors"
	"fmt"
	"time"
)

// Placeholder is written for request parts that could not be split out.
const Placeholder = "-"

// ErrParse marks a line that does not match the access log grammar.
var ErrParse = errors.New("line does not match log format")

// ParseError describes why a single line was rejected.
type ParseError struct {
	Line   int
	Reason string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s: %s", e.Line, ErrParse, e.Reason)
	}
	return fmt.Sprintf("%s: %s", ErrParse, e.Reason)
}

// Unwrap lets errors.Is match ErrParse.
func (e *ParseError) Unwrap() error {
	return ErrParse
}

// Line is one raw line of a log stream.
type Line struct {
	// Number is 1-based.
	Number int
	Text   string
}

// LogRecord is one parsed request line of the ui_short nginx format.
type LogRecord struct {
	RemoteAddr    string
	RemoteUser    string
	RealIP        string
	Time          time.Time
	Request       string
	Method        string
	URL           string
	Protocol      string
	Status        int
	BodyBytesSent int64
	Referer       string
	UserAgent     string
	ForwardedFor  string
	RequestID     string
	RBUser        string

	// RequestTime is the request duration in seconds.
	RequestTime float64
}
