// Package parser turns ui_short nginx access log lines into typed records.
//
// The format is:
//
//	$remote_addr  $remote_user $http_x_real_ip [$time_local] "$request"
//	$status $body_bytes_sent "$http_referer" "$http_user_agent"
//	"$http_x_forwarded_for" "$http_X_REQUEST_ID" "$http_X_RB_USER" $request_time
package parser

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/GabrielNunesIT/log-analyzer/internal/model"
)

// DefaultTimeLayout matches nginx $time_local, e.g. "29/Jun/2017:03:50:22 +0300".
const DefaultTimeLayout = "02/Jan/2006:15:04:05 -0700"

// linePattern captures the 13 fields of a ui_short line.
var linePattern = regexp.MustCompile(`^(?P<remote_addr>\S+)\s+(?P<remote_user>\S+)\s+(?P<x_real_ip>\S+)\s+` +
	`\[(?P<time_local>[^\]]+)\]\s+` +
	`"(?P<request>[^"]*)"\s+` +
	`(?P<status>\d{3})\s+(?P<body_bytes_sent>\d+)\s+` +
	`"(?P<http_referer>[^"]*)"\s+"(?P<http_user_agent>[^"]*)"\s+` +
	`"(?P<http_x_forwarded_for>[^"]*)"\s+"(?P<http_x_request_id>[^"]*)"\s+"(?P<http_x_rb_user>[^"]*)"\s+` +
	`(?P<request_time>\d+(?:\.\d*)?)\s*$`)

// group indexes into the submatch slice, resolved once from the names above.
var (
	idxRemoteAddr    = linePattern.SubexpIndex("remote_addr")
	idxRemoteUser    = linePattern.SubexpIndex("remote_user")
	idxRealIP        = linePattern.SubexpIndex("x_real_ip")
	idxTimeLocal     = linePattern.SubexpIndex("time_local")
	idxRequest       = linePattern.SubexpIndex("request")
	idxStatus        = linePattern.SubexpIndex("status")
	idxBodyBytesSent = linePattern.SubexpIndex("body_bytes_sent")
	idxReferer       = linePattern.SubexpIndex("http_referer")
	idxUserAgent     = linePattern.SubexpIndex("http_user_agent")
	idxForwardedFor  = linePattern.SubexpIndex("http_x_forwarded_for")
	idxRequestID     = linePattern.SubexpIndex("http_x_request_id")
	idxRBUser        = linePattern.SubexpIndex("http_x_rb_user")
	idxRequestTime   = linePattern.SubexpIndex("request_time")
)

// Option configures a Parser.
type Option func(*Parser)

// WithTimeLayout overrides the layout used to parse $time_local.
func WithTimeLayout(layout string) Option {
	return func(p *Parser) {
		if layout != "" {
			p.timeLayout = layout
		}
	}
}

// Parser converts single lines into LogRecords. It holds no mutable state
// and is safe for concurrent use.
type Parser struct {
	timeLayout string
}

// New creates a parser for the ui_short format.
func New(opts ...Option) *Parser {
	p := &Parser{timeLayout: DefaultTimeLayout}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ParseLine parses l and tags any failure with its line number.
func (p *Parser) ParseLine(l model.Line) (model.LogRecord, error) {
	rec, err := p.Parse(l.Text)
	if err != nil {
		if pe, ok := err.(*model.ParseError); ok {
			pe.Line = l.Number
		}
		return model.LogRecord{}, err
	}
	return rec, nil
}

// Parse converts one line into a LogRecord. Any mismatch is reported as a
// *model.ParseError wrapping model.ErrParse.
func (p *Parser) Parse(line string) (model.LogRecord, error) {
	m := linePattern.FindStringSubmatch(line)
	if m == nil {
		return model.LogRecord{}, &model.ParseError{Reason: "no match"}
	}

	ts, err := time.Parse(p.timeLayout, m[idxTimeLocal])
	if err != nil {
		return model.LogRecord{}, &model.ParseError{Reason: "bad time_local " + strconv.Quote(m[idxTimeLocal])}
	}

	status, err := strconv.Atoi(m[idxStatus])
	if err != nil {
		return model.LogRecord{}, &model.ParseError{Reason: "bad status " + strconv.Quote(m[idxStatus])}
	}

	bodyBytes, err := strconv.ParseInt(m[idxBodyBytesSent], 10, 64)
	if err != nil {
		return model.LogRecord{}, &model.ParseError{Reason: "bad body_bytes_sent " + strconv.Quote(m[idxBodyBytesSent])}
	}

	requestTime, err := strconv.ParseFloat(m[idxRequestTime], 64)
	if err != nil {
		return model.LogRecord{}, &model.ParseError{Reason: "bad request_time " + strconv.Quote(m[idxRequestTime])}
	}

	method, url, protocol := SplitRequest(m[idxRequest])

	return model.LogRecord{
		RemoteAddr:    m[idxRemoteAddr],
		RemoteUser:    m[idxRemoteUser],
		RealIP:        m[idxRealIP],
		Time:          ts,
		Request:       m[idxRequest],
		Method:        method,
		URL:           url,
		Protocol:      protocol,
		Status:        status,
		BodyBytesSent: bodyBytes,
		Referer:       m[idxReferer],
		UserAgent:     m[idxUserAgent],
		ForwardedFor:  m[idxForwardedFor],
		RequestID:     m[idxRequestID],
		RBUser:        m[idxRBUser],
		RequestTime:   requestTime,
	}, nil
}

// SplitRequest splits "$request" into method, target and protocol.
// Anything other than exactly three tokens keeps only the first token as the
// method and reports the rest as model.Placeholder.
func SplitRequest(request string) (method, url, protocol string) {
	parts := strings.Fields(request)
	if len(parts) == 3 {
		return parts[0], parts[1], parts[2]
	}
	if len(parts) > 0 {
		return parts[0], model.Placeholder, model.Placeholder
	}
	return model.Placeholder, model.Placeholder, model.Placeholder
}
