// Package decoder splits an already decompressed log stream into lines.
package decoder

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/GabrielNunesIT/go-libs/logger"

	"github.com/GabrielNunesIT/log-analyzer/internal/model"
)

const defaultBufferSize = 64 * 1024

// Option configures a Decoder.
type Option func(*Decoder)

// WithBufferSize sets the read buffer size. Lines longer than the buffer are
// still returned whole.
func WithBufferSize(n int) Option {
	return func(d *Decoder) {
		if n > 0 {
			d.bufSize = n
		}
	}
}

// Decoder turns a byte stream into a sequence of model.Line values.
type Decoder struct {
	name    string
	reader  io.Reader
	bufSize int
	logger  logger.ILogger
}

// New creates a decoder reading from r. name identifies the stream in logs.
func New(name string, r io.Reader, log logger.ILogger, opts ...Option) *Decoder {
	d := &Decoder{
		name:    name,
		reader:  r,
		bufSize: defaultBufferSize,
		logger:  log.SubLogger("Decoder"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Name returns the stream identifier.
func (d *Decoder) Name() string {
	return d.name
}

// Start reads the stream and sends every line to out, closing out when done.
// Line terminators ("\n" or "\r\n") are stripped and invalid UTF-8 is replaced
// with U+FFFD. A final terminator does not produce an extra empty line.
// Read errors from the underlying stream are returned.
func (d *Decoder) Start(ctx context.Context, out chan<- model.Line) error {
	defer close(out)

	br := bufio.NewReaderSize(d.reader, d.bufSize)

	lineCount := 0
	for {
		text, err := br.ReadString('\n')
		if len(text) > 0 {
			lineCount++

			select {
			case out <- model.Line{Number: lineCount, Text: clean(text)}:
			case <-ctx.Done():
				d.logger.Debugf("decoder stopped: source=%s, lines_read=%d", d.name, lineCount)
				return ctx.Err()
			}
		}

		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			d.logger.Errorf("read error: source=%s, line=%d, error=%v", d.name, lineCount+1, err)
			return fmt.Errorf("reading %s: %w", d.name, err)
		}
	}

	d.logger.Debugf("EOF reached: source=%s, lines_read=%d", d.name, lineCount)
	return nil
}

// clean drops the line terminator and repairs the encoding.
func clean(text string) string {
	text = strings.TrimSuffix(text, "\n")
	text = strings.TrimSuffix(text, "\r")
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "\uFFFD")
	}
	return text
}

// Lines drains r synchronously. It is a convenience for callers that do not
// need streaming.
func Lines(ctx context.Context, name string, r io.Reader, log logger.ILogger) ([]model.Line, error) {
	out := make(chan model.Line, 64)
	errCh := make(chan error, 1)

	go func() {
		errCh <- New(name, r, log).Start(ctx, out)
	}()

	var lines []model.Line
	for l := range out {
		lines = append(lines, l)
	}
	return lines, <-errCh
}
