package source

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// stdin is swapped in tests.
var stdin io.Reader = os.Stdin

// Open opens path for reading. Files ending in .gz are decompressed
// transparently and "-" reads standard input.
func Open(path string) (io.ReadCloser, error) {
	if path == Stdin {
		return io.NopCloser(stdin), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening log: %w", err)
	}
	if filepath.Ext(path) != ".gz" {
		return f, nil
	}

	gr, err := gzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("opening gzip %s: %w", path, err)
	}
	return &multiCloser{Reader: gr, closers: []io.Closer{gr, f}}, nil
}

// multiCloser closes every closer in order and reports the first error.
type multiCloser struct {
	io.Reader
	closers []io.Closer
}

func (m *multiCloser) Close() error {
	var err error
	for _, c := range m.closers {
		if e := c.Close(); err == nil && e != nil {
			err = e
		}
	}
	return err
}
