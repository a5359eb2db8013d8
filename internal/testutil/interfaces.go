package testutil

import (
	"context"
	"database/sql"
	"io"
	"net/http"

	"github.com/elastic/go-elasticsearch/v8/esutil"

	"github.com/GabrielNunesIT/log-analyzer/internal/model"
)

// The interfaces below mirror the seams of the sink and pipeline packages.
// Mocks for them live in the mocks subpackage.

// WriteCloser wraps io.WriteCloser for mock generation
type WriteCloser interface {
	io.WriteCloser
}

// BulkIndexer wraps esutil.BulkIndexer for mock generation
type BulkIndexer interface {
	esutil.BulkIndexer
}

// HTTPDoer matches sink.HTTPDoer.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// DB matches sink.DB except for BeginTx, whose result type is the sink's.
type DB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	PingContext(ctx context.Context) error
	Close() error
}

// Tx matches sink.Tx.
type Tx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	Commit() error
	Rollback() error
}

// Sink matches sink.Sink.
type Sink interface {
	Start(ctx context.Context) error
	Write(ctx context.Context, rep *model.Report) error
	Stop(ctx context.Context) error
	Name() string
}
