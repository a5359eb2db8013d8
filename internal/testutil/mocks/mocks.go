// Package mocks holds testify mocks for the interfaces in testutil.
package mocks

import (
	"context"
	"database/sql"
	"net/http"

	"github.com/elastic/go-elasticsearch/v8/esutil"
	"github.com/stretchr/testify/mock"

	"github.com/GabrielNunesIT/log-analyzer/internal/model"
	"github.com/GabrielNunesIT/log-analyzer/internal/testutil"
)

var (
	_ testutil.BulkIndexer = (*BulkIndexer)(nil)
	_ testutil.WriteCloser = (*WriteCloser)(nil)
	_ testutil.HTTPDoer    = (*HTTPDoer)(nil)
	_ testutil.DB          = (*DB)(nil)
	_ testutil.Tx          = (*Tx)(nil)
	_ testutil.Sink        = (*Sink)(nil)
)

// T is the part of *testing.T the constructors need.
type T interface {
	mock.TestingT
	Cleanup(func())
}

func register(t T, m *mock.Mock) {
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
}

// BulkIndexer is a mock of esutil.BulkIndexer.
type BulkIndexer struct {
	mock.Mock
}

// NewBulkIndexer creates a BulkIndexer mock whose expectations are asserted on cleanup.
func NewBulkIndexer(t T) *BulkIndexer {
	m := &BulkIndexer{}
	register(t, &m.Mock)
	return m
}

func (m *BulkIndexer) Add(ctx context.Context, item esutil.BulkIndexerItem) error {
	ret := m.Called(ctx, item)
	return ret.Error(0)
}

func (m *BulkIndexer) Close(ctx context.Context) error {
	ret := m.Called(ctx)
	return ret.Error(0)
}

func (m *BulkIndexer) Stats() esutil.BulkIndexerStats {
	ret := m.Called()
	return ret.Get(0).(esutil.BulkIndexerStats)
}

// WriteCloser is a mock of io.WriteCloser.
type WriteCloser struct {
	mock.Mock
}

// NewWriteCloser creates a WriteCloser mock whose expectations are asserted on cleanup.
func NewWriteCloser(t T) *WriteCloser {
	m := &WriteCloser{}
	register(t, &m.Mock)
	return m
}

func (m *WriteCloser) Write(p []byte) (int, error) {
	ret := m.Called(p)
	return ret.Int(0), ret.Error(1)
}

func (m *WriteCloser) Close() error {
	ret := m.Called()
	return ret.Error(0)
}

// HTTPDoer is a mock of an HTTP client.
type HTTPDoer struct {
	mock.Mock
}

// NewHTTPDoer creates an HTTPDoer mock whose expectations are asserted on cleanup.
func NewHTTPDoer(t T) *HTTPDoer {
	m := &HTTPDoer{}
	register(t, &m.Mock)
	return m
}

func (m *HTTPDoer) Do(req *http.Request) (*http.Response, error) {
	ret := m.Called(req)
	var resp *http.Response
	if v := ret.Get(0); v != nil {
		resp = v.(*http.Response)
	}
	return resp, ret.Error(1)
}

// DB is a mock of the SQL handle used by the MySQL sink.
type DB struct {
	mock.Mock
}

// NewDB creates a DB mock whose expectations are asserted on cleanup.
func NewDB(t T) *DB {
	m := &DB{}
	register(t, &m.Mock)
	return m
}

// ExecContext records the query and its arguments as a single slice.
func (m *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ret := m.Called(ctx, query, args)
	var res sql.Result
	if v := ret.Get(0); v != nil {
		res = v.(sql.Result)
	}
	return res, ret.Error(1)
}

func (m *DB) PingContext(ctx context.Context) error {
	ret := m.Called(ctx)
	return ret.Error(0)
}

func (m *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (*Tx, error) {
	ret := m.Called(ctx, opts)
	var tx *Tx
	if v := ret.Get(0); v != nil {
		tx = v.(*Tx)
	}
	return tx, ret.Error(1)
}

func (m *DB) Close() error {
	ret := m.Called()
	return ret.Error(0)
}

// Tx is a mock of the SQL transaction used by the MySQL sink.
type Tx struct {
	mock.Mock
}

// NewTx creates a Tx mock whose expectations are asserted on cleanup.
func NewTx(t T) *Tx {
	m := &Tx{}
	register(t, &m.Mock)
	return m
}

// ExecContext records the query and its arguments as a single slice.
func (m *Tx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ret := m.Called(ctx, query, args)
	var res sql.Result
	if v := ret.Get(0); v != nil {
		res = v.(sql.Result)
	}
	return res, ret.Error(1)
}

func (m *Tx) Commit() error {
	ret := m.Called()
	return ret.Error(0)
}

func (m *Tx) Rollback() error {
	ret := m.Called()
	return ret.Error(0)
}

// Sink is a mock of sink.Sink.
type Sink struct {
	mock.Mock
}

// NewSink creates a Sink mock whose expectations are asserted on cleanup.
func NewSink(t T) *Sink {
	m := &Sink{}
	register(t, &m.Mock)
	return m
}

func (m *Sink) Start(ctx context.Context) error {
	ret := m.Called(ctx)
	return ret.Error(0)
}

func (m *Sink) Write(ctx context.Context, rep *model.Report) error {
	ret := m.Called(ctx, rep)
	return ret.Error(0)
}

func (m *Sink) Stop(ctx context.Context) error {
	ret := m.Called(ctx)
	return ret.Error(0)
}

func (m *Sink) Name() string {
	ret := m.Called()
	return ret.String(0)
}
