package sink

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/GabrielNunesIT/log-analyzer/internal/config"
	"github.com/GabrielNunesIT/log-analyzer/internal/model"
	"github.com/GabrielNunesIT/log-analyzer/internal/testutil"
	"github.com/GabrielNunesIT/log-analyzer/internal/testutil/mocks"
)

func mysqlConfig() config.MySQLSinkConfig {
	return config.MySQLSinkConfig{
		Enabled:  true,
		Host:     "db.local",
		Port:     3306,
		User:     "logana",
		Password: "secret",
		Database: "logana",
		Table:    "url_stats",
		Params:   "parseTime=true&charset=utf8mb4",
		Timeout:  5 * time.Second,
	}
}

// txDB narrows the mock's BeginTx result to Tx.
type txDB struct {
	*mocks.DB
}

func (d txDB) BeginTx(ctx context.Context, opts *sql.TxOptions) (Tx, error) {
	tx, err := d.DB.BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}
	return tx, nil
}

func dbFactory(db *mocks.DB) DBFactory {
	return func(cfg config.MySQLSinkConfig) (DB, error) {
		return txDB{db}, nil
	}
}

func isDelete(q string) bool { return strings.HasPrefix(q, "DELETE") }
func isInsert(q string) bool { return strings.HasPrefix(q, "INSERT") }

// beginTx expects one transaction and returns it.
func beginTx(t *testing.T, db *mocks.DB) *mocks.Tx {
	tx := mocks.NewTx(t)
	db.On("BeginTx", mock.Anything, (*sql.TxOptions)(nil)).Return(tx, nil).Once()
	return tx
}

// expectCommit expects a successful commit; the deferred rollback then sees ErrTxDone.
func expectCommit(tx *mocks.Tx) {
	tx.On("Commit").Return(nil).Once()
	tx.On("Rollback").Return(sql.ErrTxDone).Once()
}

func startedMySQLSink(t *testing.T, db *mocks.DB) *MySQLSink {
	t.Helper()
	db.On("PingContext", mock.Anything).Return(nil).Once()
	db.On("ExecContext", mock.Anything, mock.MatchedBy(func(q string) bool {
		return strings.HasPrefix(q, "CREATE TABLE IF NOT EXISTS `url_stats`")
	}), mock.Anything).Return(driver.RowsAffected(0), nil).Once()

	s := NewMySQLSink(mysqlConfig(), testutil.NewTestLogger(), WithDBFactory(dbFactory(db)))
	require.NoError(t, s.Start(context.Background()))
	return s
}

func TestDSN(t *testing.T) {
	dsn, err := DSN(mysqlConfig())
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(dsn, "logana:secret@tcp(db.local:3306)/logana?"), dsn)
	assert.Contains(t, dsn, "parseTime=true")
	assert.Contains(t, dsn, "timeout=5s")
	assert.Contains(t, dsn, "readTimeout=5s")
	assert.Contains(t, dsn, "writeTimeout=5s")
}

func TestDSN_InvalidParams(t *testing.T) {
	cfg := mysqlConfig()
	cfg.Params = "parseTime=maybe"

	_, err := DSN(cfg)
	assert.ErrorContains(t, err, "invalid mysql settings")
}

func TestMySQLSink_Start(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		startedMySQLSink(t, mocks.NewDB(t))
	})

	t.Run("invalid table", func(t *testing.T) {
		cfg := mysqlConfig()
		cfg.Table = "stats; DROP TABLE users"
		s := NewMySQLSink(cfg, testutil.NewTestLogger(), WithDBFactory(dbFactory(mocks.NewDB(t))))
		assert.ErrorContains(t, s.Start(context.Background()), "invalid mysql table name")
	})

	t.Run("ping error", func(t *testing.T) {
		db := mocks.NewDB(t)
		db.On("PingContext", mock.Anything).Return(errors.New("connection refused")).Once()
		db.On("Close").Return(nil).Once()

		s := NewMySQLSink(mysqlConfig(), testutil.NewTestLogger(), WithDBFactory(dbFactory(db)))
		assert.ErrorContains(t, s.Start(context.Background()), "connection refused")
	})

	t.Run("factory error", func(t *testing.T) {
		factory := func(cfg config.MySQLSinkConfig) (DB, error) {
			return nil, errors.New("factory failure")
		}
		s := NewMySQLSink(mysqlConfig(), testutil.NewTestLogger(), WithDBFactory(factory))
		assert.ErrorContains(t, s.Start(context.Background()), "factory failure")
	})
}

func TestMySQLSink_Write(t *testing.T) {
	db := mocks.NewDB(t)
	s := startedMySQLSink(t, db)
	rep := testReport()

	tx := beginTx(t, db)
	tx.On("ExecContext", mock.Anything, "DELETE FROM `url_stats` WHERE report = ? AND source = ?",
		[]any{"report-2017.06.30", rep.Source}).Return(driver.RowsAffected(2), nil).Once()

	var args []any
	tx.On("ExecContext", mock.Anything, mock.MatchedBy(func(q string) bool {
		return strings.HasPrefix(q, "INSERT INTO `url_stats` (report,source,log_date,generated_at,url,count,")
	}), mock.Anything).Return(driver.RowsAffected(2), nil).Run(func(a mock.Arguments) {
		args = a.Get(2).([]any)
	}).Once()
	expectCommit(tx)

	require.NoError(t, s.Write(context.Background(), rep))

	require.Len(t, args, 2*len(rowColumns))
	assert.Equal(t, "report-2017.06.30", args[0])
	assert.Equal(t, rep.Date, args[2])
	assert.Equal(t, "/api/v1/x", args[4])
	assert.Equal(t, 3, args[5])
	assert.Equal(t, "/other", args[len(rowColumns)+4])
}

func chunkedReport() *model.Report {
	rep := &model.Report{Source: "-", GeneratedAt: time.Now()}
	for i := range insertChunk + 1 {
		rep.Rows = append(rep.Rows, model.Row{URL: fmt.Sprintf("/u/%d", i), Count: 1})
	}
	return rep
}

func TestMySQLSink_WriteChunks(t *testing.T) {
	db := mocks.NewDB(t)
	s := startedMySQLSink(t, db)

	tx := beginTx(t, db)
	tx.On("ExecContext", mock.Anything, mock.MatchedBy(isDelete), mock.Anything).
		Return(driver.RowsAffected(0), nil).Once()

	var sizes []int
	tx.On("ExecContext", mock.Anything, mock.MatchedBy(isInsert), mock.Anything).
		Return(driver.RowsAffected(0), nil).Run(func(a mock.Arguments) {
		args := a.Get(2).([]any)
		sizes = append(sizes, len(args)/len(rowColumns))
		assert.Nil(t, args[2], "stdin reports have no log date")
	}).Twice()
	expectCommit(tx)

	require.NoError(t, s.Write(context.Background(), chunkedReport()))
	assert.Equal(t, []int{insertChunk, 1}, sizes)
}

func TestMySQLSink_WriteChunkFailureRollsBack(t *testing.T) {
	db := mocks.NewDB(t)
	s := startedMySQLSink(t, db)

	tx := beginTx(t, db)
	tx.On("ExecContext", mock.Anything, mock.MatchedBy(isDelete), mock.Anything).
		Return(driver.RowsAffected(3), nil).Once()
	tx.On("ExecContext", mock.Anything, mock.MatchedBy(isInsert), mock.Anything).
		Return(driver.RowsAffected(insertChunk), nil).Once()
	tx.On("ExecContext", mock.Anything, mock.MatchedBy(isInsert), mock.Anything).
		Return(nil, errors.New("lock wait timeout")).Once()
	tx.On("Rollback").Return(nil).Once()

	err := s.Write(context.Background(), chunkedReport())
	assert.ErrorContains(t, err, "lock wait timeout")
	tx.AssertNotCalled(t, "Commit")
}

func TestMySQLSink_WriteError(t *testing.T) {
	t.Run("delete", func(t *testing.T) {
		db := mocks.NewDB(t)
		s := startedMySQLSink(t, db)

		tx := beginTx(t, db)
		tx.On("ExecContext", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("lock wait timeout")).Once()
		tx.On("Rollback").Return(nil).Once()

		assert.ErrorContains(t, s.Write(context.Background(), testReport()), "lock wait timeout")
		tx.AssertNotCalled(t, "Commit")
	})

	t.Run("begin", func(t *testing.T) {
		db := mocks.NewDB(t)
		s := startedMySQLSink(t, db)
		db.On("BeginTx", mock.Anything, (*sql.TxOptions)(nil)).Return(nil, errors.New("too many connections")).Once()

		assert.ErrorContains(t, s.Write(context.Background(), testReport()), "too many connections")
	})

	t.Run("commit", func(t *testing.T) {
		db := mocks.NewDB(t)
		s := startedMySQLSink(t, db)

		tx := beginTx(t, db)
		tx.On("ExecContext", mock.Anything, mock.Anything, mock.Anything).Return(driver.RowsAffected(1), nil).Twice()
		tx.On("Commit").Return(errors.New("deadlock")).Once()
		tx.On("Rollback").Return(nil).Once()

		assert.ErrorContains(t, s.Write(context.Background(), testReport()), "committing rows: deadlock")
	})
}

func TestMySQLSink_WriteBeforeStart(t *testing.T) {
	s := NewMySQLSink(mysqlConfig(), testutil.NewTestLogger())
	assert.Error(t, s.Write(context.Background(), testReport()))
}

func TestMySQLSink_Stop(t *testing.T) {
	db := mocks.NewDB(t)
	s := startedMySQLSink(t, db)
	db.On("Close").Return(nil).Once()

	require.NoError(t, s.Stop(context.Background()))
	assert.NoError(t, s.Stop(context.Background()), "second stop is a no-op")
}
