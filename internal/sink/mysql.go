package sink

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/GabrielNunesIT/go-libs/logger"
	"github.com/go-sql-driver/mysql"

	"github.com/GabrielNunesIT/log-analyzer/internal/config"
	"github.com/GabrielNunesIT/log-analyzer/internal/model"
)

// insertChunk bounds the rows per INSERT statement.
const insertChunk = 500

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

var rowColumns = []string{
	"report", "source", "log_date", "generated_at",
	"url", "count", "count_perc", "time_sum", "time_avg", "time_perc", "time_max", "time_med",
}

// Tx is the subset of *sql.Tx used by the MySQL sink.
type Tx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	Commit() error
	Rollback() error
}

var _ Tx = (*sql.Tx)(nil)

// DB is the subset of *sql.DB used by the MySQL sink.
type DB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	PingContext(ctx context.Context) error
	BeginTx(ctx context.Context, opts *sql.TxOptions) (Tx, error)
	Close() error
}

// sqlDB adapts *sql.DB to DB.
type sqlDB struct {
	*sql.DB
}

var _ DB = sqlDB{}

func (d sqlDB) BeginTx(ctx context.Context, opts *sql.TxOptions) (Tx, error) {
	return d.DB.BeginTx(ctx, opts)
}

// DBFactory opens the database connection.
type DBFactory func(cfg config.MySQLSinkConfig) (DB, error)

// MySQLOption configures a MySQLSink.
type MySQLOption func(*MySQLSink)

// WithDBFactory sets a custom factory for opening the database.
func WithDBFactory(f DBFactory) MySQLOption {
	return func(s *MySQLSink) {
		s.factory = f
	}
}

// MySQLSink stores report rows in a MySQL table. Rewriting a report replaces
// its previous rows.
type MySQLSink struct {
	cfg     config.MySQLSinkConfig
	factory DBFactory
	db      DB
	mu      sync.Mutex
	logger  logger.ILogger
}

// NewMySQLSink creates a new MySQL sink.
func NewMySQLSink(cfg config.MySQLSinkConfig, log logger.ILogger, opts ...MySQLOption) *MySQLSink {
	s := &MySQLSink{
		cfg:     cfg,
		factory: openMySQL,
		logger:  log.SubLogger("MySQLSink"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DSN builds the driver data source name for cfg.
func DSN(cfg config.MySQLSinkConfig) (string, error) {
	raw := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s", cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database)
	if cfg.Params != "" {
		raw += "?" + cfg.Params
	}

	mc, err := mysql.ParseDSN(raw)
	if err != nil {
		return "", fmt.Errorf("invalid mysql settings: %w", err)
	}
	if cfg.Timeout > 0 {
		mc.Timeout = cfg.Timeout
		mc.ReadTimeout = cfg.Timeout
		mc.WriteTimeout = cfg.Timeout
	}
	return mc.FormatDSN(), nil
}

func openMySQL(cfg config.MySQLSinkConfig) (DB, error) {
	dsn, err := DSN(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)
	return sqlDB{db}, nil
}

// Name returns the sink identifier.
func (s *MySQLSink) Name() string {
	return "mysql"
}

// Start connects and creates the table if needed.
func (s *MySQLSink) Start(ctx context.Context) error {
	if !tableName.MatchString(s.cfg.Table) {
		return fmt.Errorf("invalid mysql table name %q", s.cfg.Table)
	}

	db, err := s.factory(s.cfg)
	if err != nil {
		return err
	}

	ctx, cancel := s.timeout(ctx)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("connecting to mysql: %w", err)
	}
	if _, err := db.ExecContext(ctx, s.createTableQuery()); err != nil {
		db.Close()
		return fmt.Errorf("creating table %s: %w", s.cfg.Table, err)
	}

	s.mu.Lock()
	s.db = db
	s.mu.Unlock()

	s.logger.Infof("connected to MySQL: host=%s:%d database=%s table=%s", s.cfg.Host, s.cfg.Port, s.cfg.Database, s.cfg.Table)
	return nil
}

// Stop closes the connection pool.
func (s *MySQLSink) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Write replaces the rows stored for rep in one transaction. On any error
// the previous rows are kept.
func (s *MySQLSink) Write(ctx context.Context, rep *model.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return fmt.Errorf("mysql sink not started")
	}

	ctx, cancel := s.timeout(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if rerr := tx.Rollback(); rerr != nil && !errors.Is(rerr, sql.ErrTxDone) {
			s.logger.Warningf("rollback failed: report=%s error=%v", rep.Name(), rerr)
		}
	}()

	del := fmt.Sprintf("DELETE FROM `%s` WHERE report = ? AND source = ?", s.cfg.Table)
	if _, err := tx.ExecContext(ctx, del, rep.Name(), rep.Source); err != nil {
		return fmt.Errorf("deleting previous rows: %w", err)
	}

	var logDate any
	if !rep.Date.IsZero() {
		logDate = rep.Date
	}

	for i := 0; i < len(rep.Rows); i += insertChunk {
		part := rep.Rows[i:min(i+insertChunk, len(rep.Rows))]

		args := make([]any, 0, len(part)*len(rowColumns))
		for _, r := range part {
			args = append(args,
				rep.Name(), rep.Source, logDate, rep.GeneratedAt,
				r.URL, r.Count, r.CountPerc, r.TimeSum, r.TimeAvg, r.TimePerc, r.TimeMax, r.TimeMed)
		}
		if _, err := tx.ExecContext(ctx, s.insertQuery(len(part)), args...); err != nil {
			return fmt.Errorf("inserting rows: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing rows: %w", err)
	}

	s.logger.Debugf("stored rows: report=%s count=%d", rep.Name(), len(rep.Rows))
	return nil
}

func (s *MySQLSink) timeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.cfg.Timeout)
}

func (s *MySQLSink) createTableQuery() string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS `%s` ("+
		"id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY, "+
		"report VARCHAR(64) NOT NULL, "+
		"source VARCHAR(512) NOT NULL, "+
		"log_date DATE NULL, "+
		"generated_at DATETIME NOT NULL, "+
		"url TEXT NOT NULL, "+
		"count INT UNSIGNED NOT NULL, "+
		"count_perc DOUBLE NOT NULL, "+
		"time_sum DOUBLE NOT NULL, "+
		"time_avg DOUBLE NOT NULL, "+
		"time_perc DOUBLE NOT NULL, "+
		"time_max DOUBLE NOT NULL, "+
		"time_med DOUBLE NOT NULL, "+
		"KEY idx_report_source (report, source(191))"+
		") ENGINE=InnoDB DEFAULT CHARSET=utf8mb4", s.cfg.Table)
}

func (s *MySQLSink) insertQuery(rows int) string {
	pl := "(" + strings.TrimRight(strings.Repeat("?,", len(rowColumns)), ",") + ")"
	values := strings.TrimRight(strings.Repeat(pl+",", rows), ",")
	return fmt.Sprintf("INSERT INTO `%s` (%s) VALUES %s", s.cfg.Table, strings.Join(rowColumns, ","), values)
}
