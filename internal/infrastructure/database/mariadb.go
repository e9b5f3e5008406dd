package database

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/akshaykankal/facto/internal/config"
	"github.com/akshaykankal/facto/internal/infrastructure/database/errors"
	"github.com/akshaykankal/facto/internal/infrastructure/observability"
	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
)

// Querier is the subset of *sql.DB / *sql.Tx the repositories use.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type DB struct {
	*sql.DB
	retryConfig   *errors.RetryConfig
	metrics       *observability.Metrics
	logger        *observability.Logger
	slowQueryTime time.Duration
}

// DSN builds the driver DSN. parseTime is required: DATETIME columns scan into time.Time.
func DSN(cfg *config.DatabaseConfig) string {
	mc := mysql.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(cfg.Host, cfg.Port)
	mc.DBName = cfg.Name
	mc.ParseTime = true
	mc.Loc = time.UTC
	mc.Collation = "utf8mb4_unicode_ci"
	mc.InterpolateParams = true
	mc.Timeout = 10 * time.Second
	mc.ReadTimeout = 10 * time.Second
	mc.WriteTimeout = 10 * time.Second
	return mc.FormatDSN()
}

func NewMariaDB(ctx context.Context, cfg *config.DatabaseConfig, metrics *observability.Metrics, logger *observability.Logger) (*DB, error) {
	dsn := DSN(cfg)
	retryCfg := errors.DefaultRetryConfig().MergeWith(&cfg.Retry)

	var db *sql.DB
	err := errors.RetryOperation(ctx, "db_connection", func(attempt uint64) error {
		var connectErr error
		db, connectErr = sql.Open("mysql", dsn)
		if connectErr != nil {
			return connectErr
		}

		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if connectErr = db.PingContext(pingCtx); connectErr != nil {
			_ = db.Close()
			// The driver reports unreachable servers as plain net errors; make them retryable.
			return errors.NewDBError(connectErr, errors.ErrorTypeConnectionRefused, nil)
		}
		return nil
	}, retryCfg, metrics, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", retryCfg.MaxRetries, err)
	}

	return New(db, retryCfg, cfg.SlowQueryTime, metrics, logger), nil
}

// New wraps an already opened pool. Tests pass a sqlmock connection here.
func New(db *sql.DB, retryCfg *errors.RetryConfig, slowQueryTime time.Duration, metrics *observability.Metrics, logger *observability.Logger) *DB {
	if retryCfg == nil {
		retryCfg = errors.DefaultRetryConfig()
	}
	return &DB{
		DB:            db,
		retryConfig:   retryCfg,
		metrics:       metrics,
		logger:        logger,
		slowQueryTime: slowQueryTime,
	}
}

func (db *DB) WithTx(ctx context.Context, fn func(*sql.Tx) error) error {
	return errors.WithRetryTx(ctx, db.DB, fn, db.retryConfig, db.metrics, db.logger)
}

func (db *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	var result sql.Result
	err := errors.RetryOperation(ctx, "exec", func(attempt uint64) error {
		var execErr error
		start := time.Now()
		result, execErr = db.DB.ExecContext(ctx, query, args...)
		db.observe(ctx, "exec", query, time.Since(start), execErr)
		return execErr
	}, db.retryConfig, db.metrics, db.logger)
	return result, err
}

func (db *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	var rows *sql.Rows
	err := errors.RetryOperation(ctx, "query", func(attempt uint64) error {
		var queryErr error
		start := time.Now()
		rows, queryErr = db.DB.QueryContext(ctx, query, args...)
		db.observe(ctx, "query", query, time.Since(start), queryErr)
		return queryErr
	}, db.retryConfig, db.metrics, db.logger)
	return rows, err
}

func (db *DB) observe(ctx context.Context, kind, query string, took time.Duration, err error) {
	table := tableName(query)
	if db.metrics != nil {
		db.metrics.DatabaseQueryDuration.WithLabelValues(kind, table).Observe(took.Seconds())
		if err != nil {
			db.metrics.DatabaseQueryErrors.WithLabelValues(kind, table, string(errors.ClassifyError(err))).Inc()
		} else {
			db.metrics.DatabaseQuerySuccess.WithLabelValues(kind, table).Inc()
		}
	}
	if err != nil {
		errors.LogDBError(ctx, db.logger, err, kind, query)
		return
	}
	if db.logger != nil && db.slowQueryTime > 0 && took > db.slowQueryTime {
		db.logger.Warn(ctx, "Slow database query",
			zap.String("table", table),
			zap.Duration("duration", took),
		)
	}
}

// RecordStats publishes pool statistics; the server calls it periodically.
func (db *DB) RecordStats() {
	if db.metrics == nil {
		return
	}
	s := db.DB.Stats()
	db.metrics.RecordDatabaseStats(s.OpenConnections, s.InUse, s.Idle)
}

func (db *DB) Close() error {
	return db.DB.Close()
}

// tableName picks the first table named after FROM, INTO or UPDATE for metric labels.
func tableName(query string) string {
	fields := strings.Fields(query)
	for i := 0; i < len(fields)-1; i++ {
		switch strings.ToUpper(fields[i]) {
		case "FROM", "INTO", "UPDATE":
			return strings.Trim(fields[i+1], "`(;")
		}
	}
	return "unknown"
}
