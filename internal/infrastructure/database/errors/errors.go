package errors

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/akshaykankal/facto/internal/infrastructure/observability"
	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
)

type DBErrorType string

const (
	ErrorTypeDeadlock            DBErrorType = "deadlock"
	ErrorTypeConnectionTimeout   DBErrorType = "connection_timeout"
	ErrorTypeConnectionRefused   DBErrorType = "connection_refused"
	ErrorTypeConstraintViolation DBErrorType = "constraint_violation"
	ErrorTypeDuplicateKey        DBErrorType = "duplicate_key"
	ErrorTypeForeignKeyViolation DBErrorType = "foreign_key_violation"
	ErrorTypeQueryTimeout        DBErrorType = "query_timeout"
	ErrorTypeNoRows              DBErrorType = "no_rows"
	ErrorTypeUnknown             DBErrorType = "unknown"
)

// MySQL / MariaDB server and client error numbers.
const (
	errDuplicateEntry  = 1062
	errLockWaitTimeout = 1205
	errLockTableFull   = 1206
	errDeadlock        = 1213
	errRowIsReferenced = 1451
	errNoReferencedRow = 1452
	errBadNull         = 1048
	errNoSuchTable     = 1146
	errQueryTimeout    = 3024
	errConnRefused     = 2003
	errUnknownHost     = 2005
	errServerLost      = 2013
)

type DBError struct {
	Original error
	Type     DBErrorType
	Context  map[string]any
}

func (e *DBError) Error() string {
	return fmt.Sprintf("database error: %s (%s)", e.Type, e.Original.Error())
}

func (e *DBError) Classify() DBErrorType {
	return e.Type
}

func (e *DBError) Unwrap() error {
	return e.Original
}

func NewDBError(err error, errType DBErrorType, ctx map[string]any) *DBError {
	return &DBError{
		Original: err,
		Type:     errType,
		Context:  ctx,
	}
}

func ClassifyError(err error) DBErrorType {
	if err == nil {
		return ""
	}

	var dbErr *DBError
	if errors.As(err, &dbErr) {
		return dbErr.Type
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return ErrorTypeQueryTimeout
	case errors.Is(err, sql.ErrNoRows):
		return ErrorTypeNoRows
	case errors.Is(err, sql.ErrConnDone), errors.Is(err, mysql.ErrInvalidConn):
		return ErrorTypeConnectionRefused
	}

	var mysqlErr *mysql.MySQLError
	if !errors.As(err, &mysqlErr) {
		return ErrorTypeUnknown
	}

	switch mysqlErr.Number {
	case errDeadlock, errLockWaitTimeout, errLockTableFull:
		return ErrorTypeDeadlock
	case errConnRefused, errUnknownHost:
		return ErrorTypeConnectionRefused
	case errServerLost:
		return ErrorTypeConnectionTimeout
	case errDuplicateEntry:
		return ErrorTypeDuplicateKey
	case errRowIsReferenced, errNoReferencedRow:
		return ErrorTypeForeignKeyViolation
	case errBadNull, errNoSuchTable:
		return ErrorTypeConstraintViolation
	case errQueryTimeout:
		return ErrorTypeQueryTimeout
	}

	return ErrorTypeUnknown
}

func IsTransientError(err error) bool {
	switch ClassifyError(err) {
	case ErrorTypeDeadlock, ErrorTypeConnectionTimeout, ErrorTypeConnectionRefused, ErrorTypeQueryTimeout:
		return true
	default:
		return false
	}
}

// IsDuplicateKey reports a unique-index violation, e.g. a taken username.
func IsDuplicateKey(err error) bool {
	return ClassifyError(err) == ErrorTypeDuplicateKey
}

func IsNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func LogDBError(ctx context.Context, logger *observability.Logger, err error, operation, query string) {
	if logger == nil || err == nil {
		return
	}
	errType := ClassifyError(err)

	fields := []zap.Field{
		zap.String("error_type", string(errType)),
		zap.Error(err),
		zap.String("operation", operation),
		zap.String("query", query),
	}

	switch errType {
	case ErrorTypeNoRows:
		return
	case ErrorTypeDuplicateKey:
		logger.Debug(ctx, "Database rejected duplicate row", fields...)
	case ErrorTypeDeadlock, ErrorTypeQueryTimeout:
		logger.Warn(ctx, "Transient database error", fields...)
	default:
		logger.Error(ctx, "Persistent database error", fields...)
	}
}
