package errors

import (
	"context"
	"database/sql"
	"time"

	"github.com/akshaykankal/facto/internal/config"
	"github.com/akshaykankal/facto/internal/infrastructure/observability"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

type RetryConfig struct {
	Enabled          bool
	MaxRetries       int
	InitialInterval  time.Duration
	MaxInterval      time.Duration
	Multiplier       float64
	Randomization    float64
	FatalErrorTypes  []DBErrorType
	TransientErrorFN func(error) bool
}

func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		Enabled:         true,
		MaxRetries:      3,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     2 * time.Second,
		Multiplier:      2.0,
		Randomization:   0.2,
		FatalErrorTypes: []DBErrorType{
			ErrorTypeConstraintViolation,
			ErrorTypeDuplicateKey,
			ErrorTypeForeignKeyViolation,
			ErrorTypeNoRows,
		},
		TransientErrorFN: IsTransientError,
	}
}

func (cfg *RetryConfig) MergeWith(c *config.DatabaseRetryConfig) *RetryConfig {
	if c == nil {
		return cfg
	}

	if c.Enabled != nil {
		cfg.Enabled = *c.Enabled
	}
	if c.MaxRetries != nil {
		cfg.MaxRetries = *c.MaxRetries
	}
	if c.InitialInterval != nil {
		cfg.InitialInterval = *c.InitialInterval
	}
	if c.MaxInterval != nil {
		cfg.MaxInterval = *c.MaxInterval
	}
	if c.Multiplier != nil {
		cfg.Multiplier = *c.Multiplier
	}
	if c.Randomization != nil {
		cfg.Randomization = *c.Randomization
	}
	if len(c.FatalErrorTypes) > 0 {
		cfg.FatalErrorTypes = make([]DBErrorType, len(c.FatalErrorTypes))
		for i, errType := range c.FatalErrorTypes {
			cfg.FatalErrorTypes[i] = DBErrorType(errType)
		}
	}

	return cfg
}

func (cfg *RetryConfig) IsFatalError(err error) bool {
	if !cfg.Enabled {
		return true
	}

	errType := ClassifyError(err)
	for _, fatalType := range cfg.FatalErrorTypes {
		if errType == fatalType {
			return true
		}
	}
	return false
}

func (cfg *RetryConfig) ShouldRetry(err error) bool {
	if !cfg.Enabled || cfg.IsFatalError(err) {
		return false
	}
	if cfg.TransientErrorFN != nil {
		return cfg.TransientErrorFN(err)
	}
	return IsTransientError(err)
}

func (cfg *RetryConfig) newBackOff(ctx context.Context) backoff.BackOff {
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = cfg.InitialInterval
	expBackoff.MaxInterval = cfg.MaxInterval
	expBackoff.Multiplier = cfg.Multiplier
	expBackoff.RandomizationFactor = cfg.Randomization
	expBackoff.MaxElapsedTime = 0
	expBackoff.Reset()

	var b backoff.BackOff = expBackoff
	if cfg.MaxRetries > 0 {
		b = backoff.WithMaxRetries(b, uint64(cfg.MaxRetries-1))
	}
	return backoff.WithContext(b, ctx)
}

type RetryableFunc func(attempt uint64) error

// RetryOperation runs f until it succeeds, returns a non-retryable error, or
// MaxRetries attempts have been made.
func RetryOperation(ctx context.Context, operationName string, f RetryableFunc, cfg *RetryConfig, metrics *observability.Metrics, logger *observability.Logger) error {
	if cfg == nil || !cfg.Enabled {
		return f(1)
	}

	var attempt uint64
	var lastErr error

	op := func() error {
		attempt++
		lastErr = f(attempt)
		if lastErr == nil {
			return nil
		}
		if !cfg.ShouldRetry(lastErr) {
			if metrics != nil {
				metrics.DatabaseRetrySkipped.WithLabelValues(operationName, string(ClassifyError(lastErr))).Inc()
			}
			return backoff.Permanent(lastErr)
		}
		return lastErr
	}

	notify := func(err error, next time.Duration) {
		if metrics != nil {
			metrics.DatabaseRetryAttempts.WithLabelValues(operationName, string(ClassifyError(err))).Inc()
		}
		if logger != nil {
			logger.Warn(ctx, "Retrying database operation",
				zap.String("operation", operationName),
				zap.Uint64("attempt", attempt),
				zap.Int("max_attempts", cfg.MaxRetries),
				zap.Duration("backoff", next),
				zap.Error(err),
			)
		}
	}

	err := backoff.RetryNotify(op, cfg.newBackOff(ctx), notify)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil && lastErr != nil && cfg.ShouldRetry(lastErr) {
		return ctx.Err()
	}
	if cfg.MaxRetries > 0 && attempt >= uint64(cfg.MaxRetries) && cfg.ShouldRetry(lastErr) && metrics != nil {
		metrics.DatabaseRetryMaxAttempts.WithLabelValues(operationName).Inc()
	}
	return lastErr
}

func WithRetryTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error, cfg *RetryConfig, metrics *observability.Metrics, logger *observability.Logger) error {
	return RetryOperation(ctx, "transaction", func(attempt uint64) error {
		tx, err := db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
		if err != nil {
			return err
		}
		defer func() {
			if p := recover(); p != nil {
				_ = tx.Rollback()
				panic(p)
			}
		}()

		if err := fn(tx); err != nil {
			_ = tx.Rollback()
			return err
		}
		return tx.Commit()
	}, cfg, metrics, logger)
}
