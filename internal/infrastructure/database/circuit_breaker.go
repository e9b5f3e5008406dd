package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/akshaykankal/facto/internal/config"
	"github.com/akshaykankal/facto/internal/infrastructure/database/errors"
	"github.com/akshaykankal/facto/internal/infrastructure/observability"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

const breakerName = "mariadb"

// BreakerDB guards a Querier with a circuit breaker so a dead database makes
// sweeps fail fast instead of each user waiting out connection timeouts.
type BreakerDB struct {
	next    Querier
	cb      *gobreaker.CircuitBreaker
	metrics *observability.Metrics
}

func NewBreakerDB(next Querier, cfg config.CBConfig, metrics *observability.Metrics, logger *observability.Logger) *BreakerDB {
	settings := gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: cfg.MaxFailures,
		Timeout:     cfg.ResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 3 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureThreshold
		},
		// Row-level outcomes are not infrastructure failures.
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.IsTransientError(err)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			if logger != nil {
				logger.Warn(context.Background(), "Circuit breaker state changed",
					zap.String("breaker", name),
					zap.String("from_state", from.String()),
					zap.String("to_state", to.String()),
				)
			}
			RecordBreakerState(metrics, name, from, to)
		},
	}

	return &BreakerDB{
		next:    next,
		cb:      gobreaker.NewCircuitBreaker(settings),
		metrics: metrics,
	}
}

// RecordBreakerState exports a transition as 0=closed, 0.5=half_open, 1=open.
func RecordBreakerState(metrics *observability.Metrics, name string, from, to gobreaker.State) {
	if metrics == nil {
		return
	}
	value := 0.0
	switch to {
	case gobreaker.StateOpen:
		value = 1.0
	case gobreaker.StateHalfOpen:
		value = 0.5
	}
	metrics.CircuitBreakerState.WithLabelValues(name).Set(value)
	metrics.CircuitBreakerEvents.WithLabelValues(name, "state_change", from.String()+"_to_"+to.String()).Inc()
}

func (b *BreakerDB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	start := time.Now()
	result, err := b.cb.Execute(func() (any, error) {
		return b.next.ExecContext(ctx, query, args...)
	})
	b.observe(start, err)
	if err != nil {
		return nil, err
	}
	return result.(sql.Result), nil
}

func (b *BreakerDB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	start := time.Now()
	rows, err := b.cb.Execute(func() (any, error) {
		return b.next.QueryContext(ctx, query, args...)
	})
	b.observe(start, err)
	if err != nil {
		return nil, err
	}
	return rows.(*sql.Rows), nil
}

func (b *BreakerDB) observe(start time.Time, err error) {
	if b.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
		b.metrics.CircuitBreakerEvents.WithLabelValues(breakerName, "failure", string(errors.ClassifyError(err))).Inc()
	}
	b.metrics.CircuitBreakerDuration.WithLabelValues(breakerName, status).Observe(time.Since(start).Seconds())
}

func (b *BreakerDB) State() gobreaker.State {
	return b.cb.State()
}
