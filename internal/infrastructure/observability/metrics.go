package observability

import (
	"sync"
	"time"

	"github.com/akshaykankal/facto/internal/shared/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type MetricsConfig struct {
	Namespace string
	Subsystem string
	Registry  prometheus.Registerer
	Gatherer  prometheus.Gatherer
}

func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "facto",
		Registry:  prometheus.DefaultRegisterer,
		Gatherer:  prometheus.DefaultGatherer,
	}
}

// NewTestMetrics builds metrics on a private registry so tests never collide.
func NewTestMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	return NewMetricsWithConfig(MetricsConfig{Namespace: "test", Registry: reg, Gatherer: reg})
}

type Metrics struct {
	HttpRequestsTotal        *prometheus.CounterVec
	HttpRequestDuration      *prometheus.HistogramVec
	HttpRequestSize          *prometheus.HistogramVec
	HttpResponseSize         *prometheus.HistogramVec
	DatabaseQueryDuration    *prometheus.HistogramVec
	DatabaseQuerySuccess     *prometheus.CounterVec
	DatabaseQueryErrors      *prometheus.CounterVec
	DatabaseConnections      *prometheus.GaugeVec
	DatabaseRetryAttempts    *prometheus.CounterVec
	DatabaseRetrySkipped     *prometheus.CounterVec
	DatabaseRetryMaxAttempts *prometheus.CounterVec
	AuthenticationAttempts   *prometheus.CounterVec
	AuthenticationFailures   *prometheus.CounterVec
	RateLimitHits            *prometheus.CounterVec
	BackgroundJobDuration    *prometheus.HistogramVec
	BackgroundJobErrors      *prometheus.CounterVec
	ErrorCount               *prometheus.CounterVec
	CircuitBreakerState      *prometheus.GaugeVec
	CircuitBreakerEvents     *prometheus.CounterVec
	CircuitBreakerDuration   *prometheus.SummaryVec

	// Attendance automation
	AttendanceActions     *prometheus.CounterVec
	AttendanceSkips       *prometheus.CounterVec
	SweepUsersScanned     prometheus.Counter
	PortalRequestsTotal   *prometheus.CounterVec
	PortalRequestDuration *prometheus.HistogramVec
	PlannedTriggers       prometheus.Gauge
	LockContention        *prometheus.CounterVec

	registry prometheus.Registerer
	gatherer prometheus.Gatherer
}

var (
	metrics     *Metrics
	metricsOnce sync.Once
)

// NewMetrics returns the process-wide instance bound to the default registry.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		metrics = NewMetricsWithConfig(DefaultMetricsConfig())
	})
	return metrics
}

func NewMetricsWithConfig(cfg MetricsConfig) *Metrics {
	factory := promauto.With(cfg.Registry)
	m := &Metrics{
		registry: cfg.Registry,
		gatherer: cfg.Gatherer,
	}
	opts := func(name, help string) prometheus.CounterOpts {
		return prometheus.CounterOpts{Namespace: cfg.Namespace, Subsystem: cfg.Subsystem, Name: name, Help: help}
	}

	// HTTP
	m.HttpRequestsTotal = factory.NewCounterVec(
		opts("http_requests_total", "Total number of HTTP requests"),
		[]string{"method", "path", "status"},
	)
	m.HttpRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
	m.HttpRequestSize = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "http_request_size_bytes",
			Help:      "Size of HTTP requests in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 6),
		},
		[]string{"method", "path"},
	)
	m.HttpResponseSize = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "http_response_size_bytes",
			Help:      "Size of HTTP responses in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 6),
		},
		[]string{"method", "path"},
	)

	// Database
	m.DatabaseQueryDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "database_query_duration_seconds",
			Help:      "Duration of database queries in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"query_type", "table"},
	)
	m.DatabaseQuerySuccess = factory.NewCounterVec(
		opts("database_query_success_total", "Total number of successful database queries"),
		[]string{"query_type", "table"},
	)
	m.DatabaseQueryErrors = factory.NewCounterVec(
		opts("database_query_errors_total", "Total number of database query errors"),
		[]string{"query_type", "table", "error_type"},
	)
	m.DatabaseConnections = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "database_connections",
			Help:      "Number of database connections by state",
		},
		[]string{"state"},
	)
	m.DatabaseRetryAttempts = factory.NewCounterVec(
		opts("database_retry_attempts_total", "Total number of database operation retry attempts"),
		[]string{"operation", "error_type"},
	)
	m.DatabaseRetrySkipped = factory.NewCounterVec(
		opts("database_retry_skipped_total", "Database operations not retried because the error was fatal"),
		[]string{"operation", "error_type"},
	)
	m.DatabaseRetryMaxAttempts = factory.NewCounterVec(
		opts("database_retry_max_attempts_total", "Database operations that exhausted their retries"),
		[]string{"operation"},
	)

	// Authentication
	m.AuthenticationAttempts = factory.NewCounterVec(
		opts("authentication_attempts_total", "Total number of authentication attempts"),
		[]string{"method"},
	)
	m.AuthenticationFailures = factory.NewCounterVec(
		opts("authentication_failures_total", "Total number of authentication failures"),
		[]string{"method", "reason"},
	)
	m.RateLimitHits = factory.NewCounterVec(
		opts("rate_limit_hits_total", "Total number of rate limit hits"),
		[]string{"route"},
	)

	// Background jobs
	m.BackgroundJobDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "background_job_duration_seconds",
			Help:      "Duration of background jobs in seconds",
			Buckets:   []float64{.1, .5, 1, 5, 10, 30, 60, 300},
		},
		[]string{"job_name"},
	)
	m.BackgroundJobErrors = factory.NewCounterVec(
		opts("background_job_errors_total", "Total number of background job errors"),
		[]string{"job_name", "error_type"},
	)

	m.ErrorCount = factory.NewCounterVec(
		opts("error_total", "Total number of errors by type"),
		[]string{"error_type", "method", "path"},
	)

	// Circuit breakers (database and portal)
	m.CircuitBreakerState = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "circuit_breaker_state",
			Help:      "Current state of circuit breakers (0=closed, 0.5=half_open, 1=open)",
		},
		[]string{"name"},
	)
	m.CircuitBreakerEvents = factory.NewCounterVec(
		opts("circuit_breaker_events_total", "Total number of circuit breaker events"),
		[]string{"name", "event_type", "reason"},
	)
	m.CircuitBreakerDuration = factory.NewSummaryVec(
		prometheus.SummaryOpts{
			Namespace:  cfg.Namespace,
			Subsystem:  cfg.Subsystem,
			Name:       "circuit_breaker_duration_seconds",
			Help:       "Duration of operations protected by circuit breakers",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		},
		[]string{"name", "status"},
	)

	// Attendance
	m.AttendanceActions = factory.NewCounterVec(
		opts("attendance_actions_total", "Attendance actions submitted to the portal"),
		[]string{"action", "trigger", "outcome"},
	)
	m.AttendanceSkips = factory.NewCounterVec(
		opts("attendance_skips_total", "Attendance actions skipped by a gate"),
		[]string{"reason"},
	)
	m.SweepUsersScanned = factory.NewCounter(
		opts("attendance_sweep_users_scanned_total", "Users examined by bulk sweeps"),
	)
	m.PortalRequestsTotal = factory.NewCounterVec(
		opts("portal_requests_total", "HTTP requests made to the attendance portal"),
		[]string{"step", "status"},
	)
	m.PortalRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "portal_request_duration_seconds",
			Help:      "Latency of attendance portal requests",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 20},
		},
		[]string{"step"},
	)
	m.PlannedTriggers = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "attendance_planned_triggers",
			Help:      "Per-user triggers currently registered with the planner",
		},
	)
	m.LockContention = factory.NewCounterVec(
		opts("attendance_lock_contention_total", "Attendance actions that found their lock already held"),
		[]string{"action"},
	)

	return m
}

func (m *Metrics) RecordDatabaseStats(openConns, inUse, idle int) {
	m.DatabaseConnections.WithLabelValues("open").Set(float64(openConns))
	m.DatabaseConnections.WithLabelValues("in_use").Set(float64(inUse))
	m.DatabaseConnections.WithLabelValues("idle").Set(float64(idle))
}

func (m *Metrics) RecordBackgroundJob(jobName string, duration time.Duration, err error) {
	m.BackgroundJobDuration.WithLabelValues(jobName).Observe(duration.Seconds())
	if err != nil {
		m.BackgroundJobErrors.WithLabelValues(jobName, "error").Inc()
	}
}

func (m *Metrics) RecordError(errorType errors.ErrorType, method, path string) {
	m.ErrorCount.WithLabelValues(string(errorType), method, path).Inc()
}

// RecordAttendance counts one action outcome: "success" or "failed".
func (m *Metrics) RecordAttendance(action, trigger, outcome string) {
	m.AttendanceActions.WithLabelValues(action, trigger, outcome).Inc()
}

func (m *Metrics) RecordSkip(reason string) {
	m.AttendanceSkips.WithLabelValues(reason).Inc()
}

func (m *Metrics) RecordPortalRequest(step string, status string, duration time.Duration) {
	m.PortalRequestsTotal.WithLabelValues(step, status).Inc()
	m.PortalRequestDuration.WithLabelValues(step).Observe(duration.Seconds())
}

func (m *Metrics) Registry() prometheus.Registerer {
	return m.registry
}

func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.gatherer
}

// Unregister removes all collectors from the registry.
func (m *Metrics) Unregister() {
	if m.registry == nil {
		return
	}
	collectors := []prometheus.Collector{
		m.HttpRequestsTotal,
		m.HttpRequestDuration,
		m.HttpRequestSize,
		m.HttpResponseSize,
		m.DatabaseQueryDuration,
		m.DatabaseQuerySuccess,
		m.DatabaseQueryErrors,
		m.DatabaseConnections,
		m.DatabaseRetryAttempts,
		m.DatabaseRetrySkipped,
		m.DatabaseRetryMaxAttempts,
		m.AuthenticationAttempts,
		m.AuthenticationFailures,
		m.RateLimitHits,
		m.BackgroundJobDuration,
		m.BackgroundJobErrors,
		m.ErrorCount,
		m.CircuitBreakerState,
		m.CircuitBreakerEvents,
		m.CircuitBreakerDuration,
		m.AttendanceActions,
		m.AttendanceSkips,
		m.SweepUsersScanned,
		m.PortalRequestsTotal,
		m.PortalRequestDuration,
		m.PlannedTriggers,
		m.LockContention,
	}
	for _, collector := range collectors {
		m.registry.Unregister(collector)
	}
}
