package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/akshaykankal/facto/internal/config"
	"github.com/akshaykankal/facto/internal/infrastructure/database"
	"github.com/akshaykankal/facto/internal/infrastructure/lock"
	"github.com/akshaykankal/facto/internal/infrastructure/middleware"
	"github.com/akshaykankal/facto/internal/infrastructure/observability"
	"github.com/akshaykankal/facto/internal/infrastructure/portal"
	"github.com/akshaykankal/facto/internal/infrastructure/repository"
	"github.com/akshaykankal/facto/internal/infrastructure/security"
	"github.com/akshaykankal/facto/internal/infrastructure/vault"
	"github.com/akshaykankal/facto/internal/modules/attendance"
	"github.com/akshaykankal/facto/internal/modules/auth"
	"github.com/akshaykankal/facto/internal/modules/health"
	"github.com/akshaykankal/facto/internal/modules/users"
	"github.com/akshaykankal/facto/internal/shared/validator"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Version is stamped at build time with -ldflags "-X .../internal/app.Version=...".
var Version = "dev"

type Container struct {
	Config          *config.Config
	DB              *database.DB
	Logger          *observability.Logger
	Repo            *repository.Repository
	JWTService      *security.JWTService
	PasswordService *security.PasswordService
	AuthMiddleware  *middleware.AuthMiddleware
	Validator       *validator.Validator
	Metrics         *observability.Metrics
	AuditLogger     *observability.AuditLogger
	Vault           *vault.Vault
	Portal          *portal.Client
	Locker          lock.Locker

	Attendance *attendance.Service
	Planner    *attendance.Planner
	Scheduler  *attendance.Scheduler

	AuthHandler       *auth.Handler
	UsersHandler      *users.Handler
	AttendanceHandler *attendance.Handler
	HealthHandler     *health.Handler

	rateLimiter security.RateLimiter
	redisMu     sync.RWMutex
	redisClient *redis.Client
}

// NewContainer wires every service on top of an open database. It fails only
// when the vault passphrase is unusable.
func NewContainer(cfg *config.Config, db *database.DB, logger *observability.Logger) (*Container, error) {
	metrics := observability.NewMetrics()

	c := &Container{
		Config:          cfg,
		DB:              db,
		Logger:          logger,
		JWTService:      security.NewJWTService(&cfg.JWT),
		PasswordService: security.NewPasswordService(cfg.Security.BcryptCost),
		Validator:       validator.New(),
		Metrics:         metrics,
		AuditLogger:     newAuditLogger(cfg.AuditLog, logger),
	}
	c.AuthMiddleware = middleware.NewAuthMiddleware(c.JWTService)

	var queryDB database.Querier = db
	if cfg.Database.CircuitBreaker.Enabled {
		logger.Info(context.Background(), "Initializing database circuit breaker",
			zap.Uint32("max_failures", cfg.Database.CircuitBreaker.MaxFailures),
			zap.Float64("failure_threshold", cfg.Database.CircuitBreaker.FailureThreshold),
			zap.Duration("reset_timeout", cfg.Database.CircuitBreaker.ResetTimeout),
		)
		queryDB = database.NewBreakerDB(db, cfg.Database.CircuitBreaker, metrics, logger)
	}
	c.Repo = repository.NewRepository(queryDB, db)

	v, err := vault.New(cfg.Vault.Passphrase)
	if err != nil {
		return nil, fmt.Errorf("vault: %w", err)
	}
	c.Vault = v
	c.Portal = portal.NewClient(cfg.Portal, metrics, logger)
	c.Locker = c.GetLocker()

	c.Attendance = attendance.NewService(c.Repo, c.Portal, c.Vault, c.Locker, cfg.Automation, metrics, logger, c.AuditLogger)
	c.Scheduler = attendance.NewScheduler(c.Attendance, logger, metrics)

	// Interfaces stay nil while the planner is disabled.
	var (
		replanner     auth.Planner
		plannerStatus attendance.PlannerStatus
	)
	if cfg.Automation.PlannerEnabled {
		c.Planner = attendance.NewPlanner(c.Repo, c.Attendance, cfg.Automation.Location(), metrics, logger)
		replanner, plannerStatus = c.Planner, c.Planner
	}

	authService := auth.NewService(c.Repo, c.JWTService, c.PasswordService, c.Vault, c.GetRateLimiter(), replanner, cfg.Security, logger)
	c.AuthHandler = auth.NewHandler(authService, c.Validator, c.AuditLogger, metrics)

	usersService := users.NewUsersService(c.Repo, c.Vault, replanner, logger)
	c.UsersHandler = users.NewHandler(usersService, c.Validator, c.AuditLogger)

	c.AttendanceHandler = attendance.NewHandler(c.Attendance, plannerStatus, c.Validator, c.AuditLogger)

	var rdb redis.Cmdable
	if client := c.currentRedis(); client != nil {
		rdb = client
	}
	c.HealthHandler = health.NewHandler(db.DB, rdb, c.Portal, Version)

	return c, nil
}

func newAuditLogger(cfg config.AuditLogConfig, logger *observability.Logger) *observability.AuditLogger {
	if !cfg.Enabled || cfg.Path == "" {
		return observability.NewAuditLogger(logger)
	}
	dedicated, err := observability.NewDedicatedAuditLogger(cfg.Path, cfg.Format)
	if err != nil {
		logger.Error(context.Background(), "Failed to initialize dedicated audit logger, falling back to main logger",
			zap.Error(err),
			zap.String("path", cfg.Path),
		)
		return observability.NewAuditLogger(logger)
	}
	logger.Info(context.Background(), "Audit logging enabled with dedicated file",
		zap.String("path", cfg.Path),
		zap.String("format", cfg.Format),
	)
	return dedicated
}

// GetRedisClient provides a thread-safe singleton that allows retries on failure.
func (c *Container) GetRedisClient() (*redis.Client, error) {
	c.redisMu.RLock()
	if c.redisClient != nil {
		client := c.redisClient
		c.redisMu.RUnlock()
		return client, nil
	}
	c.redisMu.RUnlock()

	c.redisMu.Lock()
	defer c.redisMu.Unlock()

	if c.redisClient != nil {
		return c.redisClient, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:            fmt.Sprintf("%s:%s", c.Config.Redis.Host, c.Config.Redis.Port),
		Password:        c.Config.Redis.Password,
		DB:              c.Config.Redis.DB,
		DialTimeout:     5 * time.Second,
		ReadTimeout:     3 * time.Second,
		WriteTimeout:    3 * time.Second,
		PoolSize:        c.Config.Redis.PoolSize,
		MinIdleConns:    c.Config.Redis.MinIdleConns,
		MaxRetries:      c.Config.Redis.MaxRetries,
		ConnMaxLifetime: c.Config.Redis.ConnMaxLifetime,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	c.redisClient = client
	return c.redisClient, nil
}

func (c *Container) currentRedis() *redis.Client {
	c.redisMu.RLock()
	defer c.redisMu.RUnlock()
	return c.redisClient
}

// redisOrFallback returns nil when Redis is disabled or unreachable. Production
// refuses to start without it.
func (c *Container) redisOrFallback(purpose string) *redis.Client {
	if !c.Config.Redis.Enabled {
		return nil
	}
	client, err := c.GetRedisClient()
	if err == nil {
		return client
	}
	if c.Config.Server.Env == "production" {
		c.Logger.Fatal(context.Background(),
			"Redis required in production but unavailable",
			zap.Error(err),
			zap.String("purpose", purpose),
			zap.String("redis_host", c.Config.Redis.Host),
			zap.String("redis_port", c.Config.Redis.Port),
		)
	}
	c.Logger.Warn(context.Background(), "Redis connection failed, falling back to in-process implementation",
		zap.Error(err),
		zap.String("purpose", purpose),
	)
	return nil
}

func (c *Container) GetRateLimiter() security.RateLimiter {
	if c.rateLimiter != nil {
		return c.rateLimiter
	}

	if client := c.redisOrFallback("rate_limiting"); client != nil {
		c.Logger.Info(context.Background(), "Using Redis rate limiter", zap.String("redis_host", c.Config.Redis.Host))
		c.rateLimiter = security.NewRedisRateLimiter(client)
		return c.rateLimiter
	}

	if !c.Config.Redis.Enabled {
		c.Logger.Info(context.Background(), "Redis disabled in configuration, using in-memory rate limiter")
	}
	c.rateLimiter = security.NewInMemoryRateLimiter()
	return c.rateLimiter
}

// GetLocker returns the per-user action lock. Without Redis only this
// process is serialized.
func (c *Container) GetLocker() lock.Locker {
	if c.Locker != nil {
		return c.Locker
	}
	if client := c.redisOrFallback("action_lock"); client != nil {
		return lock.NewRedisLocker(client)
	}
	return lock.NewMemoryLocker()
}

// Close gracefully closes all infrastructure connections.
func (c *Container) Close() {
	if c.AuditLogger != nil {
		if err := c.AuditLogger.Close(); err != nil {
			c.Logger.Error(context.Background(), "Error closing audit logger", zap.Error(err))
		}
	}

	c.redisMu.Lock()
	defer c.redisMu.Unlock()

	if c.DB != nil {
		if err := c.DB.Close(); err != nil {
			c.Logger.Error(context.Background(), "Error closing DB", zap.Error(err))
		}
	}

	if c.redisClient != nil {
		if err := c.redisClient.Close(); err != nil {
			c.Logger.Error(context.Background(), "Error closing Redis", zap.Error(err))
		}
		c.redisClient = nil
	}
}
