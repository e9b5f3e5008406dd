package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	JWT        JWTConfig        `mapstructure:"jwt"`
	Security   SecurityConfig   `mapstructure:"security"`
	CORS       CORSConfig       `mapstructure:"cors"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Redis      RedisConfig      `mapstructure:"redis"`
	AuditLog   AuditLogConfig   `mapstructure:"audit_log"`
	Portal     PortalConfig     `mapstructure:"portal"`
	Vault      VaultConfig      `mapstructure:"vault"`
	Automation AutomationConfig `mapstructure:"automation"`
}

type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	Host            string        `mapstructure:"host"`
	Env             string        `mapstructure:"env"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	UseHTTPS        bool          `mapstructure:"use_https"`
	TrustedProxies  []string      `mapstructure:"trusted_proxies"`
}

type DatabaseConfig struct {
	Host            string              `mapstructure:"host"`
	Port            string              `mapstructure:"port"`
	User            string              `mapstructure:"user"`
	Password        string              `mapstructure:"password"`
	Name            string              `mapstructure:"name"`
	MaxOpenConns    int                 `mapstructure:"max_open_conns"`
	MaxIdleConns    int                 `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration       `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration       `mapstructure:"conn_max_idle_time"`
	SlowQueryTime   time.Duration       `mapstructure:"slow_query_time"`
	AutoMigrate     bool                `mapstructure:"auto_migrate"`
	Retry           DatabaseRetryConfig `mapstructure:"retry"`
	CircuitBreaker  CBConfig            `mapstructure:"circuit_breaker"`
}

type DatabaseRetryConfig struct {
	Enabled         *bool          `mapstructure:"enabled"`
	MaxRetries      *int           `mapstructure:"max_retries"`
	InitialInterval *time.Duration `mapstructure:"initial_interval"`
	MaxInterval     *time.Duration `mapstructure:"max_interval"`
	Multiplier      *float64       `mapstructure:"multiplier"`
	Randomization   *float64       `mapstructure:"randomization"`
	FatalErrorTypes []string       `mapstructure:"fatal_error_types"`
}

type CBConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	MaxFailures      uint32        `mapstructure:"max_failures"`
	FailureThreshold float64       `mapstructure:"failure_threshold"`
	ResetTimeout     time.Duration `mapstructure:"reset_timeout"`
}

type RedisConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            string        `mapstructure:"port"`
	Password        string        `mapstructure:"password"`
	DB              int           `mapstructure:"db"`
	MaxRetries      int           `mapstructure:"max_retries"`
	PoolSize        int           `mapstructure:"pool_size"`
	MinIdleConns    int           `mapstructure:"min_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type JWTConfig struct {
	AccessSecret string        `mapstructure:"access_secret"`
	AccessExpiry time.Duration `mapstructure:"access_expiry"`
	Issuer       string        `mapstructure:"issuer"`
}

type SecurityConfig struct {
	BcryptCost           int           `mapstructure:"bcrypt_cost"`
	MaxLoginAttempts     int           `mapstructure:"max_login_attempts"`
	LoginLockoutDuration time.Duration `mapstructure:"login_lockout_duration"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Encoding string `mapstructure:"encoding"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type AuditLogConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
	Format  string `mapstructure:"format"`
}

// PortalConfig describes the FactoHR tenant the session client talks to.
type PortalConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	Tenant         string        `mapstructure:"tenant"`
	Zone           string        `mapstructure:"zone"`
	UserAgent      string        `mapstructure:"user_agent"`
	Timeout        time.Duration `mapstructure:"timeout"`
	CircuitBreaker CBConfig      `mapstructure:"circuit_breaker"`
}

type VaultConfig struct {
	Passphrase string `mapstructure:"passphrase"`
}

type AutomationConfig struct {
	Timezone         string        `mapstructure:"timezone"`
	CronSecret       string        `mapstructure:"cron_secret"`
	SweepInterval    time.Duration `mapstructure:"sweep_interval"`
	SweepConcurrency int           `mapstructure:"sweep_concurrency"`
	PlannerEnabled   bool          `mapstructure:"planner_enabled"`
	LockTTL          time.Duration `mapstructure:"lock_ttl"`
	RetryCooldown    time.Duration `mapstructure:"retry_cooldown"`
	ForceClockIn     bool          `mapstructure:"force_clock_in"`
	ForceClockOut    bool          `mapstructure:"force_clock_out"`
}

// Location resolves the automation timezone. Validate guarantees it loads.
func (a AutomationConfig) Location() *time.Location {
	loc, err := time.LoadLocation(a.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		fmt.Println("Warning: .env file not found, using environment variables")
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnv("SERVER_PORT", "8080"),
			Host:            getEnv("SERVER_HOST", "localhost"),
			Env:             getEnv("ENV", "development"),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 60*time.Second),
			IdleTimeout:     getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			UseHTTPS:        getEnvAsBool("SERVER_USE_HTTPS", false),
			TrustedProxies:  getEnvAsSlice("SERVER_TRUSTED_PROXIES", []string{"127.0.0.1"}),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "3306"),
			User:            getEnv("DB_USER", "facto"),
			Password:        getEnv("DB_PASSWORD", "facto"),
			Name:            getEnv("DB_NAME", "facto"),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			ConnMaxIdleTime: getEnvAsDuration("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
			SlowQueryTime:   getEnvAsDuration("DB_SLOW_QUERY_TIME", 500*time.Millisecond),
			AutoMigrate:     getEnvAsBool("DB_AUTO_MIGRATE", false),
			Retry: DatabaseRetryConfig{
				Enabled:         getEnvAsBoolPtr("DB_RETRY_ENABLED", true),
				MaxRetries:      getEnvAsIntPtr("DB_RETRY_MAX_RETRIES", 3),
				InitialInterval: getEnvAsDurationPtr("DB_RETRY_INITIAL_INTERVAL", 100*time.Millisecond),
				MaxInterval:     getEnvAsDurationPtr("DB_RETRY_MAX_INTERVAL", 2*time.Second),
				Multiplier:      getEnvAsFloatPtr("DB_RETRY_MULTIPLIER", 2.0),
				Randomization:   getEnvAsFloatPtr("DB_RETRY_RANDOMIZATION", 0.2),
				FatalErrorTypes: getEnvAsSlice("DB_RETRY_FATAL_ERROR_TYPES", []string{"constraint_violation", "duplicate_key", "foreign_key_violation"}),
			},
			CircuitBreaker: CBConfig{
				Enabled:          getEnvAsBool("DB_CIRCUIT_BREAKER_ENABLED", true),
				MaxFailures:      uint32(getEnvAsInt("DB_MAX_FAILURES", 5)),
				FailureThreshold: getEnvAsFloat("DB_FAILURE_THRESHOLD", 0.5),
				ResetTimeout:     getEnvAsDuration("DB_RESET_TIMEOUT", 30*time.Second),
			},
		},
		JWT: JWTConfig{
			AccessSecret: getEnv("JWT_ACCESS_SECRET", ""),
			AccessExpiry: getEnvAsDuration("JWT_ACCESS_EXPIRY", 7*24*time.Hour),
			Issuer:       getEnv("JWT_ISSUER", "facto"),
		},
		Security: SecurityConfig{
			BcryptCost:           getEnvAsInt("BCRYPT_COST", 12),
			MaxLoginAttempts:     getEnvAsInt("MAX_LOGIN_ATTEMPTS", 5),
			LoginLockoutDuration: getEnvAsDuration("LOGIN_LOCKOUT_DURATION", 15*time.Minute),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: getEnvAsSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "OPTIONS"}),
			AllowedHeaders: getEnvAsSlice("CORS_ALLOWED_HEADERS", []string{"Content-Type", "Authorization", "X-Cron-Secret"}),
		},
		Logging: LoggingConfig{
			Level:    getEnv("LOG_LEVEL", "info"),
			Encoding: getEnv("LOG_ENCODING", "json"),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvAsBool("ENABLE_METRICS", true),
		},
		AuditLog: AuditLogConfig{
			Enabled: getEnvAsBool("AUDIT_LOG_ENABLED", true),
			Path:    getEnv("AUDIT_LOG_PATH", ""),
			Format:  getEnv("AUDIT_LOG_FORMAT", "json"),
		},
		Redis: RedisConfig{
			Enabled:         getEnvAsBool("ENABLE_REDIS", false),
			Host:            getEnv("REDIS_HOST", "localhost"),
			Port:            getEnv("REDIS_PORT", "6379"),
			Password:        getEnv("REDIS_PASSWORD", ""),
			DB:              getEnvAsInt("REDIS_DB", 0),
			MaxRetries:      getEnvAsInt("REDIS_MAX_RETRIES", 3),
			PoolSize:        getEnvAsInt("REDIS_POOL_SIZE", 10),
			MinIdleConns:    getEnvAsInt("REDIS_MIN_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("REDIS_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Portal: PortalConfig{
			BaseURL:   strings.TrimRight(getEnv("PORTAL_BASE_URL", "https://app.factohr.com"), "/"),
			Tenant:    getEnv("PORTAL_TENANT", "broseindia"),
			Zone:      getEnv("PORTAL_ZONE", "Asia/Calcutta"),
			UserAgent: getEnv("PORTAL_USER_AGENT", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"),
			Timeout:   getEnvAsDuration("PORTAL_TIMEOUT", 20*time.Second),
			CircuitBreaker: CBConfig{
				Enabled:          getEnvAsBool("PORTAL_BREAKER_ENABLED", true),
				MaxFailures:      uint32(getEnvAsInt("PORTAL_BREAKER_MAX_FAILURES", 5)),
				FailureThreshold: getEnvAsFloat("PORTAL_BREAKER_FAILURE_THRESHOLD", 0.6),
				ResetTimeout:     getEnvAsDuration("PORTAL_BREAKER_RESET_TIMEOUT", 60*time.Second),
			},
		},
		Vault: VaultConfig{
			Passphrase: getEnv("VAULT_PASSPHRASE", ""),
		},
		Automation: AutomationConfig{
			Timezone:         getEnv("AUTOMATION_TIMEZONE", "Asia/Kolkata"),
			CronSecret:       getEnv("AUTOMATION_CRON_SECRET", getEnv("CRON_SECRET", "")),
			SweepInterval:    getEnvAsDuration("AUTOMATION_SWEEP_INTERVAL", time.Minute),
			SweepConcurrency: getEnvAsInt("AUTOMATION_SWEEP_CONCURRENCY", 4),
			PlannerEnabled:   getEnvAsBool("AUTOMATION_PLANNER_ENABLED", false),
			LockTTL:          getEnvAsDuration("AUTOMATION_LOCK_TTL", 2*time.Minute),
			RetryCooldown:    getEnvAsDuration("AUTOMATION_RETRY_COOLDOWN", 5*time.Minute),
			ForceClockIn:     getEnvAsBool("FORCE_PUNCH_IN", false),
			ForceClockOut:    getEnvAsBool("FORCE_PUNCH_OUT", false),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if err := c.validateDependencies(); err != nil {
		return err
	}
	if err := c.validateAutomation(); err != nil {
		return err
	}

	switch c.Server.Env {
	case "production":
		if err := c.validateProduction(); err != nil {
			return err
		}
	case "staging":
		if err := c.validateStaging(); err != nil {
			return err
		}
	}

	return nil
}

func (c *Config) validateDependencies() error {
	if err := validateBreaker("DB", c.Database.CircuitBreaker); err != nil {
		return err
	}

	if c.Redis.Enabled && c.Redis.Host == "" {
		return fmt.Errorf("redis host required when redis is enabled")
	}

	if c.JWT.AccessSecret == "" {
		return fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if len(c.JWT.AccessSecret) < 32 {
		return fmt.Errorf("JWT access secret must be at least 32 characters long")
	}
	if c.JWT.AccessExpiry <= 0 {
		return fmt.Errorf("JWT_ACCESS_EXPIRY must be greater than 0")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("DB_MAX_IDLE_CONNS cannot exceed DB_MAX_OPEN_CONNS")
	}
	if c.Database.SlowQueryTime <= 0 {
		return fmt.Errorf("DB_SLOW_QUERY_TIME must be greater than 0")
	}
	if c.Security.BcryptCost < 4 {
		return fmt.Errorf("BCRYPT_COST must be at least 4")
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("SERVER_READ_TIMEOUT must be greater than 0")
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("SERVER_WRITE_TIMEOUT must be greater than 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("SERVER_SHUTDOWN_TIMEOUT must be greater than 0")
	}
	if c.Security.LoginLockoutDuration <= 0 {
		return fmt.Errorf("LOGIN_LOCKOUT_DURATION must be greater than 0")
	}
	if c.Security.MaxLoginAttempts < 1 {
		return fmt.Errorf("MAX_LOGIN_ATTEMPTS must be at least 1")
	}

	return nil
}

func (c *Config) validateAutomation() error {
	if c.Vault.Passphrase == "" {
		return fmt.Errorf("VAULT_PASSPHRASE is required")
	}
	if c.Automation.CronSecret == "" {
		return fmt.Errorf("CRON_SECRET is required")
	}
	if _, err := time.LoadLocation(c.Automation.Timezone); err != nil {
		return fmt.Errorf("AUTOMATION_TIMEZONE %q cannot be loaded: %w", c.Automation.Timezone, err)
	}
	if c.Automation.SweepInterval < 0 {
		return fmt.Errorf("AUTOMATION_SWEEP_INTERVAL cannot be negative")
	}
	if c.Automation.SweepConcurrency < 1 {
		return fmt.Errorf("AUTOMATION_SWEEP_CONCURRENCY must be at least 1")
	}
	if c.Automation.LockTTL <= 0 {
		return fmt.Errorf("AUTOMATION_LOCK_TTL must be greater than 0")
	}
	if c.Automation.RetryCooldown < 0 {
		return fmt.Errorf("AUTOMATION_RETRY_COOLDOWN cannot be negative")
	}
	if c.Portal.BaseURL == "" || c.Portal.Tenant == "" {
		return fmt.Errorf("PORTAL_BASE_URL and PORTAL_TENANT are required")
	}
	if c.Portal.Timeout <= 0 {
		return fmt.Errorf("PORTAL_TIMEOUT must be greater than 0")
	}
	return validateBreaker("PORTAL_BREAKER", c.Portal.CircuitBreaker)
}

func validateBreaker(prefix string, cb CBConfig) error {
	if !cb.Enabled {
		return nil
	}
	if cb.MaxFailures < 1 {
		return fmt.Errorf("%s_MAX_FAILURES must be at least 1 when circuit breaker is enabled", prefix)
	}
	if cb.FailureThreshold <= 0 || cb.FailureThreshold > 1.0 {
		return fmt.Errorf("%s_FAILURE_THRESHOLD must be between 0 and 1.0", prefix)
	}
	if cb.ResetTimeout <= 0 {
		return fmt.Errorf("%s_RESET_TIMEOUT must be greater than 0", prefix)
	}
	return nil
}

func (c *Config) validateProduction() error {
	insecureDefaults := []string{
		"change-this-to-a-secure-random-string",
		"secret",
		"your-secret-key",
	}
	for _, defaultVal := range insecureDefaults {
		if strings.Contains(strings.ToLower(c.JWT.AccessSecret), defaultVal) {
			return fmt.Errorf("FATAL SECURITY: Default/insecure JWT Access Secret detected in production")
		}
		if strings.Contains(strings.ToLower(c.Automation.CronSecret), defaultVal) {
			return fmt.Errorf("FATAL SECURITY: Default/insecure CRON_SECRET detected in production")
		}
	}

	if len(c.Vault.Passphrase) < 16 {
		return fmt.Errorf("FATAL SECURITY: VAULT_PASSPHRASE must be at least 16 characters in production")
	}

	weakPasswords := []string{"password", "facto", "admin", "root", "test", ""}
	dbPass := strings.ToLower(c.Database.Password)
	for _, weak := range weakPasswords {
		if dbPass == weak {
			return fmt.Errorf("FATAL SECURITY: Weak or default database password detected in production")
		}
	}
	if len(c.Database.Password) < 16 {
		return fmt.Errorf("FATAL SECURITY: Database password must be at least 16 characters in production (current length: %d)", len(c.Database.Password))
	}
	if !hasPasswordComplexity(c.Database.Password) {
		return fmt.Errorf("FATAL SECURITY: Database password must contain uppercase, lowercase, numbers, and special characters in production")
	}

	if c.Security.BcryptCost < 12 {
		return fmt.Errorf("FATAL SECURITY: BCRYPT_COST must be at least 12 in production (current: %d)", c.Security.BcryptCost)
	}
	if !c.Server.UseHTTPS {
		return fmt.Errorf("FATAL SECURITY: HTTPS must be enabled in production (SERVER_USE_HTTPS=true)")
	}
	// The attendance lock and login rate limits are process-local without Redis.
	if !c.Redis.Enabled {
		return fmt.Errorf("WARNING: Redis is disabled in production. Attendance locks and rate limits will not hold across instances")
	}
	if c.Logging.Encoding != "json" {
		return fmt.Errorf("FATAL SECURITY: Production logging should use JSON format")
	}

	return nil
}

func (c *Config) validateStaging() error {
	if c.Security.BcryptCost < 12 {
		return fmt.Errorf("SECURITY WARNING: BCRYPT_COST should be at least 12 in staging (current: %d)", c.Security.BcryptCost)
	}
	if c.Logging.Encoding != "json" {
		return fmt.Errorf("WARNING: Staging logging should use JSON format to match production logging configuration")
	}
	return nil
}

func hasPasswordComplexity(password string) bool {
	hasUpper := regexp.MustCompile(`[A-Z]`).MatchString(password)
	hasLower := regexp.MustCompile(`[a-z]`).MatchString(password)
	hasNumber := regexp.MustCompile(`[0-9]`).MatchString(password)
	hasSpecial := regexp.MustCompile(`[!@#$%^&*()_+\-=\[\]{};':"\\|,.<>/?]`).MatchString(password)
	return hasUpper && hasLower && hasNumber && hasSpecial
}

func getEnvAsFloatPtr(key string, defaultValue float64) *float64 {
	v := getEnvAsFloat(key, defaultValue)
	return &v
}

func getEnvAsBoolPtr(key string, defaultValue bool) *bool {
	v := getEnvAsBool(key, defaultValue)
	return &v
}

func getEnvAsIntPtr(key string, defaultValue int) *int {
	v := getEnvAsInt(key, defaultValue)
	return &v
}

func getEnvAsDurationPtr(key string, defaultValue time.Duration) *time.Duration {
	v := getEnvAsDuration(key, defaultValue)
	return &v
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if durationValue, err := time.ParseDuration(value); err == nil {
			return durationValue
		}
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	parts := strings.Split(valueStr, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmedPart := strings.TrimSpace(part)
		if trimmedPart != "" {
			result = append(result, trimmedPart)
		}
	}
	return result
}
