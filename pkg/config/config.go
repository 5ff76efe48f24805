package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Execution strategies for the trend batch
const (
	ExecutionSequential = "sequential"
	ExecutionParallel   = "parallel"
)

// Config holds all configuration for the application
// ⭐ SSOT: 모든 환경변수는 여기서만 읽음
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production

	// Database
	Database DatabaseConfig

	// Redis
	Redis RedisConfig

	// Trend engine
	Trends TrendConfig

	// Admin trigger
	Admin AdminConfig

	// Logging
	LogLevel  string
	LogFormat string

	// Monitoring
	MetricsEnabled bool
	MetricsPort    string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	URL      string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// TrendConfig holds trend calculation settings
type TrendConfig struct {
	Execution           string        // sequential | parallel
	Workers             int           // entities processed concurrently per batch
	BatchPause          time.Duration // yield between parallel batches
	LookupRPS           float64       // rating lookups per second, 0 = unlimited
	IncludeOrganization bool
	WeeklyCron          string // cron expression with seconds field
	Timezone            string
	StalePendingAfter   time.Duration
	RunOnStartup        bool
	JobMaxRetries       int
	JobRetryDelay       time.Duration
	LockTTL             time.Duration
}

// AdminConfig holds settings for the on-demand admin trigger
type AdminConfig struct {
	TriggerLimitPerMinute int
}

// Load reads configuration from environment variables
// ⭐ SSOT: 이 함수만 os.Getenv()를 호출함
func Load() (*Config, error) {
	// Try multiple paths for .env file
	loadEnvFile()

	cfg := &Config{
		// Server
		Port: getEnv("PORT", "8089"),
		Env:  getEnv("ENV", "development"),

		// Database
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			Name:            getEnv("DB_NAME", "camps"),
			User:            getEnv("DB_USER", "camps"),
			Password:        getEnv("DB_PASSWORD", ""),
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 25),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 5),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		// Redis
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
		},

		// Trend engine
		Trends: TrendConfig{
			Execution:           strings.ToLower(getEnv("TREND_EXECUTION", ExecutionParallel)),
			Workers:             getEnvAsInt("TREND_WORKERS", 5),
			BatchPause:          getEnvAsDuration("TREND_BATCH_PAUSE", "100ms"),
			LookupRPS:           getEnvAsFloat("TREND_LOOKUP_RPS", 0),
			IncludeOrganization: getEnvAsBool("TREND_INCLUDE_ORGANIZATION", true),
			WeeklyCron:          getEnv("TREND_WEEKLY_CRON", "0 0 1 * * MON"), // Monday 01:00
			Timezone:            getEnv("TREND_TIMEZONE", "UTC"),
			StalePendingAfter:   getEnvAsDuration("TREND_STALE_PENDING_AFTER", "6h"),
			RunOnStartup:        getEnvAsBool("TREND_RUN_ON_STARTUP", true),
			JobMaxRetries:       getEnvAsInt("TREND_JOB_MAX_RETRIES", 3),
			JobRetryDelay:       getEnvAsDuration("TREND_JOB_RETRY_DELAY", "1m"),
			LockTTL:             getEnvAsDuration("TREND_LOCK_TTL", "2h"),
		},

		Admin: AdminConfig{
			TriggerLimitPerMinute: getEnvAsInt("ADMIN_TRIGGER_LIMIT_PER_MINUTE", 6),
		},

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		// Monitoring
		MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
		MetricsPort:    getEnv("METRICS_PORT", "9090"),
	}

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Location returns the time zone used to compute scheduled windows
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Trends.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Trends.Timezone, err)
	}
	return loc, nil
}

// validate checks if required configuration values are set
func (c *Config) validate() error {
	// Database URL is required
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	// Validate environment
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	if c.Trends.Execution != ExecutionSequential && c.Trends.Execution != ExecutionParallel {
		return fmt.Errorf("TREND_EXECUTION must be one of: sequential, parallel")
	}

	if c.Trends.Workers < 1 {
		return fmt.Errorf("TREND_WORKERS must be at least 1")
	}

	if c.Trends.LookupRPS < 0 {
		return fmt.Errorf("TREND_LOOKUP_RPS must not be negative")
	}

	if _, err := time.LoadLocation(c.Trends.Timezone); err != nil {
		return fmt.Errorf("TREND_TIMEZONE is invalid: %w", err)
	}

	return nil
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	// Try paths in order of priority
	paths := []string{
		".env", // Current directory
	}

	// Also try relative to executable
	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		// Fallback to default
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}
