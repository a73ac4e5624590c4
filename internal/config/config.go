package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// MinJWTSecretLength mirrors auth.MinSecretLength; config is loaded before auth
const MinJWTSecretLength = 32

// Config holds all configuration for the application
type Config struct {
	// HTTP server configuration
	Server ServerConfig

	// Database Configuration
	Database DatabaseConfig

	// Redis Configuration
	Redis RedisConfig

	// Session and token configuration
	Auth AuthConfig

	// Route table configuration
	Routes RoutesConfig

	// Background job configuration
	Jobs JobsConfig

	// Logging Configuration
	Logging LoggingConfig
}

// ServerConfig holds HTTP listener configuration
type ServerConfig struct {
	ListenAddr  string
	CORSOrigins []string
	Environment string
}

// IsDevelopment reports whether the server runs in development mode
func (s ServerConfig) IsDevelopment() bool {
	return s.Environment == "development"
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	URL string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Address          string // Redis address (host:port)
	UserCacheEnabled bool
	UserCacheTTL     time.Duration
}

// AuthConfig holds session token configuration
type AuthConfig struct {
	JWTSecret     string
	CookieName    string
	SessionTTL    time.Duration
	LookupTimeout time.Duration
}

// RoutesConfig points at an optional YAML route table
type RoutesConfig struct {
	File string // empty = compiled-in table
}

// JobsConfig holds background job configuration
type JobsConfig struct {
	SessionPurgeSchedule string // standard 5-field cron expression
}

// LoggingConfig holds logging-related configuration
type LoggingConfig struct {
	Level  string
	Format string // json, console
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env files (fails silently if files don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	return FromEnv(os.Getenv)
}

// FromEnv builds the configuration from a variable lookup function
func FromEnv(getenv func(string) string) (*Config, error) {
	get := func(key, def string) string {
		if v := getenv(key); v != "" {
			return v
		}
		return def
	}

	cfg := &Config{
		Server: ServerConfig{
			ListenAddr:  get("LISTEN_ADDR", ":8080"),
			CORSOrigins: splitList(get("CORS_ORIGINS", "http://localhost:3000")),
			Environment: get("ENVIRONMENT", "development"),
		},
		Database: DatabaseConfig{
			URL: get("DATABASE_URL", "givebridge.sqlite"),
		},
		Redis: RedisConfig{
			Address: get("REDIS_ADDRESS", "localhost:6379"),
		},
		Auth: AuthConfig{
			JWTSecret:  getenv("JWT_SECRET"),
			CookieName: get("SESSION_COOKIE", "auth_token"),
		},
		Routes: RoutesConfig{
			File: getenv("ROUTE_TABLE_FILE"),
		},
		Jobs: JobsConfig{
			SessionPurgeSchedule: get("SESSION_PURGE_SCHEDULE", "0 * * * *"),
		},
		Logging: LoggingConfig{
			Level:  get("LOG_LEVEL", "info"),
			Format: get("LOG_FORMAT", "json"),
		},
	}

	var err error
	if cfg.Redis.UserCacheEnabled, err = strconv.ParseBool(get("USER_CACHE_ENABLED", "false")); err != nil {
		return nil, fmt.Errorf("invalid USER_CACHE_ENABLED: %w", err)
	}
	if cfg.Redis.UserCacheTTL, err = parseDuration("USER_CACHE_TTL", get("USER_CACHE_TTL", "30s")); err != nil {
		return nil, err
	}
	if cfg.Auth.SessionTTL, err = parseDuration("SESSION_TTL", get("SESSION_TTL", "24h")); err != nil {
		return nil, err
	}
	if cfg.Auth.LookupTimeout, err = parseDuration("SESSION_LOOKUP_TIMEOUT", get("SESSION_LOOKUP_TIMEOUT", "2s")); err != nil {
		return nil, err
	}

	if len(cfg.Auth.JWTSecret) < MinJWTSecretLength {
		return nil, fmt.Errorf("JWT_SECRET must be at least %d bytes long, got %d bytes; "+
			"generate one with: openssl rand -hex 32", MinJWTSecretLength, len(cfg.Auth.JWTSecret))
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(cfg.Jobs.SessionPurgeSchedule); err != nil {
		return nil, fmt.Errorf("invalid SESSION_PURGE_SCHEDULE: %w", err)
	}

	return cfg, nil
}

func parseDuration(key, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return d, nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
