package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Clocked Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Service   ServiceConfig   `yaml:"service"`
	Database  DatabaseConfig  `yaml:"database"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Auth      AuthConfig      `yaml:"auth"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServiceConfig contains service identity information.
type ServiceConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	SendBufferSize int    `yaml:"send_buffer_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// AuthConfig contains token and passwordless login settings.
type AuthConfig struct {
	// JWTSecret signs access and refresh tokens. Required, minimum 32 characters.
	// Always set via CLOCKED_JWT_SECRET in production.
	JWTSecret string `yaml:"jwt_secret"`

	// AccessTokenTTL is the access token lifetime in minutes.
	AccessTokenTTL int `yaml:"access_token_ttl"`

	// RefreshTokenTTL is the refresh token lifetime in hours.
	RefreshTokenTTL int `yaml:"refresh_token_ttl"`

	// MagicLinkTTL is the magic link lifetime in minutes.
	MagicLinkTTL int `yaml:"magic_link_ttl"`

	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig contains rate limiting settings for the magic-link endpoint.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
}

// TelemetryConfig contains InfluxDB metrics settings.
type TelemetryConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: CLOCKED_SECTION_KEY
// For example: CLOCKED_DATABASE_PATH, CLOCKED_API_PORT, CLOCKED_JWT_SECRET
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:        "clocked-core",
			Environment: "development",
		},
		Database: DatabaseConfig{
			Path:        "./data/clocked.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			SendBufferSize: 256,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Auth: AuthConfig{
			AccessTokenTTL:  15,
			RefreshTokenTTL: 168, // 7 days
			MagicLinkTTL:    15,
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerMinute: 10,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: CLOCKED_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("CLOCKED_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// API
	if v := os.Getenv("CLOCKED_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("CLOCKED_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// Telemetry
	if v := os.Getenv("CLOCKED_TELEMETRY_TOKEN"); v != "" {
		cfg.Telemetry.Token = v
	}

	// Auth - JWT secret (IMPORTANT: always override in production)
	if v := os.Getenv("CLOCKED_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}

	// Logging
	if v := os.Getenv("CLOCKED_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// minJWTSecretLength is the minimum accepted JWT secret length.
// Shorter secrets make token forgery by brute force feasible.
const minJWTSecretLength = 32

// Validate checks the configuration for errors and security issues.
func (c *Config) Validate() error {
	var errs []string

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, "auth.jwt_secret is required (set CLOCKED_JWT_SECRET environment variable)")
	} else if len(c.Auth.JWTSecret) < minJWTSecretLength {
		errs = append(errs, "auth.jwt_secret must be at least 32 characters")
	}

	if c.Auth.AccessTokenTTL <= 0 {
		errs = append(errs, "auth.access_token_ttl must be positive")
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		errs = append(errs, "auth.refresh_token_ttl must be positive")
	}
	if c.Auth.MagicLinkTTL <= 0 {
		errs = append(errs, "auth.magic_link_ttl must be positive")
	}

	if c.Telemetry.Enabled && c.Telemetry.URL == "" {
		errs = append(errs, "telemetry.url is required when telemetry is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// AccessTokenDuration returns the access token lifetime as a Duration.
func (c *AuthConfig) AccessTokenDuration() time.Duration {
	return time.Duration(c.AccessTokenTTL) * time.Minute
}

// RefreshTokenDuration returns the refresh token lifetime as a Duration.
func (c *AuthConfig) RefreshTokenDuration() time.Duration {
	return time.Duration(c.RefreshTokenTTL) * time.Hour
}

// MagicLinkDuration returns the magic link lifetime as a Duration.
func (c *AuthConfig) MagicLinkDuration() time.Duration {
	return time.Duration(c.MagicLinkTTL) * time.Minute
}
