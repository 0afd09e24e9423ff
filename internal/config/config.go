// Package config loads and validates the projecthub configuration using Viper.
//
// Configuration is layered: built-in defaults < YAML config file < environment
// variables. Environment variables use the PHUB_ prefix (e.g., PHUB_DATABASE_HOST
// overrides database.host in the YAML), so the same binary runs with a
// config.yaml locally and with pure environment variables in containers.
//
// The JWT signing secret is not part of Config. It is read from PHUB_JWT_SECRET
// by the auth package so it never ends up in a rendered config dump.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Upper bounds for the chat limits. Configuration may tighten them, never raise them.
const (
	MaxContentLengthLimit = 5000
	MaxPageSizeLimit      = 200
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Chat      ChatConfig      `mapstructure:"chat"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Security  SecurityConfig  `mapstructure:"security"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	BaseURL         string        `mapstructure:"base_url"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host               string `mapstructure:"host"`
	Port               int    `mapstructure:"port"`
	Name               string `mapstructure:"name"`
	User               string `mapstructure:"user"`
	Password           string `mapstructure:"password"`
	SSLMode            string `mapstructure:"ssl_mode"`
	MaxConnections     int    `mapstructure:"max_connections"`
	MinIdleConnections int    `mapstructure:"min_idle_connections"`
}

// AuthConfig holds bearer token verification settings
type AuthConfig struct {
	// JWTIssuer is required in the iss claim of every accepted token
	JWTIssuer string `mapstructure:"jwt_issuer"`
	// TokenTTL is the lifetime of tokens minted by cmd/mint-token
	TokenTTL time.Duration `mapstructure:"token_ttl"`
}

// ChatConfig holds limits for the message service and the websocket transport.
type ChatConfig struct {
	MaxContentLength  int           `mapstructure:"max_content_length"`
	MaxMetadataBytes  int           `mapstructure:"max_metadata_bytes"`
	DefaultPageSize   int           `mapstructure:"default_page_size"`
	MaxPageSize       int           `mapstructure:"max_page_size"`
	SendBuffer        int           `mapstructure:"send_buffer"`
	PingInterval      time.Duration `mapstructure:"ping_interval"`
	PongWait          time.Duration `mapstructure:"pong_wait"`
	WriteWait         time.Duration `mapstructure:"write_wait"`
	MaxFrameBytes     int64         `mapstructure:"max_frame_bytes"`
	MessagesPerSecond float64       `mapstructure:"messages_per_second"`
	MessageBurst      int           `mapstructure:"message_burst"`
	// AllowedOrigins is matched against the Origin header on websocket upgrade; "*" allows any.
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// RedisConfig holds the optional pub/sub fan-out and distributed rate limit backend.
// When disabled, fan-out stays inside the process.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Channel  string `mapstructure:"channel"`
	PoolSize int    `mapstructure:"pool_size"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	CORS         CORSConfig         `mapstructure:"cors"`
	RateLimiting RateLimitingConfig `mapstructure:"rate_limiting"`
	TLS          TLSConfig          `mapstructure:"tls"`
}

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
}

// RateLimitingConfig holds rate limiting configuration
type RateLimitingConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
	Burst             int  `mapstructure:"burst"`
}

// TLSConfig holds TLS/HTTPS configuration
type TLSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TelemetryConfig holds observability configuration
type TelemetryConfig struct {
	ServiceName string          `mapstructure:"service_name"`
	Metrics     MetricsConfig   `mapstructure:"metrics"`
	Profiling   ProfilingConfig `mapstructure:"profiling"`
}

// MetricsConfig holds Prometheus metrics configuration
type MetricsConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	PrometheusPort int  `mapstructure:"prometheus_port"`
}

// ProfilingConfig holds profiling configuration
type ProfilingConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// configKeys lists every key that may be overridden from the environment.
var configKeys = []string{
	// Server
	"server.host",
	"server.port",
	"server.base_url",
	"server.read_timeout",
	"server.shutdown_timeout",

	// Database
	"database.host",
	"database.port",
	"database.name",
	"database.user",
	"database.password",
	"database.ssl_mode",
	"database.max_connections",
	"database.min_idle_connections",

	// Auth
	"auth.jwt_issuer",
	"auth.token_ttl",

	// Chat
	"chat.max_content_length",
	"chat.max_metadata_bytes",
	"chat.default_page_size",
	"chat.max_page_size",
	"chat.send_buffer",
	"chat.ping_interval",
	"chat.pong_wait",
	"chat.write_wait",
	"chat.max_frame_bytes",
	"chat.messages_per_second",
	"chat.message_burst",
	"chat.allowed_origins",

	// Redis
	"redis.enabled",
	"redis.addr",
	"redis.password",
	"redis.db",
	"redis.channel",
	"redis.pool_size",

	// Security
	"security.cors.allowed_origins",
	"security.cors.allowed_methods",
	"security.rate_limiting.enabled",
	"security.rate_limiting.requests_per_minute",
	"security.rate_limiting.burst",
	"security.tls.enabled",
	"security.tls.cert_file",
	"security.tls.key_file",

	// Logging
	"logging.level",
	"logging.format",

	// Telemetry
	"telemetry.service_name",
	"telemetry.metrics.enabled",
	"telemetry.metrics.prometheus_port",
	"telemetry.profiling.enabled",
	"telemetry.profiling.port",
}

// bindEnvVars explicitly binds environment variables to config keys.
// This is necessary because AutomaticEnv() doesn't work well with nested structs during Unmarshal.
func bindEnvVars(v *viper.Viper) error {
	for _, key := range configKeys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("failed to bind env var %q: %w", key, err)
		}
	}
	return nil
}

// newViper builds a viper instance with defaults, the config file search path
// and environment bindings applied. It does not read the file.
func newViper(configPath string) (*viper.Viper, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/projecthub")
	}

	v.SetEnvPrefix("PHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := bindEnvVars(v); err != nil {
		return nil, err
	}
	return v, nil
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v, err := newViper(configPath)
	if err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; use defaults and environment variables
	}

	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Expand environment variables in sensitive fields
	cfg.Database.Password = expandEnv(cfg.Database.Password)
	cfg.Redis.Password = expandEnv(cfg.Redis.Password)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.base_url", "http://localhost:8080")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "projecthub")
	v.SetDefault("database.user", "projecthub")
	v.SetDefault("database.ssl_mode", "require")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_idle_connections", 5)

	// Auth defaults
	v.SetDefault("auth.jwt_issuer", "projecthub")
	v.SetDefault("auth.token_ttl", "24h")

	// Chat defaults
	v.SetDefault("chat.max_content_length", 5000)
	v.SetDefault("chat.max_metadata_bytes", 16384)
	v.SetDefault("chat.default_page_size", 50)
	v.SetDefault("chat.max_page_size", 200)
	v.SetDefault("chat.send_buffer", 256)
	v.SetDefault("chat.ping_interval", "54s")
	v.SetDefault("chat.pong_wait", "60s")
	v.SetDefault("chat.write_wait", "10s")
	v.SetDefault("chat.max_frame_bytes", 64*1024)
	v.SetDefault("chat.messages_per_second", 5.0)
	v.SetDefault("chat.message_burst", 10)
	v.SetDefault("chat.allowed_origins", []string{"*"})

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.channel", "projecthub:rooms")
	v.SetDefault("redis.pool_size", 10)

	// Security defaults
	v.SetDefault("security.cors.allowed_origins", []string{"*"})
	v.SetDefault("security.cors.allowed_methods", []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"})
	v.SetDefault("security.rate_limiting.enabled", true)
	v.SetDefault("security.rate_limiting.requests_per_minute", 120)
	v.SetDefault("security.rate_limiting.burst", 20)
	v.SetDefault("security.tls.enabled", false)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Telemetry defaults
	v.SetDefault("telemetry.service_name", "projecthub")
	v.SetDefault("telemetry.metrics.enabled", true)
	v.SetDefault("telemetry.metrics.prometheus_port", 9090)
	v.SetDefault("telemetry.profiling.enabled", false)
	v.SetDefault("telemetry.profiling.port", 6060)
}

// expandEnv expands environment variables in the format ${VAR_NAME}
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	// Validate server
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.BaseURL == "" {
		return fmt.Errorf("server.base_url is required")
	}

	// Validate database
	if c.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database.name is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("database.user is required")
	}

	// Validate chat limits
	if c.Chat.MaxContentLength < 1 || c.Chat.MaxContentLength > MaxContentLengthLimit {
		return fmt.Errorf("chat.max_content_length must be between 1 and %d", MaxContentLengthLimit)
	}
	if c.Chat.MaxMetadataBytes < 1 {
		return fmt.Errorf("chat.max_metadata_bytes must be positive")
	}
	if c.Chat.MaxPageSize < 1 || c.Chat.MaxPageSize > MaxPageSizeLimit {
		return fmt.Errorf("chat.max_page_size must be between 1 and %d", MaxPageSizeLimit)
	}
	if c.Chat.DefaultPageSize < 1 || c.Chat.DefaultPageSize > c.Chat.MaxPageSize {
		return fmt.Errorf("chat.default_page_size must be between 1 and %d", c.Chat.MaxPageSize)
	}
	if c.Chat.SendBuffer < 1 {
		return fmt.Errorf("chat.send_buffer must be positive")
	}
	if c.Chat.PingInterval <= 0 || c.Chat.PongWait <= 0 || c.Chat.WriteWait <= 0 {
		return fmt.Errorf("chat.ping_interval, chat.pong_wait and chat.write_wait must be positive")
	}
	if c.Chat.PingInterval >= c.Chat.PongWait {
		return fmt.Errorf("chat.ping_interval (%s) must be shorter than chat.pong_wait (%s)", c.Chat.PingInterval, c.Chat.PongWait)
	}
	if c.Chat.MaxFrameBytes < 1 {
		return fmt.Errorf("chat.max_frame_bytes must be positive")
	}
	if c.Chat.MessagesPerSecond <= 0 || c.Chat.MessageBurst < 1 {
		return fmt.Errorf("chat.messages_per_second must be positive and chat.message_burst at least 1")
	}

	// Validate redis if enabled
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required when redis is enabled")
		}
		if c.Redis.Channel == "" {
			return fmt.Errorf("redis.channel is required when redis is enabled")
		}
	}

	// Validate TLS if enabled
	if c.Security.TLS.Enabled {
		if c.Security.TLS.CertFile == "" {
			return fmt.Errorf("security.tls.cert_file is required when TLS is enabled")
		}
		if c.Security.TLS.KeyFile == "" {
			return fmt.Errorf("security.tls.key_file is required when TLS is enabled")
		}
	}

	// Validate logging level
	if !ValidLogLevel(c.Logging.Level) {
		return fmt.Errorf("invalid logging level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	return nil
}

// ValidLogLevel reports whether level is one of the accepted logging levels.
func ValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}

// GetDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// GetAddress returns the server address in host:port format
func (c *ServerConfig) GetAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
