// Package config provides configuration management for the application.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	// DefaultBodySizeLimit is the default maximum request body size (10MB).
	DefaultBodySizeLimit int64 = 10 * 1024 * 1024

	// DefaultModel is the model identifier submitted with every relayed conversation.
	DefaultModel = "gpt-3.5-turbo"

	// DefaultOpenAIBaseURL is the completion service base URL.
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
)

// Storage backend names accepted by STORAGE_TYPE.
const (
	StorageSQLite     = "sqlite"
	StoragePostgreSQL = "postgresql"
	StorageMongoDB    = "mongodb"
	StorageRedis      = "redis"
)

// Config holds the application configuration
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	OpenAI  OpenAIConfig  `mapstructure:"openai"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Usage   UsageConfig   `mapstructure:"usage"`
	Storage StorageConfig `mapstructure:"storage"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port          string `mapstructure:"port"`
	BodySizeLimit int64  `mapstructure:"body_size_limit"`
	// DistinctErrorStatus maps configuration/input/upstream failures to
	// distinct HTTP statuses instead of a uniform 500.
	DistinctErrorStatus bool          `mapstructure:"distinct_error_status"`
	ShutdownTimeout     time.Duration `mapstructure:"shutdown_timeout"`
}

// OpenAIConfig holds the completion service credential and target.
// An empty APIKey is allowed at load time; every chat request then fails.
type OpenAIConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
}

// HTTPConfig holds outbound HTTP client timeouts
type HTTPConfig struct {
	Timeout               time.Duration `mapstructure:"timeout"`
	ResponseHeaderTimeout time.Duration `mapstructure:"response_header_timeout"`
}

// LoggingConfig controls the process logger
type LoggingConfig struct {
	// Format is one of "json", "text", "pretty" or empty for auto-detection.
	Format string `mapstructure:"format"`
	Level  string `mapstructure:"level"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// UsageConfig controls token usage tracking
type UsageConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	BufferSize    int           `mapstructure:"buffer_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
	RetentionDays int           `mapstructure:"retention_days"`
}

// StorageConfig selects and configures the usage storage backend
type StorageConfig struct {
	Type       string           `mapstructure:"type"`
	SQLite     SQLiteConfig     `mapstructure:"sqlite"`
	PostgreSQL PostgreSQLConfig `mapstructure:"postgresql"`
	MongoDB    MongoDBConfig    `mapstructure:"mongodb"`
	Redis      RedisConfig      `mapstructure:"redis"`
}

// SQLiteConfig holds SQLite settings
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// PostgreSQLConfig holds PostgreSQL settings
type PostgreSQLConfig struct {
	URL      string `mapstructure:"url"`
	MaxConns int    `mapstructure:"max_conns"`
}

// MongoDBConfig holds MongoDB settings
type MongoDBConfig struct {
	URL      string `mapstructure:"url"`
	Database string `mapstructure:"database"`
}

// RedisConfig holds Redis settings
type RedisConfig struct {
	URL    string `mapstructure:"url"`
	Stream string `mapstructure:"stream"`
}

// binding ties a viper key to its environment variables and default value.
type binding struct {
	key  string
	envs []string
	def  any
}

var bindings = []binding{
	{"server.port", []string{"PORT", "SERVER_PORT"}, "8080"},
	{"server.body_size_limit", []string{"SERVER_BODY_SIZE_LIMIT"}, DefaultBodySizeLimit},
	{"server.distinct_error_status", []string{"SERVER_DISTINCT_ERROR_STATUS"}, false},
	{"server.shutdown_timeout", []string{"SHUTDOWN_TIMEOUT"}, "30s"},

	{"openai.api_key", []string{"OPENAI_API_KEY"}, ""},
	{"openai.base_url", []string{"OPENAI_BASE_URL"}, DefaultOpenAIBaseURL},
	{"openai.model", []string{"OPENAI_MODEL"}, DefaultModel},

	{"http.timeout", []string{"HTTP_TIMEOUT"}, "600s"},
	{"http.response_header_timeout", []string{"HTTP_RESPONSE_HEADER_TIMEOUT"}, "600s"},

	{"logging.format", []string{"LOG_FORMAT"}, ""},
	{"logging.level", []string{"LOG_LEVEL"}, "info"},

	{"metrics.enabled", []string{"METRICS_ENABLED"}, false},
	{"metrics.endpoint", []string{"METRICS_ENDPOINT"}, "/metrics"},

	{"usage.enabled", []string{"USAGE_ENABLED"}, false},
	{"usage.buffer_size", []string{"USAGE_BUFFER_SIZE"}, 1000},
	{"usage.flush_interval", []string{"USAGE_FLUSH_INTERVAL"}, "5s"},
	{"usage.retention_days", []string{"USAGE_RETENTION_DAYS"}, 90},

	{"storage.type", []string{"STORAGE_TYPE"}, StorageSQLite},
	{"storage.sqlite.path", []string{"SQLITE_PATH"}, "data/chatrelay.db"},
	{"storage.postgresql.url", []string{"POSTGRES_URL"}, ""},
	{"storage.postgresql.max_conns", []string{"POSTGRES_MAX_CONNS"}, 10},
	{"storage.mongodb.url", []string{"MONGODB_URL"}, ""},
	{"storage.mongodb.database", []string{"MONGODB_DATABASE"}, "chatrelay"},
	{"storage.redis.url", []string{"REDIS_URL"}, ""},
	{"storage.redis.stream", []string{"REDIS_STREAM"}, "chatrelay:usage"},
}

// Load reads configuration from .env, an optional config.yaml and the environment.
// Environment variables take precedence over the file.
func Load() (*Config, error) {
	// .env is optional; variables already in the environment win.
	_ = godotenv.Load()

	if viper.ConfigFileUsed() == "" {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
	}
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	for _, b := range bindings {
		viper.SetDefault(b.key, b.def)
		args := append([]string{b.key}, b.envs...)
		if err := viper.BindEnv(args...); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", b.key, err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetConfigFile points Load at an explicit config file.
func SetConfigFile(path string) {
	if path != "" {
		viper.SetConfigFile(path)
	}
}

func (c *Config) normalize() {
	c.Storage.Type = strings.ToLower(strings.TrimSpace(c.Storage.Type))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.OpenAI.BaseURL = strings.TrimRight(c.OpenAI.BaseURL, "/")
	if c.OpenAI.Model == "" {
		c.OpenAI.Model = DefaultModel
	}
	if c.Server.BodySizeLimit <= 0 {
		c.Server.BodySizeLimit = DefaultBodySizeLimit
	}
}

// Validate checks settings that would otherwise fail late.
// A missing OpenAI API key is deliberately not an error here.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return errors.New("server port must not be empty")
	}
	switch c.Logging.Format {
	case "", "json", "text", "pretty":
	default:
		return fmt.Errorf("invalid LOG_FORMAT %q (valid: json, text, pretty)", c.Logging.Format)
	}
	if !c.Usage.Enabled {
		return nil
	}
	switch c.Storage.Type {
	case StorageSQLite:
	case StoragePostgreSQL:
		if c.Storage.PostgreSQL.URL == "" {
			return errors.New("POSTGRES_URL is required when STORAGE_TYPE=postgresql")
		}
	case StorageMongoDB:
		if c.Storage.MongoDB.URL == "" {
			return errors.New("MONGODB_URL is required when STORAGE_TYPE=mongodb")
		}
	case StorageRedis:
		if c.Storage.Redis.URL == "" {
			return errors.New("REDIS_URL is required when STORAGE_TYPE=redis")
		}
	default:
		return fmt.Errorf("unknown storage type: %s (valid: sqlite, postgresql, mongodb, redis)", c.Storage.Type)
	}
	return nil
}
