// Package config provides configuration management for the affiliation harvester service.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the affiliation harvester service.
type Config struct {
	// Server contains HTTP server settings.
	Server ServerConfig `mapstructure:"server"`
	// Scopus contains Scopus API client settings.
	Scopus ScopusConfig `mapstructure:"scopus"`
	// Harvest contains pagination and rate gate settings.
	Harvest HarvestConfig `mapstructure:"harvest"`
	// Dump contains raw page dump settings.
	Dump DumpConfig `mapstructure:"dump"`
	// Kafka contains Kafka publisher settings for harvest lifecycle events.
	Kafka KafkaConfig `mapstructure:"kafka"`
	// Logging contains structured logging settings.
	Logging LoggingConfig `mapstructure:"logging"`
	// Metrics contains Prometheus metrics exposure settings.
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	// Host is the address to bind the server to (default: 0.0.0.0).
	Host string `mapstructure:"host"`
	// HTTPPort is the HTTP server port (default: 8080).
	HTTPPort int `mapstructure:"http_port"`
	// MetricsPort is the metrics server port (default: 9091).
	MetricsPort int `mapstructure:"metrics_port"`
	// ReadTimeout is the maximum duration for reading request body.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout is the maximum duration for writing response.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// ScopusConfig holds Scopus API client configuration.
type ScopusConfig struct {
	// APIKey is the Scopus API key (loaded from AFFHARVEST_SCOPUS_API_KEY env var).
	APIKey string `mapstructure:"-"`
	// BaseURL is the API base URL.
	BaseURL string `mapstructure:"base_url"`
	// Timeout is the timeout for a single API call.
	Timeout time.Duration `mapstructure:"timeout"`
	// MaxRetries is the maximum number of retries for transient failures.
	MaxRetries int `mapstructure:"max_retries"`
	// RetryDelay is the base delay between retries.
	RetryDelay time.Duration `mapstructure:"retry_delay"`
	// RateLimit is the transport-level requests-per-second smoothing limit.
	// This is independent of the harvest rate gates, which budget requests
	// over a window.
	RateLimit float64 `mapstructure:"rate_limit"`
}

// HarvestConfig holds pagination and rate gate configuration.
type HarvestConfig struct {
	// PageSize is the number of results requested per search page (default: 25).
	PageSize int `mapstructure:"page_size"`
	// SearchGateLimit is the maximum search requests admitted per gate period.
	SearchGateLimit int `mapstructure:"search_gate_limit"`
	// SearchGatePeriod is the sliding window over which search requests are counted.
	SearchGatePeriod time.Duration `mapstructure:"search_gate_period"`
	// AuthorGateLimit is the maximum author retrieval requests admitted per gate period.
	AuthorGateLimit int `mapstructure:"author_gate_limit"`
	// AuthorGatePeriod is the sliding window over which author requests are counted.
	AuthorGatePeriod time.Duration `mapstructure:"author_gate_period"`
	// GateRetryInterval is how long a denied request waits before asking the gate again.
	GateRetryInterval time.Duration `mapstructure:"gate_retry_interval"`
}

// DumpConfig holds raw page dump configuration.
type DumpConfig struct {
	// Enabled controls whether fetched pages are written to disk.
	Enabled bool `mapstructure:"enabled"`
	// Dir is the directory raw pages and author profiles are written to.
	Dir string `mapstructure:"dir"`
}

// KafkaConfig holds Kafka publisher settings for harvest lifecycle events.
type KafkaConfig struct {
	// Enabled controls whether Kafka publishing is active.
	Enabled bool `mapstructure:"enabled"`
	// Brokers is the list of Kafka broker addresses.
	Brokers []string `mapstructure:"brokers"`
	// Topic is the Kafka topic to publish harvest events to.
	Topic string `mapstructure:"topic"`
	// BatchSize is the maximum number of messages to batch before sending.
	BatchSize int `mapstructure:"batch_size"`
	// BatchTimeout is the maximum time to wait for a batch to fill before sending.
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level (trace, debug, info, warn, error, fatal, panic).
	Level string `mapstructure:"level"`
	// Format is the log format (json, console).
	Format string `mapstructure:"format"`
	// Output is the log output destination (stdout, stderr, file path).
	Output string `mapstructure:"output"`
	// AddSource adds source file and line to log output.
	AddSource bool `mapstructure:"add_source"`
	// TimeFormat is the timestamp format.
	TimeFormat string `mapstructure:"time_format"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	// Enabled enables metrics collection and exposure.
	Enabled bool `mapstructure:"enabled"`
	// Path is the HTTP path for metrics endpoint.
	Path string `mapstructure:"path"`
}

// HTTPAddress returns the HTTP server address.
func (c *ServerConfig) HTTPAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.HTTPPort)
}

// MetricsAddress returns the metrics server address.
func (c *ServerConfig) MetricsAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.MetricsPort)
}

// Load loads configuration from environment variables and config files.
func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Read from environment variables
	v.SetEnvPrefix("AFFHARVEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file if present
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/affiliation-harvester")

	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK, we'll use env vars and defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Load secrets exclusively from environment variables.
	// These fields use mapstructure:"-" to prevent loading from config files.
	loadSecrets(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadSecrets populates secret fields exclusively from environment variables.
// These fields are tagged with mapstructure:"-" to prevent loading from config files.
func loadSecrets(cfg *Config) {
	cfg.Scopus.APIKey = os.Getenv("AFFHARVEST_SCOPUS_API_KEY")
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.metrics_port", 9091)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")

	// Scopus defaults
	// The API key is loaded exclusively from the environment (see loadSecrets).
	v.SetDefault("scopus.base_url", "https://api.elsevier.com/content")
	v.SetDefault("scopus.timeout", "30s")
	v.SetDefault("scopus.max_retries", 3)
	v.SetDefault("scopus.retry_delay", "2s")
	v.SetDefault("scopus.rate_limit", 5.0)

	// Harvest defaults. Gate limits follow the published Scopus quotas:
	// search admits 25 requests per window, author retrieval admits 8.
	v.SetDefault("harvest.page_size", 25)
	v.SetDefault("harvest.search_gate_limit", 25)
	v.SetDefault("harvest.search_gate_period", "1s")
	v.SetDefault("harvest.author_gate_limit", 8)
	v.SetDefault("harvest.author_gate_period", "1s")
	v.SetDefault("harvest.gate_retry_interval", "100ms")

	// Dump defaults
	v.SetDefault("dump.enabled", false)
	v.SetDefault("dump.dir", "pages")

	// Kafka defaults
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "events.harvest.affiliation_harvester")
	v.SetDefault("kafka.batch_size", 100)
	v.SetDefault("kafka.batch_timeout", "10ms")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	// Validate server ports
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.Server.HTTPPort)
	}
	if c.Server.MetricsPort <= 0 || c.Server.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", c.Server.MetricsPort)
	}

	// Validate Scopus config
	if c.Scopus.BaseURL == "" {
		return fmt.Errorf("scopus base_url is required")
	}
	if _, err := url.Parse(c.Scopus.BaseURL); err != nil {
		return fmt.Errorf("invalid scopus base_url: %w", err)
	}
	if c.Scopus.Timeout <= 0 {
		return fmt.Errorf("scopus timeout must be positive")
	}
	if c.Scopus.MaxRetries < 0 {
		return fmt.Errorf("scopus max_retries must not be negative")
	}

	// Validate harvest config
	if c.Harvest.PageSize <= 0 {
		return fmt.Errorf("harvest page_size must be positive")
	}
	if c.Harvest.SearchGateLimit <= 0 {
		return fmt.Errorf("harvest search_gate_limit must be positive")
	}
	if c.Harvest.AuthorGateLimit <= 0 {
		return fmt.Errorf("harvest author_gate_limit must be positive")
	}
	if c.Harvest.SearchGatePeriod <= 0 || c.Harvest.AuthorGatePeriod <= 0 {
		return fmt.Errorf("harvest gate periods must be positive")
	}
	if c.Harvest.GateRetryInterval <= 0 {
		return fmt.Errorf("harvest gate_retry_interval must be positive")
	}

	// Validate dump config
	if c.Dump.Enabled && c.Dump.Dir == "" {
		return fmt.Errorf("dump dir is required when dump is enabled")
	}

	// Validate Kafka config
	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka brokers are required when kafka is enabled")
		}
		if c.Kafka.Topic == "" {
			return fmt.Errorf("kafka topic is required when kafka is enabled")
		}
	}

	// Validate log level
	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	return nil
}
