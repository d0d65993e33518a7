// Package config provides configuration management for the arXivist backend.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every environment variable the service reads.
const EnvPrefix = "ARXIVIST"

// envFileVar names the variable that overrides the dotenv file location.
const envFileVar = EnvPrefix + "_ENV_FILE"

// arxivMaxPageSize is the largest max_results arXiv accepts per request.
const arxivMaxPageSize = 2000

// Config holds all configuration for the arXivist backend.
type Config struct {
	// App contains application identity settings.
	App AppConfig `mapstructure:"app"`
	// Server contains HTTP server settings.
	Server ServerConfig `mapstructure:"server"`
	// CORS contains cross-origin settings for browser clients.
	CORS CORSConfig `mapstructure:"cors"`
	// Logging contains structured logging settings.
	Logging LoggingConfig `mapstructure:"logging"`
	// Metrics contains Prometheus metrics exposure settings.
	Metrics MetricsConfig `mapstructure:"metrics"`
	// ArXiv contains the arXiv API client settings.
	ArXiv ArXivConfig `mapstructure:"arxiv"`
	// Papers contains retrieval defaults and limits.
	Papers PapersConfig `mapstructure:"papers"`
}

// AppConfig holds application identity.
type AppConfig struct {
	// Name is reported by the root endpoint.
	Name string `mapstructure:"name"`
	// Version is reported by the root endpoint.
	Version string `mapstructure:"version"`
	// Debug forces debug logging.
	Debug bool `mapstructure:"debug"`
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	// Host is the address to bind the server to (default: 0.0.0.0).
	Host string `mapstructure:"host"`
	// HTTPPort is the HTTP server port (default: 8000).
	HTTPPort int `mapstructure:"http_port"`
	// MetricsPort is the metrics server port (default: 9091).
	MetricsPort int `mapstructure:"metrics_port"`
	// ReadTimeout is the maximum duration for reading request body.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout is the maximum duration for writing response. Large list
	// queries page through arXiv at three requests per second, so this is
	// well above the upstream timeout.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// IdleTimeout is the keep-alive idle timeout.
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// APIPrefix is prepended to the papers routes (default: /api).
	APIPrefix string `mapstructure:"api_prefix"`
}

// CORSConfig holds cross-origin resource sharing settings.
type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	// MaxAge is the preflight cache lifetime in seconds.
	MaxAge int `mapstructure:"max_age"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level (trace, debug, info, warn, error, fatal, panic).
	Level string `mapstructure:"level"`
	// Format is the log format (json, console).
	Format string `mapstructure:"format"`
	// Output is the log output destination (stdout, stderr).
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
	// Namespace prefixes every metric name.
	Namespace string `mapstructure:"namespace"`
}

// ArXivConfig holds arXiv API client configuration.
type ArXivConfig struct {
	// BaseURL is the API root; "/query" is appended.
	BaseURL string `mapstructure:"base_url"`
	// Timeout bounds each HTTP request.
	Timeout time.Duration `mapstructure:"timeout"`
	// RateLimit is the sustained request rate per second.
	RateLimit float64 `mapstructure:"rate_limit"`
	// BurstSize is the token bucket size.
	BurstSize int `mapstructure:"burst_size"`
	// PageSize is the number of records requested per page.
	PageSize int `mapstructure:"page_size"`
	// MaxRetries is the retry budget for 429 and 5xx responses. Zero selects
	// the client default and a negative value disables retries.
	MaxRetries int `mapstructure:"max_retries"`
	// RetryDelay is the base delay between retries.
	RetryDelay time.Duration `mapstructure:"retry_delay"`
	// EmptyPageRetries bounds re-requests of a spurious empty page.
	EmptyPageRetries int `mapstructure:"empty_page_retries"`
	// UserAgent is sent with every request.
	UserAgent string `mapstructure:"user_agent"`
}

// PapersConfig holds retrieval defaults and limits.
type PapersConfig struct {
	// DefaultResults is used when a list request omits max_results.
	DefaultResults int `mapstructure:"default_results"`
	// MaxResults is the largest max_results a list request may ask for.
	MaxResults int `mapstructure:"max_results"`
	// StrictLookupErrors reports provider failures on single-paper lookups
	// as errors instead of not found.
	StrictLookupErrors bool `mapstructure:"strict_lookup_errors"`
}

// HTTPAddress returns the HTTP server address.
func (c *ServerConfig) HTTPAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.HTTPPort)
}

// MetricsAddress returns the metrics server address.
func (c *ServerConfig) MetricsAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.MetricsPort)
}

// Load loads configuration from defaults, an optional config.yaml, an
// optional .env file, and ARXIVIST_* environment variables, in increasing
// order of precedence.
func Load() (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/arxivist")

	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.App.Debug {
		cfg.Logging.Level = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadDotEnv exports the variables of the dotenv file into the process
// environment. Variables already set are left untouched. A missing file is
// not an error.
func loadDotEnv() error {
	path := os.Getenv(envFileVar)
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "arXivist Backend")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.debug", false)

	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.http_port", 8000)
	v.SetDefault("server.metrics_port", 9091)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "5m")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.api_prefix", "/api")

	// CORS defaults mirror a fully open browser API.
	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "HEAD", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{"*"})
	v.SetDefault("cors.allow_credentials", true)
	v.SetDefault("cors.max_age", 300)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.namespace", "arxivist")

	// arXiv defaults
	v.SetDefault("arxiv.base_url", "https://export.arxiv.org/api")
	v.SetDefault("arxiv.timeout", "30s")
	v.SetDefault("arxiv.rate_limit", 3.0)
	v.SetDefault("arxiv.burst_size", 3)
	v.SetDefault("arxiv.page_size", 100)
	v.SetDefault("arxiv.max_retries", 3)
	v.SetDefault("arxiv.retry_delay", "3s")
	v.SetDefault("arxiv.empty_page_retries", 2)
	v.SetDefault("arxiv.user_agent", "arXivist-Backend/1.0")

	// Papers defaults
	v.SetDefault("papers.default_results", 100)
	v.SetDefault("papers.max_results", 2000)
	v.SetDefault("papers.strict_lookup_errors", false)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.Server.HTTPPort)
	}
	if c.Metrics.Enabled {
		if c.Server.MetricsPort <= 0 || c.Server.MetricsPort > 65535 {
			return fmt.Errorf("invalid metrics port: %d", c.Server.MetricsPort)
		}
		if c.Server.MetricsPort == c.Server.HTTPPort {
			return fmt.Errorf("metrics port must differ from HTTP port (%d)", c.Server.HTTPPort)
		}
		if !strings.HasPrefix(c.Metrics.Path, "/") {
			return fmt.Errorf("metrics path must start with '/': %q", c.Metrics.Path)
		}
	}
	if c.Server.APIPrefix != "" && (!strings.HasPrefix(c.Server.APIPrefix, "/") || strings.HasSuffix(c.Server.APIPrefix, "/")) {
		return fmt.Errorf("api_prefix must start with '/' and not end with '/': %q", c.Server.APIPrefix)
	}

	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true, "warn": true,
		"warning": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if u, err := url.Parse(c.ArXiv.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid arxiv base_url: %q", c.ArXiv.BaseURL)
	}
	if c.ArXiv.RateLimit <= 0 {
		return fmt.Errorf("arxiv rate_limit must be positive")
	}
	if c.ArXiv.BurstSize <= 0 {
		return fmt.Errorf("arxiv burst_size must be positive")
	}
	if c.ArXiv.PageSize <= 0 || c.ArXiv.PageSize > arxivMaxPageSize {
		return fmt.Errorf("arxiv page_size must be between 1 and %d: %d", arxivMaxPageSize, c.ArXiv.PageSize)
	}

	if c.Papers.MaxResults <= 0 || c.Papers.MaxResults > arxivMaxPageSize {
		return fmt.Errorf("papers max_results must be between 1 and %d: %d", arxivMaxPageSize, c.Papers.MaxResults)
	}
	if c.Papers.DefaultResults <= 0 || c.Papers.DefaultResults > c.Papers.MaxResults {
		return fmt.Errorf("papers default_results (%d) must be between 1 and max_results (%d)",
			c.Papers.DefaultResults, c.Papers.MaxResults)
	}

	return nil
}
