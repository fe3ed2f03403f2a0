package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all gateway configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Executor ExecutorConfig `yaml:"executor"`
	Security SecurityConfig `yaml:"security"`
	Learning LearningConfig `yaml:"learning"`
	Database DatabaseConfig `yaml:"database"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Tracing  TracingConfig  `yaml:"tracing"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
	TLSCert         string        `yaml:"tls_cert"`
	TLSKey          string        `yaml:"tls_key"`
}

// ExecutorConfig configures supervised execution.
type ExecutorConfig struct {
	// Shell overrides auto-detection when set (path to the shell binary).
	Shell string `yaml:"shell"`

	DefaultTimeoutSeconds int `yaml:"default_timeout_seconds"`
	MaxTimeoutSeconds     int `yaml:"max_timeout_seconds"`
	WatchdogGraceSeconds  int `yaml:"watchdog_grace_seconds"`

	MaxConcurrent    int `yaml:"max_concurrent"`
	MaxCommandLength int `yaml:"max_command_length"`
	MaxOutputBytes   int `yaml:"max_output_bytes"`
	MaxOutputLines   int `yaml:"max_output_lines"`

	// OverflowStrategy is one of return, truncate, terminate. The
	// GATEWAY_OVERFLOW_STRATEGY environment variable overrides it.
	OverflowStrategy string `yaml:"overflow_strategy"`

	SelfTerminate bool `yaml:"self_terminate"`

	Adaptive AdaptiveConfig `yaml:"adaptive"`
	WorkDir  WorkDirConfig  `yaml:"workdir"`
}

// AdaptiveConfig configures deadline extension for actively-producing
// processes.
type AdaptiveConfig struct {
	Enabled             bool `yaml:"enabled"`
	ExtendWindowSeconds int  `yaml:"extend_window_seconds"`
	ExtendStepSeconds   int  `yaml:"extend_step_seconds"`
	MaxTotalSeconds     int  `yaml:"max_total_seconds"`
}

// WorkDirConfig restricts working directories for executed commands.
// Roots support ${VAR} environment expansion at load time.
type WorkDirConfig struct {
	Enabled      bool     `yaml:"enabled"`
	AllowedRoots []string `yaml:"allowed_roots"`
}

// SecurityConfig configures API authentication and rate limiting.
type SecurityConfig struct {
	AllowedAPIKeys       []string        `yaml:"allowed_api_keys"`
	AllowUnauthenticated bool            `yaml:"allow_unauthenticated"`
	RateLimit            RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig configures the per-client token bucket.
type RateLimitConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Burst           int           `yaml:"burst"`
	RefillInterval  time.Duration `yaml:"refill_interval"`
	RequestsPerFill int           `yaml:"requests_per_fill"`
}

// LearningConfig configures learned safe patterns and threat tracking.
type LearningConfig struct {
	PatternsFile string `yaml:"patterns_file"`
	MaxTracked   int    `yaml:"max_tracked"`
}

// DatabaseConfig configures the optional PostgreSQL journal.
type DatabaseConfig struct {
	Enabled bool   `yaml:"enabled"`
	DSN     string `yaml:"dsn"`
}

// MetricsConfig configures Prometheus metrics exposure.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    10 * time.Minute,
			ShutdownTimeout: 15 * time.Second,
			MaxBodyBytes:    1 << 20,
		},
		Executor: ExecutorConfig{
			DefaultTimeoutSeconds: 30,
			MaxTimeoutSeconds:     600,
			WatchdogGraceSeconds:  2,
			MaxConcurrent:         100,
			MaxCommandLength:      8192,
			MaxOutputBytes:        1 << 20,
			MaxOutputLines:        10000,
			OverflowStrategy:      "return",
			SelfTerminate:         true,
			Adaptive: AdaptiveConfig{
				Enabled:             true,
				ExtendWindowSeconds: 2,
				ExtendStepSeconds:   10,
			},
		},
		Security: SecurityConfig{
			AllowUnauthenticated: true,
			RateLimit: RateLimitConfig{
				Enabled:         true,
				Burst:           20,
				RefillInterval:  time.Second,
				RequestsPerFill: 10,
			},
		},
		Learning: LearningConfig{
			MaxTracked: 10000,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Tracing: TracingConfig{
			ServiceName: "safe-command-gateway",
		},
	}
}

// Load reads configuration from a YAML file, applying defaults for any
// unset values. A missing path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	for i, root := range cfg.Executor.WorkDir.AllowedRoots {
		cfg.Executor.WorkDir.AllowedRoots[i] = os.ExpandEnv(root)
	}
	cfg.Database.DSN = os.ExpandEnv(cfg.Database.DSN)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Executor.DefaultTimeoutSeconds < 1 {
		return fmt.Errorf("default timeout must be at least 1 second, got %d", c.Executor.DefaultTimeoutSeconds)
	}
	if c.Executor.MaxTimeoutSeconds < c.Executor.DefaultTimeoutSeconds {
		return fmt.Errorf("max timeout (%d) must be >= default timeout (%d)",
			c.Executor.MaxTimeoutSeconds, c.Executor.DefaultTimeoutSeconds)
	}
	if c.Executor.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", c.Executor.MaxConcurrent)
	}
	switch c.Executor.OverflowStrategy {
	case "return", "truncate", "terminate":
	default:
		return fmt.Errorf("invalid overflow strategy: %q", c.Executor.OverflowStrategy)
	}
	if c.Security.RateLimit.Enabled {
		if c.Security.RateLimit.Burst < 1 {
			return fmt.Errorf("rate limit burst must be at least 1, got %d", c.Security.RateLimit.Burst)
		}
		if c.Security.RateLimit.RequestsPerFill < 1 {
			return fmt.Errorf("rate limit requests_per_fill must be at least 1, got %d", c.Security.RateLimit.RequestsPerFill)
		}
	}
	if c.Database.Enabled && c.Database.DSN == "" {
		return fmt.Errorf("database enabled but no DSN configured")
	}
	if (c.Server.TLSCert == "") != (c.Server.TLSKey == "") {
		return fmt.Errorf("tls_cert and tls_key must be set together")
	}
	return nil
}

// Address returns the server listen address.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
