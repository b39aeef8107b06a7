package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// Config represents the main configuration structure
type Config struct {
	HAProxy   HAProxyConfig   `yaml:"haproxy"`
	Collector CollectorConfig `yaml:"collector"`
	Database  DatabaseConfig  `yaml:"database"`
	Admin     AdminConfig     `yaml:"admin"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// HAProxyConfig selects and authenticates against one HAProxy instance's
// Data Plane API. Exactly one of Name and ID identifies the instance in the
// inventory database.
type HAProxyConfig struct {
	URL               string        `yaml:"url"`
	Username          string        `yaml:"username"`
	Password          string        `yaml:"password"`
	Name              string        `yaml:"name"`
	ID                int64         `yaml:"id"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
}

// CollectorConfig contains resolution pass configuration
type CollectorConfig struct {
	// ManagedSuffix selects backends by name when no switching rule
	// references them.
	ManagedSuffix        string        `yaml:"managed_suffix"`
	MaxConcurrentFetches int           `yaml:"max_concurrent_fetches"`
	Interval             time.Duration `yaml:"interval"`
}

// DatabaseConfig contains inventory database configuration. An empty URL
// switches ingestion to a local snapshot file.
type DatabaseConfig struct {
	URL     string `yaml:"url"`
	OwnerID int64  `yaml:"owner_id"`
}

// AdminConfig contains admin/status server configuration
type AdminConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	Output     string `yaml:"output"`
	File       string `yaml:"file"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		HAProxy: HAProxyConfig{
			Timeout:           30 * time.Second,
			RequestsPerSecond: 50,
			Burst:             10,
		},
		Collector: CollectorConfig{
			ManagedSuffix:        ".dwellir.com",
			MaxConcurrentFetches: 8,
			Interval:             5 * time.Minute,
		},
		Admin: AdminConfig{
			Enabled:      true,
			Port:         9090,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			Output:     "stdout",
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     28,
			Compress:   true,
		},
	}
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filename, err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", filename, err)
	}

	return config, nil
}

// LoadConfig loads configuration from an optional file plus environment
// overrides and validates the result. An empty filename falls back to the
// CONFIG_FILE environment variable, then to defaults.
func LoadConfig(filename string) (*Config, error) {
	if filename == "" {
		filename = os.Getenv("CONFIG_FILE")
	}

	var (
		config *Config
		err    error
	)
	if filename != "" {
		config, err = LoadFromFile(filename)
		if err != nil {
			return nil, err
		}
	} else {
		config = DefaultConfig()
	}

	config.applyEnvironment()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

// Validate validates the configuration for correctness
func (c *Config) Validate() error {
	if c.HAProxy.URL == "" {
		return fmt.Errorf("haproxy.url is required")
	}
	if !strings.HasPrefix(c.HAProxy.URL, "http://") && !strings.HasPrefix(c.HAProxy.URL, "https://") {
		return fmt.Errorf("haproxy.url must be an http(s) URL: %s", c.HAProxy.URL)
	}
	if c.HAProxy.Timeout <= 0 {
		return fmt.Errorf("haproxy.timeout must be positive: %v", c.HAProxy.Timeout)
	}

	if c.Collector.ManagedSuffix == "" {
		return fmt.Errorf("collector.managed_suffix cannot be empty")
	}
	if c.Collector.MaxConcurrentFetches <= 0 {
		return fmt.Errorf("collector.max_concurrent_fetches must be positive: %d", c.Collector.MaxConcurrentFetches)
	}
	if c.Collector.Interval <= 0 {
		return fmt.Errorf("collector.interval must be positive: %v", c.Collector.Interval)
	}

	if c.Database.URL != "" {
		if c.Database.OwnerID == 0 {
			return fmt.Errorf("database.owner_id is required when database.url is set")
		}
		if c.HAProxy.Name == "" && c.HAProxy.ID == 0 {
			return fmt.Errorf("either haproxy.name or haproxy.id must be set when ingesting to the database")
		}
	}

	if c.Admin.Enabled && (c.Admin.Port <= 0 || c.Admin.Port > 65535) {
		return fmt.Errorf("invalid admin.port: %d", c.Admin.Port)
	}

	return nil
}
