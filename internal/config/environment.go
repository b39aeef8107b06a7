package config

import (
	"os"
	"strconv"
	"time"
)

// applyEnvironment overrides configuration from environment variables.
// The HAPROXY_*, DB_URL and OWNER_ID names match what the deployment
// tooling has always exported; COLLECTOR_* covers the rest.
func (c *Config) applyEnvironment() {
	// HAProxy instance selection and credentials
	if url := getEnv("HAPROXY_URL", ""); url != "" {
		c.HAProxy.URL = url
	}
	if username := getEnv("HAPROXY_USERNAME", ""); username != "" {
		c.HAProxy.Username = username
	}
	if password := getEnv("HAPROXY_PASSWORD", ""); password != "" {
		c.HAProxy.Password = password
	}
	if name := getEnv("HAPROXY_NAME", ""); name != "" {
		c.HAProxy.Name = name
	}
	if id := getEnv("HAPROXY_ID", ""); id != "" {
		if i, err := strconv.ParseInt(id, 10, 64); err == nil && i > 0 {
			c.HAProxy.ID = i
		}
	}
	if timeout := getEnv("HAPROXY_TIMEOUT", ""); timeout != "" {
		if t, err := time.ParseDuration(timeout); err == nil {
			c.HAProxy.Timeout = t
		}
	}

	// Collector behaviour
	if suffix := getEnv("COLLECTOR_MANAGED_SUFFIX", ""); suffix != "" {
		c.Collector.ManagedSuffix = suffix
	}
	if fetches := getEnv("COLLECTOR_MAX_CONCURRENT_FETCHES", ""); fetches != "" {
		if f, err := strconv.Atoi(fetches); err == nil && f > 0 {
			c.Collector.MaxConcurrentFetches = f
		}
	}
	if interval := getEnv("COLLECTOR_INTERVAL", ""); interval != "" {
		if i, err := time.ParseDuration(interval); err == nil {
			c.Collector.Interval = i
		}
	}

	// Database
	if dbURL := getEnv("DB_URL", ""); dbURL != "" {
		c.Database.URL = dbURL
	}
	if owner := getEnv("OWNER_ID", ""); owner != "" {
		if o, err := strconv.ParseInt(owner, 10, 64); err == nil && o > 0 {
			c.Database.OwnerID = o
		}
	}

	// Admin server
	if port := getEnv("COLLECTOR_ADMIN_PORT", ""); port != "" {
		if p, err := strconv.Atoi(port); err == nil && p > 0 && p <= 65535 {
			c.Admin.Port = p
		}
	}

	// Logging
	if level := getEnv("COLLECTOR_LOG_LEVEL", ""); level != "" {
		c.Logging.Level = level
	}
	if format := getEnv("COLLECTOR_LOG_FORMAT", ""); format != "" {
		c.Logging.Format = format
	}
	if output := getEnv("COLLECTOR_LOG_OUTPUT", ""); output != "" {
		c.Logging.Output = output
	}
	if file := getEnv("COLLECTOR_LOG_FILE", ""); file != "" {
		c.Logging.File = file
	}
}

// getEnv returns the environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
