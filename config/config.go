// Package config loads spark-guide settings from a YAML file and the environment.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config is the complete spark-guide configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Catalog CatalogConfig `yaml:"catalog"`
	Cache   CacheConfig   `yaml:"cache"`
	Logging LoggingConfig `yaml:"logging"`
	Azure   AzureConfig   `yaml:"azure"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Address      string        `yaml:"address"`
	MetricsPath  string        `yaml:"metrics_path"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// CatalogConfig selects the pricing table.
type CatalogConfig struct {
	// Path of the pricing JSON file; empty uses the embedded table.
	Path          string `yaml:"path"`
	DefaultRegion string `yaml:"default_region"`
	// Currency labels displayed prices. No conversion is applied.
	Currency string `yaml:"currency"`
}

// CacheConfig controls calculator memoization.
type CacheConfig struct {
	TTL             time.Duration `yaml:"ttl"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// AzureConfig configures the offline catalog refresh.
type AzureConfig struct {
	Regions         []string      `yaml:"regions"`
	InstanceRegexes []string      `yaml:"instance_regexes"`
	Currency        string        `yaml:"currency"`
	Timeout         time.Duration `yaml:"timeout"`
	Concurrency     int           `yaml:"concurrency"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Address:      ":8080",
			MetricsPath:  "/metrics",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Catalog: CatalogConfig{
			DefaultRegion: "Canada Central",
			Currency:      "CAD",
		},
		Cache: CacheConfig{
			TTL:             0,
			CleanupInterval: 10 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Azure: AzureConfig{
			Timeout:     30 * time.Second,
			Concurrency: 4,
		},
	}
}

// Load loads configuration from a file. An empty path yields the defaults
// with environment overrides applied.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		data = []byte(os.ExpandEnv(string(data)))

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("SPARKGUIDE_ADDRESS"); v != "" {
		c.Server.Address = v
	}
	if v := os.Getenv("SPARKGUIDE_CATALOG"); v != "" {
		c.Catalog.Path = v
	}
	if v := os.Getenv("SPARKGUIDE_REGION"); v != "" {
		c.Catalog.DefaultRegion = v
	}
	if v := os.Getenv("SPARKGUIDE_CURRENCY"); v != "" {
		c.Catalog.Currency = v
	}
	if v := os.Getenv("SPARKGUIDE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("SPARKGUIDE_AZURE_REGIONS"); v != "" {
		c.Azure.Regions = splitList(v)
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// routedPath reports whether path is served by the API itself and so cannot
// host the metrics endpoint.
func routedPath(path string) bool {
	path = strings.TrimSuffix(path, "/")
	return path == "" || path == "/healthz" || path == "/api" || strings.HasPrefix(path, "/api/")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Address == "" {
		return fmt.Errorf("server.address is required")
	}
	if !strings.HasPrefix(c.Server.MetricsPath, "/") {
		return fmt.Errorf("server.metrics_path must start with /, got %q", c.Server.MetricsPath)
	}
	if routedPath(c.Server.MetricsPath) {
		return fmt.Errorf("server.metrics_path %q collides with an API route", c.Server.MetricsPath)
	}
	if c.Cache.TTL < 0 {
		return fmt.Errorf("cache.ttl must not be negative")
	}
	if _, err := log.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}
	if c.Azure.Concurrency < 1 {
		return fmt.Errorf("azure.concurrency must be at least 1")
	}
	return nil
}

// ConfigureLogging applies the logging settings to the global logrus logger.
func (c LoggingConfig) ConfigureLogging() {
	if c.Format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}

	parsedLevel, err := log.ParseLevel(c.Level)
	if err != nil {
		log.WithError(err).Warnf("Couldn't parse log level, using default: %s", log.GetLevel())
		return
	}
	log.SetLevel(parsedLevel)
	log.Debugf("Set log level to %s", parsedLevel)
}
