// Package config handles application configuration from a YAML file and environment variables
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/briangreenhill/fetchkit/cache"
	"github.com/briangreenhill/fetchkit/fetcher"
)

// PathEnv names the variable holding the optional YAML config path.
const PathEnv = "FETCHKIT_CONFIG"

// Config holds all application configuration
type Config struct {
	Cache    CacheConfig    `yaml:"cache"`
	Fetch    FetchConfig    `yaml:"fetch"`
	Weather  WeatherConfig  `yaml:"weather"`
	Contacts ContactsConfig `yaml:"contacts"`
	Port     string         `yaml:"port" env:"PORT"`
	LogLevel string         `yaml:"log_level" env:"FETCHKIT_LOG_LEVEL"`

	// AdminToken guards the mutating admin endpoints. Empty leaves them open.
	AdminToken string `yaml:"admin_token" env:"FETCHKIT_ADMIN_TOKEN"`
}

// CacheConfig configures the cache store and its persistent backends
type CacheConfig struct {
	// Dir holds the Local backend's files.
	Dir string `yaml:"dir" env:"FETCHKIT_CACHE_DIR"`
	// SessionDSN is a SQLite file path or a postgres:// URL for the Session
	// backend. Empty keeps Session entries in process.
	SessionDSN    string        `yaml:"session_dsn" env:"FETCHKIT_SESSION_DSN"`
	DefaultTTL    time.Duration `yaml:"default_ttl" env:"FETCHKIT_CACHE_TTL"`
	MaxEntries    int           `yaml:"max_entries" env:"FETCHKIT_CACHE_MAX_ENTRIES"`
	SweepInterval time.Duration `yaml:"sweep_interval" env:"FETCHKIT_CACHE_SWEEP_INTERVAL"`
}

// FetchConfig holds defaults for the fetch orchestrator
type FetchConfig struct {
	GraphQLEndpoint string        `yaml:"graphql_endpoint" env:"FETCHKIT_GRAPHQL_URL"`
	RetryAttempts   int           `yaml:"retry_attempts" env:"FETCHKIT_RETRY_ATTEMPTS"`
	RetryDelay      time.Duration `yaml:"retry_delay" env:"FETCHKIT_RETRY_DELAY"`
}

// WeatherConfig holds OpenWeather settings
type WeatherConfig struct {
	APIURL string `yaml:"api_url" env:"WEATHER_API_URL"`
	APIKey string `yaml:"api_key" env:"WEATHER_API_KEY"`
}

// ContactsConfig holds settings for the contacts GraphQL service
type ContactsConfig struct {
	Endpoint string `yaml:"endpoint" env:"CONTACTS_GRAPHQL_URL"`
	Token    string `yaml:"token" env:"CONTACTS_TOKEN"`
}

// Default returns the built-in configuration
func Default() Config {
	dir := ".fetchkit_cache"
	if home, err := os.UserHomeDir(); err == nil {
		dir = filepath.Join(home, ".fetchkit_cache")
	}
	return Config{
		Cache: CacheConfig{
			Dir:           filepath.Join(dir, "local"),
			DefaultTTL:    cache.DefaultTTL,
			MaxEntries:    cache.DefaultMaxEntries,
			SweepInterval: cache.DefaultSweepInterval,
		},
		Fetch: FetchConfig{
			GraphQLEndpoint: fetcher.DefaultGraphQLEndpoint,
			RetryDelay:      fetcher.DefaultRetryDelay,
		},
		Contacts: ContactsConfig{
			Endpoint: fetcher.DefaultGraphQLEndpoint,
		},
		Port:     "8080",
		LogLevel: "info",
	}
}

// Load builds the configuration from defaults, then the YAML file named by
// FETCHKIT_CONFIG (if any), then environment variables
func Load() (*Config, error) {
	return LoadFile(os.Getenv(PathEnv))
}

// LoadFile is Load with an explicit YAML path. An empty path skips the file.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(b))), &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// HasWeather returns true if the weather client can be built
func (c *Config) HasWeather() bool {
	return c.Weather.APIKey != ""
}

// HasContacts returns true if a contacts endpoint is configured
func (c *Config) HasContacts() bool {
	return c.Contacts.Endpoint != ""
}

// Validate rejects values the cache and fetcher cannot work with
func (c *Config) Validate() error {
	var errs []error
	if c.Cache.DefaultTTL <= 0 {
		errs = append(errs, fmt.Errorf("cache default_ttl must be positive, got %s", c.Cache.DefaultTTL))
	}
	if c.Cache.MaxEntries <= 0 {
		errs = append(errs, fmt.Errorf("cache max_entries must be positive, got %d", c.Cache.MaxEntries))
	}
	if c.Cache.SweepInterval <= 0 {
		errs = append(errs, fmt.Errorf("cache sweep_interval must be positive, got %s", c.Cache.SweepInterval))
	}
	if c.Fetch.RetryAttempts < 0 {
		errs = append(errs, fmt.Errorf("fetch retry_attempts must not be negative, got %d", c.Fetch.RetryAttempts))
	}
	if c.Fetch.RetryDelay < 0 {
		errs = append(errs, fmt.Errorf("fetch retry_delay must not be negative, got %s", c.Fetch.RetryDelay))
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel)); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	return errors.Join(errs...)
}

// Level returns the configured log level, defaulting to info
func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}
