package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the application configuration.
type Config struct {
	Request  RequestConfig  `yaml:"request"`
	Log      LogConfig      `yaml:"log"`
	DB       DBConfig       `yaml:"db"`
	Cache    CacheConfig    `yaml:"cache"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Backfill BackfillConfig `yaml:"backfill"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// RequestConfig holds HTTP request settings.
type RequestConfig struct {
	Retries   int           `yaml:"retries"`
	Timeout   Duration      `yaml:"timeout"`
	RateGap   Duration      `yaml:"rate_gap"` // Pause between two calls to the same provider
	UserAgent string        `yaml:"user_agent"`
	Backoff   BackoffConfig `yaml:"backoff"`
}

// BackoffConfig holds exponential backoff settings.
type BackoffConfig struct {
	BaseDelay Duration `yaml:"base_delay"`
	MaxDelay  Duration `yaml:"max_delay"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Server   LogSettings `yaml:"server"`
	Requests LogSettings `yaml:"requests"`
}

// LogSettings holds settings for a specific logger.
type LogSettings struct {
	Path  string `yaml:"path"`
	Level string `yaml:"level"`
}

// DBConfig holds database settings.
type DBConfig struct {
	Driver string `yaml:"driver"` // "sqlite", "postgres"
	Path   string `yaml:"path"`   // sqlite file
	DSN    string `yaml:"dsn"`    // postgres connection string
}

// CacheConfig holds settings for the external response cache.
type CacheConfig struct {
	Backend string      `yaml:"backend"` // "none", "db", "redis"
	TTL     Duration    `yaml:"ttl"`
	Redis   RedisConfig `yaml:"redis"`
}

// RedisConfig holds the Redis connection used by the redis cache backend.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// IngestConfig holds settings for title ingestion.
type IngestConfig struct {
	Workers      int      `yaml:"workers"`
	TitleTimeout Duration `yaml:"title_timeout"`
	MaxDepth     int      `yaml:"max_depth"` // Administrative hierarchy hops
}

// BackfillConfig holds settings for the backfill runners.
type BackfillConfig struct {
	HistoryBatch  int  `yaml:"history_batch"`
	LocationBatch int  `yaml:"location_batch"`
	Resume        bool `yaml:"resume"`
}

// MetricsConfig holds the Prometheus exporter settings.
type MetricsConfig struct {
	Address string `yaml:"address"` // empty disables the exporter
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Request: RequestConfig{
			Retries:   3,
			Timeout:   Duration(30 * time.Second),
			RateGap:   Duration(100 * time.Millisecond),
			UserAgent: "",
			Backoff: BackoffConfig{
				BaseDelay: Duration(500 * time.Millisecond),
				MaxDelay:  Duration(30 * time.Second),
			},
		},
		Log: LogConfig{
			Server: LogSettings{
				Path:  "./logs/stadiumhq.log",
				Level: "INFO",
			},
			Requests: LogSettings{
				Path:  "./logs/requests.log",
				Level: "INFO",
			},
		},
		DB: DBConfig{
			Driver: "sqlite",
			Path:   "./data/stadiumhq.db",
		},
		Cache: CacheConfig{
			Backend: "db",
			TTL:     Duration(7 * Day),
			Redis: RedisConfig{
				Addr: "127.0.0.1:6379",
			},
		},
		Ingest: IngestConfig{
			Workers:      1,
			TitleTimeout: Duration(2 * time.Minute),
			MaxDepth:     8,
		},
		Backfill: BackfillConfig{
			HistoryBatch:  40,
			LocationBatch: 50,
			Resume:        true,
		},
	}
}

// Load loads the configuration from the given path.
// If the file does not exist, it creates it with default values.
// Values from the environment (and a .env file in the working directory) win over the file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	// Missing .env is the normal case
	_ = godotenv.Load()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if err := Save(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to save config file: %w", err)
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays secrets and deployment specifics that should not live in the YAML file.
func applyEnv(cfg *Config) {
	if driver := os.Getenv("STADIUMHQ_DB_DRIVER"); driver != "" {
		cfg.DB.Driver = strings.ToLower(driver)
	}
	if dsn := os.Getenv("STADIUMHQ_DB_DSN"); dsn != "" {
		cfg.DB.DSN = dsn
	}
	if addr := os.Getenv("STADIUMHQ_REDIS_ADDR"); addr != "" {
		cfg.Cache.Redis.Addr = addr
	}
	if pass := os.Getenv("STADIUMHQ_REDIS_PASSWORD"); pass != "" {
		cfg.Cache.Redis.Password = pass
	}
	if ua := os.Getenv("STADIUMHQ_USER_AGENT"); ua != "" {
		cfg.Request.UserAgent = ua
	}
}

var validUserAgent = regexp.MustCompile(`^[^\r\n]*$`)

// Validate checks settings that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	switch c.DB.Driver {
	case "sqlite":
		if c.DB.Path == "" {
			return fmt.Errorf("db.path is required for the sqlite driver")
		}
	case "postgres":
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown db.driver '%s': must be sqlite or postgres", c.DB.Driver)
	}

	switch c.Cache.Backend {
	case "", "none", "db", "redis":
	default:
		return fmt.Errorf("unknown cache.backend '%s': must be none, db or redis", c.Cache.Backend)
	}

	if c.Ingest.Workers < 1 {
		return fmt.Errorf("ingest.workers must be at least 1, got %d", c.Ingest.Workers)
	}
	if c.Ingest.MaxDepth < 1 {
		return fmt.Errorf("ingest.max_depth must be at least 1, got %d", c.Ingest.MaxDepth)
	}
	if !validUserAgent.MatchString(c.Request.UserAgent) {
		return fmt.Errorf("request.user_agent must be a single line")
	}
	return nil
}

// Save writes the configuration to the path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# StadiumHQ Configuration
# ----------------------
# Supported Units:
#   Duration: ns, us (or µs), ms, s, m, h, d (day), w (week)

`)
	data = append(header, data...)

	reDriver := regexp.MustCompile(`(?m)^(\s+)driver:`)
	data = reDriver.ReplaceAll(data, []byte("${1}# Options: sqlite, postgres (STADIUMHQ_DB_DSN overrides dsn)\n${1}driver:"))

	reBackend := regexp.MustCompile(`(?m)^(\s+)backend:`)
	data = reBackend.ReplaceAll(data, []byte("${1}# Options: none, db, redis\n${1}backend:"))

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GenerateDefault creates a default config file at the given path.
// Returns nil if the file already exists.
func GenerateDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return Save(path, DefaultConfig())
}
