package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultPaginationSecret is the out-of-the-box cursor signing key. Any
// deployment past local development must override it; main logs a warning
// when it is still in effect.
const DefaultPaginationSecret = "change-me-in-production"

// Config represents the top-level application config.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Database   DatabaseConfig   `koanf:"database"`
	Pagination PaginationConfig `koanf:"pagination"`
	Inbox      InboxConfig      `koanf:"inbox"`
	Events     EventsConfig     `koanf:"events"`
	RateLimit  RateLimitConfig  `koanf:"ratelimit"`
	Janitor    JanitorConfig    `koanf:"janitor"`
	Outbox     OutboxConfig     `koanf:"outbox"`
}

type ServerConfig struct {
	Port int    `koanf:"port"`
	Host string `koanf:"host"`
	Mode string `koanf:"mode"` // debug | release
}

type DatabaseConfig struct {
	DSN          string `koanf:"dsn"`
	MaxOpenConns int    `koanf:"max_open_conns"`
	MaxIdleConns int    `koanf:"max_idle_conns"`
	AutoMigrate  bool   `koanf:"auto_migrate"`
}

type PaginationConfig struct {
	Secret string `koanf:"secret"`
}

type InboxConfig struct {
	CountCacheTTL string `koanf:"count_cache_ttl"`
}

type EventsConfig struct {
	TTLDays int `koanf:"ttl_days"`
}

type RateLimitConfig struct {
	Enabled           bool `koanf:"enabled"`
	RequestsPerMinute int  `koanf:"requests_per_minute"`
}

type JanitorConfig struct {
	Enabled   bool   `koanf:"enabled"`
	Interval  string `koanf:"interval"`
	BatchSize int    `koanf:"batch_size"`
}

type OutboxConfig struct {
	Enabled bool `koanf:"enabled"`
}

// TTL returns the parsed inbox count cache TTL. Zero disables the cache.
func (c InboxConfig) TTL() time.Duration {
	d, err := time.ParseDuration(c.CountCacheTTL)
	if err != nil {
		return 0
	}
	return d
}

func (c JanitorConfig) IntervalDuration() time.Duration {
	d, err := time.ParseDuration(c.Interval)
	if err != nil {
		return 0
	}
	return d
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d (must be 1-65535)", c.Server.Port)
	}
	if strings.TrimSpace(c.Server.Host) == "" {
		return fmt.Errorf("server.host is required")
	}
	if c.Server.Mode != "debug" && c.Server.Mode != "release" {
		return fmt.Errorf("invalid server.mode %q (must be debug or release)", c.Server.Mode)
	}

	if strings.TrimSpace(c.Database.DSN) == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be > 0")
	}
	if c.Database.MaxIdleConns <= 0 {
		return fmt.Errorf("database.max_idle_conns must be > 0")
	}

	if strings.TrimSpace(c.Pagination.Secret) == "" {
		return fmt.Errorf("pagination.secret is required")
	}

	if c.Inbox.CountCacheTTL != "" {
		if _, err := time.ParseDuration(c.Inbox.CountCacheTTL); err != nil {
			return fmt.Errorf("invalid inbox.count_cache_ttl %q: %w", c.Inbox.CountCacheTTL, err)
		}
	}

	if c.Events.TTLDays <= 0 {
		return fmt.Errorf("events.ttl_days must be > 0")
	}

	if c.RateLimit.Enabled && c.RateLimit.RequestsPerMinute <= 0 {
		return fmt.Errorf("ratelimit.requests_per_minute must be > 0")
	}

	if c.Janitor.Enabled {
		interval, err := time.ParseDuration(c.Janitor.Interval)
		if err != nil {
			return fmt.Errorf("invalid janitor.interval %q: %w", c.Janitor.Interval, err)
		}
		if interval <= 0 {
			return fmt.Errorf("janitor.interval must be > 0")
		}
		if c.Janitor.BatchSize <= 0 {
			return fmt.Errorf("janitor.batch_size must be > 0")
		}
	}

	return nil
}

// Load parses config from defaults + file + env, then validates it.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	defaults := map[string]interface{}{
		"server.port":                   8080,
		"server.host":                   "0.0.0.0",
		"server.mode":                   "release",
		"database.dsn":                  "postgres://localhost:5432/eventinbox?sslmode=disable",
		"database.max_open_conns":       25,
		"database.max_idle_conns":       25,
		"database.auto_migrate":         true,
		"pagination.secret":             DefaultPaginationSecret,
		"inbox.count_cache_ttl":         "30s",
		"events.ttl_days":               30,
		"ratelimit.enabled":             true,
		"ratelimit.requests_per_minute": 120,
		"janitor.enabled":               true,
		"janitor.interval":              "5m",
		"janitor.batch_size":            500,
		"outbox.enabled":                true,
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider("EVENTINBOX_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "EVENTINBOX_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
