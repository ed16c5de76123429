package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Cache    CacheConfig    `koanf:"cache"`
	Tracking TrackingConfig `koanf:"tracking"`
}

type ServerConfig struct {
	Port          int    `koanf:"port"`
	Host          string `koanf:"host"`
	MaxBodySizeMB int    `koanf:"max_body_size_mb"`
	Mode          string `koanf:"mode"` // debug | release
}

type DatabaseConfig struct {
	DSN          string `koanf:"dsn"`
	MaxOpenConns int    `koanf:"max_open_conns"`
	MaxIdleConns int    `koanf:"max_idle_conns"`
	AutoMigrate  bool   `koanf:"auto_migrate"`
}

// CacheConfig configures the advisory fast-path cache. Disabled means
// store-only resolution, which is always correct.
type CacheConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
	TTL      string `koanf:"ttl"` // parsed and validated on startup
}

// TrackingConfig configures the redirect surface.
type TrackingConfig struct {
	// BaseURL is the public origin tracking URLs are minted under,
	// e.g. "https://track.example.com".
	BaseURL string `koanf:"base_url"`
	// FallbackURL is where unknown or failing redirects land. This
	// surface fails open, never visibly.
	FallbackURL string `koanf:"fallback_url"`
	// CookieName holds the long-lived anonymous visitor id.
	CookieName string `koanf:"cookie_name"`
	// CookieMaxAgeDays bounds the anonymous-id cookie lifetime.
	CookieMaxAgeDays int `koanf:"cookie_max_age_days"`
}

func (c CacheConfig) ParsedTTL() (time.Duration, error) {
	return time.ParseDuration(c.TTL)
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d (must be 1-65535)", c.Server.Port)
	}
	if strings.TrimSpace(c.Server.Host) == "" {
		return fmt.Errorf("server.host is required")
	}
	if c.Server.MaxBodySizeMB <= 0 {
		return fmt.Errorf("server.max_body_size_mb must be > 0")
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

	if c.Cache.Enabled {
		if strings.TrimSpace(c.Cache.Addr) == "" {
			return fmt.Errorf("cache.addr is required when cache is enabled")
		}
		ttl, err := c.Cache.ParsedTTL()
		if err != nil {
			return fmt.Errorf("invalid cache.ttl %q: %w", c.Cache.TTL, err)
		}
		if ttl <= 0 {
			return fmt.Errorf("cache.ttl must be > 0")
		}
	}

	for name, raw := range map[string]string{
		"tracking.base_url":     c.Tracking.BaseURL,
		"tracking.fallback_url": c.Tracking.FallbackURL,
	} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%s %q must be an absolute URL", name, raw)
		}
	}
	if strings.TrimSpace(c.Tracking.CookieName) == "" {
		return fmt.Errorf("tracking.cookie_name is required")
	}
	if c.Tracking.CookieMaxAgeDays <= 0 {
		return fmt.Errorf("tracking.cookie_max_age_days must be > 0")
	}

	return nil
}

// Load parses config from defaults, then an optional YAML file, then
// LEADSIGHT_-prefixed env vars (double underscore as section separator,
// e.g. LEADSIGHT_DATABASE__DSN), and validates the result.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	defaults := map[string]interface{}{
		"server.port":                  8080,
		"server.host":                  "0.0.0.0",
		"server.max_body_size_mb":      1,
		"server.mode":                  "release",
		"database.dsn":                 "",
		"database.max_open_conns":      25,
		"database.max_idle_conns":      25,
		"database.auto_migrate":        true,
		"cache.enabled":                true,
		"cache.addr":                   "localhost:6379",
		"cache.password":               "",
		"cache.db":                     0,
		"cache.ttl":                    "24h",
		"tracking.base_url":            "http://localhost:8080",
		"tracking.fallback_url":        "http://localhost:8080/",
		"tracking.cookie_name":         "__ls_aid",
		"tracking.cookie_max_age_days": 365,
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider("LEADSIGHT_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "LEADSIGHT_")), "__", ".", -1)
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
