// Package config loads and validates sync pipeline configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"shelfsync/internal/exclusion"
)

// Config captures every pipeline knob loaded via Viper.
type Config struct {
	Source     SourceConfig     `mapstructure:"source"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Fetch      FetchConfig      `mapstructure:"fetch"`
	RateLimit  RateLimitConfig  `mapstructure:"ratelimit"`
	Proxy      ProxyConfig      `mapstructure:"proxy"`
	Cache      CacheConfig      `mapstructure:"cache"`
	DB         DBConfig         `mapstructure:"db"`
	Sync       SyncConfig       `mapstructure:"sync"`
	Exclusions exclusion.Config `mapstructure:"exclusions"`
	Server     ServerConfig     `mapstructure:"server"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// SourceConfig locates the upstream site.
type SourceConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

// HTTPConfig configures the outbound HTTP client.
type HTTPConfig struct {
	UserAgent string        `mapstructure:"user_agent"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// FetchConfig governs the retry loop around each page fetch.
type FetchConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BackoffBase time.Duration `mapstructure:"backoff_base"`
	BackoffMax  time.Duration `mapstructure:"backoff_max"`
}

// RateLimitConfig paces outbound requests per host.
type RateLimitConfig struct {
	Interval  time.Duration `mapstructure:"interval"`
	JitterPct float64       `mapstructure:"jitter_pct"`
}

// ProxyConfig locates the proxy list and tunes pool health tracking.
type ProxyConfig struct {
	ListPath      string        `mapstructure:"list_path"`
	HealthPath    string        `mapstructure:"health_path"`
	MaxFailures   int           `mapstructure:"max_failures"`
	Cooldown      time.Duration `mapstructure:"cooldown"`
	BlockCooldown time.Duration `mapstructure:"block_cooldown"`
}

// CacheConfig locates the raw page cache on disk.
type CacheConfig struct {
	Dir string `mapstructure:"dir"`
}

// DBConfig controls access to Postgres. An empty DSN selects the in-memory
// stores.
type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// SyncConfig sets the default staleness window.
type SyncConfig struct {
	MaxAge time.Duration `mapstructure:"max_age"`
}

// ServerConfig controls the ops HTTP server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SHELFSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("source.base_url", "https://www.goodreads.com")
	v.SetDefault("http.user_agent", "shelfsync/0.1")
	v.SetDefault("http.timeout", "20s")
	v.SetDefault("fetch.max_attempts", 3)
	v.SetDefault("fetch.backoff_base", "500ms")
	v.SetDefault("fetch.backoff_max", "8s")
	v.SetDefault("ratelimit.interval", "2s")
	v.SetDefault("ratelimit.jitter_pct", 0.25)
	v.SetDefault("proxy.list_path", "")
	v.SetDefault("proxy.health_path", "data/proxy_health.json")
	v.SetDefault("proxy.max_failures", 3)
	v.SetDefault("proxy.cooldown", "5m")
	v.SetDefault("proxy.block_cooldown", "30m")
	v.SetDefault("cache.dir", "data/cache")
	v.SetDefault("sync.max_age", "720h")
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)

	exc := exclusion.DefaultConfig()
	v.SetDefault("exclusions.version", exc.Version)
	v.SetDefault("exclusions.genres", exc.Genres)
	v.SetDefault("exclusions.title_patterns", exc.TitlePatterns)
	v.SetDefault("exclusions.max_pages", exc.MaxPages)
	v.SetDefault("exclusions.min_ratings", exc.MinRatings)
	v.SetDefault("exclusions.require_description", exc.RequireDescription)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Source.BaseURL == "" {
		return fmt.Errorf("source.base_url is required")
	}
	if c.HTTP.Timeout <= 0 {
		return fmt.Errorf("http.timeout must be > 0")
	}
	if c.Fetch.MaxAttempts <= 0 {
		return fmt.Errorf("fetch.max_attempts must be > 0")
	}
	if c.RateLimit.JitterPct < 0 || c.RateLimit.JitterPct >= 1 {
		return fmt.Errorf("ratelimit.jitter_pct must be in [0, 1)")
	}
	if c.Cache.Dir == "" {
		return fmt.Errorf("cache.dir is required")
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	return nil
}
