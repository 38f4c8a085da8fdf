package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Cache backends.
const (
	CacheBackendFile     = "file"
	CacheBackendPostgres = "postgres"
)

// Host-side clamps on the cache configuration.
const (
	MinCacheTTLSeconds = 60
	MinCacheMaxEntries = 10
)

type Config struct {
	AppEnv   string `env:"APP_ENV" envDefault:"local"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	HTTPPort int    `env:"HTTP_PORT" envDefault:"8080"`

	// Aggregator
	RedirectHost      string   `env:"GNEWS_REDIRECT_HOST" envDefault:"news.google.com"`
	AggregatorDomains []string `env:"GNEWS_AGGREGATOR_DOMAINS" envDefault:"google.com" envSeparator:","`
	BaseURL           string   `env:"GNEWS_BASE_URL" envDefault:"https://news.google.com"`
	Language          string   `env:"GNEWS_HL" envDefault:"en-US"`
	Country           string   `env:"GNEWS_GL" envDefault:"US"`
	Edition           string   `env:"GNEWS_CEID" envDefault:"US:en"`
	UserAgent         string   `env:"GNEWS_USER_AGENT" envDefault:"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"`

	// Network
	PageTimeout     time.Duration `env:"GNEWS_PAGE_TIMEOUT" envDefault:"10s"`
	RPCTimeout      time.Duration `env:"GNEWS_RPC_TIMEOUT" envDefault:"15s"`
	RedirectTimeout time.Duration `env:"GNEWS_REDIRECT_TIMEOUT" envDefault:"5s"`
	RedirectMax     int           `env:"GNEWS_REDIRECT_MAX" envDefault:"3"`
	FetchRPS        float64       `env:"GNEWS_FETCH_RPS" envDefault:"2"`

	// Result cache
	CacheBackend    string `env:"GNEWS_CACHE_BACKEND" envDefault:"file"`
	CachePath       string `env:"GNEWS_CACHE_PATH" envDefault:"./data/cache.json"`
	CacheTTLSeconds int    `env:"GNEWS_CACHE_TTL" envDefault:"604800"`
	CacheMaxEntries int    `env:"GNEWS_CACHE_MAX" envDefault:"1000"`
	PostgresDSN     string `env:"POSTGRES_DSN"`

	// Feed processing
	SourcesFile   string        `env:"GNEWS_SOURCES_FILE" envDefault:"./config/sources.yaml"`
	FeedInterval  time.Duration `env:"GNEWS_FEED_INTERVAL" envDefault:"15m"`
	FeedItemLimit int           `env:"GNEWS_FEED_ITEM_LIMIT" envDefault:"50"`
}

func Load() (*Config, error) {
	_ = godotenv.Load() //nolint:errcheck // .env file is optional, error is expected when not present

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment config: %w", err)
	}

	cfg.applyClamps()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyClamps() {
	if c.CacheTTLSeconds < MinCacheTTLSeconds {
		c.CacheTTLSeconds = MinCacheTTLSeconds
	}

	if c.CacheMaxEntries < MinCacheMaxEntries {
		c.CacheMaxEntries = MinCacheMaxEntries
	}

	c.CacheBackend = strings.ToLower(strings.TrimSpace(c.CacheBackend))
	c.RedirectHost = strings.ToLower(strings.TrimSpace(c.RedirectHost))
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
}

// Validate checks the cache backend settings and the redirect host.
func (c *Config) Validate() error {
	switch c.CacheBackend {
	case CacheBackendFile:
		if c.CachePath == "" {
			return fmt.Errorf("%w: GNEWS_CACHE_PATH is empty", ErrInvalidConfig)
		}
	case CacheBackendPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("%w: POSTGRES_DSN is required for the postgres cache backend", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown cache backend %q", ErrInvalidConfig, c.CacheBackend)
	}

	if c.RedirectHost == "" {
		return fmt.Errorf("%w: GNEWS_REDIRECT_HOST is empty", ErrInvalidConfig)
	}

	return nil
}

// CacheTTL returns the clamped cache TTL as a duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}
