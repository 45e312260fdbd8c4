package model

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// NumberPlaceholder is substituted with the document number in SourceConfig.URLTemplate
const NumberPlaceholder = "{number}"

// DefaultURLTemplate points at the RUPAT register servlet
const DefaultURLTemplate = "https://new.fips.ru/registers-doc-view/fips_servlet?DB=RUPAT&DocNumber={number}&TypeFile=html"

// Config is the complete patentscan configuration
type Config struct {
	Source       SourceConfig       `mapstructure:"source" yaml:"source"`
	HTTP         HTTPConfig         `mapstructure:"http" yaml:"http"`
	Identity     IdentityConfig     `mapstructure:"identity" yaml:"identity"`
	Pacing       PacingConfig       `mapstructure:"pacing" yaml:"pacing"`
	RateLimiting RateLimitingConfig `mapstructure:"rate_limiting" yaml:"rate_limiting"`
	Concurrency  ConcurrencyConfig  `mapstructure:"concurrency" yaml:"concurrency"`
	Cache        CacheConfig        `mapstructure:"cache" yaml:"cache"`
	Output       OutputConfig       `mapstructure:"output" yaml:"output"`
	Log          LogConfig          `mapstructure:"log" yaml:"log"`
	Metrics      MetricsConfig      `mapstructure:"metrics" yaml:"metrics"`
}

type SourceConfig struct {
	URLTemplate string `mapstructure:"url_template" yaml:"url_template"`
}

type HTTPConfig struct {
	Timeout       time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxBodyBytes  int64         `mapstructure:"max_body_bytes" yaml:"max_body_bytes"`
	Retries       uint          `mapstructure:"retries" yaml:"retries"` // Total attempts per fetch
	RetryDelay    time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
	InsecureTLS   bool          `mapstructure:"insecure_tls" yaml:"insecure_tls"`
	RespectRobots bool          `mapstructure:"respect_robots" yaml:"respect_robots"`
}

// IdentityConfig holds the pools requests are drawn from
type IdentityConfig struct {
	UserAgents []string          `mapstructure:"user_agents" yaml:"user_agents"`
	Headers    map[string]string `mapstructure:"headers" yaml:"headers,omitempty"`
	Proxies    []string          `mapstructure:"proxies" yaml:"proxies"`
	Rotation   string            `mapstructure:"rotation" yaml:"rotation"` // round_robin or random
}

type PacingConfig struct {
	MinInterval time.Duration `mapstructure:"min_interval" yaml:"min_interval"`
}

type RateLimitingConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second" yaml:"requests_per_second"` // 0 disables
	BurstSize         int     `mapstructure:"burst_size" yaml:"burst_size"`
}

type ConcurrencyConfig struct {
	Workers    int           `mapstructure:"workers" yaml:"workers"`
	JobTimeout time.Duration `mapstructure:"job_timeout" yaml:"job_timeout"`
}

type CacheConfig struct {
	Enabled   bool          `mapstructure:"enabled" yaml:"enabled"`
	Dir       string        `mapstructure:"dir" yaml:"dir"`
	MemoryTTL time.Duration `mapstructure:"memory_ttl" yaml:"memory_ttl"`
	DiskTTL   time.Duration `mapstructure:"disk_ttl" yaml:"disk_ttl"`
}

type OutputConfig struct {
	Path   string `mapstructure:"path" yaml:"path"`
	Format string `mapstructure:"format" yaml:"format"` // csv, xlsx or jsonl
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Pretty bool   `mapstructure:"pretty" yaml:"pretty"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"` // Empty disables the /metrics listener
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() *Config {
	return &Config{
		Source: SourceConfig{URLTemplate: DefaultURLTemplate},
		HTTP: HTTPConfig{
			Timeout:      30 * time.Second,
			MaxBodyBytes: 4_000_000,
			Retries:      3,
			RetryDelay:   2 * time.Second,
		},
		Identity: IdentityConfig{
			UserAgents: []string{"patentscan/0.1 (+https://github.com/ppiankov/patentscan)"},
			Rotation:   "round_robin",
		},
		Pacing:       PacingConfig{MinInterval: 3 * time.Second},
		RateLimiting: RateLimitingConfig{BurstSize: 1},
		Concurrency: ConcurrencyConfig{
			Workers:    4,
			JobTimeout: 2 * time.Minute,
		},
		Cache: CacheConfig{
			Enabled:   true,
			Dir:       ".patentscan-cache",
			MemoryTTL: 30 * time.Minute,
			DiskTTL:   7 * 24 * time.Hour,
		},
		Output: OutputConfig{Path: "data.csv", Format: "csv"},
		Log:    LogConfig{Level: "info", Pretty: true},
	}
}

// Validate reports malformed configuration. A batch refuses to start on error.
func (c *Config) Validate() error {
	if !strings.Contains(c.Source.URLTemplate, NumberPlaceholder) {
		return fmt.Errorf("source.url_template must contain %s", NumberPlaceholder)
	}
	if _, err := url.Parse(strings.ReplaceAll(c.Source.URLTemplate, NumberPlaceholder, "1")); err != nil {
		return fmt.Errorf("source.url_template: %w", err)
	}
	if c.HTTP.MaxBodyBytes <= 0 {
		return fmt.Errorf("http.max_body_bytes must be positive")
	}
	if c.HTTP.Retries == 0 {
		return fmt.Errorf("http.retries must be at least 1")
	}
	if c.HTTP.Timeout < 0 || c.HTTP.RetryDelay < 0 {
		return fmt.Errorf("http durations must not be negative")
	}
	if c.Pacing.MinInterval < 0 {
		return fmt.Errorf("pacing.min_interval must not be negative")
	}
	if c.RateLimiting.RequestsPerSecond < 0 {
		return fmt.Errorf("rate_limiting.requests_per_second must not be negative")
	}
	if c.Concurrency.Workers <= 0 {
		return fmt.Errorf("concurrency.workers must be positive")
	}
	if c.Concurrency.JobTimeout < 0 {
		return fmt.Errorf("concurrency.job_timeout must not be negative")
	}
	if len(c.Identity.UserAgents) == 0 {
		return fmt.Errorf("identity.user_agents must not be empty")
	}
	switch c.Identity.Rotation {
	case "round_robin", "random":
	default:
		return fmt.Errorf("identity.rotation: unknown policy %q", c.Identity.Rotation)
	}
	for _, p := range c.Identity.Proxies {
		u, err := url.Parse(p)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("identity.proxies: malformed proxy %q", p)
		}
	}
	switch c.Output.Format {
	case "csv", "xlsx", "jsonl":
	default:
		return fmt.Errorf("output.format: unknown format %q", c.Output.Format)
	}
	return nil
}

// DocumentURL renders the source URL for a document number
func (c *Config) DocumentURL(number string) string {
	return strings.ReplaceAll(c.Source.URLTemplate, NumberPlaceholder, url.QueryEscape(number))
}
