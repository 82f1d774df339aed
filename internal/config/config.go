// Package config loads and validates pipeline configuration via Viper.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultRelayURL is used when relay.url is unset or malformed.
const DefaultRelayURL = "http://localhost:8787/"

// DefaultUserAgent identifies the fetcher to feed hosts.
const DefaultUserAgent = "realtime-feeds/1.0 (+https://github.com/JakeFAU/realtime-feeds)"

// Publish providers.
const (
	ProviderLocal = "local"
	ProviderGCS   = "gcs"
	ProviderNone  = "none"
)

// Config captures all pipeline configuration knobs loaded via Viper.
type Config struct {
	Store    StoreConfig    `mapstructure:"store"`
	Registry RegistryConfig `mapstructure:"registry"`
	Export   ExportConfig   `mapstructure:"export"`
	Fetch    FetchConfig    `mapstructure:"fetch"`
	Items    ItemsConfig    `mapstructure:"items"`
	Excerpt  ExcerptConfig  `mapstructure:"excerpt"`
	Relay    RelayConfig    `mapstructure:"relay"`
	Dates    DatesConfig    `mapstructure:"dates"`
	Verify   VerifyConfig   `mapstructure:"verify"`
	Publish  PublishConfig  `mapstructure:"publish"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Logging  LoggingConfig  `mapstructure:"logging"`

	// Warnings collects non-fatal problems found while loading, to be logged
	// once a logger exists.
	Warnings []string `mapstructure:"-"`
}

// StoreConfig locates the SQLite store.
type StoreConfig struct {
	Path      string `mapstructure:"path"`
	BatchSize int    `mapstructure:"batch_size"`
}

// RegistryConfig locates the source registry file.
type RegistryConfig struct {
	Path string `mapstructure:"path"`
}

// ExportConfig sets where artifacts are written.
type ExportConfig struct {
	Dir string `mapstructure:"dir"`
}

// FetchConfig governs feed fetching and scheduling.
type FetchConfig struct {
	Concurrency    int           `mapstructure:"concurrency"`
	BatchSize      int           `mapstructure:"batch_size"`
	BatchDelay     time.Duration `mapstructure:"batch_delay"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	Backoff        string        `mapstructure:"backoff"`
	UserAgent      string        `mapstructure:"user_agent"`
	SensitiveHosts []string      `mapstructure:"sensitive_hosts"`
}

// ItemsConfig caps posts per source.
type ItemsConfig struct {
	DefaultMax int `mapstructure:"default_max"`
}

// ExcerptConfig controls excerpt resolution and page scraping.
type ExcerptConfig struct {
	PageFetch         bool    `mapstructure:"page_fetch"`
	PagePerSource     int     `mapstructure:"page_per_source"`
	PageConcurrency   int     `mapstructure:"page_concurrency"`
	PageHostRPS       float64 `mapstructure:"page_host_rps"`
	MaxRunes          int     `mapstructure:"max_runes"`
	MinParagraphRunes int     `mapstructure:"min_paragraph_runes"`
	RespectRobots     bool    `mapstructure:"respect_robots"`
}

// RelayConfig describes the rate-limit-avoidance relay.
type RelayConfig struct {
	URL           string `mapstructure:"url"`
	QueryParam    string `mapstructure:"query_param"`
	BlockedStatus int    `mapstructure:"blocked_status"`
}

// DatesConfig holds the date resolver thresholds.
type DatesConfig struct {
	MaxFutureDays      int `mapstructure:"max_future_days"`
	InferredPreferDays int `mapstructure:"inferred_prefer_days"`
	RecentWindowDays   int `mapstructure:"recent_window_days"`
}

// VerifyConfig tunes the verifier's soft checks.
type VerifyConfig struct {
	DriftWarn time.Duration `mapstructure:"drift_warn"`
}

// PublishConfig selects where verified artifacts are uploaded.
type PublishConfig struct {
	Provider  string `mapstructure:"provider"`
	LocalDir  string `mapstructure:"local_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// NotifyConfig holds Pub/Sub settings for publish announcements.
type NotifyConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// Enabled reports whether notifications are configured.
func (n NotifyConfig) Enabled() bool {
	return n.ProjectID != "" && n.Topic != ""
}

// MetricsConfig controls the metrics listener.
type MetricsConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from an optional file and FEEDS_* environment
// variables.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("FEEDS")
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

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.path", "data/feeds.db")
	v.SetDefault("store.batch_size", 500)
	v.SetDefault("registry.path", "sources.yaml")
	v.SetDefault("export.dir", "public/data")
	v.SetDefault("fetch.concurrency", 8)
	v.SetDefault("fetch.batch_size", 3)
	v.SetDefault("fetch.batch_delay", "2s")
	v.SetDefault("fetch.timeout", "15s")
	v.SetDefault("fetch.max_attempts", 3)
	v.SetDefault("fetch.backoff", "1s,2s,4s")
	v.SetDefault("fetch.user_agent", DefaultUserAgent)
	v.SetDefault("fetch.sensitive_hosts", []string{"*.substack.com", "medium.com", "*.medium.com"})
	v.SetDefault("items.default_max", 20)
	v.SetDefault("excerpt.page_fetch", true)
	v.SetDefault("excerpt.page_per_source", 3)
	v.SetDefault("excerpt.page_concurrency", 4)
	v.SetDefault("excerpt.page_host_rps", 1.0)
	v.SetDefault("excerpt.max_runes", 280)
	v.SetDefault("excerpt.min_paragraph_runes", 80)
	v.SetDefault("excerpt.respect_robots", true)
	v.SetDefault("relay.url", DefaultRelayURL)
	v.SetDefault("relay.query_param", "url")
	v.SetDefault("relay.blocked_status", 429)
	v.SetDefault("dates.max_future_days", 2)
	v.SetDefault("dates.inferred_prefer_days", 30)
	v.SetDefault("dates.recent_window_days", 14)
	v.SetDefault("verify.drift_warn", "72h")
	v.SetDefault("publish.provider", ProviderLocal)
	v.SetDefault("publish.local_dir", "dist/data")
	v.SetDefault("publish.gcs_bucket", "")
	v.SetDefault("publish.prefix", "")
	v.SetDefault("notify.project_id", "")
	v.SetDefault("notify.topic", "")
	v.SetDefault("metrics.listen_addr", "")
	v.SetDefault("logging.development", false)
}

// normalize repairs soft problems, recording a warning for each.
func (c *Config) normalize() {
	if !validRelayURL(c.Relay.URL) {
		c.Warnings = append(c.Warnings, fmt.Sprintf("relay.url %q is not an absolute http(s) url; using %s", c.Relay.URL, DefaultRelayURL))
		c.Relay.URL = DefaultRelayURL
	}
	hosts := c.Fetch.SensitiveHosts[:0]
	for _, h := range c.Fetch.SensitiveHosts {
		if h = strings.TrimSpace(h); h != "" {
			hosts = append(hosts, h)
		}
	}
	c.Fetch.SensitiveHosts = hosts
	c.Publish.Provider = strings.ToLower(strings.TrimSpace(c.Publish.Provider))
}

func validRelayURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Store.Path == "" {
		return fmt.Errorf("store.path must be set")
	}
	if c.Fetch.Concurrency <= 0 {
		return fmt.Errorf("fetch.concurrency must be > 0")
	}
	if c.Fetch.BatchSize <= 0 {
		return fmt.Errorf("fetch.batch_size must be > 0")
	}
	if c.Fetch.BatchDelay < 0 {
		return fmt.Errorf("fetch.batch_delay must be >= 0")
	}
	if c.Fetch.Timeout <= 0 {
		return fmt.Errorf("fetch.timeout must be > 0")
	}
	if c.Fetch.MaxAttempts <= 0 {
		return fmt.Errorf("fetch.max_attempts must be > 0")
	}
	if _, err := c.BackoffSchedule(); err != nil {
		return err
	}
	if c.Items.DefaultMax <= 0 {
		return fmt.Errorf("items.default_max must be > 0")
	}
	if c.Excerpt.MaxRunes <= 0 {
		return fmt.Errorf("excerpt.max_runes must be > 0")
	}
	if c.Excerpt.PageFetch && c.Excerpt.PageConcurrency <= 0 {
		return fmt.Errorf("excerpt.page_concurrency must be > 0 when page fetch is enabled")
	}
	if c.Dates.MaxFutureDays < 0 || c.Dates.InferredPreferDays < 0 || c.Dates.RecentWindowDays < 0 {
		return fmt.Errorf("dates thresholds must be >= 0")
	}
	switch c.Publish.Provider {
	case ProviderLocal:
		if c.Publish.LocalDir == "" {
			return fmt.Errorf("publish.local_dir must be set for the local provider")
		}
	case ProviderGCS:
		if c.Publish.GCSBucket == "" {
			return fmt.Errorf("publish.gcs_bucket must be set for the gcs provider")
		}
	case ProviderNone:
	default:
		return fmt.Errorf("publish.provider %q must be one of local, gcs, none", c.Publish.Provider)
	}
	if (c.Notify.ProjectID == "") != (c.Notify.Topic == "") {
		return fmt.Errorf("notify.project_id and notify.topic must be set together")
	}
	return nil
}

// BackoffSchedule parses fetch.backoff, a comma-separated duration list.
func (c Config) BackoffSchedule() ([]time.Duration, error) {
	var out []time.Duration
	for _, part := range strings.Split(c.Fetch.Backoff, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		d, err := time.ParseDuration(part)
		if err != nil {
			return nil, fmt.Errorf("fetch.backoff entry %q: %w", part, err)
		}
		if d < 0 {
			return nil, fmt.Errorf("fetch.backoff entry %q must be >= 0", part)
		}
		out = append(out, d)
	}
	return out, nil
}
