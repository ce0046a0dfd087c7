// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Target    TargetConfig    `mapstructure:"target"`
	Session   SessionConfig   `mapstructure:"session"`
	Retry     RetryConfig     `mapstructure:"retry"`
	Runner    RunnerConfig    `mapstructure:"runner"`
	Serp      SerpConfig      `mapstructure:"serp"`
	Evaluator EvaluatorConfig `mapstructure:"evaluator"`
	DB        DBConfig        `mapstructure:"db"`
	Blob      BlobConfig      `mapstructure:"blob"`
	Publisher PublisherConfig `mapstructure:"publisher"`
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// TargetConfig describes the remote streaming service.
type TargetConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Country string `mapstructure:"country"`
}

// SessionConfig governs the tiered session pool.
type SessionConfig struct {
	RPS               float64 `mapstructure:"rps"`
	MaxInFlight       int     `mapstructure:"max_in_flight"`
	Cookie            string  `mapstructure:"cookie"`
	UserAgent         string  `mapstructure:"user_agent"`
	ConnectTimeoutSec int     `mapstructure:"connect_timeout_seconds"`
	RequestTimeoutSec int     `mapstructure:"request_timeout_seconds"`
	HeadersEndpoint   string  `mapstructure:"headers_endpoint"`
	HeadersAPIKey     string  `mapstructure:"headers_api_key"`
}

// RetryConfig configures the fetch retry controller.
type RetryConfig struct {
	MaxAttempts int `mapstructure:"max_attempts"`
	BaseMs      int `mapstructure:"base_ms"`
	MaxMs       int `mapstructure:"max_ms"`
	JitterMs    int `mapstructure:"jitter_ms"`
}

// RunnerConfig governs batch orchestration.
type RunnerConfig struct {
	Concurrency   int `mapstructure:"concurrency"`
	FreshnessDays int `mapstructure:"freshness_days"`
}

// SerpConfig points at the search-results proxy platform.
type SerpConfig struct {
	Endpoint       string `mapstructure:"endpoint"`
	APIKey         string `mapstructure:"api_key"`
	PollAttempts   int    `mapstructure:"poll_attempts"`
	PollIntervalMs int    `mapstructure:"poll_interval_ms"`
	TimeoutSec     int    `mapstructure:"timeout_seconds"`
}

// EvaluatorConfig selects and configures the JS payload evaluator.
type EvaluatorConfig struct {
	Provider   string `mapstructure:"provider"` // "chromedp" or "node"
	Command    string `mapstructure:"command"`
	TimeoutSec int    `mapstructure:"timeout_seconds"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// BlobConfig selects the raw-body store.
type BlobConfig struct {
	Provider  string `mapstructure:"provider"` // "local", "gcs" or "memory"
	BaseDir   string `mapstructure:"base_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
}

// PublisherConfig holds metadata for completion-event publishing.
type PublisherConfig struct {
	Provider  string `mapstructure:"provider"` // "pubsub", "memory" or "none"
	ProjectID string `mapstructure:"project_id"`
	TopicID   string `mapstructure:"topic_id"`
}

// ServerConfig controls the ops HTTP server. Port 0 disables it.
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
	v.SetEnvPrefix("CRITIC")
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
	v.SetDefault("target.base_url", "https://www.netflix.com")
	v.SetDefault("target.country", "US")
	// <10 r/s is about what the service tolerates before terminating
	// the session; stay well under it.
	v.SetDefault("session.rps", 5.0)
	v.SetDefault("session.max_in_flight", 5)
	v.SetDefault("session.connect_timeout_seconds", 15)
	v.SetDefault("session.request_timeout_seconds", 0)
	v.SetDefault("session.headers_endpoint", "https://headers.scrapeops.io/v1/browser-headers")
	v.SetDefault("retry.max_attempts", 4)
	v.SetDefault("retry.base_ms", 250)
	v.SetDefault("retry.max_ms", 5000)
	v.SetDefault("retry.jitter_ms", 250)
	v.SetDefault("runner.concurrency", 32)
	v.SetDefault("runner.freshness_days", 7)
	v.SetDefault("serp.poll_attempts", 10)
	v.SetDefault("serp.poll_interval_ms", 2000)
	v.SetDefault("serp.timeout_seconds", 60)
	v.SetDefault("evaluator.provider", "node")
	v.SetDefault("evaluator.command", "node")
	v.SetDefault("evaluator.timeout_seconds", 20)
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("blob.provider", "local")
	v.SetDefault("blob.base_dir", "data/raw")
	v.SetDefault("publisher.provider", "none")
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Target.BaseURL == "" {
		return fmt.Errorf("target.base_url must be set")
	}
	if c.Target.Country == "" {
		return fmt.Errorf("target.country must be set")
	}
	if c.Session.RPS <= 0 {
		return fmt.Errorf("session.rps must be > 0")
	}
	if c.Session.MaxInFlight <= 0 {
		return fmt.Errorf("session.max_in_flight must be > 0")
	}
	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry.max_attempts must be > 0")
	}
	if c.Runner.Concurrency <= 0 {
		return fmt.Errorf("runner.concurrency must be > 0")
	}
	if c.Runner.FreshnessDays <= 0 {
		return fmt.Errorf("runner.freshness_days must be > 0")
	}
	switch c.Blob.Provider {
	case "local":
		if c.Blob.BaseDir == "" {
			return fmt.Errorf("blob.base_dir must be set for the local provider")
		}
	case "gcs":
		if c.Blob.GCSBucket == "" {
			return fmt.Errorf("blob.gcs_bucket must be set for the gcs provider")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown blob provider %q", c.Blob.Provider)
	}
	switch c.Publisher.Provider {
	case "pubsub":
		if c.Publisher.ProjectID == "" || c.Publisher.TopicID == "" {
			return fmt.Errorf("publisher.project_id and publisher.topic_id must be set for pubsub")
		}
	case "memory", "none":
	default:
		return fmt.Errorf("unknown publisher provider %q", c.Publisher.Provider)
	}
	return nil
}

// FreshnessWindow converts the configured freshness into a duration.
func (c Config) FreshnessWindow() time.Duration {
	return time.Duration(c.Runner.FreshnessDays) * 24 * time.Hour
}

// RetryBase returns the initial backoff delay.
func (c Config) RetryBase() time.Duration {
	return time.Duration(c.Retry.BaseMs) * time.Millisecond
}

// RetryMax returns the backoff ceiling.
func (c Config) RetryMax() time.Duration {
	return time.Duration(c.Retry.MaxMs) * time.Millisecond
}

// RetryJitter returns the uniform jitter window added to each delay.
func (c Config) RetryJitter() time.Duration {
	return time.Duration(c.Retry.JitterMs) * time.Millisecond
}
