// Package config loads and validates ranker configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	cachredis "github.com/JakeFAU/prospect-ranker/internal/cache/redis"
	"github.com/JakeFAU/prospect-ranker/internal/classifier"
	"github.com/JakeFAU/prospect-ranker/internal/crawler"
	"github.com/JakeFAU/prospect-ranker/internal/discovery"
	collyfetcher "github.com/JakeFAU/prospect-ranker/internal/fetcher/colly"
	"github.com/JakeFAU/prospect-ranker/internal/fetcher/headless"
	"github.com/JakeFAU/prospect-ranker/internal/fusion"
	"github.com/JakeFAU/prospect-ranker/internal/heuristics"
	"github.com/JakeFAU/prospect-ranker/internal/policy/ratelimit"
	"github.com/JakeFAU/prospect-ranker/internal/storage/postgres"
)

// EnvPrefix is prepended to every environment override, e.g. RANKER_SERVER_PORT.
const EnvPrefix = "RANKER"

// keyDelimiter separates nested keys. Hostnames under ratelimit.hosts contain
// dots, so "." cannot be used.
const keyDelimiter = "::"

// Storage backends for model artifacts.
const (
	BackendLocal  = "local"
	BackendGCS    = "gcs"
	BackendMemory = "memory"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Logging   LoggingConfig     `mapstructure:"logging"`
	Crawler   CrawlerConfig     `mapstructure:"crawler"`
	Headless  HeadlessConfig    `mapstructure:"headless"`
	RateLimit RateLimitConfig   `mapstructure:"ratelimit"`
	Pipeline  PipelineConfig    `mapstructure:"pipeline"`
	Fusion    fusion.Policy     `mapstructure:"fusion"`
	Region    heuristics.Region `mapstructure:"region"`
	Model     ModelConfig       `mapstructure:"model"`
	Training  TrainingConfig    `mapstructure:"training"`
	Discovery DiscoveryConfig   `mapstructure:"discovery"`
	Storage   StorageConfig     `mapstructure:"storage"`
	DB        DBConfig          `mapstructure:"db"`
	PubSub    PubSubConfig      `mapstructure:"pubsub"`
	Redis     RedisConfig       `mapstructure:"redis"`
	Server    ServerConfig      `mapstructure:"server"`
	Auth      AuthConfig        `mapstructure:"auth"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// CrawlerConfig governs the per-company crawl.
type CrawlerConfig struct {
	MaxPages      int           `mapstructure:"max_pages"`
	PageCharCap   int           `mapstructure:"page_char_cap"`
	MinPageChars  int           `mapstructure:"min_page_chars"`
	LinkKeywords  []string      `mapstructure:"link_keywords"`
	FetchTimeout  time.Duration `mapstructure:"fetch_timeout"`
	Budget        time.Duration `mapstructure:"budget"`
	UserAgent     string        `mapstructure:"user_agent"`
	RespectRobots bool          `mapstructure:"respect_robots"`
	MaxBodyBytes  int           `mapstructure:"max_body_bytes"`
}

// HeadlessConfig configures the headless rendering subsystem.
type HeadlessConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	MaxParallel   int           `mapstructure:"max_parallel"`
	NavTimeout    time.Duration `mapstructure:"nav_timeout"`
	SettleDelay   time.Duration `mapstructure:"settle_delay"`
	ExecPath      string        `mapstructure:"exec_path"`
	MinVisibleTxt int           `mapstructure:"min_visible_chars"`
}

// RateLimitConfig sets the per-host request rate shared by all crawls.
type RateLimitConfig struct {
	DefaultRPS   float64                        `mapstructure:"default_rps"`
	DefaultBurst int                            `mapstructure:"default_burst"`
	Hosts        map[string]ratelimit.HostLimit `mapstructure:"hosts"`
}

// PipelineConfig controls batch fan-out.
type PipelineConfig struct {
	Concurrency int `mapstructure:"concurrency"`
	// PaceInterval is the minimum gap between starting successive companies.
	PaceInterval time.Duration `mapstructure:"pace_interval"`
}

// ModelConfig locates the trained model artifact.
type ModelConfig struct {
	Path string `mapstructure:"path"`
}

// TrainingConfig tunes model fitting.
type TrainingConfig struct {
	MaxFeatures int     `mapstructure:"max_features"`
	Folds       int     `mapstructure:"folds"`
	C           float64 `mapstructure:"c"`
	MaxIter     int     `mapstructure:"max_iter"`
	Tolerance   float64 `mapstructure:"tolerance"`
}

// DiscoveryConfig configures web search for missing websites and revenue.
type DiscoveryConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	APIKey         string   `mapstructure:"api_key"`
	EngineID       string   `mapstructure:"engine_id"`
	BlockedDomains []string `mapstructure:"blocked_domains"`
	Results        int64    `mapstructure:"results"`
	RevenueSite    string   `mapstructure:"revenue_site"`
	RevenueLookup  bool     `mapstructure:"revenue_lookup"`
	// QPS caps outgoing searches; zero disables pacing.
	QPS float64 `mapstructure:"qps"`
}

// StorageConfig selects where model artifacts live.
type StorageConfig struct {
	Backend   string `mapstructure:"backend"`
	LocalDir  string `mapstructure:"local_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// DBConfig controls the optional Postgres ranking sink.
type DBConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	DSN             string        `mapstructure:"dsn"`
	Table           string        `mapstructure:"table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	EnsureSchema    bool          `mapstructure:"ensure_schema"`
}

// PubSubConfig holds metadata for ranking notifications.
type PubSubConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// RedisConfig controls the optional crawl cache.
type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxCompanies    int           `mapstructure:"max_companies"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.NewWithOptions(viper.KeyDelimiter(keyDelimiter))
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(keyDelimiter, "_"))
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
	v.SetDefault("logging::development", true)
	v.SetDefault("crawler::max_pages", crawler.DefaultMaxPages)
	v.SetDefault("crawler::page_char_cap", crawler.DefaultPageCharCap)
	v.SetDefault("crawler::min_page_chars", crawler.DefaultMinPageChars)
	v.SetDefault("crawler::link_keywords", crawler.DefaultLinkKeywords)
	v.SetDefault("crawler::fetch_timeout", crawler.DefaultFetchTimeout)
	v.SetDefault("crawler::budget", 60*time.Second)
	v.SetDefault("crawler::user_agent", "prospect-ranker/0.1")
	v.SetDefault("crawler::respect_robots", true)
	v.SetDefault("crawler::max_body_bytes", 5<<20)
	v.SetDefault("headless::enabled", false)
	v.SetDefault("headless::max_parallel", 1)
	v.SetDefault("headless::nav_timeout", 45*time.Second)
	v.SetDefault("headless::settle_delay", 500*time.Millisecond)
	v.SetDefault("headless::min_visible_chars", crawler.DefaultMinPageChars)
	v.SetDefault("ratelimit::default_rps", 1.0)
	v.SetDefault("ratelimit::default_burst", 1)
	v.SetDefault("pipeline::concurrency", 4)
	v.SetDefault("pipeline::pace_interval", 2500*time.Millisecond)
	v.SetDefault("fusion::fallback_score", fusion.DefaultFallbackScore)
	v.SetDefault("fusion::require_revenue", true)
	v.SetDefault("region::name", heuristics.California.Name)
	v.SetDefault("region::abbreviations", heuristics.California.Abbreviations)
	v.SetDefault("region::cities", heuristics.California.Cities)
	v.SetDefault("region::zip_prefixes", heuristics.California.ZIPPrefixes)
	v.SetDefault("model::path", "models/relevance.json")
	v.SetDefault("training::max_features", classifier.DefaultMaxFeatures)
	v.SetDefault("training::folds", classifier.DefaultFolds)
	v.SetDefault("training::c", 1.0)
	v.SetDefault("training::max_iter", 5000)
	v.SetDefault("training::tolerance", 1e-6)
	v.SetDefault("discovery::enabled", false)
	v.SetDefault("discovery::blocked_domains", discovery.DefaultBlockedDomains)
	v.SetDefault("discovery::results", discovery.DefaultResults)
	v.SetDefault("discovery::revenue_site", "zoominfo.com")
	v.SetDefault("discovery::revenue_lookup", true)
	v.SetDefault("discovery::qps", 1.0)
	v.SetDefault("storage::backend", BackendLocal)
	v.SetDefault("storage::local_dir", "artifacts")
	v.SetDefault("db::enabled", false)
	v.SetDefault("db::table", postgres.DefaultTable)
	v.SetDefault("db::ensure_schema", true)
	v.SetDefault("pubsub::enabled", false)
	v.SetDefault("redis::enabled", false)
	v.SetDefault("redis::addr", "localhost:6379")
	v.SetDefault("redis::ttl", cachredis.DefaultTTL)
	v.SetDefault("server::port", 8080)
	v.SetDefault("server::read_timeout", 15*time.Second)
	v.SetDefault("server::write_timeout", 10*time.Minute)
	v.SetDefault("server::shutdown_timeout", 30*time.Second)
	v.SetDefault("server::max_companies", 100)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if err := c.CrawlerSettings().Validate(); err != nil {
		return err
	}
	if err := c.Fusion.Validate(); err != nil {
		return err
	}
	if c.Pipeline.Concurrency <= 0 {
		return fmt.Errorf("pipeline.concurrency must be > 0")
	}
	if c.Pipeline.PaceInterval < 0 {
		return fmt.Errorf("pipeline.pace_interval must be >= 0")
	}
	if c.RateLimit.DefaultRPS < 0 {
		return fmt.Errorf("ratelimit.default_rps must be >= 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.Model.Path == "" {
		return fmt.Errorf("model.path is required")
	}
	if c.Training.Folds < 0 {
		return fmt.Errorf("training.folds must be >= 0")
	}
	switch c.Storage.Backend {
	case BackendLocal:
		if c.Storage.LocalDir == "" {
			return fmt.Errorf("storage.local_dir is required for the local backend")
		}
	case BackendGCS:
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket is required for the gcs backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("storage.backend must be one of %s, %s, %s", BackendLocal, BackendGCS, BackendMemory)
	}
	if c.Discovery.Enabled && c.Discovery.EngineID == "" {
		return fmt.Errorf("discovery.engine_id must be set when discovery is enabled")
	}
	if c.DB.Enabled && c.DB.DSN == "" {
		return fmt.Errorf("db.dsn must be set when db is enabled")
	}
	if c.PubSub.Enabled && (c.PubSub.ProjectID == "" || c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set when pubsub is enabled")
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr must be set when redis is enabled")
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Server.MaxCompanies <= 0 {
		return fmt.Errorf("server.max_companies must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}

// CrawlerSettings converts the crawler section into crawler.Config. The
// min_page_chars default is applied by Load, so an explicit zero here means
// any page with text counts.
func (c Config) CrawlerSettings() crawler.Config {
	minChars := c.Crawler.MinPageChars
	if minChars == 0 {
		minChars = crawler.AnyNonEmptyPage
	}
	return crawler.Config{
		MaxPages:     c.Crawler.MaxPages,
		PageCharCap:  c.Crawler.PageCharCap,
		MinPageChars: minChars,
		LinkKeywords: c.Crawler.LinkKeywords,
		FetchTimeout: c.Crawler.FetchTimeout,
		Budget:       c.Crawler.Budget,
		UserAgent:    c.Crawler.UserAgent,
	}
}

// CollySettings configures the static fetcher.
func (c Config) CollySettings() collyfetcher.Config {
	return collyfetcher.Config{
		UserAgent:     c.Crawler.UserAgent,
		RespectRobots: c.Crawler.RespectRobots,
		Timeout:       c.Crawler.FetchTimeout,
		MaxBodySize:   c.Crawler.MaxBodyBytes,
	}
}

// HeadlessSettings configures the chromedp fetcher.
func (c Config) HeadlessSettings() headless.Config {
	return headless.Config{
		MaxParallel:       c.Headless.MaxParallel,
		UserAgent:         c.Crawler.UserAgent,
		NavigationTimeout: c.Headless.NavTimeout,
		SettleDelay:       c.Headless.SettleDelay,
		ExecPath:          c.Headless.ExecPath,
	}
}

// RateLimitSettings configures the per-host limiter.
func (c Config) RateLimitSettings() ratelimit.Config {
	return ratelimit.Config{
		DefaultRPS:   c.RateLimit.DefaultRPS,
		DefaultBurst: c.RateLimit.DefaultBurst,
		Hosts:        c.RateLimit.Hosts,
	}
}

// TrainOptions configures classifier training.
func (c Config) TrainOptions() classifier.TrainOptions {
	return classifier.TrainOptions{
		MaxFeatures: c.Training.MaxFeatures,
		Folds:       c.Training.Folds,
		Fit: classifier.FitOptions{
			C:         c.Training.C,
			MaxIter:   c.Training.MaxIter,
			Tolerance: c.Training.Tolerance,
		},
	}
}

// DiscoverySettings configures the search-backed discovery service.
func (c Config) DiscoverySettings() discovery.Config {
	return discovery.Config{
		BlockedDomains: c.Discovery.BlockedDomains,
		Results:        c.Discovery.Results,
		RevenueSite:    c.Discovery.RevenueSite,
	}
}

// PostgresSettings configures the ranking store.
func (c Config) PostgresSettings() postgres.Config {
	return postgres.Config{
		DSN:             c.DB.DSN,
		Table:           c.DB.Table,
		MaxConns:        c.DB.MaxConns,
		MinConns:        c.DB.MinConns,
		MaxConnLifetime: c.DB.MaxConnLifetime,
	}
}

// RedisSettings configures the crawl cache.
func (c Config) RedisSettings() cachredis.Config {
	return cachredis.Config{
		Addr:     c.Redis.Addr,
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
		TTL:      c.Redis.TTL,
	}
}
