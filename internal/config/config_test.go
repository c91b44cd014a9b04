package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/prospect-ranker/internal/crawler"
	"github.com/JakeFAU/prospect-ranker/internal/fusion"
	"github.com/JakeFAU/prospect-ranker/internal/policy/ratelimit"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, crawler.DefaultMaxPages, cfg.Crawler.MaxPages)
	require.Equal(t, crawler.DefaultPageCharCap, cfg.Crawler.PageCharCap)
	require.Equal(t, []string{"service", "product", "solution"}, cfg.Crawler.LinkKeywords)
	require.Equal(t, crawler.DefaultFetchTimeout, cfg.Crawler.FetchTimeout)
	require.Equal(t, fusion.DefaultPolicy(), cfg.Fusion)
	require.Equal(t, "california", cfg.Region.Name)
	require.Equal(t, BackendLocal, cfg.Storage.Backend)
	require.Equal(t, 5, cfg.Training.Folds)
	require.Equal(t, 8080, cfg.Server.Port)
	require.False(t, cfg.Discovery.Enabled)
	require.True(t, cfg.Logging.Development)
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
logging:
  development: false
crawler:
  max_pages: 5
  page_char_cap: 2000
  min_page_chars: 0
  link_keywords: [services, industries]
  fetch_timeout: 4s
  budget: 30s
  user_agent: test-agent
headless:
  enabled: true
  max_parallel: 2
  nav_timeout: 20s
ratelimit:
  default_rps: 0.5
  hosts:
    slow.example.com:
      rps: 0.1
      burst: 1
    api.partner.co.uk:
      rps: 2
      burst: 4
pipeline:
  concurrency: 8
  pace_interval: 0s
fusion:
  fallback_score: 0.25
  require_revenue: false
region:
  name: texas
  abbreviations: [tx]
  cities: [austin, dallas]
  zip_prefixes: ["75", "76", "77"]
model:
  path: models/v2.json
training:
  folds: 3
  c: 0.5
discovery:
  enabled: true
  engine_id: cx-123
storage:
  backend: gcs
  gcs_bucket: ranker-models
db:
  enabled: true
  dsn: postgres://localhost/ranker
pubsub:
  enabled: true
  project_id: proj
  topic_name: rankings
redis:
  enabled: true
  addr: cache:6379
  ttl: 2h
server:
  port: 9090
auth:
  enabled: true
  api_key: secret
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	require.NoError(t, err)

	require.False(t, cfg.Logging.Development)
	require.Equal(t, 5, cfg.Crawler.MaxPages)
	require.Equal(t, []string{"services", "industries"}, cfg.Crawler.LinkKeywords)
	require.Equal(t, 4*time.Second, cfg.Crawler.FetchTimeout)
	require.Equal(t, 30*time.Second, cfg.CrawlerSettings().Budget)
	require.Equal(t, "test-agent", cfg.CollySettings().UserAgent)
	require.Equal(t, "test-agent", cfg.HeadlessSettings().UserAgent)
	require.Equal(t, 20*time.Second, cfg.HeadlessSettings().NavigationTimeout)
	require.Equal(t, crawler.AnyNonEmptyPage, cfg.CrawlerSettings().MinPageChars)
	require.Equal(t, map[string]ratelimit.HostLimit{
		"slow.example.com":  {RPS: 0.1, Burst: 1},
		"api.partner.co.uk": {RPS: 2, Burst: 4},
	}, cfg.RateLimitSettings().Hosts)
	require.Equal(t, 8, cfg.Pipeline.Concurrency)
	require.Zero(t, cfg.Pipeline.PaceInterval)
	require.Equal(t, fusion.Policy{FallbackScore: 0.25, RequireRevenue: false}, cfg.Fusion)
	require.Equal(t, []string{"75", "76", "77"}, cfg.Region.ZIPPrefixes)
	require.Equal(t, 3, cfg.TrainOptions().Folds)
	require.InDelta(t, 0.5, cfg.TrainOptions().Fit.C, 1e-9)
	require.Equal(t, "cx-123", cfg.Discovery.EngineID)
	require.Equal(t, "zoominfo.com", cfg.DiscoverySettings().RevenueSite)
	require.Equal(t, "ranker-models", cfg.Storage.GCSBucket)
	require.Equal(t, "company_rankings", cfg.PostgresSettings().Table)
	require.Equal(t, 2*time.Hour, cfg.RedisSettings().TTL)
	require.Equal(t, 9090, cfg.Server.Port)
	require.True(t, cfg.Auth.Enabled)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("RANKER_SERVER_PORT", "7070")
	t.Setenv("RANKER_PIPELINE_CONCURRENCY", "2")
	t.Setenv("RANKER_FUSION_FALLBACK_SCORE", "0")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 7070, cfg.Server.Port)
	require.Equal(t, 2, cfg.Pipeline.Concurrency)
	require.Zero(t, cfg.Fusion.FallbackScore)
}

func TestLoadDottedHostNamesFromEnvironmentLayer(t *testing.T) {
	t.Setenv("RANKER_RATELIMIT_DEFAULT_RPS", "3")
	t.Setenv("RANKER_CRAWLER_MIN_PAGE_CHARS", "250")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	configTOML := `
[ratelimit.hosts."www.acme.test"]
rps = 0.2
burst = 2
`
	require.NoError(t, os.WriteFile(path, []byte(configTOML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	settings := cfg.RateLimitSettings()
	require.InDelta(t, 3.0, settings.DefaultRPS, 1e-9)
	require.Len(t, settings.Hosts, 1)
	require.Equal(t, ratelimit.HostLimit{RPS: 0.2, Burst: 2}, settings.Hosts["www.acme.test"])
	require.Equal(t, 250, cfg.CrawlerSettings().MinPageChars)
}

func TestLoadDefaultMinPageChars(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, crawler.DefaultMinPageChars, cfg.CrawlerSettings().MinPageChars)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	base, err := Load("")
	require.NoError(t, err)

	cases := map[string]func(*Config){
		"negative pages":       func(c *Config) { c.Crawler.MaxPages = -1 },
		"min chars too low":    func(c *Config) { c.Crawler.MinPageChars = -2 },
		"fallback out of band": func(c *Config) { c.Fusion.FallbackScore = 1.5 },
		"zero concurrency":     func(c *Config) { c.Pipeline.Concurrency = 0 },
		"headless parallel":    func(c *Config) { c.Headless.Enabled, c.Headless.MaxParallel = true, 0 },
		"no model path":        func(c *Config) { c.Model.Path = "" },
		"unknown backend":      func(c *Config) { c.Storage.Backend = "s3" },
		"gcs without bucket":   func(c *Config) { c.Storage.Backend = BackendGCS },
		"discovery no engine":  func(c *Config) { c.Discovery.Enabled = true },
		"db no dsn":            func(c *Config) { c.DB.Enabled = true },
		"pubsub no topic":      func(c *Config) { c.PubSub.Enabled, c.PubSub.ProjectID = true, "p" },
		"redis no addr":        func(c *Config) { c.Redis.Enabled, c.Redis.Addr = true, "" },
		"bad port":             func(c *Config) { c.Server.Port = 0 },
		"auth without key":     func(c *Config) { c.Auth.Enabled = true },
	}
	for name, mutate := range cases {
		mutate := mutate
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}
