// Package app initializes and holds long-lived application services, acting as
// a dependency injection container for the CLI commands and the HTTP server.
package app

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	gcstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/prospect-ranker/internal/api"
	cacheredis "github.com/JakeFAU/prospect-ranker/internal/cache/redis"
	"github.com/JakeFAU/prospect-ranker/internal/classifier"
	"github.com/JakeFAU/prospect-ranker/internal/config"
	"github.com/JakeFAU/prospect-ranker/internal/crawler"
	"github.com/JakeFAU/prospect-ranker/internal/discovery"
	collyfetcher "github.com/JakeFAU/prospect-ranker/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/prospect-ranker/internal/fetcher/headless"
	"github.com/JakeFAU/prospect-ranker/internal/headless/detector"
	"github.com/JakeFAU/prospect-ranker/internal/heuristics"
	"github.com/JakeFAU/prospect-ranker/internal/output"
	"github.com/JakeFAU/prospect-ranker/internal/pipeline"
	"github.com/JakeFAU/prospect-ranker/internal/policy/ratelimit"
	pubsubpublisher "github.com/JakeFAU/prospect-ranker/internal/publisher/pubsub"
	"github.com/JakeFAU/prospect-ranker/internal/storage"
	gcsstore "github.com/JakeFAU/prospect-ranker/internal/storage/gcs"
	localstore "github.com/JakeFAU/prospect-ranker/internal/storage/local"
	memorystore "github.com/JakeFAU/prospect-ranker/internal/storage/memory"
	"github.com/JakeFAU/prospect-ranker/internal/storage/postgres"
	"github.com/JakeFAU/prospect-ranker/internal/textnorm"
)

// App holds all the shared, long-lived services for the application. It is
// built once at startup and closed when the command finishes.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	blobs     storage.BlobStore
	crawler   pipeline.Crawler
	extractor *heuristics.Extractor
	search    *discovery.Service
	pacer     *ratelimit.Pacer
	redis     cacheredis.Client
	rankings  *postgres.RankingStore
	closers   []func()
}

// New creates and initializes the services every command shares: the blob
// store, the crawler (cached when Redis is enabled) and website discovery.
// Sinks are opened lazily by Sinks. New fails fast on bad configuration.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger}
	if err := a.init(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	blobs, err := a.newBlobStore(ctx)
	if err != nil {
		return fmt.Errorf("init blob store: %w", err)
	}
	a.blobs = blobs

	region, err := heuristics.NewRegionMatcher(a.cfg.Region)
	if err != nil {
		return fmt.Errorf("init region matcher: %w", err)
	}
	a.extractor = heuristics.NewExtractor(region)

	c, err := a.newCrawler()
	if err != nil {
		return fmt.Errorf("init crawler: %w", err)
	}
	a.crawler = c

	if a.cfg.Redis.Enabled {
		a.redis = cacheredis.NewClient(a.cfg.RedisSettings())
		a.closers = append(a.closers, func() {
			if err := a.redis.Close(); err != nil {
				a.logger.Warn("close redis", zap.Error(err))
			}
		})
		cached, err := cacheredis.NewCachedCrawler(c, a.redis, a.cfg.Redis.TTL, a.logger.Named("cache"))
		if err != nil {
			return fmt.Errorf("init crawl cache: %w", err)
		}
		a.crawler = cached
		a.logger.Info("crawl cache enabled", zap.String("addr", a.cfg.Redis.Addr))
	}

	if a.cfg.Discovery.Enabled {
		searcher, err := discovery.NewCustomSearch(ctx, a.cfg.Discovery.APIKey, a.cfg.Discovery.EngineID)
		if err != nil {
			return fmt.Errorf("init search: %w", err)
		}
		var opts []discovery.Option
		if a.cfg.Discovery.QPS > 0 {
			interval := time.Duration(float64(time.Second) / a.cfg.Discovery.QPS)
			opts = append(opts, discovery.WithPacer(ratelimit.NewPacer(interval)))
		}
		opts = append(opts, discovery.WithLogger(a.logger.Named("discovery")))
		a.search, err = discovery.NewService(searcher, a.cfg.DiscoverySettings(), opts...)
		if err != nil {
			return fmt.Errorf("init discovery: %w", err)
		}
	}

	a.pacer = ratelimit.NewPacer(a.cfg.Pipeline.PaceInterval)
	return nil
}

func (a *App) newBlobStore(ctx context.Context) (storage.BlobStore, error) {
	switch a.cfg.Storage.Backend {
	case config.BackendGCS:
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create gcs client: %w", err)
		}
		a.closers = append(a.closers, func() {
			if err := client.Close(); err != nil {
				a.logger.Warn("close gcs client", zap.Error(err))
			}
		})
		a.logger.Info("using gcs artifact store", zap.String("bucket", a.cfg.Storage.GCSBucket))
		return gcsstore.New(client, gcsstore.Config{Bucket: a.cfg.Storage.GCSBucket, Prefix: a.cfg.Storage.Prefix})
	case config.BackendMemory:
		a.logger.Info("using in-memory artifact store; trained models are discarded on exit")
		return memorystore.NewBlobStore(), nil
	default:
		return localstore.New(localstore.Config{BaseDir: a.cfg.Storage.LocalDir})
	}
}

func (a *App) newCrawler() (*crawler.Crawler, error) {
	static := collyfetcher.New(a.cfg.CollySettings())
	opts := []crawler.Option{
		crawler.WithLimiter(ratelimit.New(a.cfg.RateLimitSettings())),
		crawler.WithLogger(a.logger.Named("crawler")),
	}
	if a.cfg.Headless.Enabled {
		chrome, err := headlessfetcher.NewChromedp(a.cfg.HeadlessSettings())
		if err != nil {
			a.logger.Warn("headless fetcher init failed; continuing without it", zap.Error(err))
		} else {
			a.closers = append(a.closers, chrome.Close)
			opts = append(opts, crawler.WithHeadless(chrome, detector.NewHeuristic(a.cfg.Headless.MinVisibleTxt)))
		}
	}
	return crawler.New(a.cfg.CrawlerSettings(), static, opts...)
}

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Config returns the configuration the App was built from.
func (a *App) Config() config.Config {
	return a.cfg
}

// BlobStore returns the model artifact store.
func (a *App) BlobStore() storage.BlobStore {
	return a.blobs
}

// LoadModel reads the configured model artifact. A failure here must stop
// the command before any scoring happens.
func (a *App) LoadModel(ctx context.Context) (*classifier.Model, error) {
	m, err := classifier.Load(ctx, a.blobs, a.cfg.Model.Path, textnorm.Version)
	if err != nil {
		return nil, err
	}
	a.logger.Info("model loaded",
		zap.String("path", a.cfg.Model.Path),
		zap.Int("features", m.Vectorizer().Dim()))
	return m, nil
}

// Dependencies assembles the pipeline collaborators around scorer. A nil
// scorer is fine for Prepare.
func (a *App) Dependencies(scorer pipeline.Scorer) pipeline.Dependencies {
	deps := pipeline.Dependencies{
		Crawler:   a.crawler,
		Scorer:    scorer,
		Extractor: a.extractor,
		Policy:    a.cfg.Fusion,
		Pacer:     a.pacer,
		Logger:    a.logger.Named("pipeline"),
	}
	if a.search != nil {
		deps.Discoverer = a.search
		if a.cfg.Discovery.RevenueLookup {
			deps.Revenue = a.search
		}
	}
	return deps
}

// Ranker builds a Ranker scoring with model.
func (a *App) Ranker(model *classifier.Model) (*pipeline.Ranker, error) {
	return pipeline.NewRanker(pipeline.Config{Concurrency: a.cfg.Pipeline.Concurrency}, a.Dependencies(model))
}

// Preparer builds a Preparer for training-data collection.
func (a *App) Preparer() (*pipeline.Preparer, error) {
	return pipeline.NewPreparer(a.Dependencies(nil))
}

// Sinks opens every enabled ranking destination. csvPath adds a CSV file
// sink when non-empty.
func (a *App) Sinks(ctx context.Context, csvPath string) (output.Sink, error) {
	var sinks []output.Sink
	if csvPath != "" {
		sinks = append(sinks, output.CSVSink{Path: csvPath})
	}
	if a.cfg.DB.Enabled {
		store, err := a.rankingStore(ctx)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, store)
	}
	if a.cfg.PubSub.Enabled {
		client, err := pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("create pubsub client: %w", err)
		}
		pub := pubsubpublisher.New(client.Topic(a.cfg.PubSub.TopicName))
		a.closers = append(a.closers, func() {
			_ = pub.Close()
			if err := client.Close(); err != nil {
				a.logger.Warn("close pubsub client", zap.Error(err))
			}
		})
		sinks = append(sinks, output.PublisherSink{Publisher: pub})
	}
	return output.NewMultiSink(a.logger.Named("sink"), sinks...), nil
}

func (a *App) rankingStore(ctx context.Context) (*postgres.RankingStore, error) {
	if a.rankings != nil {
		return a.rankings, nil
	}
	store, err := postgres.NewRankingStore(ctx, a.cfg.PostgresSettings())
	if err != nil {
		return nil, fmt.Errorf("init ranking store: %w", err)
	}
	a.closers = append(a.closers, store.Close)
	if a.cfg.DB.EnsureSchema {
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, err
		}
	}
	a.rankings = store
	return store, nil
}

// ReadinessChecks returns a probe per networked dependency opened so far.
func (a *App) ReadinessChecks() map[string]api.ReadinessCheck {
	checks := make(map[string]api.ReadinessCheck)
	if a.rankings != nil {
		checks["postgres"] = a.rankings.Ping
	}
	if a.redis != nil {
		checks["redis"] = a.redis.Ping
	}
	return checks
}

// Close gracefully shuts down all services in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
