// Package redis caches crawl results in Redis so repeated runs over the same
// companies skip the network.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/JakeFAU/prospect-ranker/internal/crawler"
	"github.com/JakeFAU/prospect-ranker/internal/hash/sha256"
)

// DefaultTTL is how long a cached crawl stays valid.
const DefaultTTL = 24 * time.Hour

const keyPrefix = "ranker:crawl:"

// Config captures the Redis connection and cache lifetime.
type Config struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// Client is the subset of Redis the cache needs.
type Client interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Ping(ctx context.Context) error
	Close() error
}

type redisClient struct {
	client *redis.Client
}

// NewClient connects to the Redis server described by cfg.
func NewClient(cfg Config) Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &redisClient{client: rdb}
}

func (r *redisClient) Get(ctx context.Context, key string) (string, error) {
	return r.client.Get(ctx, key).Result()
}

func (r *redisClient) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *redisClient) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *redisClient) Close() error {
	return r.client.Close()
}

// Crawler is the crawl being cached.
type Crawler interface {
	Crawl(ctx context.Context, seedURL string) crawler.Result
}

// CachedCrawler serves crawl results from Redis and falls through to the
// wrapped crawler on a miss. Only crawls that completed without error are
// stored. Redis failures are logged and never fail a crawl.
type CachedCrawler struct {
	next   Crawler
	client Client
	ttl    time.Duration
	hasher *sha256.Hasher
	logger *zap.Logger
}

// NewCachedCrawler wraps next. A zero ttl uses DefaultTTL.
func NewCachedCrawler(next Crawler, client Client, ttl time.Duration, logger *zap.Logger) (*CachedCrawler, error) {
	if next == nil || client == nil {
		return nil, errors.New("cache: crawler and client are required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedCrawler{next: next, client: client, ttl: ttl, hasher: sha256.New(), logger: logger}, nil
}

// Crawl implements pipeline.Crawler.
func (c *CachedCrawler) Crawl(ctx context.Context, seedURL string) crawler.Result {
	key := c.hasher.Key(keyPrefix, seedURL)
	if res, ok := c.lookup(ctx, key, seedURL); ok {
		return res
	}

	res := c.next.Crawl(ctx, seedURL)
	if res.Err != nil {
		return res
	}
	if err := c.store(ctx, key, res); err != nil {
		c.logger.Warn("crawl cache write failed", zap.String("seed_url", seedURL), zap.Error(err))
	}
	return res
}

func (c *CachedCrawler) lookup(ctx context.Context, key, seedURL string) (crawler.Result, bool) {
	raw, err := c.client.Get(ctx, key)
	if errors.Is(err, redis.Nil) {
		return crawler.Result{}, false
	}
	if err != nil {
		c.logger.Warn("crawl cache read failed", zap.String("seed_url", seedURL), zap.Error(err))
		return crawler.Result{}, false
	}
	var res crawler.Result
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		c.logger.Warn("crawl cache entry corrupt", zap.String("seed_url", seedURL), zap.Error(err))
		return crawler.Result{}, false
	}
	c.logger.Debug("crawl cache hit", zap.String("seed_url", seedURL))
	return res, true
}

func (c *CachedCrawler) store(ctx context.Context, key string, res crawler.Result) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal crawl result: %w", err)
	}
	if err := c.client.Set(ctx, key, string(data), c.ttl); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
