package app

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	cacheredis "github.com/JakeFAU/prospect-ranker/internal/cache/redis"
	"github.com/JakeFAU/prospect-ranker/internal/classifier"
	"github.com/JakeFAU/prospect-ranker/internal/config"
)

var fixedTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func memoryConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Storage.Backend = config.BackendMemory
	return cfg
}

func TestNewWithMemoryBackend(t *testing.T) {
	t.Parallel()

	a, err := New(context.Background(), memoryConfig(t), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(a.Close)

	require.NotNil(t, a.BlobStore())
	require.Empty(t, a.ReadinessChecks())

	deps := a.Dependencies(nil)
	require.NotNil(t, deps.Crawler)
	require.NotNil(t, deps.Extractor)
	require.Nil(t, deps.Discoverer)
	require.Nil(t, deps.Revenue)

	preparer, err := a.Preparer()
	require.NoError(t, err)
	require.NotNil(t, preparer)

	sink, err := a.Sinks(context.Background(), "")
	require.NoError(t, err)
	require.NoError(t, sink.Write(context.Background(), "run-1", nil))
}

func TestLoadModelMissing(t *testing.T) {
	t.Parallel()

	a, err := New(context.Background(), memoryConfig(t), nil)
	require.NoError(t, err)
	t.Cleanup(a.Close)

	_, err = a.LoadModel(context.Background())
	var loadErr *classifier.ModelLoadError
	require.ErrorAs(t, err, &loadErr)
}

func TestLoadModelRoundTrip(t *testing.T) {
	t.Parallel()

	a, err := New(context.Background(), memoryConfig(t), nil)
	require.NoError(t, err)
	t.Cleanup(a.Close)

	samples := []classifier.Sample{
		{Company: "a", Text: "industrial automation robotics manufacturing", Label: 1},
		{Company: "b", Text: "robotics automation for factories", Label: 1},
		{Company: "c", Text: "fresh bakery bread cakes", Label: 0},
		{Company: "d", Text: "flower delivery bouquets", Label: 0},
	}
	model, _, err := classifier.Train(samples, a.Config().TrainOptions())
	require.NoError(t, err)
	_, err = classifier.Save(context.Background(), a.BlobStore(), a.Config().Model.Path, model, fixedTime)
	require.NoError(t, err)

	loaded, err := a.LoadModel(context.Background())
	require.NoError(t, err)
	ranker, err := a.Ranker(loaded)
	require.NoError(t, err)
	require.NotNil(t, ranker)
}

func TestRedisAddsReadinessCheck(t *testing.T) {
	t.Parallel()

	cfg := memoryConfig(t)
	cfg.Redis.Enabled = true
	a, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(a.Close)

	require.Contains(t, a.ReadinessChecks(), "redis")
	_, cached := a.Dependencies(nil).Crawler.(*cacheredis.CachedCrawler)
	require.True(t, cached)
}

func TestDiscoveryWiring(t *testing.T) {
	t.Parallel()

	cfg := memoryConfig(t)
	cfg.Discovery.Enabled = true
	cfg.Discovery.APIKey = "key"
	cfg.Discovery.EngineID = "cx"
	cfg.Discovery.RevenueLookup = false
	a, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(a.Close)

	deps := a.Dependencies(nil)
	require.NotNil(t, deps.Discoverer)
	require.Nil(t, deps.Revenue)
}

func TestNewRejectsBadLocalDir(t *testing.T) {
	t.Parallel()

	cfg := memoryConfig(t)
	cfg.Storage.Backend = config.BackendLocal
	cfg.Storage.LocalDir = "   "
	_, err := New(context.Background(), cfg, nil)
	require.Error(t, err)
	require.True(t, strings.HasPrefix(err.Error(), "init blob store"))
}
