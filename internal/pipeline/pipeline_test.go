package pipeline

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/prospect-ranker/internal/classifier"
	"github.com/JakeFAU/prospect-ranker/internal/crawler"
	"github.com/JakeFAU/prospect-ranker/internal/fusion"
	"github.com/JakeFAU/prospect-ranker/internal/heuristics"
)

type siteFetcher struct {
	pages map[string]string
}

func (f *siteFetcher) Fetch(_ context.Context, req crawler.FetchRequest) (crawler.FetchResponse, error) {
	body, ok := f.pages[req.URL]
	if !ok {
		return crawler.FetchResponse{}, errors.New("dial tcp: connection refused")
	}
	h := http.Header{}
	h.Set("Content-Type", "text/html")
	return crawler.FetchResponse{
		URL:        req.URL,
		StatusCode: http.StatusOK,
		Headers:    h,
		Body:       []byte("<html><body><p>" + body + "</p></body></html>"),
	}, nil
}

type keywordScorer struct{}

func (keywordScorer) Score(normalized string) classifier.Result {
	if strings.Contains(normalized, "automation") {
		return classifier.Result{Probability: 0.9, Label: 1}
	}
	return classifier.Result{Probability: 0.2, Label: 0}
}

type funcCrawler func(ctx context.Context, seed string) crawler.Result

func (f funcCrawler) Crawl(ctx context.Context, seed string) crawler.Result {
	return f(ctx, seed)
}

type stubDiscoverer map[string]string

func (s stubDiscoverer) DiscoverWebsite(_ context.Context, company string) (string, error) {
	if company == "Broken Search" {
		return "", errors.New("quota exceeded")
	}
	return s[company], nil
}

type stubRevenue map[string]float64

func (s stubRevenue) LookupRevenue(_ context.Context, company string) (float64, bool, error) {
	v, ok := s[company]
	return v, ok, nil
}

const (
	acmeCopy   = "Acme Robotics builds industrial automation software for manufacturers across North America. Annual revenue of $40 million."
	globexCopy = "Globex designs factory automation equipment for packaging lines worldwide. In 2021 Globex was acquired by Initech Holdings."
)

func newTestRanker(t *testing.T, cfg Config, deps Dependencies) *Ranker {
	t.Helper()
	if deps.Crawler == nil {
		c, err := crawler.New(crawler.Config{}, &siteFetcher{pages: map[string]string{
			"https://acme.example.com":   acmeCopy,
			"https://globex.example.com": globexCopy,
		}})
		require.NoError(t, err)
		deps.Crawler = c
	}
	if deps.Scorer == nil {
		deps.Scorer = keywordScorer{}
	}
	if deps.Extractor == nil {
		deps.Extractor = heuristics.NewExtractor(heuristics.MustNewRegionMatcher(heuristics.California))
	}
	if deps.Policy == (fusion.Policy{}) {
		deps.Policy = fusion.DefaultPolicy()
	}
	r, err := NewRanker(cfg, deps)
	require.NoError(t, err)
	return r
}

func TestRankEndToEnd(t *testing.T) {
	t.Parallel()

	r := newTestRanker(t, Config{}, Dependencies{})
	records := []CompanyRecord{
		{Name: "Down  Co", SeedURL: "https://down.example.com"},
		{Name: "Globex", SeedURL: "https://globex.example.com"},
		{Name: "Acme+Robotics", SeedURL: "https://acme.example.com"},
	}

	ranked, err := r.Rank(context.Background(), records)
	require.NoError(t, err)
	require.Len(t, ranked, 3)

	require.Equal(t, "Acme Robotics", ranked[0].Company.Name)
	require.InDelta(t, 0.9, ranked[0].FinalScore, 1e-12)
	require.NotNil(t, ranked[0].Signals.RevenueMillions)
	require.InDelta(t, 40, *ranked[0].Signals.RevenueMillions, 1e-12)

	require.Equal(t, "Down Co", ranked[1].Company.Name)
	require.Equal(t, fusion.DefaultFallbackScore, ranked[1].FinalScore)
	require.Nil(t, ranked[1].Classification)
	require.False(t, ranked[1].Crawl.HasText)
	require.NotEmpty(t, ranked[1].Crawl.Error)

	require.Equal(t, "Globex", ranked[2].Company.Name)
	require.Zero(t, ranked[2].FinalScore)
	require.True(t, ranked[2].Signals.Acquired)

	for i := 1; i < len(ranked); i++ {
		require.GreaterOrEqual(t, ranked[i-1].FinalScore, ranked[i].FinalScore)
	}
}

func TestRankTiesKeepInputOrderUnderConcurrency(t *testing.T) {
	t.Parallel()

	slow := funcCrawler(func(ctx context.Context, seed string) crawler.Result {
		// Earlier companies finish later.
		delay := map[string]time.Duration{
			"https://a.example.com": 40 * time.Millisecond,
			"https://b.example.com": 20 * time.Millisecond,
		}[seed]
		time.Sleep(delay)
		return crawler.Result{VisitedURLs: []string{seed}}
	})
	r := newTestRanker(t, Config{Concurrency: 4}, Dependencies{Crawler: slow})

	records := []CompanyRecord{
		{Name: "A", SeedURL: "https://a.example.com"},
		{Name: "B", SeedURL: "https://b.example.com"},
		{Name: "C", SeedURL: "https://c.example.com"},
	}
	ranked, err := r.Rank(context.Background(), records)
	require.NoError(t, err)
	require.Equal(t, []string{"A", "B", "C"}, names(ranked))
}

func TestRankIsolatesPanics(t *testing.T) {
	t.Parallel()

	panicky := funcCrawler(func(_ context.Context, seed string) crawler.Result {
		if strings.Contains(seed, "boom") {
			panic("unexpected nil page")
		}
		return crawler.Result{VisitedURLs: []string{seed}, Text: "automation platform for plants, revenue is $3 billion"}
	})
	r := newTestRanker(t, Config{Concurrency: 2}, Dependencies{Crawler: panicky})

	ranked, err := r.Rank(context.Background(), []CompanyRecord{
		{Name: "Boom", SeedURL: "https://boom.example.com"},
		{Name: "Fine", SeedURL: "https://fine.example.com"},
	})
	require.NoError(t, err)
	require.Len(t, ranked, 2)
	require.Equal(t, "Fine", ranked[0].Company.Name)
	require.InDelta(t, 3000, *ranked[0].Signals.RevenueMillions, 1e-9)

	require.Equal(t, "Boom", ranked[1].Company.Name)
	require.True(t, ranked[1].Degraded)
	require.Equal(t, fusion.DefaultFallbackScore, ranked[1].FinalScore)
	require.Contains(t, ranked[1].Crawl.Error, "panic")
}

func TestRankDiscoversWebsitesAndLooksUpRevenue(t *testing.T) {
	t.Parallel()

	var (
		mu    sync.Mutex
		seeds []string
	)
	c := funcCrawler(func(_ context.Context, seed string) crawler.Result {
		mu.Lock()
		seeds = append(seeds, seed)
		mu.Unlock()
		return crawler.Result{VisitedURLs: []string{seed}, Text: "industrial automation integrator"}
	})
	r := newTestRanker(t, Config{}, Dependencies{
		Crawler:    c,
		Discoverer: stubDiscoverer{"Initech": "https://initech.example.com"},
		Revenue:    stubRevenue{"Initech": 12.5},
	})

	ranked, err := r.Rank(context.Background(), []CompanyRecord{
		{Name: "Initech"},
		{Name: "Unknown Startup"},
		{Name: "Broken Search"},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"https://initech.example.com"}, seeds)

	require.Equal(t, "Initech", ranked[0].Company.Name)
	require.Equal(t, "https://initech.example.com", ranked[0].Website)
	require.InDelta(t, 12.5, *ranked[0].Signals.RevenueMillions, 1e-12)
	require.InDelta(t, 0.9, ranked[0].FinalScore, 1e-12)

	for _, rc := range ranked[1:] {
		require.True(t, rc.Degraded)
		require.Empty(t, rc.Website)
		require.Equal(t, fusion.DefaultFallbackScore, rc.FinalScore)
	}
}

func TestRankWithoutRevenueIsGated(t *testing.T) {
	t.Parallel()

	c := funcCrawler(func(_ context.Context, seed string) crawler.Result {
		return crawler.Result{VisitedURLs: []string{seed}, Text: "automation consultancy"}
	})
	gated := newTestRanker(t, Config{}, Dependencies{Crawler: c})
	ranked, err := gated.Rank(context.Background(), []CompanyRecord{{Name: "X", SeedURL: "https://x.example.com"}})
	require.NoError(t, err)
	require.Zero(t, ranked[0].FinalScore)

	ungated := newTestRanker(t, Config{}, Dependencies{Crawler: c, Policy: fusion.Policy{FallbackScore: 0.5}})
	ranked, err = ungated.Rank(context.Background(), []CompanyRecord{{Name: "X", SeedURL: "https://x.example.com"}})
	require.NoError(t, err)
	require.InDelta(t, 0.9, ranked[0].FinalScore, 1e-12)
}

type countingPacer struct {
	mu    sync.Mutex
	waits int
	err   error
}

func (p *countingPacer) Wait(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.waits++
	return p.err
}

func TestRankPacesCompanies(t *testing.T) {
	t.Parallel()

	pacer := &countingPacer{}
	r := newTestRanker(t, Config{}, Dependencies{Pacer: pacer})
	_, err := r.Rank(context.Background(), []CompanyRecord{
		{Name: "A", SeedURL: "https://a.example.com"},
		{Name: "B", SeedURL: "https://b.example.com"},
		{Name: "C", SeedURL: "https://c.example.com"},
	})
	require.NoError(t, err)
	require.Equal(t, 2, pacer.waits)
}

func TestRankCanceled(t *testing.T) {
	t.Parallel()

	r := newTestRanker(t, Config{}, Dependencies{Pacer: &countingPacer{err: context.Canceled}})
	_, err := r.Rank(context.Background(), []CompanyRecord{
		{Name: "A", SeedURL: "https://a.example.com"},
		{Name: "B", SeedURL: "https://b.example.com"},
	})
	require.ErrorIs(t, err, context.Canceled)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = newTestRanker(t, Config{}, Dependencies{}).Rank(ctx, []CompanyRecord{{Name: "A"}})
	require.ErrorIs(t, err, context.Canceled)
}

func TestEvaluate(t *testing.T) {
	t.Parallel()

	one, zero := 1, 0
	r := newTestRanker(t, Config{}, Dependencies{})
	preds, err := r.Evaluate(context.Background(), []CompanyRecord{
		{Name: "Acme", SeedURL: "https://acme.example.com", Label: &one},
		{Name: "Down", SeedURL: "https://down.example.com", Label: &zero},
		{Name: "Globex", SeedURL: "https://globex.example.com", Label: &zero},
	})
	require.NoError(t, err)
	require.Len(t, preds, 3)

	require.Equal(t, "Acme", preds[0].Company.Name)
	require.Equal(t, 1, *preds[0].Label)
	require.InDelta(t, 0.9, preds[0].Probability, 1e-12)

	require.Nil(t, preds[1].Label)
	require.Zero(t, preds[1].Probability)

	require.Equal(t, 1, *preds[2].Label)

	acc, n := Accuracy(preds)
	require.Equal(t, 2, n)
	require.InDelta(t, 0.5, acc, 1e-12)
}

func TestPrepare(t *testing.T) {
	t.Parallel()

	one, zero := 1, 0
	c, err := crawler.New(crawler.Config{}, &siteFetcher{pages: map[string]string{
		"https://acme.example.com":   acmeCopy,
		"https://globex.example.com": globexCopy,
	}})
	require.NoError(t, err)
	p, err := NewPreparer(Dependencies{Crawler: c, Pacer: &countingPacer{}})
	require.NoError(t, err)

	rows, stats, err := p.Prepare(context.Background(), []CompanyRecord{
		{Name: "Acme", SeedURL: "https://acme.example.com", Label: &one},
		{Name: "Down", SeedURL: "https://down.example.com", Label: &zero},
		{Name: "Unlabeled", SeedURL: "https://globex.example.com"},
		{Name: "No Site", Label: &zero},
		{Name: "Globex", SeedURL: "https://globex.example.com", Label: &zero},
	})
	require.NoError(t, err)
	require.Equal(t, PrepareStats{Input: 5, Kept: 2, NoLabel: 1, NoWebsite: 1, NoText: 1}, stats)
	require.Len(t, rows, 2)
	require.Equal(t, "Acme", rows[0].Company.Name)
	require.Equal(t, acmeCopy, rows[0].Text)
	require.Equal(t, "Globex", rows[1].Company.Name)

	_, err = NewPreparer(Dependencies{})
	require.Error(t, err)
}

func TestNewRankerValidation(t *testing.T) {
	t.Parallel()

	_, err := NewRanker(Config{}, Dependencies{})
	require.Error(t, err)
	_, err = NewRanker(Config{}, Dependencies{Crawler: funcCrawler(nil), Scorer: keywordScorer{}})
	require.Error(t, err)
	_, err = NewRanker(Config{}, Dependencies{
		Crawler:   funcCrawler(nil),
		Scorer:    keywordScorer{},
		Extractor: heuristics.NewExtractor(nil),
		Policy:    fusion.Policy{FallbackScore: 2},
	})
	require.Error(t, err)
}

func TestNormalizeCompanyName(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"Acme+Robotics":      "Acme Robotics",
		"Smith & Sons":       "Smith and Sons",
		"  Initech\t\tLLC  ": "Initech LLC",
		"Johnson&Johnson":    "Johnson and Johnson",
		"":                   "",
	}
	for in, want := range cases {
		require.Equal(t, want, NormalizeCompanyName(in), in)
	}
}

func names(ranked []RankedCompany) []string {
	out := make([]string, len(ranked))
	for i, r := range ranked {
		out[i] = r.Company.Name
	}
	return out
}
