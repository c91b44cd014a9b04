package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/prospect-ranker/internal/classifier"
	"github.com/JakeFAU/prospect-ranker/internal/crawler"
	"github.com/JakeFAU/prospect-ranker/internal/fusion"
	"github.com/JakeFAU/prospect-ranker/internal/heuristics"
	"github.com/JakeFAU/prospect-ranker/internal/metrics"
	"github.com/JakeFAU/prospect-ranker/internal/textnorm"
)

// ErrNoWebsite is recorded when a company has no seed URL and discovery found none.
var ErrNoWebsite = errors.New("no website for company")

// Config controls batch behavior.
type Config struct {
	// Concurrency is the number of companies processed at once.
	Concurrency int
}

// Dependencies are the collaborators a Ranker uses. Crawler, Scorer and
// Extractor are required.
type Dependencies struct {
	Crawler    Crawler
	Scorer     Scorer
	Extractor  *heuristics.Extractor
	Policy     fusion.Policy
	Discoverer WebsiteDiscoverer
	Revenue    RevenueLookup
	Pacer      Pacer
	Logger     *zap.Logger
}

// Ranker scores and orders companies.
type Ranker struct {
	cfg  Config
	deps Dependencies
}

// NewRanker validates deps and builds a Ranker.
func NewRanker(cfg Config, deps Dependencies) (*Ranker, error) {
	if deps.Crawler == nil {
		return nil, errors.New("pipeline: crawler is required")
	}
	if deps.Scorer == nil {
		return nil, errors.New("pipeline: scorer is required")
	}
	if deps.Extractor == nil {
		return nil, errors.New("pipeline: extractor is required")
	}
	if err := deps.Policy.Validate(); err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Ranker{cfg: cfg, deps: deps}, nil
}

// Rank processes every record and returns one RankedCompany per record,
// ordered by FinalScore descending with ties in input order. Failures of a
// single company degrade its record; only cancellation of ctx fails the batch.
func (r *Ranker) Rank(ctx context.Context, records []CompanyRecord) ([]RankedCompany, error) {
	out := make([]RankedCompany, len(records))
	err := r.forEach(ctx, len(records), func(ctx context.Context, i int) {
		out[i] = r.rankOne(ctx, records[i])
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(a, b int) bool {
		return out[a].FinalScore > out[b].FinalScore
	})
	return out, nil
}

// Evaluate crawls and classifies every record without fusion, returning
// predictions in input order.
func (r *Ranker) Evaluate(ctx context.Context, records []CompanyRecord) ([]Prediction, error) {
	out := make([]Prediction, len(records))
	err := r.forEach(ctx, len(records), func(ctx context.Context, i int) {
		out[i] = r.predictOne(ctx, records[i])
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// forEach runs fn for indices [0,n) under the concurrency cap, pacing starts.
func (r *Ranker) forEach(ctx context.Context, n int, fn func(context.Context, int)) error {
	var g errgroup.Group
	g.SetLimit(r.cfg.Concurrency)
	var scheduleErr error
	for i := 0; i < n; i++ {
		if i > 0 && r.deps.Pacer != nil {
			if err := r.deps.Pacer.Wait(ctx); err != nil {
				scheduleErr = err
				break
			}
		}
		if err := ctx.Err(); err != nil {
			scheduleErr = err
			break
		}
		i := i
		g.Go(func() error {
			fn(ctx, i)
			return nil
		})
	}
	_ = g.Wait()
	if scheduleErr != nil {
		return fmt.Errorf("batch canceled: %w", scheduleErr)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("batch canceled: %w", err)
	}
	return nil
}

func (r *Ranker) rankOne(ctx context.Context, rec CompanyRecord) (ranked RankedCompany) {
	rec.Name = NormalizeCompanyName(rec.Name)
	logger := r.deps.Logger.With(zap.String("company", rec.Name))
	defer func() {
		if p := recover(); p != nil {
			logger.Error("company processing panicked", zap.Any("panic", p))
			ranked = r.degraded(rec, fmt.Errorf("panic: %v", p))
		}
		outcome := metrics.CompanyOutcomeScored
		switch {
		case ranked.Degraded:
			outcome = metrics.CompanyOutcomeDegraded
		case ranked.Classification == nil:
			outcome = metrics.CompanyOutcomeFallback
		}
		metrics.ObserveCompany(outcome, ranked.FinalScore)
	}()

	website, err := r.website(ctx, rec)
	if err != nil {
		logger.Warn("website unavailable", zap.Error(err))
		return r.degraded(rec, err)
	}

	res := r.deps.Crawler.Crawl(ctx, website)
	ranked = RankedCompany{
		Company: rec,
		Website: website,
		Crawl:   summarize(res),
	}

	var cls *classifier.Result
	if res.HasText() {
		normalized := textnorm.Normalize(res.Text)
		if strings.TrimSpace(normalized) != "" {
			scored := r.deps.Scorer.Score(normalized)
			cls = &scored
		}
	}
	ranked.Classification = cls
	ranked.Signals = r.deps.Extractor.Extract(res.Text)
	if !ranked.Signals.HasRevenue() && r.deps.Revenue != nil {
		if v, ok, err := r.deps.Revenue.LookupRevenue(ctx, rec.Name); err != nil {
			logger.Warn("revenue lookup failed", zap.Error(err))
		} else if ok {
			ranked.Signals.RevenueMillions = &v
		}
	}
	ranked.FinalScore = r.deps.Policy.Fuse(res, cls, ranked.Signals)

	logger.Info("company ranked",
		zap.String("website", website),
		zap.Int("pages", len(res.VisitedURLs)),
		zap.Bool("has_text", res.HasText()),
		zap.Bool("acquired", ranked.Signals.Acquired),
		zap.Float64("final_score", ranked.FinalScore),
	)
	return ranked
}

func (r *Ranker) predictOne(ctx context.Context, rec CompanyRecord) (pred Prediction) {
	rec.Name = NormalizeCompanyName(rec.Name)
	pred = Prediction{Company: rec}
	logger := r.deps.Logger.With(zap.String("company", rec.Name))
	defer func() {
		if p := recover(); p != nil {
			logger.Error("company evaluation panicked", zap.Any("panic", p))
			pred = Prediction{Company: rec}
		}
	}()

	website, err := r.website(ctx, rec)
	if err != nil {
		logger.Warn("website unavailable", zap.Error(err))
		return pred
	}
	pred.Website = website
	res := r.deps.Crawler.Crawl(ctx, website)
	if !res.HasText() {
		return pred
	}
	normalized := textnorm.Normalize(res.Text)
	if strings.TrimSpace(normalized) == "" {
		return pred
	}
	scored := r.deps.Scorer.Score(normalized)
	pred.Label = &scored.Label
	pred.Probability = scored.Probability
	return pred
}

func (r *Ranker) website(ctx context.Context, rec CompanyRecord) (string, error) {
	return resolveWebsite(ctx, r.deps.Discoverer, rec)
}

func resolveWebsite(ctx context.Context, discoverer WebsiteDiscoverer, rec CompanyRecord) (string, error) {
	if seed := strings.TrimSpace(rec.SeedURL); seed != "" {
		return seed, nil
	}
	if discoverer == nil {
		return "", ErrNoWebsite
	}
	site, err := discoverer.DiscoverWebsite(ctx, rec.Name)
	if err != nil {
		return "", fmt.Errorf("discover website: %w", err)
	}
	if site == "" {
		return "", ErrNoWebsite
	}
	return site, nil
}

// degraded builds the record for a company that could not be processed.
func (r *Ranker) degraded(rec CompanyRecord, err error) RankedCompany {
	return RankedCompany{
		Company:    rec,
		FinalScore: r.deps.Policy.Fuse(crawler.Result{}, nil, heuristics.Signals{}),
		Crawl:      CrawlSummary{Error: err.Error()},
		Degraded:   true,
	}
}

func summarize(res crawler.Result) CrawlSummary {
	s := CrawlSummary{
		VisitedURLs: res.VisitedURLs,
		HasText:     res.HasText(),
		Truncated:   res.Truncated,
	}
	if res.Err != nil {
		s.Error = res.Err.Error()
	}
	return s
}

// Accuracy compares predictions with the labels of their records and returns
// the share that agree, over predictions where both are present.
func Accuracy(preds []Prediction) (float64, int) {
	var total, correct int
	for _, p := range preds {
		if p.Label == nil || p.Company.Label == nil {
			continue
		}
		total++
		if *p.Label == *p.Company.Label {
			correct++
		}
	}
	if total == 0 {
		return 0, 0
	}
	return float64(correct) / float64(total), total
}
