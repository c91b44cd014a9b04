package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// TrainingRow is a labeled company with the text scraped from its site.
type TrainingRow struct {
	Company CompanyRecord
	Text    string
}

// PrepareStats counts what Prepare kept and why rows were dropped.
type PrepareStats struct {
	Input     int
	Kept      int
	NoLabel   int
	NoWebsite int
	NoText    int
}

// Preparer turns labeled companies into training rows.
type Preparer struct {
	crawler    Crawler
	discoverer WebsiteDiscoverer
	pacer      Pacer
	logger     *zap.Logger
}

// NewPreparer builds a Preparer from the crawl-side dependencies; the scorer
// and fusion policy are not used.
func NewPreparer(deps Dependencies) (*Preparer, error) {
	if deps.Crawler == nil {
		return nil, errors.New("pipeline: crawler is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Preparer{crawler: deps.Crawler, discoverer: deps.Discoverer, pacer: deps.Pacer, logger: logger}, nil
}

// Prepare crawls every labeled company and keeps those whose crawl produced
// text. Companies are processed one at a time, paced like a ranking batch.
func (p *Preparer) Prepare(ctx context.Context, records []CompanyRecord) ([]TrainingRow, PrepareStats, error) {
	stats := PrepareStats{Input: len(records)}
	var rows []TrainingRow
	for i, rec := range records {
		if i > 0 && p.pacer != nil {
			if err := p.pacer.Wait(ctx); err != nil {
				return nil, stats, fmt.Errorf("prepare canceled: %w", err)
			}
		}
		if err := ctx.Err(); err != nil {
			return nil, stats, fmt.Errorf("prepare canceled: %w", err)
		}
		rec.Name = NormalizeCompanyName(rec.Name)
		logger := p.logger.With(zap.String("company", rec.Name))
		if rec.Label == nil {
			stats.NoLabel++
			continue
		}
		website, err := resolveWebsite(ctx, p.discoverer, rec)
		if err != nil {
			stats.NoWebsite++
			logger.Warn("skipping company without website", zap.Error(err))
			continue
		}
		res := p.crawler.Crawl(ctx, website)
		if !res.HasText() || strings.TrimSpace(res.Text) == "" {
			stats.NoText++
			logger.Info("dropping company without scraped text", zap.String("website", website))
			continue
		}
		rec.SeedURL = website
		rows = append(rows, TrainingRow{Company: rec, Text: res.Text})
		stats.Kept++
	}
	p.logger.Info("training data prepared",
		zap.Int("input", stats.Input),
		zap.Int("kept", stats.Kept),
		zap.Int("no_label", stats.NoLabel),
		zap.Int("no_website", stats.NoWebsite),
		zap.Int("no_text", stats.NoText),
	)
	return rows, stats, nil
}
