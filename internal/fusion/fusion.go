// Package fusion combines crawl, classifier and heuristic outcomes into the
// single score companies are ranked by.
package fusion

import (
	"fmt"
	"math"

	"github.com/JakeFAU/prospect-ranker/internal/classifier"
	"github.com/JakeFAU/prospect-ranker/internal/crawler"
	"github.com/JakeFAU/prospect-ranker/internal/heuristics"
)

// DefaultFallbackScore is given to companies whose site yielded no text:
// unknown, but not known to be irrelevant.
const DefaultFallbackScore = 0.5

// Policy holds the fusion rules.
type Policy struct {
	// FallbackScore applies when there is no crawl text to judge.
	FallbackScore float64 `mapstructure:"fallback_score"`
	// RequireRevenue zeroes relevance unless a revenue figure was found.
	RequireRevenue bool `mapstructure:"require_revenue"`
}

// DefaultPolicy returns the standard ranking policy.
func DefaultPolicy() Policy {
	return Policy{FallbackScore: DefaultFallbackScore, RequireRevenue: true}
}

// Validate checks the policy bounds.
func (p Policy) Validate() error {
	if p.FallbackScore < 0 || p.FallbackScore > 1 {
		return fmt.Errorf("fusion.fallback_score must be within [0,1], got %v", p.FallbackScore)
	}
	return nil
}

// Fuse scores one company. The rules apply in order: no text gives the
// fallback score, an acquisition gives zero, otherwise the classifier
// probability, gated on a revenue figure when RequireRevenue is set.
func (p Policy) Fuse(crawl crawler.Result, cls *classifier.Result, sig heuristics.Signals) float64 {
	if !crawl.HasText() || cls == nil {
		return clamp(p.FallbackScore)
	}
	if sig.Acquired {
		return 0
	}
	if p.RequireRevenue && !sig.HasRevenue() {
		return 0
	}
	return clamp(cls.Probability)
}

func clamp(v float64) float64 {
	switch {
	case v < 0 || math.IsNaN(v):
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
