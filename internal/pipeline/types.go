package pipeline

import (
	"context"
	"regexp"
	"strings"

	"github.com/JakeFAU/prospect-ranker/internal/classifier"
	"github.com/JakeFAU/prospect-ranker/internal/crawler"
	"github.com/JakeFAU/prospect-ranker/internal/heuristics"
)

// CompanyRecord is one input company. Label is set only for labeled data.
type CompanyRecord struct {
	Name    string `json:"company_name" validate:"required"`
	SeedURL string `json:"website_url,omitempty" validate:"omitempty,url"`
	Label   *int   `json:"label_relevance,omitempty" validate:"omitempty,oneof=0 1"`
}

// CrawlSummary is the persisted part of a crawl.
type CrawlSummary struct {
	VisitedURLs []string `json:"visited_urls"`
	HasText     bool     `json:"has_text"`
	Truncated   bool     `json:"truncated"`
	Error       string   `json:"error,omitempty"`
}

// RankedCompany is the outcome for one company.
type RankedCompany struct {
	Company        CompanyRecord      `json:"company"`
	Website        string             `json:"website,omitempty"`
	Classification *classifier.Result `json:"classification,omitempty"`
	Signals        heuristics.Signals `json:"signals"`
	FinalScore     float64            `json:"final_score"`
	Crawl          CrawlSummary       `json:"crawl"`
	// Degraded marks a company whose processing failed outright.
	Degraded bool `json:"degraded,omitempty"`
}

// Prediction is the evaluation-mode outcome for one company.
type Prediction struct {
	Company     CompanyRecord `json:"company"`
	Website     string        `json:"website,omitempty"`
	Label       *int          `json:"predicted_relevance,omitempty"`
	Probability float64       `json:"relevance_probability"`
}

// Crawler collects text for a seed URL.
type Crawler interface {
	Crawl(ctx context.Context, seedURL string) crawler.Result
}

// Scorer classifies normalized text.
type Scorer interface {
	Score(normalized string) classifier.Result
}

// WebsiteDiscoverer finds a company's website. An empty URL with a nil error
// means nothing suitable was found.
type WebsiteDiscoverer interface {
	DiscoverWebsite(ctx context.Context, company string) (string, error)
}

// RevenueLookup finds a company's revenue in millions from an outside source.
type RevenueLookup interface {
	LookupRevenue(ctx context.Context, company string) (float64, bool, error)
}

// Pacer spaces out the start of successive companies.
type Pacer interface {
	Wait(ctx context.Context) error
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// NormalizeCompanyName cleans a company name as typed into spreadsheets:
// "+" becomes a space, "&" becomes "and", whitespace runs collapse.
func NormalizeCompanyName(name string) string {
	name = strings.ReplaceAll(name, "+", " ")
	name = strings.ReplaceAll(name, "&", " and ")
	name = whitespaceRun.ReplaceAllString(name, " ")
	return strings.TrimSpace(name)
}
