package discovery

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/prospect-ranker/internal/heuristics"
)

// DefaultBlockedDomains are directory and social sites that rank well for a
// company name but are never its own website.
var DefaultBlockedDomains = []string{
	"facebook.com", "linkedin.com", "zoominfo.com",
	"yelp.com", "crunchbase.com", "opencorporates.com",
	"bloomberg.com",
}

// DefaultResults is how many hits are requested per query.
const DefaultResults = 10

// Pacer spaces out outgoing searches.
type Pacer interface {
	Wait(ctx context.Context) error
}

// Config tunes a Service.
type Config struct {
	BlockedDomains []string
	Results        int64
	// RevenueSite restricts revenue lookups with a site: operator.
	RevenueSite string
}

// Service discovers websites and looks up revenue with a Searcher.
type Service struct {
	searcher Searcher
	cfg      Config
	pacer    Pacer
	logger   *zap.Logger
}

// Option customizes a Service.
type Option func(*Service)

// WithPacer waits on p before every search.
func WithPacer(p Pacer) Option {
	return func(s *Service) {
		s.pacer = p
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService builds a Service. Empty config fields take the defaults.
func NewService(searcher Searcher, cfg Config, opts ...Option) (*Service, error) {
	if searcher == nil {
		return nil, fmt.Errorf("searcher is required")
	}
	if cfg.BlockedDomains == nil {
		cfg.BlockedDomains = DefaultBlockedDomains
	}
	if cfg.Results <= 0 {
		cfg.Results = DefaultResults
	}
	if cfg.RevenueSite == "" {
		cfg.RevenueSite = "zoominfo.com"
	}
	s := &Service{searcher: searcher, cfg: cfg, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// DiscoverWebsite returns the first search hit for "<company> official
// website" that is not on a blocked domain. It returns "" when every hit is
// blocked or there are none.
func (s *Service) DiscoverWebsite(ctx context.Context, company string) (string, error) {
	results, err := s.search(ctx, company+" official website")
	if err != nil {
		return "", err
	}
	for _, r := range results {
		if !isWebURL(r.Link) || s.blocked(r.Link) {
			continue
		}
		s.logger.Debug("website discovered", zap.String("company", company), zap.String("url", r.Link))
		return r.Link, nil
	}
	s.logger.Info("no website found", zap.String("company", company), zap.Int("results", len(results)))
	return "", nil
}

// LookupRevenue searches the revenue site for the company and extracts a
// figure from the top hit only.
func (s *Service) LookupRevenue(ctx context.Context, company string) (float64, bool, error) {
	results, err := s.search(ctx, fmt.Sprintf("%s revenue site:%s", company, s.cfg.RevenueSite))
	if err != nil {
		return 0, false, err
	}
	if len(results) == 0 {
		return 0, false, nil
	}
	top := results[0]
	v, ok := heuristics.ExtractRevenue(top.Title + " " + top.Snippet)
	return v, ok, nil
}

func (s *Service) search(ctx context.Context, query string) ([]Result, error) {
	if s.pacer != nil {
		if err := s.pacer.Wait(ctx); err != nil {
			return nil, fmt.Errorf("wait for search slot: %w", err)
		}
	}
	return s.searcher.Search(ctx, query, s.cfg.Results)
}

func (s *Service) blocked(link string) bool {
	u, err := url.Parse(link)
	if err != nil {
		return true
	}
	host := strings.ToLower(u.Hostname())
	for _, d := range s.cfg.BlockedDomains {
		d = strings.ToLower(d)
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

func isWebURL(link string) bool {
	u, err := url.Parse(link)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
