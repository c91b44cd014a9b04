package crawler

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/prospect-ranker/internal/metrics"
)

// ErrBudgetExceeded is returned when a crawl runs past its overall time budget.
var ErrBudgetExceeded = errors.New("crawl budget exceeded")

// Crawler runs bounded breadth-first crawls. A Crawler holds no per-crawl state,
// so one instance serves concurrent Crawl calls.
type Crawler struct {
	cfg      Config
	fetcher  Fetcher
	headless Fetcher
	detector HeadlessDetector
	limiter  Limiter
	logger   *zap.Logger
	parse    func(base *url.URL, body []byte, charCap int) (Page, error)
}

// Option customizes a Crawler.
type Option func(*Crawler)

// WithHeadless enables re-fetching JS-rendered pages through fetcher when the
// detector judges the static response to be an application shell.
func WithHeadless(fetcher Fetcher, detector HeadlessDetector) Option {
	return func(c *Crawler) {
		c.headless = fetcher
		c.detector = detector
	}
}

// WithLimiter throttles every fetch through l.
func WithLimiter(l Limiter) Option {
	return func(c *Crawler) {
		c.limiter = l
	}
}

// WithLogger sets the crawler logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Crawler) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New constructs a Crawler around the static fetcher.
func New(cfg Config, fetcher Fetcher, opts ...Option) (*Crawler, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("crawler: fetcher is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("crawler config: %w", err)
	}
	c := &Crawler{
		cfg:     cfg.withDefaults(),
		fetcher: fetcher,
		logger:  zap.NewNop(),
		parse:   ExtractPage,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Config returns the effective crawl configuration.
func (c *Crawler) Config() Config {
	return c.cfg
}

// Crawl visits at most MaxPages pages reachable from seedURL and returns the
// concatenated text of the pages that qualified. A fetch failure on any page
// abandons the crawl: the result then carries no text and Err describes why.
func (c *Crawler) Crawl(ctx context.Context, seedURL string) Result {
	seedURL = strings.TrimSpace(seedURL)
	logger := c.logger.With(zap.String("seed_url", seedURL))

	seed, err := url.Parse(seedURL)
	if err != nil || seed.Host == "" || (seed.Scheme != "http" && seed.Scheme != "https") {
		if err == nil {
			err = fmt.Errorf("unsupported url %q", seedURL)
		}
		fetchErr := &FetchError{URL: seedURL, Err: err}
		logger.Warn("crawl abandoned", zap.Error(fetchErr))
		metrics.ObserveCrawlOutcome(metrics.CrawlOutcomeFailed)
		return Result{Err: fetchErr}
	}

	if c.cfg.Budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, c.cfg.Budget, ErrBudgetExceeded)
		defer cancel()
	}

	var (
		frontier = []string{seedURL}
		visited  = make(map[string]struct{}, c.cfg.MaxPages)
		origin   = seed
		result   Result
		texts    []string
	)

	for len(frontier) > 0 && len(result.VisitedURLs) < c.cfg.MaxPages {
		next := frontier[0]
		frontier = frontier[1:]
		if _, seen := visited[next]; seen {
			continue
		}
		visited[next] = struct{}{}
		result.VisitedURLs = append(result.VisitedURLs, next)

		resp, err := c.fetch(ctx, next)
		if err != nil {
			logger.Warn("crawl abandoned", zap.String("url", next), zap.Error(err))
			metrics.ObserveCrawlOutcome(metrics.CrawlOutcomeFailed)
			return Result{VisitedURLs: result.VisitedURLs, Err: err}
		}

		if next == seedURL {
			origin = landedOn(seed, resp.URL)
		}

		page, err := c.parsePage(next, resp)
		if err != nil {
			logger.Debug("page skipped", zap.String("url", next), zap.Error(err))
			continue
		}
		if page.Truncated {
			result.Truncated = true
		}
		if c.qualifies(page.Text) {
			texts = append(texts, page.Text)
		}
		for _, link := range page.Links {
			if _, seen := visited[link]; seen {
				continue
			}
			if c.follow(origin, link) {
				frontier = append(frontier, link)
			}
		}
	}

	if hasUnvisited(frontier, visited) {
		result.Truncated = true
	}
	result.Text = strings.Join(texts, " ")

	outcome := metrics.CrawlOutcomeText
	if !result.HasText() {
		outcome = metrics.CrawlOutcomeEmpty
	}
	metrics.ObserveCrawlOutcome(outcome)
	logger.Debug("crawl finished",
		zap.Int("pages", len(result.VisitedURLs)),
		zap.Int("text_chars", len(result.Text)),
		zap.Bool("truncated", result.Truncated),
	)
	return result
}

func (c *Crawler) fetch(ctx context.Context, target string) (FetchResponse, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, target); err != nil {
			return FetchResponse{}, &FetchError{URL: target, Err: contextCause(ctx, err)}
		}
	}

	fetchCtx, cancel := context.WithTimeout(ctx, c.cfg.FetchTimeout)
	defer cancel()

	req := FetchRequest{URL: target, Headers: c.headers()}
	resp, err := c.fetcher.Fetch(fetchCtx, req)
	if err != nil {
		var fe *FetchError
		if errors.As(err, &fe) {
			metrics.ObservePage(target, fe.StatusCode, 0)
			return FetchResponse{}, fe
		}
		metrics.ObservePage(target, 0, 0)
		return FetchResponse{}, &FetchError{URL: target, Err: contextCause(ctx, err)}
	}
	metrics.ObservePage(target, resp.StatusCode, len(resp.Body))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return FetchResponse{}, &FetchError{URL: target, StatusCode: resp.StatusCode}
	}

	if c.headless != nil && c.detector != nil && c.detector.ShouldPromote(resp) {
		rendered, err := c.headless.Fetch(fetchCtx, FetchRequest{URL: target, Headers: req.Headers, UseHeadless: true})
		switch {
		case err != nil:
			c.logger.Debug("headless promotion failed", zap.String("url", target), zap.Error(err))
		case rendered.StatusCode >= 200 && rendered.StatusCode <= 299:
			return rendered, nil
		}
	}
	return resp, nil
}

func (c *Crawler) parsePage(target string, resp FetchResponse) (Page, error) {
	if ct := resp.Headers.Get("Content-Type"); ct != "" {
		mediaType, _, err := mime.ParseMediaType(ct)
		if err != nil {
			return Page{}, &ParseError{URL: target, Err: err}
		}
		if mediaType != "text/html" && mediaType != "application/xhtml+xml" {
			return Page{}, &ParseError{URL: target, Err: fmt.Errorf("unsupported content type %q", mediaType)}
		}
	}
	base, err := url.Parse(resp.URL)
	if err != nil || resp.URL == "" {
		base, err = url.Parse(target)
		if err != nil {
			return Page{}, &ParseError{URL: target, Err: err}
		}
	}
	page, err := c.parse(base, resp.Body, c.cfg.PageCharCap)
	if err != nil {
		return Page{}, &ParseError{URL: target, Err: err}
	}
	return page, nil
}

// landedOn returns the URL the seed fetch ended on after redirects. Links on
// the seed page resolve against it, so it also defines the crawl's origin.
func landedOn(seed *url.URL, final string) *url.URL {
	if final == "" {
		return seed
	}
	u, err := url.Parse(final)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return seed
	}
	return u
}

func (c *Crawler) qualifies(text string) bool {
	n := len([]rune(text))
	return n > 0 && n > c.cfg.MinPageChars
}

// follow reports whether link stays on origin and its path names a
// commercially descriptive page.
func (c *Crawler) follow(origin *url.URL, link string) bool {
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	if u.Scheme != origin.Scheme || !strings.EqualFold(u.Host, origin.Host) {
		return false
	}
	path := strings.ToLower(u.Path)
	for _, kw := range c.cfg.LinkKeywords {
		if strings.Contains(path, kw) {
			return true
		}
	}
	return false
}

func (c *Crawler) headers() http.Header {
	if c.cfg.UserAgent == "" {
		return nil
	}
	h := http.Header{}
	h.Set("User-Agent", c.cfg.UserAgent)
	return h
}

func hasUnvisited(frontier []string, visited map[string]struct{}) bool {
	for _, u := range frontier {
		if _, ok := visited[u]; !ok {
			return true
		}
	}
	return false
}

func contextCause(ctx context.Context, err error) error {
	if cause := context.Cause(ctx); cause != nil && !errors.Is(err, cause) {
		return fmt.Errorf("%w: %w", err, cause)
	}
	return err
}
