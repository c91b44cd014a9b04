// Package collyfetcher implements crawler.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/prospect-ranker/internal/crawler"
)

const defaultTimeout = 15 * time.Second

// Config controls collector behavior.
type Config struct {
	UserAgent     string
	RespectRobots bool
	// Timeout bounds one request when the caller's context does not.
	Timeout     time.Duration
	MaxBodySize int
}

// Fetcher implements crawler.Fetcher using the Colly collector. The
// underlying transport is shared so connections to a company site are reused
// across the pages of one crawl.
type Fetcher struct {
	cfg  Config
	base *colly.Collector
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	base := colly.NewCollector()
	base.WithTransport(newHTTPTransport())
	base.UserAgent = cfg.UserAgent
	base.IgnoreRobotsTxt = !cfg.RespectRobots
	if cfg.MaxBodySize > 0 {
		base.MaxBodySize = cfg.MaxBodySize
	}
	base.SetRequestTimeout(cfg.Timeout)
	return &Fetcher{cfg: cfg, base: base}
}

type outcome struct {
	resp crawler.FetchResponse
	err  error
}

// Fetch executes a single HTTP GET using Colly. Responses with a non-2xx
// status are returned as *crawler.FetchError. When ctx ends first, Fetch
// returns immediately and the in-flight request is left to its timeout.
func (f *Fetcher) Fetch(ctx context.Context, request crawler.FetchRequest) (crawler.FetchResponse, error) {
	if err := ctx.Err(); err != nil {
		return crawler.FetchResponse{}, fmt.Errorf("colly fetch canceled: %w", err)
	}

	// The first report wins; OnError fires before Visit returns, so its
	// status-bearing error takes precedence over Visit's.
	done := make(chan outcome, 1)
	report := func(o outcome) {
		select {
		case done <- o:
		default:
		}
	}

	start := time.Now()
	collector := f.collectorFor(request, start, report)
	go func() {
		if err := collector.Visit(request.URL); err != nil {
			report(outcome{err: &crawler.FetchError{URL: request.URL, Err: err}})
			return
		}
		report(outcome{err: &crawler.FetchError{URL: request.URL, Err: fmt.Errorf("no response")}})
	}()

	select {
	case <-ctx.Done():
		return crawler.FetchResponse{}, fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case o := <-done:
		return o.resp, o.err
	}
}

func (f *Fetcher) collectorFor(request crawler.FetchRequest, start time.Time, report func(outcome)) *colly.Collector {
	c := f.base.Clone()
	// Clones share the visited store; the crawler owns revisit decisions.
	c.AllowURLRevisit = true

	c.OnRequest(func(r *colly.Request) {
		for key, values := range request.Headers {
			for _, v := range values {
				r.Headers.Add(key, v)
			}
		}
	})
	c.OnResponse(func(r *colly.Response) {
		resp := crawler.FetchResponse{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
		if r.Headers != nil {
			resp.Headers = r.Headers.Clone()
		}
		report(outcome{resp: resp})
	})
	c.OnError(func(r *colly.Response, err error) {
		status := 0
		if r != nil {
			status = r.StatusCode
		}
		report(outcome{err: &crawler.FetchError{URL: request.URL, StatusCode: status, Err: err}})
	})
	return c
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
	}
}
