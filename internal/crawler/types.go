package crawler

import (
	"net/http"
	"time"
)

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL         string
	Headers     http.Header
	UseHeadless bool
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL          string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
	UsedHeadless bool
}

// Page is the content extracted from one fetched HTML document.
type Page struct {
	Text      string
	Links     []string
	Truncated bool
}

// Result is the outcome of one crawl invocation. Text is empty when no page
// produced usable content, including when the crawl was abandoned.
type Result struct {
	VisitedURLs []string `json:"visited_urls"`
	Text        string   `json:"text,omitempty"`
	Truncated   bool     `json:"truncated"`
	Err         error    `json:"-"`
}

// HasText reports whether the crawl yielded usable text.
func (r Result) HasText() bool {
	return r.Text != ""
}
