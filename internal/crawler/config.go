package crawler

import (
	"fmt"
	"strings"
	"time"
)

// Defaults applied by Config.withDefaults.
const (
	DefaultMaxPages     = 3
	DefaultPageCharCap  = 3000
	DefaultMinPageChars = 100
	DefaultFetchTimeout = 10 * time.Second

	// AnyNonEmptyPage as MinPageChars counts every page that yields text.
	AnyNonEmptyPage = -1
)

// DefaultLinkKeywords restricts link following to commercially descriptive pages.
var DefaultLinkKeywords = []string{"service", "product", "solution"}

// Config bounds a single crawl.
type Config struct {
	// MaxPages caps the number of distinct URLs visited.
	MaxPages int
	// PageCharCap truncates each page's extracted text, in runes.
	PageCharCap int
	// MinPageChars is the length a page's text must exceed to count. Zero
	// selects DefaultMinPageChars; use AnyNonEmptyPage to drop the threshold.
	MinPageChars int
	// LinkKeywords filters which same-origin links are enqueued.
	LinkKeywords []string
	// FetchTimeout bounds each page fetch.
	FetchTimeout time.Duration
	// Budget bounds the whole crawl; zero disables it.
	Budget time.Duration
	// UserAgent is sent on every request when set.
	UserAgent string
}

// Validate checks for obviously bad configuration combinations.
func (c Config) Validate() error {
	if c.MaxPages < 0 {
		return fmt.Errorf("crawler.max_pages must be >= 0")
	}
	if c.PageCharCap < 0 {
		return fmt.Errorf("crawler.page_char_cap must be >= 0")
	}
	if c.MinPageChars < AnyNonEmptyPage {
		return fmt.Errorf("crawler.min_page_chars must be >= %d", AnyNonEmptyPage)
	}
	if c.FetchTimeout < 0 {
		return fmt.Errorf("crawler.fetch_timeout must be >= 0")
	}
	if c.Budget < 0 {
		return fmt.Errorf("crawler.budget must be >= 0")
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.MaxPages == 0 {
		c.MaxPages = DefaultMaxPages
	}
	if c.PageCharCap == 0 {
		c.PageCharCap = DefaultPageCharCap
	}
	if c.MinPageChars == 0 {
		c.MinPageChars = DefaultMinPageChars
	}
	if c.FetchTimeout == 0 {
		c.FetchTimeout = DefaultFetchTimeout
	}
	keywords := normalizeKeywords(c.LinkKeywords)
	if len(keywords) == 0 {
		keywords = normalizeKeywords(DefaultLinkKeywords)
	}
	c.LinkKeywords = keywords
	return c
}

func normalizeKeywords(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{})
	for _, kw := range in {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		if _, ok := seen[kw]; ok {
			continue
		}
		seen[kw] = struct{}{}
		out = append(out, kw)
	}
	return out
}
