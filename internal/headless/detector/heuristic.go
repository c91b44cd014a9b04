// Package detector decides when a company page needs a browser to render its text.
package detector

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/prospect-ranker/internal/crawler"
)

// DefaultMinVisibleChars matches the crawler's per-page qualification threshold.
const DefaultMinVisibleChars = crawler.DefaultMinPageChars

// Heuristic promotes static responses whose visible text is too thin to
// qualify and that look like a client-rendered application shell.
type Heuristic struct {
	MinVisibleChars int
}

// NewHeuristic creates a new detector.
func NewHeuristic(minVisibleChars int) *Heuristic {
	if minVisibleChars <= 0 {
		minVisibleChars = DefaultMinVisibleChars
	}
	return &Heuristic{MinVisibleChars: minVisibleChars}
}

// appShellSelectors match the mount points of common front-end frameworks.
var appShellSelectors = strings.Join([]string{
	"#__next", "#__nuxt", "#root", "#app", "[data-reactroot]", "[ng-version]",
}, ", ")

// ShouldPromote decides whether a headless fetch is required.
func (h *Heuristic) ShouldPromote(resp crawler.FetchResponse) bool {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return false
	}
	if len(bytes.TrimSpace(resp.Body)) == 0 {
		return true
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return false
	}

	scripts := doc.Find("script")
	scriptChars := 0
	scripts.Each(func(_ int, s *goquery.Selection) {
		scriptChars += len(strings.TrimSpace(s.Text()))
	})
	appShell := doc.Find(appShellSelectors).Length() > 0

	doc.Find("script, style, noscript, template").Remove()
	visible := len([]rune(strings.Join(strings.Fields(doc.Text()), " ")))
	if visible > h.MinVisibleChars {
		return false
	}
	// Thin text next to more script than prose is the mark of a page that
	// builds itself in the browser.
	return appShell || (scriptChars > 0 && scriptChars >= visible)
}
