// Package discovery finds company websites and revenue figures through web
// search.
package discovery

import (
	"context"
	"fmt"

	"google.golang.org/api/customsearch/v1"
	"google.golang.org/api/option"
)

// Result is one web search hit.
type Result struct {
	Title   string
	Link    string
	Snippet string
}

// Searcher runs a web search and returns at most num results in rank order.
type Searcher interface {
	Search(ctx context.Context, query string, num int64) ([]Result, error)
}

// CustomSearch queries a Google Programmable Search Engine.
type CustomSearch struct {
	svc *customsearch.Service
	cx  string
}

// NewCustomSearch creates a CustomSearch for engine cx. Extra client options
// are appended after the API key.
func NewCustomSearch(ctx context.Context, apiKey, cx string, opts ...option.ClientOption) (*CustomSearch, error) {
	if cx == "" {
		return nil, fmt.Errorf("search engine id is required")
	}
	if apiKey != "" {
		opts = append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	}
	svc, err := customsearch.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create customsearch service: %w", err)
	}
	return &CustomSearch{svc: svc, cx: cx}, nil
}

// Search implements Searcher. The API caps num at 10.
func (c *CustomSearch) Search(ctx context.Context, query string, num int64) ([]Result, error) {
	call := c.svc.Cse.List().Cx(c.cx).Q(query).Context(ctx)
	if num > 0 {
		call = call.Num(min(num, 10))
	}
	resp, err := call.Do()
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}
	out := make([]Result, 0, len(resp.Items))
	for _, item := range resp.Items {
		out = append(out, Result{Title: item.Title, Link: item.Link, Snippet: item.Snippet})
	}
	return out, nil
}
