package headless

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"

	"github.com/JakeFAU/prospect-ranker/internal/crawler"
)

func TestNewChromedpDefaults(t *testing.T) {
	t.Parallel()

	if _, err := NewChromedp(Config{MaxParallel: -1}); err == nil {
		t.Fatal("expected error for negative max parallel")
	}

	fetcher, err := NewChromedp(Config{MaxParallel: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(fetcher.Close)
	if fetcher.tabs == nil {
		t.Fatal("expected a tab semaphore when MaxParallel > 0")
	}
	if fetcher.cfg.NavigationTimeout != defaultNavigationTimeout || fetcher.cfg.SettleDelay != defaultSettleDelay {
		t.Fatalf("expected default timings, got %+v", fetcher.cfg)
	}

	unbounded, err := NewChromedp(Config{NavigationTimeout: time.Second, SettleDelay: time.Millisecond})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(unbounded.Close)
	if unbounded.tabs != nil {
		t.Fatal("expected no semaphore for MaxParallel 0")
	}
	if unbounded.cfg.NavigationTimeout != time.Second {
		t.Fatalf("expected override to be kept, got %v", unbounded.cfg.NavigationTimeout)
	}
}

func TestFetchWaitsForTabSlot(t *testing.T) {
	t.Parallel()

	fetcher, err := NewChromedp(Config{MaxParallel: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(fetcher.Close)
	if !fetcher.tabs.TryAcquire(1) {
		t.Fatal("expected to take the only slot")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = fetcher.Fetch(ctx, crawler.FetchRequest{URL: "https://example.com"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected slot wait to honor ctx, got %v", err)
	}
}

func TestNetworkHeaders(t *testing.T) {
	t.Parallel()

	got := networkHeaders(http.Header{"X-Multi": {"a", "b"}, "X-One": {"c"}, "X-None": {}})
	if _, ok := got["X-None"]; ok {
		t.Fatal("expected empty header to be dropped")
	}
	if got["X-One"] != "c" {
		t.Fatalf("expected single value, got %v", got["X-One"])
	}
	multi, ok := got["X-Multi"].([]string)
	if !ok || len(multi) != 2 {
		t.Fatalf("expected two values, got %#v", got["X-Multi"])
	}
}

func TestDocumentWatcherKeepsLastDocument(t *testing.T) {
	t.Parallel()

	doc := &documentWatcher{}
	doc.observe(&network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		Response: &network.Response{Status: 301, URL: "https://acme.example.com"},
	})
	doc.observe(&network.EventResponseReceived{
		Type:     network.ResourceTypeScript,
		Response: &network.Response{Status: 404, URL: "https://acme.example.com/app.js"},
	})
	doc.observe(&network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		Response: &network.Response{Status: 200, URL: "https://www.acme.example.com/"},
	})
	doc.observe("not an event")

	status, url := doc.result()
	if status != 200 || url != "https://www.acme.example.com/" {
		t.Fatalf("unexpected document: status=%d url=%s", status, url)
	}
}

func TestNoopFetcherError(t *testing.T) {
	t.Parallel()

	fetcher := NewNoop()
	if _, err := fetcher.Fetch(context.Background(), crawler.FetchRequest{}); !errors.Is(err, ErrDisabled) {
		t.Fatalf("expected ErrDisabled from noop fetcher, got %v", err)
	}
}
