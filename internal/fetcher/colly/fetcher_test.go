package collyfetcher

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/prospect-ranker/internal/crawler"
)

func TestNewAppliesConfig(t *testing.T) {
	t.Parallel()

	f := New(Config{UserAgent: "coverage-agent", RespectRobots: false, MaxBodySize: 1024})
	require.Equal(t, defaultTimeout, f.cfg.Timeout)

	c := f.collectorFor(crawler.FetchRequest{URL: "https://example.com"}, time.Now(), func(outcome) {})
	require.Equal(t, "coverage-agent", c.UserAgent)
	require.True(t, c.IgnoreRobotsTxt)
	require.True(t, c.AllowURLRevisit)
	require.Equal(t, 1024, c.MaxBodySize)
}

func TestFetchAgainstServer(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			w.Header().Set("Content-Type", "text/html")
			_, _ = fmt.Fprintf(w, "<html><body><p>agent=%s trace=%s</p></body></html>",
				r.Header.Get("User-Agent"), r.Header.Get("X-Trace"))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	f := New(Config{UserAgent: "prospect-ranker-test", Timeout: 2 * time.Second})
	ctx := context.Background()
	req := crawler.FetchRequest{URL: srv.URL + "/", Headers: http.Header{"X-Trace": {"yes"}}}

	// The same URL twice must hit the network twice.
	for i := 0; i < 2; i++ {
		resp, err := f.Fetch(ctx, req)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Contains(t, string(resp.Body), "agent=prospect-ranker-test trace=yes")
		require.Equal(t, "text/html", resp.Headers.Get("Content-Type"))
		require.False(t, resp.UsedHeadless)
	}

	_, err := f.Fetch(ctx, crawler.FetchRequest{URL: srv.URL + "/missing"})
	var fe *crawler.FetchError
	require.ErrorAs(t, err, &fe)
	require.Equal(t, http.StatusNotFound, fe.StatusCode)
}

func TestFetchUnreachableHost(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	_, err := New(Config{Timeout: time.Second}).Fetch(context.Background(), crawler.FetchRequest{URL: addr})
	var fe *crawler.FetchError
	require.ErrorAs(t, err, &fe)
	require.Zero(t, fe.StatusCode)
}

func TestFetchHonorsContext(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(block)
		srv.Close()
	})

	f := New(Config{Timeout: 5 * time.Second})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := f.Fetch(ctx, crawler.FetchRequest{URL: srv.URL})
	require.ErrorIs(t, err, context.DeadlineExceeded)

	canceled, stop := context.WithCancel(context.Background())
	stop()
	_, err = f.Fetch(canceled, crawler.FetchRequest{URL: srv.URL})
	require.ErrorIs(t, err, context.Canceled)
}
