package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/prospect-ranker/internal/pipeline"
)

func TestServer_Rank_Succeeds(t *testing.T) {
	t.Parallel()

	ranker := &fakeRanker{}
	sink := &fakeSink{}
	server := newTestServer(t, Config{}, Dependencies{Ranker: ranker, IDs: &fakeIDGen{ids: []string{"run-1"}}, Sink: sink})

	body := `{"companies":[{"company_name":"Acme & Sons","website_url":"https://acme.example.com"},{"company_name":"Globex"}]}`
	rec := serve(server, http.MethodPost, "/v1/rank", body, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp rankResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "run-1", resp.RunID)
	require.Len(t, resp.Ranked, 2)
	require.Equal(t, "Acme and Sons", ranker.got[0].Name)
	require.Equal(t, "https://acme.example.com", ranker.got[0].SeedURL)
	require.Empty(t, ranker.got[1].SeedURL)
	require.Equal(t, "run-1", sink.runID)
	require.Len(t, sink.ranked, 2)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestServer_Rank_InvalidJSON(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, Config{}, Dependencies{})
	rec := serve(server, http.MethodPost, "/v1/rank", "{invalid", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(server, http.MethodPost, "/v1/rank", `{"companies":[{"company_name":"A"}],"extra":1}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_Rank_Validation(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, Config{}, Dependencies{})
	cases := map[string]string{
		"no companies": `{"companies":[]}`,
		"missing name": `{"companies":[{"website_url":"https://a.example.com"}]}`,
		"bad website":  `{"companies":[{"company_name":"A","website_url":"not a url"}]}`,
		"ftp website":  `{"companies":[{"company_name":"A","website_url":"ftp://a.example.com"}]}`,
		"absent field": `{}`,
	}
	for name, body := range cases {
		body := body
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			rec := serve(server, http.MethodPost, "/v1/rank", body, nil)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			require.Contains(t, rec.Body.String(), "validation error")
		})
	}
}

func TestServer_Rank_TooManyCompanies(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, Config{MaxCompanies: 1}, Dependencies{})
	rec := serve(server, http.MethodPost, "/v1/rank",
		`{"companies":[{"company_name":"A"},{"company_name":"B"}]}`, nil)
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestServer_Rank_RankerError(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, Config{}, Dependencies{Ranker: &fakeRanker{err: fmt.Errorf("batch canceled: %w", context.DeadlineExceeded)}})
	rec := serve(server, http.MethodPost, "/v1/rank", `{"companies":[{"company_name":"A"}]}`, nil)
	require.Equal(t, http.StatusGatewayTimeout, rec.Code)
}

func TestServer_Rank_SinkFailureStillResponds(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, Config{}, Dependencies{Sink: &fakeSink{err: errors.New("db down")}})
	rec := serve(server, http.MethodPost, "/v1/rank", `{"companies":[{"company_name":"A"}]}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_APIKey(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, Config{APIKey: "secret"}, Dependencies{})
	body := `{"companies":[{"company_name":"A"}]}`

	rec := serve(server, http.MethodPost, "/v1/rank", body, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = serve(server, http.MethodPost, "/v1/rank", body, map[string]string{"X-API-Key": "secret"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(server, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_Readyz(t *testing.T) {
	t.Parallel()

	healthy := newTestServer(t, Config{}, Dependencies{Checks: map[string]ReadinessCheck{
		"postgres": func(context.Context) error { return nil },
	}})
	require.Equal(t, http.StatusOK, serve(healthy, http.MethodGet, "/readyz", "", nil).Code)

	broken := newTestServer(t, Config{}, Dependencies{Checks: map[string]ReadinessCheck{
		"redis": func(context.Context) error { return errors.New("connection refused") },
	}})
	rec := serve(broken, http.MethodGet, "/readyz", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), "connection refused")
}

func TestServer_Metrics(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, Config{}, Dependencies{})
	serve(server, http.MethodGet, "/healthz", "", nil)
	rec := serve(server, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestServer_RecoversPanics(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, Config{}, Dependencies{Ranker: panicRanker{}})
	rec := serve(server, http.MethodPost, "/v1/rank", `{"companies":[{"company_name":"A"}]}`, nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestNewServerRequiresDependencies(t *testing.T) {
	t.Parallel()

	_, err := NewServer(Config{}, Dependencies{})
	require.Error(t, err)
}

func TestResponseWriterHijack(t *testing.T) {
	t.Parallel()

	rec := &hijackableRecorder{ResponseRecorder: httptest.NewRecorder()}
	rw := &responseWriter{ResponseWriter: rec, status: http.StatusOK}
	conn, _, err := rw.Hijack()
	require.NoError(t, err)
	require.NoError(t, conn.Close())
	require.NoError(t, rec.CloseClient())

	plain := &responseWriter{ResponseWriter: httptest.NewRecorder()}
	_, _, err = plain.Hijack()
	require.Error(t, err)
}

func serve(s *Server, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func newTestServer(t *testing.T, cfg Config, deps Dependencies) *Server {
	t.Helper()
	if deps.Ranker == nil {
		deps.Ranker = &fakeRanker{}
	}
	if deps.IDs == nil {
		deps.IDs = &fakeIDGen{}
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 5 * time.Second
	}
	s, err := NewServer(cfg, deps)
	require.NoError(t, err)
	return s
}

type fakeRanker struct {
	mu  sync.Mutex
	got []pipeline.CompanyRecord
	err error
}

func (f *fakeRanker) Rank(_ context.Context, records []pipeline.CompanyRecord) ([]pipeline.RankedCompany, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = records
	if f.err != nil {
		return nil, f.err
	}
	out := make([]pipeline.RankedCompany, len(records))
	for i, rec := range records {
		out[i] = pipeline.RankedCompany{Company: rec, FinalScore: 0.5}
	}
	return out, nil
}

type panicRanker struct{}

func (panicRanker) Rank(context.Context, []pipeline.CompanyRecord) ([]pipeline.RankedCompany, error) {
	panic("boom")
}

type fakeSink struct {
	mu     sync.Mutex
	runID  string
	ranked []pipeline.RankedCompany
	err    error
}

func (f *fakeSink) Write(_ context.Context, runID string, ranked []pipeline.RankedCompany) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runID, f.ranked = runID, ranked
	return f.err
}

type fakeIDGen struct {
	mu  sync.Mutex
	ids []string
}

func (f *fakeIDGen) NewID() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.ids) == 0 {
		return "id-default", nil
	}
	id := f.ids[0]
	f.ids = f.ids[1:]
	return id, nil
}

type hijackableRecorder struct {
	*httptest.ResponseRecorder
	client net.Conn
}

func (h *hijackableRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	server, client := net.Pipe()
	h.client = client
	return server, bufio.NewReadWriter(bufio.NewReader(client), bufio.NewWriter(client)), nil
}

func (h *hijackableRecorder) CloseClient() error {
	if h.client != nil {
		if err := h.client.Close(); err != nil {
			return fmt.Errorf("close hijacker client: %w", err)
		}
	}
	return nil
}
