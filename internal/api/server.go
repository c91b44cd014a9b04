package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/prospect-ranker/internal/metrics"
	"github.com/JakeFAU/prospect-ranker/internal/output"
	"github.com/JakeFAU/prospect-ranker/internal/pipeline"
)

// Ranker ranks a batch of companies.
type Ranker interface {
	Rank(ctx context.Context, records []pipeline.CompanyRecord) ([]pipeline.RankedCompany, error)
}

// IDGenerator mints run IDs.
type IDGenerator interface {
	NewID() (string, error)
}

// ReadinessCheck reports whether a downstream dependency is usable.
type ReadinessCheck func(ctx context.Context) error

// Config tunes the HTTP surface.
type Config struct {
	// MaxCompanies caps one rank request.
	MaxCompanies int
	// RequestTimeout bounds each request; zero disables the timeout.
	RequestTimeout time.Duration
	// APIKey, when set, is required on every /v1 request.
	APIKey string
}

// Dependencies are the collaborators a Server uses. Ranker and IDs are
// required; Sink, Checks and Logger are optional.
type Dependencies struct {
	Ranker Ranker
	IDs    IDGenerator
	Sink   output.Sink
	Checks map[string]ReadinessCheck
	Logger *zap.Logger
}

// Server wires HTTP handlers to the ranking pipeline.
type Server struct {
	router   chi.Router
	cfg      Config
	deps     Dependencies
	validate *validator.Validate
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(cfg Config, deps Dependencies) (*Server, error) {
	if deps.Ranker == nil || deps.IDs == nil {
		return nil, errors.New("api: ranker and id generator are required")
	}
	if cfg.MaxCompanies <= 0 {
		cfg.MaxCompanies = 100
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		cfg:      cfg,
		deps:     deps,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if cfg.APIKey != "" {
			r.Use(apiKeyMiddleware(cfg.APIKey))
		}
		if cfg.RequestTimeout > 0 {
			r.Use(timeoutMiddleware(cfg.RequestTimeout))
		}
		r.Post("/rank", s.rank)
	})

	s.router = r
	return s, nil
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	failures := make(map[string]string)
	for name, check := range s.deps.Checks {
		if err := check(r.Context()); err != nil {
			failures[name] = err.Error()
		}
	}
	if len(failures) > 0 {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "failures": failures})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type rankRequest struct {
	Companies []companyInput `json:"companies" validate:"required,min=1,dive"`
}

type companyInput struct {
	Name    string `json:"company_name" validate:"required,max=256"`
	Website string `json:"website_url" validate:"omitempty,http_url"`
}

type rankResponse struct {
	RunID  string                   `json:"run_id"`
	Ranked []pipeline.RankedCompany `json:"ranked"`
}

func (s *Server) rank(w http.ResponseWriter, r *http.Request) {
	var req rankRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}
	if len(req.Companies) > s.cfg.MaxCompanies {
		s.writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("at most %d companies per request", s.cfg.MaxCompanies))
		return
	}

	records := make([]pipeline.CompanyRecord, len(req.Companies))
	for i, c := range req.Companies {
		records[i] = pipeline.CompanyRecord{
			Name:    pipeline.NormalizeCompanyName(c.Name),
			SeedURL: strings.TrimSpace(c.Website),
		}
	}

	runID, err := s.deps.IDs.NewID()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "could not allocate run id")
		return
	}
	logger := s.logger.With(zap.String("run_id", runID))

	ranked, err := s.deps.Ranker.Rank(r.Context(), records)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
		}
		logger.Warn("rank request failed", zap.Error(err))
		s.writeError(w, status, err.Error())
		return
	}
	if s.deps.Sink != nil {
		if err := s.deps.Sink.Write(r.Context(), runID, ranked); err != nil {
			logger.Error("persist ranking failed", zap.Error(err))
		}
	}
	logger.Info("rank request completed", zap.Int("companies", len(ranked)))
	s.writeJSON(w, http.StatusOK, rankResponse{RunID: runID, Ranked: ranked})
}

// validationMessage names the first failing field and rule.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		ve := verrs[0]
		return fmt.Sprintf("validation error: %s - %s", ve.Namespace(), ve.Tag())
	}
	return "validation error: invalid request"
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		reqID, _ := r.Context().Value(requestIDKey{}).(string)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			zap.String("request_id", reqID),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec), zap.String("path", r.URL.Path))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeJSON(zap.NewNop(), w, http.StatusForbidden, map[string]string{"error": "unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	writeJSON(s.logger, w, status, payload)
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(s.logger, w, status, map[string]string{"error": msg})
}

func writeJSON(logger *zap.Logger, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("write JSON failed", zap.Error(err))
	}
}
