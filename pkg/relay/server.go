// Package relay exposes the Fusion+ API to browser clients without handing
// them the API key. Every route is a 1:1 passthrough; the bearer credential
// is attached here.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"fusion-swap/pkg/fusion"
)

// Config configures a relay server
type Config struct {
	Listen   string
	Upstream string
	APIKey   string
	Timeout  time.Duration
	Logger   *slog.Logger
}

// route maps a relay endpoint onto an upstream path. Patterns with a {hash}
// wildcard append the escaped order hash to upstream.
type route struct {
	method   string
	pattern  string
	upstream string
}

var routes = []route{
	{http.MethodGet, "/api/quote", fusion.PathQuoteReceive},
	{http.MethodPost, "/api/quote/build", fusion.PathQuoteBuild},
	{http.MethodPost, "/api/order/create", fusion.PathOrderCreate},
	{http.MethodPost, "/api/order/submit", fusion.PathSubmit},
	{http.MethodGet, "/api/order/status/{hash}", fusion.PathOrderStatus},
	{http.MethodGet, "/api/order/secret-fills/{hash}", fusion.PathReadySecretFills},
	{http.MethodPost, "/api/order/reveal-secrets", fusion.PathSubmitSecret},
	{http.MethodPost, "/api/order/secret/submit", fusion.PathSubmitSecret},
}

// Server is the relay HTTP server
type Server struct {
	cfg        Config
	client     *http.Client
	httpServer *http.Server
	metrics    *metricsRegistry
	log        *slog.Logger
}

// NewServer creates a relay server
func NewServer(cfg Config) *Server {
	if cfg.Upstream == "" {
		cfg.Upstream = fusion.DefaultBaseURL
	}
	cfg.Upstream = strings.TrimRight(cfg.Upstream, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Server{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		metrics: newMetricsRegistry(),
		log:     cfg.Logger,
	}

	mux := http.NewServeMux()
	for _, rt := range routes {
		mux.Handle(rt.method+" "+rt.pattern, s.relay(rt))
	}
	mux.HandleFunc("GET /api/{$}", s.handleInfo)
	mux.Handle("GET /metrics", s.metrics.handler())
	mux.HandleFunc("GET /health", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:              cfg.Listen,
		Handler:           requestIDMiddleware(s.accessLog(mux)),
		ReadHeaderTimeout: 15 * time.Second,
	}
	return s
}

// Handler returns the root handler
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start listens until the server is shut down
func (s *Server) Start() error {
	s.log.Info("relay listening", "addr", s.httpServer.Addr, "upstream", s.cfg.Upstream)
	return s.httpServer.ListenAndServe()
}

// Shutdown stops the server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) relay(rt route) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := rt.upstream
		if strings.Contains(rt.pattern, "{hash}") {
			hash := r.PathValue("hash")
			if hash == "" {
				http.Error(w, "missing order hash", http.StatusBadRequest)
				return
			}
			path += url.PathEscape(hash)
		}

		target := s.cfg.Upstream + path
		if r.URL.RawQuery != "" {
			target += "?" + r.URL.RawQuery
		}

		var body io.Reader
		if rt.method == http.MethodPost {
			raw, err := io.ReadAll(r.Body)
			if err != nil {
				http.Error(w, "failed to read body", http.StatusBadRequest)
				return
			}
			if !json.Valid(raw) {
				http.Error(w, "invalid json payload", http.StatusBadRequest)
				return
			}
			body = bytes.NewReader(raw)
		}

		req, err := http.NewRequestWithContext(r.Context(), rt.method, target, body)
		if err != nil {
			http.Error(w, "failed to create request", http.StatusInternalServerError)
			return
		}
		req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		if id := r.Header.Get("X-Request-Id"); id != "" {
			req.Header.Set("X-Request-Id", id)
		}

		start := time.Now()
		resp, err := s.client.Do(req)
		if err != nil {
			s.metrics.incUpstreamError(rt.pattern)
			s.log.Warn("upstream request failed", "route", rt.pattern, "error", err)
			http.Error(w, "upstream unavailable", http.StatusBadGateway)
			return
		}
		defer resp.Body.Close()

		for k, values := range resp.Header {
			if hopByHop(k) {
				continue
			}
			for _, v := range values {
				w.Header().Add(k, v)
			}
		}
		w.WriteHeader(resp.StatusCode)
		if _, err := io.Copy(w, resp.Body); err != nil {
			s.log.Warn("failed to copy upstream body", "route", rt.pattern, "error", err)
		}
		s.metrics.observe(rt.pattern, resp.StatusCode, time.Since(start))
	})
}

func hopByHop(header string) bool {
	switch http.CanonicalHeaderKey(header) {
	case "Connection", "Keep-Alive", "Proxy-Authenticate", "Proxy-Authorization",
		"Te", "Trailer", "Transfer-Encoding", "Upgrade", "Content-Length":
		return true
	default:
		return false
	}
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"name": "fusion-swap relay"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := struct {
		Status      string `json:"status"`
		Upstream    string `json:"upstream"`
		APIKeyValid bool   `json:"api_key_configured"`
	}{
		Status:      "ok",
		Upstream:    s.cfg.Upstream,
		APIKeyValid: s.cfg.APIKey != "",
	}
	code := http.StatusOK
	if !resp.APIKeyValid {
		resp.Status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		s.log.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
			"request_id", r.Header.Get("X-Request-Id"),
		)
	})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.New().String()
			r.Header.Set("X-Request-Id", id)
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r)
	})
}
