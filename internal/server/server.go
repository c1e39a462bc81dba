// Package server is the HTTP transport: the JSON-RPC endpoint with SSE
// response streams, the agent card document, and the operational endpoints.
package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/hamidra/a2alite/internal/auth"
	"github.com/hamidra/a2alite/internal/config"
	"github.com/hamidra/a2alite/internal/logger"
	"github.com/hamidra/a2alite/internal/metrics"
	"github.com/hamidra/a2alite/internal/protocol"
	"github.com/hamidra/a2alite/internal/rpc"
)

const (
	// readHeaderTimeout prevents Slowloris attacks.
	readHeaderTimeout = 10 * time.Second

	// idleTimeout is the keep-alive wait between requests.
	idleTimeout = 120 * time.Second

	// maxBodySize is the maximum allowed request body (10 MB).
	maxBodySize int64 = 10 << 20
)

// generateRequestID creates a unique request identifier
func generateRequestID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// Server serves the A2A protocol over HTTP.
type Server struct {
	cfg        *config.Config
	dispatcher *rpc.Dispatcher
	card       *protocol.AgentCard
	ready      func(ctx context.Context) error

	httpSrv   *http.Server
	httpSrvMu sync.Mutex
}

// New creates the HTTP server around a dispatcher. ready, when non-nil, is
// consulted by the readiness endpoint.
func New(cfg *config.Config, dispatcher *rpc.Dispatcher, card *protocol.AgentCard, ready func(ctx context.Context) error) *Server {
	return &Server{
		cfg:        cfg,
		dispatcher: dispatcher,
		card:       card,
		ready:      ready,
	}
}

// Handler assembles the route table and middleware chain.
func (s *Server) Handler() http.Handler {
	// Request ID and logging wrap the RPC endpoint.
	rpcHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}
		w.Header().Set("X-Request-ID", requestID)

		ctx := context.WithValue(r.Context(), logger.ContextKeyRequestID, requestID)
		r = r.WithContext(ctx)

		logger.InfoContext(ctx, "rpc request", "method", r.Method, "remote", r.RemoteAddr)
		s.handleRPC(w, r)
	})

	// Auth first, then per-token rate limiting.
	limiter := auth.NewRateLimiter(s.cfg.RateLimit.RequestsPerSecond, s.cfg.RateLimit.Burst)
	limited := auth.RateLimitMiddleware(limiter)(rpcHandler)
	authed := auth.Middleware(s.cfg.Auth.Tokens)(limited)

	mux := http.NewServeMux()
	mux.Handle("POST /a2a", metrics.Middleware(authed))
	mux.HandleFunc("GET /.well-known/agent.json", s.handleAgentCard)

	// Operational endpoints carry no auth: health probes and Prometheus
	// scrapes run unauthenticated.
	mux.HandleFunc("/health", s.handleHealthCheck)
	mux.HandleFunc("/ready", s.handleReadinessCheck)
	mux.Handle("/metrics", metrics.Handler())

	return mux
}

// ListenAndServe starts the HTTP server on the configured address.
func (s *Server) ListenAndServe() error {
	srv := &http.Server{
		Addr:              s.cfg.Server.Address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       idleTimeout,
	}

	s.httpSrvMu.Lock()
	s.httpSrv = srv
	s.httpSrvMu.Unlock()

	logger.Slog().Info("a2alite server listening", "address", s.cfg.Server.Address)
	return srv.ListenAndServe()
}

// Serve starts the HTTP server on the given listener.
func (s *Server) Serve(ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       idleTimeout,
	}

	s.httpSrvMu.Lock()
	s.httpSrv = srv
	s.httpSrvMu.Unlock()

	return srv.Serve(ln)
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.httpSrvMu.Lock()
	srv := s.httpSrv
	s.httpSrvMu.Unlock()

	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// handleAgentCard serves the agent descriptor as JSON.
func (s *Server) handleAgentCard(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	card := s.card
	if card == nil {
		card = &protocol.AgentCard{}
	}
	_ = json.NewEncoder(w).Encode(card)
}

// handleHealthCheck is a basic liveness check
func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// handleReadinessCheck verifies the server can serve requests
func (s *Server) handleReadinessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"not ready","reason":"task store unavailable"}`))
			return
		}
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ready"}`))
}
