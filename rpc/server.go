package rpc

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"flightsurety/core"
	"flightsurety/observability/metrics"
	"flightsurety/storage/eventlog"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20

	readHeaderTimeout = 5 * time.Second
	idleTimeout       = 60 * time.Second
)

// EventLog serves archived events to GET /v1/events.
type EventLog interface {
	List(ctx context.Context, filter eventlog.Filter) ([]eventlog.Entry, error)
}

// ServerConfig tunes the query surface.
type ServerConfig struct {
	// RateLimit is the per-client request rate in requests per second. Zero
	// disables throttling.
	RateLimit float64
	Burst     int
	// Faucet enables fs_faucet, which credits test balances.
	Faucet bool
	// FaucetSecret, when set, requires fs_faucet callers to present an
	// HS256 bearer token carrying the faucet scope.
	FaucetSecret string
	TokenIssuer  string
}

// Server exposes the node's queries over JSON-RPC, archived events over REST
// and live events over websocket.
type Server struct {
	node    *core.Node
	events  EventLog
	cfg     ServerConfig
	logger  *slog.Logger
	limiter *RateLimiter
	auth    *Authenticator

	serverMu   sync.Mutex
	httpServer *http.Server
}

func NewServer(node *core.Node, events EventLog, cfg ServerConfig, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Server{
		node:   node,
		events: events,
		cfg:    cfg,
		logger: logger,
		auth:   NewAuthenticator(cfg.FaucetSecret, cfg.TokenIssuer),
	}
	if cfg.RateLimit > 0 {
		s.limiter = NewRateLimiter(cfg.RateLimit, cfg.Burst, logger)
	}
	return s
}

// Handler builds the routed, instrumented handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.observe)
	if s.limiter != nil {
		r.Use(s.limiter.Middleware)
	}
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/", s.handle)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/events", s.handleListEvents)
	})
	r.Get("/ws/events", s.handleEventsWS)
	return otelhttp.NewHandler(r, "flightsurety.rpc")
}

// observe records request counts and latency by route pattern.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		metrics.API().Observe(route, recorder.status, time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("rpc: response writer does not support hijacking")
	}
	return hijacker.Hijack()
}

// Start listens on addr and serves until Shutdown.
func (s *Server) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(listener)
}

// Serve serves on an existing listener.
func (s *Server) Serve(listener net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       idleTimeout,
	}
	s.serverMu.Lock()
	s.httpServer = srv
	s.serverMu.Unlock()

	s.logger.Info("serving query api", slog.String("addr", listener.Addr().String()))
	if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	s.serverMu.Lock()
	srv := s.httpServer
	s.serverMu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
