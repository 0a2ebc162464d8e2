package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/jonwraymond/qsargate/audit"
	"github.com/jonwraymond/qsargate/health"
	"github.com/jonwraymond/qsargate/observe"
)

// Route paths.
const (
	PathMCP     = "/mcp"
	PathMetrics = "/metrics"
)

// RouterOptions controls the construction of the gateway router.
type RouterOptions struct {
	// MCP serves POST /mcp. Required.
	MCP http.Handler

	// Health backs /healthz, /readyz, /health and /health/{name}.
	// Default: an aggregator with no checks.
	Health  *health.Aggregator
	Service health.ServiceInfo

	// Metrics serves /metrics when set.
	Metrics http.Handler

	// Audit receives one http_request event per request. Optional.
	Audit *audit.Emitter

	// AllowAllOrigins permits any CORS origin. Otherwise only
	// CORSOrigins are allowed.
	AllowAllOrigins bool
	CORSOrigins     []string
}

// CORSOptions returns the CORS policy for the given origins.
func CORSOptions(allowAll bool, origins []string) cors.Options {
	opts := cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", RequestIDHeader},
		ExposedHeaders:   []string{RequestIDHeader, "WWW-Authenticate"},
		AllowCredentials: true,
		MaxAge:           300,
	}
	if allowAll {
		opts.AllowedOrigins = []string{"*"}
		opts.AllowCredentials = false
	}
	return opts
}

// NewRouter assembles the gateway routes behind the shared middleware.
func NewRouter(opts RouterOptions) chi.Router {
	r := chi.NewRouter()

	r.Use(RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(SecurityHeaders)
	r.Use(cors.Handler(CORSOptions(opts.AllowAllOrigins, opts.CORSOrigins)))
	r.Use(RequestAudit(opts.Audit))

	if opts.MCP != nil {
		r.Method(http.MethodPost, PathMCP, opts.MCP)
	}

	agg := opts.Health
	if agg == nil {
		agg = health.NewAggregator(health.AggregatorConfig{})
	}
	health.Mount(r, agg, opts.Service)

	if opts.Metrics != nil {
		r.Method(http.MethodGet, PathMetrics, opts.Metrics)
	}
	return r
}

// Config configures a Server.
type Config struct {
	Addr    string
	Handler http.Handler

	// ShutdownTimeout bounds the graceful drain.
	// Default: 15s.
	ShutdownTimeout time.Duration

	Logger observe.Logger
}

// Server runs the HTTP listener until its context ends.
type Server struct {
	srv             *http.Server
	shutdownTimeout time.Duration
	logger          observe.Logger
}

// New creates a Server. Nothing listens until Run.
func New(cfg Config) *Server {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 15 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = observe.NopLogger()
	}
	return &Server{
		srv: &http.Server{
			Addr:              cfg.Addr,
			Handler:           cfg.Handler,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		shutdownTimeout: cfg.ShutdownTimeout,
		logger:          logger.With(observe.Field{Key: "component", Value: "server"}),
	}
}

// Run listens on the configured address and serves until ctx is done,
// then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.srv.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info(ctx, "server listening", observe.Field{Key: "addr", Value: ln.Addr().String()})
		errCh <- s.srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info(ctx, "shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		_ = s.srv.Close()
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	s.logger.Info(ctx, "server stopped")
	return nil
}
