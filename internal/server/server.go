// Package server is the HTTP front end over the resolver. It is a
// transport collaborator, not part of the brokering core: it
// translates requests into SecurityContexts, calls the resolver, and
// maps the typed result onto status codes.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/butterflysys/butterfly/internal/observability"
	"github.com/butterflysys/butterfly/internal/resolver"
)

// Config configures the HTTP server.
type Config struct {
	// Listen is the address to bind.
	Listen string

	// JWTSecret enables HS256 bearer verification when non-empty.
	JWTSecret string

	// RateRPS bounds the resolve endpoint. Zero disables limiting.
	RateRPS float64

	// RateBurst is the limiter bucket size.
	RateBurst int
}

// Server serves the broker's HTTP API.
type Server struct {
	cfg      Config
	resolver resolver.Resolver
	logger   observability.Logger
	registry *prometheus.Registry
	engine   *gin.Engine
	http     *http.Server
}

// Option is a functional option for the server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetricsRegistry sets the registry exposed on /metrics.
func WithMetricsRegistry(registry *prometheus.Registry) Option {
	return func(s *Server) {
		s.registry = registry
	}
}

// New creates the HTTP server.
func New(cfg Config, res resolver.Resolver, opts ...Option) *Server {
	s := &Server{
		cfg:      cfg,
		resolver: res,
		logger:   observability.NopLogger(),
		registry: prometheus.NewRegistry(),
	}

	for _, opt := range opts {
		opt(s)
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(s.requestIDMiddleware())

	engine.GET("/healthz", s.handleHealth)
	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))

	v1 := engine.Group("/v1")
	if cfg.RateRPS > 0 {
		v1.Use(s.rateLimitMiddleware())
	}
	if cfg.JWTSecret != "" {
		v1.Use(s.authMiddleware())
	}
	v1.POST("/resolve", s.handleResolve)
	v1.POST("/connections", s.handleRegister)

	s.engine = engine
	s.http = &http.Server{
		Addr:              cfg.Listen,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("http server listening", observability.String("addr", s.cfg.Listen))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
