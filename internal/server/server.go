// Package server exposes a small admin HTTP API next to the release loop.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/yourorg/release-relay/internal/checker"
	"github.com/yourorg/release-relay/internal/ledger"
)

// LedgerView is the read side of the delivery ledger
type LedgerView interface {
	Watermark() time.Time
	Entries(ctx context.Context) ([]ledger.Entry, error)
}

// Trigger requests an immediate check
type Trigger interface {
	TriggerCheck(ctx context.Context) error
}

// CycleReporter exposes the summary of the last check
type CycleReporter interface {
	LastCycle() *checker.Cycle
}

// config holds internal HTTP server configuration
type config struct {
	addr    string
	service string
	logger  *slog.Logger
	cycles  CycleReporter
	trigger Trigger
}

// Option is a functional option for Server configuration
type Option func(*config)

// WithAddr sets the server address
func WithAddr(addr string) Option {
	return func(c *config) {
		c.addr = addr
	}
}

// WithLogger sets the request logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithCycles adds the last cycle summary to GET /ledger
func WithCycles(r CycleReporter) Option {
	return func(c *config) {
		c.cycles = r
	}
}

// WithTrigger enables POST /check
func WithTrigger(t Trigger) Option {
	return func(c *config) {
		c.trigger = t
	}
}

// Server represents the HTTP server
type Server struct {
	*http.Server
}

// NewServer creates a new HTTP server
func NewServer(view LedgerView, opts ...Option) *Server {
	// Default configuration
	cfg := &config{
		addr:    "localhost:8080",
		service: "release-relay",
		logger:  slog.Default(),
	}

	// Apply options
	for _, opt := range opts {
		opt(cfg)
	}

	h := &handler{
		service: cfg.service,
		ledger:  view,
		cycles:  cfg.cycles,
		trigger: cfg.trigger,
		logger:  cfg.logger,
	}

	router := chi.NewRouter()

	// Global middleware
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(LoggingMiddleware(cfg.logger))
	router.Use(middleware.Recoverer)

	router.Get("/health", h.handleHealth)
	router.Get("/ledger", h.handleLedger)
	router.Post("/check", h.handleCheck)

	return &Server{
		Server: &http.Server{
			Addr:              cfg.addr,
			Handler:           router,
			ReadHeaderTimeout: 15 * time.Second,
		},
	}
}
