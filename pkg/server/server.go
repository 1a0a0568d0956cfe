// Package server exposes the consolidated store over HTTP: health,
// prometheus metrics, the reference index, per-file partitions, and
// ad-hoc rule checks.
package server

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/imabhichow/duvet/pkg/catalog"
	"github.com/imabhichow/duvet/pkg/logging"
	"github.com/imabhichow/duvet/pkg/metrics"
	"github.com/imabhichow/duvet/pkg/regions"
)

const version = "1.0.0"

// Server is the query API over one engine and catalog.
type Server struct {
	cat       *catalog.Catalog
	eng       *regions.Engine
	tokens    *TokenManager
	log       logging.Logger
	metrics   *metrics.Registry
	startTime time.Time
	addr      string
}

// Config carries the server's dependencies and settings.
type Config struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string
	// JWTSecret enables bearer-token auth when non-empty. Must be at
	// least 32 bytes.
	JWTSecret string
	Logger    logging.Logger
	Metrics   *metrics.Registry
}

// NewServer creates the query API server.
func NewServer(cat *catalog.Catalog, eng *regions.Engine, cfg Config) (*Server, error) {
	log := cfg.Logger
	if log == nil {
		log = logging.DefaultLogger().With(logging.Component("server"))
	}
	reg := cfg.Metrics
	if reg == nil {
		reg = metrics.DefaultRegistry()
	}

	var tokens *TokenManager
	if cfg.JWTSecret != "" {
		tm, err := NewTokenManager(cfg.JWTSecret)
		if err != nil {
			return nil, err
		}
		tokens = tm
	}

	return &Server{
		cat:       cat,
		eng:       eng,
		tokens:    tokens,
		log:       log,
		metrics:   reg,
		startTime: time.Now(),
		addr:      cfg.Addr,
	}, nil
}

// Handler builds the route table with logging, metrics, and (when
// configured) auth middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Health and metrics stay unauthenticated so probes work.
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.HandlerFor(
		s.metrics.GetPrometheusRegistry(), promhttp.HandlerOpts{}))

	api := http.NewServeMux()
	api.HandleFunc("/labels/", s.handleLabelReferences) // /labels/{id}/references
	api.HandleFunc("/files/", s.handleFileRegions)      // /files/{id}/regions
	api.HandleFunc("/verify", s.handleVerify)
	mux.Handle("/", s.authMiddleware(api))

	return s.loggingMiddleware(s.metricsMiddleware(mux))
}

// Start runs the server until a shutdown signal.
func (s *Server) Start() error {
	gs := NewGracefulServer(s.addr, s.Handler(), s.log)
	s.log.Info("query API listening", logging.String("addr", s.addr))
	return gs.Start()
}
