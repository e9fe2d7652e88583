// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-passkey.
//
// go-passkey is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package rest

import (
	"context"
	"crypto"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jeremyhahn/go-passkey/pkg/encoding/jwk"
	"github.com/jeremyhahn/go-passkey/pkg/health"
	"github.com/jeremyhahn/go-passkey/pkg/logging"
	"github.com/jeremyhahn/go-passkey/pkg/metrics"
	"github.com/jeremyhahn/go-passkey/pkg/passkey"
	passkeyhttp "github.com/jeremyhahn/go-passkey/pkg/passkey/http"
	"github.com/jeremyhahn/go-passkey/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server represents the REST API server.
type Server struct {
	server         *http.Server
	service        *passkey.Service
	handlers       *HandlerContext
	checker        *health.Checker
	limiter        *ratelimit.Limiter
	collector      *metrics.ResourceCollector
	logger         *slog.Logger
	port           int
	tlsConfig      *tls.Config
	metricsEnabled bool
	metricsPath    string
	sweepInterval  time.Duration
	jwks           []byte

	bgCtx    context.Context
	bgCancel context.CancelFunc
	wg       sync.WaitGroup
}

// Config holds the REST server configuration.
type Config struct {
	// Host is the address to bind to (default: all interfaces)
	Host string

	// Port is the HTTP port to listen on (default: 8443)
	Port int

	// Service is the passkey service the API exposes
	Service *passkey.Service

	// Version is the API version string
	Version string

	// TLSConfig is the TLS configuration for HTTPS (optional)
	TLSConfig *tls.Config

	// Logger is the structured logger (optional, defaults to stderr)
	Logger *slog.Logger

	// ReadTimeout is the maximum duration for reading the entire request
	ReadTimeout time.Duration

	// WriteTimeout is the maximum duration before timing out writes
	WriteTimeout time.Duration

	// IdleTimeout is the maximum amount of time to wait for the next request
	IdleTimeout time.Duration

	// MetricsEnabled exposes Prometheus metrics and starts the resource
	// collector when true
	MetricsEnabled bool

	// MetricsPath is the metrics endpoint path (default: /metrics)
	MetricsPath string

	// CollectInterval is the resource collector sampling interval
	// (default: 15s)
	CollectInterval time.Duration

	// RateLimiter rate limits the ceremony endpoints per client IP
	// (optional)
	RateLimiter *ratelimit.Limiter

	// SweepInterval is the interval between expired-session sweeps.
	// Zero disables the background sweeper.
	SweepInterval time.Duration

	// TokenVerificationKey is the public key that verifies issued
	// tokens. When set, it is published at /.well-known/jwks.json so
	// relying party backends can verify tokens offline. HMAC secrets
	// must never be passed here.
	TokenVerificationKey crypto.PublicKey
}

// NewServer creates a new REST API server.
func NewServer(cfg *Config) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	if cfg.Service == nil {
		return nil, fmt.Errorf("passkey service is required")
	}

	// Set defaults
	if cfg.Port == 0 {
		cfg.Port = 8443
	}
	if cfg.Version == "" {
		cfg.Version = "1.0.0"
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 15 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 15 * time.Second
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 60 * time.Second
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	if cfg.CollectInterval == 0 {
		cfg.CollectInterval = 15 * time.Second
	}

	// Set up logger (default to stderr if not provided)
	log := cfg.Logger
	if log == nil {
		log = logging.Default()
	}

	// Readiness is driven by the service's own health report, which
	// exercises both the credential and the session store.
	checker := health.NewChecker()
	checker.RegisterCheck("stores", health.PingCheck("stores", func(ctx context.Context) error {
		_, err := cfg.Service.Health(ctx)
		return err
	}))

	// Create handler context
	handlers := NewHandlerContext(cfg.Version)
	handlers.SetHealthChecker(checker)

	bgCtx, bgCancel := context.WithCancel(context.Background())

	// Create server instance
	server := &Server{
		service:        cfg.Service,
		handlers:       handlers,
		checker:        checker,
		limiter:        cfg.RateLimiter,
		logger:         log,
		port:           cfg.Port,
		tlsConfig:      cfg.TLSConfig,
		metricsEnabled: cfg.MetricsEnabled,
		metricsPath:    cfg.MetricsPath,
		sweepInterval:  cfg.SweepInterval,
		bgCtx:          bgCtx,
		bgCancel:       bgCancel,
	}

	if cfg.MetricsEnabled {
		server.collector = metrics.NewResourceCollector(bgCtx, cfg.CollectInterval).
			WithSnapshot(server.snapshotMetrics)
	}

	// The verification key is static for the server's lifetime, so the
	// JWKS document is marshaled once up front
	if cfg.TokenVerificationKey != nil {
		set, err := jwk.NewSet(cfg.TokenVerificationKey)
		if err != nil {
			bgCancel()
			return nil, fmt.Errorf("failed to build JWKS: %w", err)
		}
		jwksDoc, err := set.Marshal()
		if err != nil {
			bgCancel()
			return nil, fmt.Errorf("failed to encode JWKS: %w", err)
		}
		server.jwks = jwksDoc
	}

	// Create router with middleware
	router := server.setupRouter()

	// Create HTTP server
	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
		TLSConfig:    cfg.TLSConfig,
	}

	server.server = httpServer

	return server, nil
}

// setupRouter configures the chi router with all routes and middleware.
func (s *Server) setupRouter() *chi.Mux {
	r := chi.NewRouter()

	// Apply global middleware
	r.Use(s.RecoveryMiddleware())
	r.Use(CorrelationMiddleware) // Add correlation ID before logging
	r.Use(s.LoggingMiddleware())
	if s.metricsEnabled {
		r.Use(metrics.HTTPMiddleware)
	}
	r.Use(CORSMiddleware)

	// Legacy health endpoint (backwards compatibility)
	r.Get("/health", s.handlers.HealthHandler)
	r.Head("/health", s.handlers.HealthHandler)

	// Kubernetes-style health probes
	r.Get("/health/live", s.handlers.LivenessHandler)
	r.Get("/health/ready", s.handlers.ReadinessHandler)
	r.Get("/health/startup", s.handlers.StartupHandler)

	// Prometheus metrics
	if s.metricsEnabled {
		r.Method(http.MethodGet, s.metricsPath, promhttp.Handler())
	}

	// Token verification keys for relying party backends
	if s.jwks != nil {
		r.Get("/.well-known/jwks.json", s.jwksHandler)
	}

	// Passkey ceremony and credential management endpoints
	apiHandler := passkeyhttp.NewHandler(s.service).WithLogger(s.logger)
	r.Route("/api/v1/passkey", func(r chi.Router) {
		if s.limiter != nil && s.limiter.IsEnabled() {
			r.Use(ratelimit.Middleware(s.limiter))
		}
		passkeyhttp.MountChi(r, apiHandler)
	})

	return r
}

// Start starts the REST API server. It blocks until the server stops.
func (s *Server) Start() error {
	if s.collector != nil {
		go s.collector.Start()
	}
	if s.sweepInterval > 0 {
		s.wg.Add(1)
		go s.sweepLoop()
	}

	s.checker.MarkStarted()

	if s.tlsConfig != nil {
		s.logger.Info("starting HTTPS server", "port", s.port)

		if err := s.server.ListenAndServeTLS("", ""); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("failed to start HTTPS server: %w", err)
		}
	} else {
		s.logger.Info("starting HTTP server", "port", s.port)

		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
	}

	return nil
}

// Stop gracefully stops the REST API server together with the background
// sweeper and resource collector.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("shutting down server")

	s.bgCancel()
	if s.collector != nil {
		s.collector.Stop()
	}
	if s.limiter != nil {
		s.limiter.Stop()
	}
	s.wg.Wait()

	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Error("failed to shutdown server", "error", err)
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.logger.Info("server stopped")
	return nil
}

// Port returns the port the server is listening on.
func (s *Server) Port() int {
	return s.port
}

// Handler returns the root HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// SetHealthChecker replaces the health checker used by the probe
// endpoints.
func (s *Server) SetHealthChecker(checker HealthChecker) {
	s.handlers.SetHealthChecker(checker)
}

// sweepLoop periodically evicts expired ceremony sessions. Each pending
// session occupies store space until it is consumed or swept, so a
// server that only ever receives begin requests would otherwise grow
// without bound.
func (s *Server) sweepLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.bgCtx.Done():
			return
		case <-ticker.C:
			report, err := s.service.SweepExpired(s.bgCtx)
			if err != nil {
				s.logger.Error("session sweep failed", "error", err)
				continue
			}

			metrics.RecordSessionsSwept(metrics.KindRegistration, report.RegistrationsRemoved)
			metrics.RecordSessionsSwept(metrics.KindAuthentication, report.AuthenticationsRemoved)
			metrics.RecordSessionsSwept(metrics.KindCorrupt, report.CorruptRemoved)

			if total := report.Total(); total > 0 {
				s.logger.Info("session sweep complete",
					"registrations", report.RegistrationsRemoved,
					"authentications", report.AuthenticationsRemoved,
					"corrupt", report.CorruptRemoved)
			}
		}
	}
}

// jwksHandler serves the pre-marshaled JWK Set. The document never
// changes while the server runs, so clients may cache it.
func (s *Server) jwksHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=300")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(s.jwks)
}

// snapshotMetrics feeds the credential and session gauges from the
// service's health report.
func (s *Server) snapshotMetrics(ctx context.Context) {
	report, err := s.service.Health(ctx)
	if err != nil {
		return
	}

	metrics.SetCredentialsActive(float64(report.ActiveCredentials))
	metrics.SetSessionsPending(metrics.KindRegistration, float64(report.PendingRegistrations))
	metrics.SetSessionsPending(metrics.KindAuthentication, float64(report.PendingAuthentications))
	for tier, count := range report.TierDistribution {
		metrics.SetCredentialsByTier(strconv.Itoa(int(tier)), float64(count))
	}
}
