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

package cli

import (
	"context"
	"crypto"
	"crypto/tls"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-passkey/internal/config"
	"github.com/jeremyhahn/go-passkey/internal/rest"
	"github.com/jeremyhahn/go-passkey/pkg/logging"
	"github.com/jeremyhahn/go-passkey/pkg/passkey"
	"github.com/jeremyhahn/go-passkey/pkg/ratelimit"
	"github.com/jeremyhahn/go-passkey/pkg/storage/file"
)

// defaultConfigPath is used when no --config flag or PASSKEY_CONFIG
// environment variable is set.
const defaultConfigPath = "/etc/passkey/config.yaml"

// shutdownTimeout bounds graceful shutdown after a signal.
const shutdownTimeout = 30 * time.Second

// serverCmd runs the passkey REST server
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the passkey REST server",
	Long: `Run the passkey REST server.

The server exposes registration and authentication ceremony endpoints,
credential management, health probes, and Prometheus metrics over
HTTP or HTTPS. Configuration is loaded from a YAML file with
PASSKEY_* environment variable overrides.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

func runServer() error {
	configPath := globalConfig.ConfigFile
	if configPath == "" {
		configPath = os.Getenv("PASSKEY_CONFIG")
	}
	if configPath == "" {
		configPath = defaultConfigPath
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})

	logger.Info("Configuration loaded",
		slog.String("config", configPath),
		slog.String("storage", cfg.Storage.Backend),
		slog.String("rp_id", cfg.Passkey.RPID),
		slog.Int("port", cfg.Server.Port))

	issuer, err := buildTokenIssuer(&cfg.Token)
	if err != nil {
		return err
	}

	service, err := buildService(cfg, issuer)
	if err != nil {
		return err
	}

	restServer, err := buildRESTServer(cfg, service, issuer, logger)
	if err != nil {
		return err
	}

	// Shut down on SIGINT or SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 1)
	go func() {
		if err := restServer.Start(); err != nil {
			errChan <- err
		}
	}()

	logger.Info("Passkey server started",
		slog.Int("port", restServer.Port()),
		slog.Bool("tls", cfg.TLS.Enabled),
		slog.String("version", Version))

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := restServer.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("error during shutdown: %w", err)
	}

	logger.Info("Passkey server stopped")
	return nil
}

// buildTokenIssuer creates the post-ceremony token issuer, nil when
// token issuance is disabled.
func buildTokenIssuer(cfg *config.TokenConfig) (*passkey.DefaultTokenIssuer, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	signingKey, err := cfg.LoadSigningKey()
	if err != nil {
		return nil, fmt.Errorf("failed to load token signing key: %w", err)
	}

	issuer, err := passkey.NewDefaultTokenIssuer(&passkey.TokenIssuerConfig{
		SigningKey: signingKey,
		Issuer:     cfg.Issuer,
		Audience:   cfg.Audience,
		ExpiresIn:  cfg.ExpiresIn,
		KeyID:      cfg.KeyID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create token issuer: %w", err)
	}
	return issuer, nil
}

// buildService assembles the passkey service from the loaded
// configuration: stores by storage backend, plus an optional token
// issuer.
func buildService(cfg *config.Config, issuer *passkey.DefaultTokenIssuer) (*passkey.Service, error) {
	params := passkey.ServiceParams{
		Config: &cfg.Passkey,
	}

	switch cfg.Storage.Backend {
	case "memory":
		params.UserStore = passkey.NewMemoryUserStore()
		params.SessionStore = passkey.NewMemorySessionStore()
		params.CredentialStore = passkey.NewMemoryCredentialStore()

	case "file":
		// The stores partition a shared backend by key prefix
		backend, err := file.New(cfg.Storage.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to create file storage: %w", err)
		}
		params.UserStore = passkey.NewBackendUserStore(backend)
		params.SessionStore = passkey.NewBackendSessionStore(backend)
		params.CredentialStore = passkey.NewBackendCredentialStore(backend)

	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Storage.Backend)
	}

	if issuer != nil {
		params.TokenIssuer = issuer
	}

	service, err := passkey.NewService(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create passkey service: %w", err)
	}
	return service, nil
}

// buildRESTServer assembles the REST server from the loaded
// configuration: timeouts, TLS, metrics, rate limiting, and the
// background sweeper.
func buildRESTServer(cfg *config.Config, service *passkey.Service, issuer *passkey.DefaultTokenIssuer, logger *slog.Logger) (*rest.Server, error) {
	var tlsConfig *tls.Config
	if cfg.TLS.Enabled {
		cert, err := tls.LoadX509KeyPair(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load TLS key pair: %w", err)
		}
		tlsConfig = &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}
	}

	var limiter *ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		limiter = ratelimit.New(&ratelimit.Config{
			Enabled:           true,
			RequestsPerMinute: cfg.RateLimit.RequestsPerMin,
			Burst:             cfg.RateLimit.Burst,
		})
	}

	var sweepInterval time.Duration
	if cfg.Sweep.Enabled {
		sweepInterval = cfg.Sweep.Interval
	}

	// Publish asymmetric verification keys at the JWKS endpoint. HMAC
	// secrets stay private.
	var verificationKey crypto.PublicKey
	if issuer != nil {
		if _, isSecret := issuer.VerificationKey().([]byte); !isSecret {
			verificationKey = issuer.VerificationKey()
		}
	}

	return rest.NewServer(&rest.Config{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		Service:        service,
		Version:        Version,
		TLSConfig:      tlsConfig,
		Logger:         logger,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MetricsEnabled: cfg.Metrics.Enabled,
		MetricsPath:    cfg.Metrics.Path,
		RateLimiter:    limiter,
		SweepInterval:  sweepInterval,

		TokenVerificationKey: verificationKey,
	})
}
