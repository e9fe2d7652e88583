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

package config

import (
	"crypto"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jeremyhahn/go-passkey/pkg/encoding"
	"github.com/jeremyhahn/go-passkey/pkg/passkey"
	"gopkg.in/yaml.v3"
)

// Config represents the complete server configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	TLS       TLSConfig       `yaml:"tls"`
	Logging   LoggingConfig   `yaml:"logging"`
	Passkey   passkey.Config  `yaml:"passkey"`
	Storage   StorageConfig   `yaml:"storage"`
	Token     TokenConfig     `yaml:"token"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Sweep     SweepConfig     `yaml:"sweep"`
}

// ServerConfig contains server-level settings
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// TLSConfig controls TLS settings
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// LoggingConfig controls logging behavior
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// StorageConfig controls the persistence backend for sessions,
// credentials and users.
type StorageConfig struct {
	// Backend selects the storage implementation: memory or file.
	Backend string `yaml:"backend"`

	// Path is the data directory for the file backend.
	Path string `yaml:"path"`
}

// TokenConfig controls post-authentication token issuance.
type TokenConfig struct {
	Enabled bool `yaml:"enabled"`

	// Secret is an inline HMAC signing secret. Intended for development;
	// production deployments should use SigningKeyFile.
	Secret string `yaml:"secret"`

	// SigningKeyFile is a PEM-encoded private key (PKCS#8). RSA, ECDSA
	// and Ed25519 keys select their matching signing algorithm.
	SigningKeyFile string `yaml:"signing_key_file"`

	Issuer    string        `yaml:"issuer"`
	Audience  []string      `yaml:"audience"`
	ExpiresIn time.Duration `yaml:"expires_in"`
	KeyID     string        `yaml:"key_id"`
}

// RateLimitConfig controls rate limiting
type RateLimitConfig struct {
	Enabled        bool `yaml:"enabled"`
	RequestsPerMin int  `yaml:"requests_per_min"`
	Burst          int  `yaml:"burst"`
}

// MetricsConfig controls the metrics endpoint
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// SweepConfig controls the background expired-session sweeper.
type SweepConfig struct {
	Enabled bool `yaml:"enabled"`

	// Interval between sweeps. Defaults to one minute when enabled.
	Interval time.Duration `yaml:"interval"`
}

// Load reads configuration from a YAML file and applies environment
// variable overrides.
func Load(path string) (*Config, error) {
	// #nosec G304 - Config file path is provided by admin/user
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnvOverrides(&cfg)
	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration
func applyEnvOverrides(cfg *Config) {
	// Server settings
	if host := os.Getenv("PASSKEY_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if portStr := os.Getenv("PASSKEY_PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			log.Printf("Warning: invalid PASSKEY_PORT value %q, using default %d: %v",
				portStr, cfg.Server.Port, err)
		} else if port < 1 || port > 65535 {
			log.Printf("Warning: invalid PASSKEY_PORT value %q (out of range 1-65535), using default %d",
				portStr, cfg.Server.Port)
		} else {
			cfg.Server.Port = port
		}
	}

	// Logging
	if level := os.Getenv("PASSKEY_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if format := os.Getenv("PASSKEY_LOG_FORMAT"); format != "" {
		cfg.Logging.Format = format
	}

	// Relying party
	if rpID := os.Getenv("PASSKEY_RP_ID"); rpID != "" {
		cfg.Passkey.RPID = rpID
	}
	if origins := os.Getenv("PASSKEY_RP_ORIGINS"); origins != "" {
		parts := strings.Split(origins, ",")
		cfg.Passkey.RPOrigins = cfg.Passkey.RPOrigins[:0]
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				cfg.Passkey.RPOrigins = append(cfg.Passkey.RPOrigins, trimmed)
			}
		}
	}

	// Storage
	if dataDir := os.Getenv("PASSKEY_DATA_DIR"); dataDir != "" {
		cfg.Storage.Path = dataDir
	}

	// Token signing material
	if secret := os.Getenv("PASSKEY_TOKEN_SECRET"); secret != "" {
		cfg.Token.Secret = secret
	}
	if keyFile := os.Getenv("PASSKEY_TOKEN_KEY_FILE"); keyFile != "" {
		cfg.Token.SigningKeyFile = keyFile
	}
}

// SetDefaults fills in unset fields with production defaults.
func (c *Config) SetDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8443
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 15 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 60 * time.Second
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}

	if c.Storage.Backend == "" {
		c.Storage.Backend = "memory"
	}

	if c.Metrics.Enabled && c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}

	if c.Sweep.Enabled && c.Sweep.Interval == 0 {
		c.Sweep.Interval = time.Minute
	}

	c.Passkey.SetDefaults()
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	// Validate logging level
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	// Validate logging format
	validFormats := map[string]bool{
		"json": true, "text": true, "console": true,
	}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		return fmt.Errorf("invalid log format: %s (must be json, text, or console)", c.Logging.Format)
	}

	// Validate TLS settings
	if c.TLS.Enabled {
		if c.TLS.CertFile == "" {
			return fmt.Errorf("TLS cert_file is required when TLS is enabled")
		}
		if c.TLS.KeyFile == "" {
			return fmt.Errorf("TLS key_file is required when TLS is enabled")
		}
	}

	// Validate storage
	switch c.Storage.Backend {
	case "memory":
	case "file":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage path is required for the file backend")
		}
	default:
		return fmt.Errorf("unknown storage backend: %s (must be memory or file)", c.Storage.Backend)
	}

	// Validate relying party settings
	if err := c.Passkey.Validate(); err != nil {
		return fmt.Errorf("passkey: %w", err)
	}

	// Validate token issuance
	if c.Token.Enabled {
		if c.Token.Secret == "" && c.Token.SigningKeyFile == "" {
			return fmt.Errorf("token signing requires secret or signing_key_file")
		}
		if c.Token.Secret != "" && c.Token.SigningKeyFile != "" {
			return fmt.Errorf("token secret and signing_key_file are mutually exclusive")
		}
	}

	// Validate rate limiting
	if c.RateLimit.Enabled && c.RateLimit.RequestsPerMin < 1 {
		return fmt.Errorf("ratelimit requests_per_min must be positive when enabled")
	}

	if c.Sweep.Enabled && c.Sweep.Interval < 0 {
		return fmt.Errorf("sweep interval must not be negative")
	}

	return nil
}

// LoadSigningKey resolves the configured token signing material. Inline
// secrets become HMAC keys; key files are parsed as PEM-encoded PKCS#8
// private keys.
func (c *TokenConfig) LoadSigningKey() (interface{}, error) {
	if c.Secret != "" {
		return []byte(c.Secret), nil
	}

	if c.SigningKeyFile == "" {
		return nil, fmt.Errorf("no token signing material configured")
	}

	// #nosec G304 - Key file path is provided by admin/user
	data, err := os.ReadFile(c.SigningKeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read signing key file: %w", err)
	}

	key, err := encoding.DecodePrivateKeyPEM(data, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to parse signing key: %w", err)
	}

	return crypto.PrivateKey(key), nil
}
