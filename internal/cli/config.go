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
	"fmt"
	"strings"

	"github.com/jeremyhahn/go-passkey/pkg/client"
)

// Config holds global CLI configuration
type Config struct {
	// ConfigFile is the path to the server configuration file
	ConfigFile string

	// Server is the URL of the remote passkey server.
	// Supported formats:
	// - http://host:port
	// - https://host:port
	// If empty, the default local REST endpoint is used.
	Server string

	// OutputFormat controls output formatting (json, text, table)
	OutputFormat string

	// Verbose enables verbose logging
	Verbose bool

	// TLSInsecure skips TLS certificate verification (not recommended)
	TLSInsecure bool

	// TLSCert is the path to the client certificate file (for mTLS)
	TLSCert string

	// TLSKey is the path to the client key file (for mTLS)
	TLSKey string

	// TLSCACert is the path to the CA certificate file
	TLSCACert string

	// Token is the bearer token for authentication
	Token string
}

// NewConfig creates a new Config with default values
func NewConfig() *Config {
	return &Config{
		OutputFormat: "text",
		Verbose:      false,
		Server:       "", // Empty means use the default local endpoint
	}
}

// IsRemote returns true if the configuration specifies an explicit server
// URL. An empty Server means use the default local REST endpoint.
func (c *Config) IsRemote() bool {
	return c.Server != ""
}

// CreateClient creates a client for communicating with the passkey server.
// If Server is empty, it defaults to the local REST endpoint.
func (c *Config) CreateClient() (client.Client, error) {
	// TLS and auth options require the full client config
	if c.TLSInsecure || c.TLSCert != "" || c.TLSKey != "" || c.TLSCACert != "" || c.Token != "" {
		return c.createClientWithTLS()
	}

	cl, err := client.NewFromURL(c.Server)
	if err != nil {
		return nil, fmt.Errorf("failed to create client from URL: %w", err)
	}
	return cl, nil
}

// createClientWithTLS creates a client with TLS and auth options
func (c *Config) createClientWithTLS() (client.Client, error) {
	cfg := &client.Config{
		TLSInsecureSkipVerify: c.TLSInsecure,
		TLSCertFile:           c.TLSCert,
		TLSKeyFile:            c.TLSKey,
		TLSCAFile:             c.TLSCACert,
		Token:                 c.Token,
	}

	switch {
	case c.Server == "":
		// Default local endpoint

	case strings.HasPrefix(c.Server, "http://"):
		cfg.Address = c.Server
		cfg.TLSEnabled = false

	case strings.HasPrefix(c.Server, "https://"):
		cfg.Address = c.Server
		cfg.TLSEnabled = true

	default:
		return nil, fmt.Errorf("unsupported server URL %q (expected http or https)", c.Server)
	}

	return client.New(cfg)
}
