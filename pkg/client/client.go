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

// Package client provides a client library for communicating with the
// passkey server over its REST API. It is used by the CLI for the sweep
// and health commands and can drive full registration and authentication
// ceremonies on behalf of a relying party backend.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"github.com/jeremyhahn/go-passkey/pkg/passkey"
	passkeyhttp "github.com/jeremyhahn/go-passkey/pkg/passkey/http"
)

var (
	// ErrConnectionFailed is returned when the connection to the server fails
	ErrConnectionFailed = errors.New("connection failed")
	// ErrNotConnected is returned when trying to use a client that is not connected
	ErrNotConnected = errors.New("client not connected")
)

// Config configures the passkey client.
type Config struct {
	// Address is the server address: http://host:port or https://host:port
	Address string

	// TLSEnabled enables TLS
	TLSEnabled bool

	// TLSInsecureSkipVerify skips TLS certificate verification (not recommended)
	TLSInsecureSkipVerify bool

	// TLSCertFile is the path to the client certificate file (for mTLS)
	TLSCertFile string

	// TLSKeyFile is the path to the client key file (for mTLS)
	TLSKeyFile string

	// TLSCAFile is the path to the CA certificate file
	TLSCAFile string

	// Token is a bearer token added to the Authorization header (optional)
	Token string

	// Headers are additional HTTP headers to include in requests
	Headers map[string]string
}

// Client is the interface for communicating with the passkey server.
type Client interface {
	// Connect establishes a connection to the passkey server.
	Connect(ctx context.Context) error

	// Close closes the connection to the server.
	Close() error

	// Health checks the health of the server.
	Health(ctx context.Context) (*HealthResponse, error)

	// Ceremony Operations

	// BeginRegistration starts a registration ceremony.
	BeginRegistration(ctx context.Context, req *passkeyhttp.BeginRegistrationRequest) (*passkey.RegistrationOptions, error)

	// FinishRegistration completes a registration ceremony. The response
	// is the raw authenticator attestation JSON produced by the client
	// ceremony.
	FinishRegistration(ctx context.Context, sessionID string, response json.RawMessage) (*passkey.RegistrationResult, error)

	// BeginAuthentication starts an authentication ceremony.
	BeginAuthentication(ctx context.Context, req *passkeyhttp.BeginAuthenticationRequest) (*passkey.AuthenticationOptions, error)

	// FinishAuthentication completes an authentication ceremony. The
	// response is the raw authenticator assertion JSON produced by the
	// client ceremony.
	FinishAuthentication(ctx context.Context, sessionID string, response json.RawMessage) (*passkey.AuthenticationResult, error)

	// RegistrationStatus reports whether the user has registered
	// credentials.
	RegistrationStatus(ctx context.Context, userID string) (bool, error)

	// Credential Operations

	// ListCredentials returns the user's credentials with sensitive
	// material redacted.
	ListCredentials(ctx context.Context, userID string) ([]*passkey.CredentialSummary, error)

	// RevokeCredential removes a credential from the user's account.
	RevokeCredential(ctx context.Context, userID, credentialID string) error

	// Maintenance Operations

	// Sweep evicts expired ceremony sessions and reports what was
	// removed.
	Sweep(ctx context.Context) (*passkey.SweepReport, error)

	// ServiceHealth returns credential and session counts.
	ServiceHealth(ctx context.Context) (*passkey.HealthReport, error)
}

// HealthResponse contains server health check information.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Message string `json:"message,omitempty"`
}

// New creates a new passkey client with the specified configuration.
// If no configuration is provided, it targets a local server on the
// default port.
func New(cfg *Config) (Client, error) {
	if cfg == nil {
		cfg = &Config{}
	}

	if cfg.Address == "" {
		cfg.Address = "http://localhost:8443"
	}

	return newRESTClient(cfg)
}

// NewFromURL creates a new client from a URL string. Supported schemes
// are http:// and https://.
func NewFromURL(serverURL string) (Client, error) {
	if serverURL == "" {
		return New(nil)
	}

	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}

	switch u.Scheme {
	case "http":
		return New(&Config{Address: serverURL})
	case "https":
		return New(&Config{Address: serverURL, TLSEnabled: true})
	default:
		return nil, fmt.Errorf("unsupported scheme %q (expected http or https)", u.Scheme)
	}
}
