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

package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/jeremyhahn/go-passkey/pkg/passkey"
	passkeyhttp "github.com/jeremyhahn/go-passkey/pkg/passkey/http"
)

// apiBase is the path prefix for the passkey API.
const apiBase = "/api/v1/passkey"

// restClient implements the Client interface using HTTP/REST.
type restClient struct {
	config     *Config
	httpClient *http.Client
	baseURL    string
	connected  bool
}

// newRESTClient creates a new REST client.
func newRESTClient(cfg *Config) (*restClient, error) {
	// Parse and normalize the base URL
	baseURL := cfg.Address
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		if cfg.TLSEnabled {
			baseURL = "https://" + baseURL
		} else {
			baseURL = "http://" + baseURL
		}
	}

	// Remove trailing slash
	baseURL = strings.TrimSuffix(baseURL, "/")

	return &restClient{
		config:  cfg,
		baseURL: baseURL,
	}, nil
}

// Connect establishes a connection to the passkey server.
func (c *restClient) Connect(ctx context.Context) error {
	// Create TLS config if needed
	var tlsConfig *tls.Config
	if c.config.TLSEnabled {
		tlsConfig = &tls.Config{
			InsecureSkipVerify: c.config.TLSInsecureSkipVerify,
			MinVersion:         tls.VersionTLS12,
		}

		// Load CA certificate if specified
		if c.config.TLSCAFile != "" {
			caCert, err := os.ReadFile(c.config.TLSCAFile)
			if err != nil {
				return fmt.Errorf("failed to read CA certificate: %w", err)
			}
			caCertPool := x509.NewCertPool()
			if !caCertPool.AppendCertsFromPEM(caCert) {
				return fmt.Errorf("failed to parse CA certificate")
			}
			tlsConfig.RootCAs = caCertPool
		}

		// Load client certificate if specified (mTLS)
		if c.config.TLSCertFile != "" && c.config.TLSKeyFile != "" {
			cert, err := tls.LoadX509KeyPair(c.config.TLSCertFile, c.config.TLSKeyFile)
			if err != nil {
				return fmt.Errorf("failed to load client certificate: %w", err)
			}
			tlsConfig.Certificates = []tls.Certificate{cert}
		}
	}

	// Create HTTP client
	transport := &http.Transport{
		TLSClientConfig: tlsConfig,
	}

	c.httpClient = &http.Client{
		Transport: transport,
	}

	// Test connection with health check
	_, err := c.Health(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	c.connected = true
	return nil
}

// Close closes the REST client.
func (c *restClient) Close() error {
	if c.httpClient != nil {
		c.httpClient.CloseIdleConnections()
	}
	c.connected = false
	return nil
}

// doRequest performs an HTTP request to the passkey server. A
// json.RawMessage body is sent verbatim; any other non-nil body is
// marshalled to JSON.
func (c *restClient) doRequest(ctx context.Context, method, path string, body interface{}, headers map[string]string) ([]byte, error) {
	if c.httpClient == nil {
		return nil, ErrNotConnected
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	reqURL := c.baseURL + path

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	// Add bearer token if configured
	if c.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.Token)
	}

	// Add custom headers
	for k, v := range c.config.Headers {
		req.Header.Set(k, v)
	}

	// Add per-request headers
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			log.Printf("failed to close response body: %v", closeErr)
		}
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Message != "" {
			return nil, fmt.Errorf("server error: %s", errResp.Message)
		}
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error != "" {
			return nil, fmt.Errorf("server error: %s", errResp.Error)
		}
		return nil, fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(respBody))
	}

	return respBody, nil
}

// Health checks the health of the server.
func (c *restClient) Health(ctx context.Context) (*HealthResponse, error) {
	data, err := c.doRequest(ctx, http.MethodGet, "/health", nil, nil)
	if err != nil {
		return nil, err
	}

	var resp HealthResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return &resp, nil
}

// BeginRegistration starts a registration ceremony.
func (c *restClient) BeginRegistration(ctx context.Context, req *passkeyhttp.BeginRegistrationRequest) (*passkey.RegistrationOptions, error) {
	data, err := c.doRequest(ctx, http.MethodPost, apiBase+"/registration/begin", req, nil)
	if err != nil {
		return nil, err
	}

	var resp passkey.RegistrationOptions
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return &resp, nil
}

// FinishRegistration completes a registration ceremony.
func (c *restClient) FinishRegistration(ctx context.Context, sessionID string, response json.RawMessage) (*passkey.RegistrationResult, error) {
	headers := map[string]string{passkeyhttp.HeaderSessionID: sessionID}
	data, err := c.doRequest(ctx, http.MethodPost, apiBase+"/registration/finish", response, headers)
	if err != nil {
		return nil, err
	}

	var resp passkey.RegistrationResult
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return &resp, nil
}

// BeginAuthentication starts an authentication ceremony.
func (c *restClient) BeginAuthentication(ctx context.Context, req *passkeyhttp.BeginAuthenticationRequest) (*passkey.AuthenticationOptions, error) {
	data, err := c.doRequest(ctx, http.MethodPost, apiBase+"/authentication/begin", req, nil)
	if err != nil {
		return nil, err
	}

	var resp passkey.AuthenticationOptions
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return &resp, nil
}

// FinishAuthentication completes an authentication ceremony.
func (c *restClient) FinishAuthentication(ctx context.Context, sessionID string, response json.RawMessage) (*passkey.AuthenticationResult, error) {
	headers := map[string]string{passkeyhttp.HeaderSessionID: sessionID}
	data, err := c.doRequest(ctx, http.MethodPost, apiBase+"/authentication/finish", response, headers)
	if err != nil {
		return nil, err
	}

	var resp passkey.AuthenticationResult
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return &resp, nil
}

// RegistrationStatus reports whether the user has registered credentials.
func (c *restClient) RegistrationStatus(ctx context.Context, userID string) (bool, error) {
	path := fmt.Sprintf("%s/registration/status?user_id=%s", apiBase, url.QueryEscape(userID))
	data, err := c.doRequest(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return false, err
	}

	var resp passkeyhttp.RegistrationStatusResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return false, fmt.Errorf("failed to parse response: %w", err)
	}

	return resp.Registered, nil
}

// ListCredentials returns the user's credentials with sensitive material
// redacted.
func (c *restClient) ListCredentials(ctx context.Context, userID string) ([]*passkey.CredentialSummary, error) {
	path := fmt.Sprintf("%s/credentials?user_id=%s", apiBase, url.QueryEscape(userID))
	data, err := c.doRequest(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}

	var resp []*passkey.CredentialSummary
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return resp, nil
}

// RevokeCredential removes a credential from the user's account.
func (c *restClient) RevokeCredential(ctx context.Context, userID, credentialID string) error {
	path := fmt.Sprintf("%s/credentials/%s?user_id=%s",
		apiBase, url.PathEscape(credentialID), url.QueryEscape(userID))
	_, err := c.doRequest(ctx, http.MethodDelete, path, nil, nil)
	return err
}

// Sweep evicts expired ceremony sessions.
func (c *restClient) Sweep(ctx context.Context) (*passkey.SweepReport, error) {
	data, err := c.doRequest(ctx, http.MethodPost, apiBase+"/sessions/sweep", nil, nil)
	if err != nil {
		return nil, err
	}

	var resp passkey.SweepReport
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return &resp, nil
}

// ServiceHealth returns credential and session counts.
func (c *restClient) ServiceHealth(ctx context.Context) (*passkey.HealthReport, error) {
	data, err := c.doRequest(ctx, http.MethodGet, apiBase+"/health", nil, nil)
	if err != nil {
		return nil, err
	}

	var resp passkey.HealthReport
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return &resp, nil
}
