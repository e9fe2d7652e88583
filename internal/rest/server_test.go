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
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jeremyhahn/go-passkey/pkg/encoding/jwk"
	"github.com/jeremyhahn/go-passkey/pkg/health"
	"github.com/jeremyhahn/go-passkey/pkg/logging"
	"github.com/jeremyhahn/go-passkey/pkg/passkey"
	"github.com/jeremyhahn/go-passkey/pkg/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockHealthChecker implements HealthChecker for testing
type mockHealthChecker struct {
	liveStatus    health.Status
	readyStatus   health.Status
	startupStatus health.Status
}

func (m *mockHealthChecker) Live(ctx context.Context) health.CheckResult {
	return health.CheckResult{Status: m.liveStatus}
}

func (m *mockHealthChecker) Ready(ctx context.Context) []health.CheckResult {
	return []health.CheckResult{{Status: m.readyStatus}}
}

func (m *mockHealthChecker) Startup(ctx context.Context) health.CheckResult {
	return health.CheckResult{Status: m.startupStatus}
}

// newTestService creates a passkey service backed by in-memory stores.
func newTestService(t *testing.T) *passkey.Service {
	t.Helper()

	svc, err := passkey.NewService(passkey.ServiceParams{
		Config: &passkey.Config{
			RPID:          "example.com",
			RPDisplayName: "Example",
			RPOrigins:     []string{"https://example.com"},
		},
		UserStore:       passkey.NewMemoryUserStore(),
		SessionStore:    passkey.NewMemorySessionStore(),
		CredentialStore: passkey.NewMemoryCredentialStore(),
	})
	require.NoError(t, err)
	return svc
}

// testLogger suppresses log output during tests.
func testLogger() *slog.Logger {
	return logging.New(logging.Options{Level: "error"})
}

func newTestServer(t *testing.T, mutate func(cfg *Config)) *Server {
	t.Helper()

	cfg := &Config{
		Service: newTestService(t),
		Logger:  testLogger(),
	}
	if mutate != nil {
		mutate(cfg)
	}

	server, err := NewServer(cfg)
	require.NoError(t, err)
	return server
}

// TestNewServer_NilConfig tests that NewServer returns error with nil config
func TestNewServer_NilConfig(t *testing.T) {
	server, err := NewServer(nil)
	assert.Nil(t, server)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "config is required")
}

// TestNewServer_NoService tests that NewServer requires a passkey service
func TestNewServer_NoService(t *testing.T) {
	server, err := NewServer(&Config{Port: 8443})
	assert.Nil(t, server)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "service is required")
}

// TestNewServer_Defaults tests that NewServer sets proper defaults
func TestNewServer_Defaults(t *testing.T) {
	server := newTestServer(t, nil)

	assert.Equal(t, 8443, server.Port())
	assert.Equal(t, 15*time.Second, server.server.ReadTimeout)
	assert.Equal(t, 15*time.Second, server.server.WriteTimeout)
	assert.Equal(t, 60*time.Second, server.server.IdleTimeout)
}

// TestNewServer_CustomPort tests that custom port is used
func TestNewServer_CustomPort(t *testing.T) {
	server := newTestServer(t, func(cfg *Config) {
		cfg.Port = 9000
	})

	assert.Equal(t, 9000, server.Port())
	assert.Equal(t, ":9000", server.server.Addr)
}

// TestNewServer_CustomHost tests the bind address
func TestNewServer_CustomHost(t *testing.T) {
	server := newTestServer(t, func(cfg *Config) {
		cfg.Host = "127.0.0.1"
		cfg.Port = 9000
	})

	assert.Equal(t, "127.0.0.1:9000", server.server.Addr)
}

// TestSetupRouter_Health tests the legacy health endpoint
func TestSetupRouter_Health(t *testing.T) {
	server := newTestServer(t, func(cfg *Config) {
		cfg.Version = "2.1.0"
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	server.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "2.1.0", resp.Version)
}

// TestSetupRouter_HealthHead tests HEAD support on the health endpoint
func TestSetupRouter_HealthHead(t *testing.T) {
	server := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodHead, "/health", nil)
	w := httptest.NewRecorder()

	server.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

// TestSetupRouter_LivenessProbe tests the liveness probe endpoint
func TestSetupRouter_LivenessProbe(t *testing.T) {
	server := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	w := httptest.NewRecorder()

	server.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

// TestSetupRouter_ReadinessProbe tests that readiness runs the store check
func TestSetupRouter_ReadinessProbe(t *testing.T) {
	server := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	w := httptest.NewRecorder()

	server.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp HealthCheckResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, health.StatusHealthy, resp.Status)
	require.Len(t, resp.Checks, 1)
	assert.Equal(t, "stores", resp.Checks[0].Name)
}

// TestSetupRouter_StartupProbe tests the startup probe before and after
// the server is marked started
func TestSetupRouter_StartupProbe(t *testing.T) {
	server := newTestServer(t, nil)

	// Before Start the service has not been marked started
	req := httptest.NewRequest(http.MethodGet, "/health/startup", nil)
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	server.checker.MarkStarted()

	req = httptest.NewRequest(http.MethodGet, "/health/startup", nil)
	w = httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

// TestSetupRouter_MetricsEndpoint tests the Prometheus exposition endpoint
func TestSetupRouter_MetricsEndpoint(t *testing.T) {
	server := newTestServer(t, func(cfg *Config) {
		cfg.MetricsEnabled = true
	})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()

	server.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "passkey_")
}

// TestSetupRouter_MetricsDisabled tests that /metrics is absent by default
func TestSetupRouter_MetricsDisabled(t *testing.T) {
	server := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()

	server.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

// TestSetupRouter_CustomMetricsPath tests a non-default metrics path
func TestSetupRouter_CustomMetricsPath(t *testing.T) {
	server := newTestServer(t, func(cfg *Config) {
		cfg.MetricsEnabled = true
		cfg.MetricsPath = "/internal/metrics"
	})

	req := httptest.NewRequest(http.MethodGet, "/internal/metrics", nil)
	w := httptest.NewRecorder()

	server.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

// TestSetupRouter_PasskeyRoutes tests that the ceremony endpoints are mounted
func TestSetupRouter_PasskeyRoutes(t *testing.T) {
	server := newTestServer(t, nil)

	body := strings.NewReader(`{"user_id": "alice", "tier": 2}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/passkey/registration/begin", body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	server.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Session-Id"))
	assert.Contains(t, w.Body.String(), "publicKey")
}

// TestSetupRouter_PasskeyHealth tests the service health endpoint
func TestSetupRouter_PasskeyHealth(t *testing.T) {
	server := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/passkey/health", nil)
	w := httptest.NewRecorder()

	server.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "active_credentials")
}

// TestSetupRouter_RateLimiting tests that the ceremony endpoints are rate
// limited while the probes are not
func TestSetupRouter_RateLimiting(t *testing.T) {
	limiter := ratelimit.New(&ratelimit.Config{
		Enabled:           true,
		RequestsPerMinute: 60,
		Burst:             1,
	})
	defer limiter.Stop()

	server := newTestServer(t, func(cfg *Config) {
		cfg.RateLimiter = limiter
	})

	makeRequest := func(path string) int {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = "203.0.113.7:4567"
		w := httptest.NewRecorder()
		server.Handler().ServeHTTP(w, req)
		return w.Code
	}

	// First ceremony request passes, second exhausts the burst
	assert.Equal(t, http.StatusOK, makeRequest("/api/v1/passkey/health"))
	assert.Equal(t, http.StatusTooManyRequests, makeRequest("/api/v1/passkey/health"))

	// Probes bypass the limiter
	assert.Equal(t, http.StatusOK, makeRequest("/health/live"))
}

// TestSetupRouter_CorrelationHeader tests that responses carry a correlation ID
func TestSetupRouter_CorrelationHeader(t *testing.T) {
	server := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	server.Handler().ServeHTTP(w, req)

	assert.NotEmpty(t, w.Header().Get("X-Correlation-ID"))
}

// TestSetHealthChecker tests swapping in a custom health checker
func TestSetHealthChecker(t *testing.T) {
	server := newTestServer(t, nil)

	server.SetHealthChecker(&mockHealthChecker{
		liveStatus:    health.StatusUnhealthy,
		readyStatus:   health.StatusHealthy,
		startupStatus: health.StatusHealthy,
	})

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	w := httptest.NewRecorder()

	server.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

// TestServer_StopWithoutStart tests that Stop is safe before Start
func TestServer_StopWithoutStart(t *testing.T) {
	server := newTestServer(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	assert.NoError(t, server.Stop(ctx))
}

// TestServer_SweepLoop tests that the background sweeper evicts expired
// sessions
func TestServer_SweepLoop(t *testing.T) {
	svc, err := passkey.NewService(passkey.ServiceParams{
		Config: &passkey.Config{
			RPID:          "example.com",
			RPDisplayName: "Example",
			RPOrigins:     []string{"https://example.com"},
			SessionTTL:    10 * time.Millisecond,
		},
		UserStore:       passkey.NewMemoryUserStore(),
		SessionStore:    passkey.NewMemorySessionStore(),
		CredentialStore: passkey.NewMemoryCredentialStore(),
	})
	require.NoError(t, err)

	server, err := NewServer(&Config{
		Service:       svc,
		Logger:        testLogger(),
		SweepInterval: 20 * time.Millisecond,
	})
	require.NoError(t, err)

	// Create a pending session, then let it expire
	_, err = svc.BeginRegistration(context.Background(), "alice", "", "", 0)
	require.NoError(t, err)

	server.wg.Add(1)
	go server.sweepLoop()

	require.Eventually(t, func() bool {
		report, err := svc.Health(context.Background())
		if err != nil {
			return false
		}
		return report.PendingRegistrations == 0
	}, time.Second, 10*time.Millisecond)

	server.bgCancel()
	server.wg.Wait()
}

// TestServer_SnapshotMetrics tests the gauge snapshot closure
func TestServer_SnapshotMetrics(t *testing.T) {
	server := newTestServer(t, func(cfg *Config) {
		cfg.MetricsEnabled = true
	})

	_, err := server.service.BeginRegistration(context.Background(), "alice", "", "", 0)
	require.NoError(t, err)

	server.snapshotMetrics(context.Background())

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)

	assert.Contains(t, w.Body.String(), `passkey_sessions_pending{kind="registration"} 1`)
}

// TestSetupRouter_JWKSEndpoint tests that the token verification key is
// published as a JWK Set
func TestSetupRouter_JWKSEndpoint(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	server := newTestServer(t, func(cfg *Config) {
		cfg.TokenVerificationKey = &key.PublicKey
	})

	req := httptest.NewRequest(http.MethodGet, "/.well-known/jwks.json", nil)
	w := httptest.NewRecorder()

	server.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	set, err := jwk.UnmarshalSet(w.Body.Bytes())
	require.NoError(t, err)
	require.Len(t, set.Keys, 1)
	assert.Equal(t, jwk.KeyTypeEC, set.Keys[0].KeyType)
	assert.Equal(t, "sig", set.Keys[0].Use)
	assert.NotEmpty(t, set.Keys[0].KeyID)

	decoded, err := set.Keys[0].ToPublicKey()
	require.NoError(t, err)
	assert.True(t, key.PublicKey.Equal(decoded))
}

// TestSetupRouter_JWKSAbsentWithoutKey tests that no JWKS route is
// registered when the server has no verification key
func TestSetupRouter_JWKSAbsentWithoutKey(t *testing.T) {
	server := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/.well-known/jwks.json", nil)
	w := httptest.NewRecorder()

	server.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
