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

// Package rest provides the REST API server for the go-passkey service.
//
// The server exposes the passkey ceremony endpoints over HTTP, together
// with Kubernetes-style health probes, a Prometheus metrics endpoint and
// an optional background sweeper that evicts expired ceremony sessions.
//
// # Server Setup
//
// Create a server by providing a configured passkey service:
//
//	import (
//	    "github.com/jeremyhahn/go-passkey/internal/rest"
//	    "github.com/jeremyhahn/go-passkey/pkg/passkey"
//	)
//
//	svc, _ := passkey.NewService(passkey.ServiceParams{
//	    Config: &passkey.Config{
//	        RPID:          "example.com",
//	        RPDisplayName: "Example",
//	        RPOrigins:     []string{"https://example.com"},
//	    },
//	    UserStore:       passkey.NewMemoryUserStore(),
//	    SessionStore:    passkey.NewMemorySessionStore(),
//	    CredentialStore: passkey.NewMemoryCredentialStore(),
//	})
//
//	server, _ := rest.NewServer(&rest.Config{
//	    Port:    8443,
//	    Service: svc,
//	    Version: "1.0.0",
//	})
//
//	// Start server
//	go server.Start()
//
//	// Graceful shutdown
//	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
//	defer cancel()
//	server.Stop(ctx)
//
// # API Endpoints
//
// Health:
//   - GET /health - Returns server health status
//   - GET /health/live - Liveness probe
//   - GET /health/ready - Readiness probe (runs registered store checks)
//   - GET /health/startup - Startup probe
//
// Metrics (when enabled):
//   - GET /metrics - Prometheus exposition
//
// Token verification (when the token issuer signs with an asymmetric key):
//   - GET /.well-known/jwks.json - Verification keys as a JWK Set
//
// Ceremonies:
//   - POST /api/v1/passkey/registration/begin - Start a registration ceremony
//   - POST /api/v1/passkey/registration/finish - Complete a registration ceremony
//   - GET /api/v1/passkey/registration/status?user_id=alice - Registration status
//   - POST /api/v1/passkey/authentication/begin - Start an authentication ceremony
//   - POST /api/v1/passkey/authentication/finish - Complete an authentication ceremony
//
// Credential Management:
//   - GET /api/v1/passkey/credentials?user_id=alice - List credentials (redacted)
//   - DELETE /api/v1/passkey/credentials/{credentialID}?user_id=alice - Revoke a credential
//   - POST /api/v1/passkey/sessions/sweep - Evict expired ceremony sessions
//   - GET /api/v1/passkey/health - Credential and session counts
//
// # Middleware
//
// All routes pass through panic recovery, correlation ID propagation,
// request logging, metrics collection and CORS. The ceremony routes can
// additionally be rate limited per client IP.
//
// # Health Probes
//
// The probe endpoints follow the Kubernetes liveness/readiness/startup
// contract: liveness only fails when the process is wedged, readiness
// runs the registered store checks, and startup reports whether
// initialization has completed.
package rest
