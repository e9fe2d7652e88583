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

// Package passkey provides a tiered WebAuthn (FIDO2) credential
// authentication manager that can be used as a library in any Go
// application.
//
// The package issues single-use cryptographic challenges for credential
// registration and authentication, resolves per-tier authenticator policy,
// verifies client ceremony responses against the stored challenge and
// origin, and manages the full credential lifecycle (creation, listing,
// revocation, expiry sweeps).
//
// # Architecture
//
// The package is designed with a layered architecture:
//
//  1. Service layer (Service) - Registration and authentication flows
//  2. Policy layer (TierPolicy, PolicyHook) - Tier resolution and pre-checks
//  3. Verifier layer (Verifier) - Pluggable signature verification
//  4. Storage layer (UserStore, CredentialStore, SessionStore) - Persistence
//  5. HTTP layer (pkg/passkey/http) - Composable HTTP handlers
//
// # Security Tiers
//
// Every ceremony is bound to a security tier between 0 and 5. The tier
// controls the authenticator properties the options demand:
//
//	Tier 0-1: any authenticator, user verification discouraged
//	Tier 2+:  user verification required
//	Tier 3+:  platform authenticators only, direct attestation
//	Tier 4+:  hmac-secret extensions requested
//	Tier 5:   resident (discoverable) keys required
//
// # Usage
//
// Basic usage with in-memory storage (for development):
//
//	svc, err := passkey.NewService(passkey.ServiceParams{
//	    Config: &passkey.Config{
//	        RPID:          "localhost",
//	        RPDisplayName: "My App",
//	        RPOrigins:     []string{"https://localhost:3000"},
//	    },
//	    UserStore:       passkey.NewMemoryUserStore(),
//	    SessionStore:    passkey.NewMemorySessionStore(),
//	    CredentialStore: passkey.NewMemoryCredentialStore(),
//	})
//
// For production, implement the storage interfaces with your database or
// use the storage.Backend adapters in backend_stores.go.
//
// # Verification
//
// Signature verification is delegated to a Verifier selected at
// construction time. NewLibraryVerifier wraps go-webauthn/webauthn and
// performs full cryptographic validation. NewFallbackVerifier accepts
// client-asserted responses at reduced assurance and marks every result
// LibraryVerified=false so downstream authorization can tell the two
// apart.
//
// Note: WebAuthn requires HTTPS for all operations. Browsers will only
// expose the WebAuthn API in secure contexts.
package passkey
