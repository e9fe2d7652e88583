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

package passkey

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"testing"

	"github.com/descope/virtualwebauthn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests exercise complete ceremonies against a virtual
// authenticator that produces real, verifiable attestations and
// assertions, end to end through the service API.

func TestIntegration_RegistrationCeremony(t *testing.T) {
	ctx := context.Background()

	cfg := &Config{
		RPID:          "example.com",
		RPDisplayName: "Example Corp",
		RPOrigins:     []string{"https://example.com"},
	}

	svc, err := NewService(ServiceParams{
		Config:          cfg,
		UserStore:       NewMemoryUserStore(),
		SessionStore:    NewMemorySessionStore(),
		CredentialStore: NewMemoryCredentialStore(),
	})
	require.NoError(t, err)

	rp := virtualwebauthn.RelyingParty{
		Name:   cfg.RPDisplayName,
		ID:     cfg.RPID,
		Origin: cfg.RPOrigins[0],
	}
	authenticator := virtualwebauthn.NewAuthenticator()
	credential := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)

	// Begin registration at a tier that requires user verification.
	opts, err := svc.BeginRegistration(ctx, "testuser@example.com", "testuser", "Test User", 2)
	require.NoError(t, err)
	require.NotEmpty(t, opts.SessionID)

	assert.Equal(t, cfg.RPID, opts.PublicKey.RelyingParty.ID)
	assert.Equal(t, cfg.RPDisplayName, opts.PublicKey.RelyingParty.Name)
	assert.Equal(t, "testuser@example.com", opts.PublicKey.User.Name)
	assert.Equal(t, "Test User", opts.PublicKey.User.DisplayName)
	assert.NotEmpty(t, opts.PublicKey.Challenge)

	// The virtual authenticator answers the challenge.
	optionsJSON, err := json.Marshal(opts.PublicKey)
	require.NoError(t, err)

	parsedOptions, err := virtualwebauthn.ParseAttestationOptions(string(optionsJSON))
	require.NoError(t, err)

	attestationResponse := virtualwebauthn.CreateAttestationResponse(rp, authenticator, credential, *parsedOptions)

	result, err := svc.FinishRegistration(ctx, opts.SessionID, []byte(attestationResponse))
	require.NoError(t, err)
	authenticator.AddCredential(credential)

	assert.Equal(t, "testuser@example.com", result.UserID)
	assert.Equal(t, Tier(2), result.TierLevel)
	assert.True(t, result.LibraryVerified)
	assert.NotEmpty(t, result.CredentialID)

	// The credential is stored with its verified key material.
	summaries, err := svc.ListCredentials(ctx, "testuser@example.com")
	require.NoError(t, err)
	assert.Len(t, summaries, 1)

	registered, err := svc.IsRegistered(ctx, "testuser@example.com")
	require.NoError(t, err)
	assert.True(t, registered)
}

func TestIntegration_AuthenticationCeremony(t *testing.T) {
	ctx := context.Background()

	cfg := &Config{
		RPID:          "example.com",
		RPDisplayName: "Example Corp",
		RPOrigins:     []string{"https://example.com"},
	}

	svc, err := NewService(ServiceParams{
		Config:          cfg,
		UserStore:       NewMemoryUserStore(),
		SessionStore:    NewMemorySessionStore(),
		CredentialStore: NewMemoryCredentialStore(),
	})
	require.NoError(t, err)

	rp := virtualwebauthn.RelyingParty{
		Name:   cfg.RPDisplayName,
		ID:     cfg.RPID,
		Origin: cfg.RPOrigins[0],
	}
	authenticator := virtualwebauthn.NewAuthenticator()
	credential := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)

	// === REGISTRATION ===

	regOpts, err := svc.BeginRegistration(ctx, "login@example.com", "login", "Login User", 2)
	require.NoError(t, err)

	regJSON, _ := json.Marshal(regOpts.PublicKey)
	parsedReg, err := virtualwebauthn.ParseAttestationOptions(string(regJSON))
	require.NoError(t, err)
	attestation := virtualwebauthn.CreateAttestationResponse(rp, authenticator, credential, *parsedReg)

	reg, err := svc.FinishRegistration(ctx, regOpts.SessionID, []byte(attestation))
	require.NoError(t, err)
	authenticator.AddCredential(credential)

	// === AUTHENTICATION ===

	authOpts, err := svc.BeginAuthentication(ctx, "login@example.com", 2)
	require.NoError(t, err)
	require.NotEmpty(t, authOpts.SessionID)

	assert.Equal(t, cfg.RPID, authOpts.PublicKey.RelyingPartyID)
	require.Len(t, authOpts.PublicKey.AllowedCredentials, 1)
	assert.Equal(t, credential.ID, []byte(authOpts.PublicKey.AllowedCredentials[0].CredentialID))

	// Real authenticators advance the signature counter before signing.
	credential.Counter++

	authJSON, _ := json.Marshal(authOpts.PublicKey)
	parsedAuth, err := virtualwebauthn.ParseAssertionOptions(string(authJSON))
	require.NoError(t, err)
	assertion := virtualwebauthn.CreateAssertionResponse(rp, authenticator, credential, *parsedAuth)

	result, err := svc.FinishAuthentication(ctx, authOpts.SessionID, []byte(assertion))
	require.NoError(t, err)

	assert.Equal(t, "login@example.com", result.UserID)
	assert.Equal(t, reg.CredentialID, result.CredentialID)
	assert.Equal(t, uint32(1), result.SignCount)
	assert.True(t, result.LibraryVerified)

	// A second ceremony keeps the counter moving.
	credential.Counter++

	authOpts2, err := svc.BeginAuthentication(ctx, "login@example.com", 2)
	require.NoError(t, err)

	authJSON2, _ := json.Marshal(authOpts2.PublicKey)
	parsedAuth2, _ := virtualwebauthn.ParseAssertionOptions(string(authJSON2))
	assertion2 := virtualwebauthn.CreateAssertionResponse(rp, authenticator, credential, *parsedAuth2)

	result2, err := svc.FinishAuthentication(ctx, authOpts2.SessionID, []byte(assertion2))
	require.NoError(t, err)
	assert.Equal(t, uint32(2), result2.SignCount)
}

func TestIntegration_DiscoverableCeremony(t *testing.T) {
	ctx := context.Background()

	cfg := &Config{
		RPID:          "example.com",
		RPDisplayName: "Example Corp",
		RPOrigins:     []string{"https://example.com"},
	}

	svc, err := NewService(ServiceParams{
		Config:          cfg,
		UserStore:       NewMemoryUserStore(),
		SessionStore:    NewMemorySessionStore(),
		CredentialStore: NewMemoryCredentialStore(),
	})
	require.NoError(t, err)

	rp := virtualwebauthn.RelyingParty{
		Name:   cfg.RPDisplayName,
		ID:     cfg.RPID,
		Origin: cfg.RPOrigins[0],
	}

	// The authenticator stores the user handle alongside the resident
	// credential, the way passkey-capable devices do.
	authenticator := virtualwebauthn.NewAuthenticatorWithOptions(virtualwebauthn.AuthenticatorOptions{
		UserHandle: []byte("passkey@example.com"),
	})
	credential := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)

	// === REGISTRATION ===

	regOpts, err := svc.BeginRegistration(ctx, "passkey@example.com", "passkey", "Passkey User", 2)
	require.NoError(t, err)

	regJSON, _ := json.Marshal(regOpts.PublicKey)
	parsedReg, _ := virtualwebauthn.ParseAttestationOptions(string(regJSON))
	attestation := virtualwebauthn.CreateAttestationResponse(rp, authenticator, credential, *parsedReg)

	_, err = svc.FinishRegistration(ctx, regOpts.SessionID, []byte(attestation))
	require.NoError(t, err)
	authenticator.AddCredential(credential)

	// === DISCOVERABLE AUTHENTICATION (no user ID up front) ===

	authOpts, err := svc.BeginAuthentication(ctx, "", 2)
	require.NoError(t, err)
	assert.Empty(t, authOpts.PublicKey.AllowedCredentials)

	credential.Counter++

	authJSON, _ := json.Marshal(authOpts.PublicKey)
	parsedAuth, _ := virtualwebauthn.ParseAssertionOptions(string(authJSON))
	assertion := virtualwebauthn.CreateAssertionResponse(rp, authenticator, credential, *parsedAuth)

	// The server resolves the account from the credential, not from any
	// caller-supplied identity.
	result, err := svc.FinishAuthentication(ctx, authOpts.SessionID, []byte(assertion))
	require.NoError(t, err)
	assert.Equal(t, "passkey@example.com", result.UserID)
	assert.Equal(t, uint32(1), result.SignCount)
}

func TestIntegration_TierAllowListFiltering(t *testing.T) {
	ctx := context.Background()

	cfg := &Config{
		RPID:          "example.com",
		RPDisplayName: "Example Corp",
		RPOrigins:     []string{"https://example.com"},
	}

	svc, err := NewService(ServiceParams{
		Config:          cfg,
		UserStore:       NewMemoryUserStore(),
		SessionStore:    NewMemorySessionStore(),
		CredentialStore: NewMemoryCredentialStore(),
	})
	require.NoError(t, err)

	rp := virtualwebauthn.RelyingParty{
		Name:   cfg.RPDisplayName,
		ID:     cfg.RPID,
		Origin: cfg.RPOrigins[0],
	}

	// Two authenticators for the same account, registered at different
	// assurance tiers.
	basicKey := virtualwebauthn.NewAuthenticator()
	basicCred := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)

	strongKey := virtualwebauthn.NewAuthenticator()
	strongCred := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)

	// Register the basic credential at tier 1.
	regOpts1, err := svc.BeginRegistration(ctx, "tiered@example.com", "tiered", "Tiered User", 1)
	require.NoError(t, err)

	regJSON1, _ := json.Marshal(regOpts1.PublicKey)
	parsedReg1, _ := virtualwebauthn.ParseAttestationOptions(string(regJSON1))
	attestation1 := virtualwebauthn.CreateAttestationResponse(rp, basicKey, basicCred, *parsedReg1)

	_, err = svc.FinishRegistration(ctx, regOpts1.SessionID, []byte(attestation1))
	require.NoError(t, err)
	basicKey.AddCredential(basicCred)

	// Register the strong credential at tier 4. The exclude list keeps
	// the first credential from being enrolled twice.
	regOpts2, err := svc.BeginRegistration(ctx, "tiered@example.com", "tiered", "Tiered User", 4)
	require.NoError(t, err)
	require.Len(t, regOpts2.PublicKey.CredentialExcludeList, 1)
	assert.Equal(t, basicCred.ID, []byte(regOpts2.PublicKey.CredentialExcludeList[0].CredentialID))

	regJSON2, _ := json.Marshal(regOpts2.PublicKey)
	parsedReg2, _ := virtualwebauthn.ParseAttestationOptions(string(regJSON2))
	attestation2 := virtualwebauthn.CreateAttestationResponse(rp, strongKey, strongCred, *parsedReg2)

	_, err = svc.FinishRegistration(ctx, regOpts2.SessionID, []byte(attestation2))
	require.NoError(t, err)
	strongKey.AddCredential(strongCred)

	summaries, err := svc.ListCredentials(ctx, "tiered@example.com")
	require.NoError(t, err)
	assert.Len(t, summaries, 2)

	// A tier 4 challenge only admits the tier 4 credential.
	authOpts, err := svc.BeginAuthentication(ctx, "tiered@example.com", 4)
	require.NoError(t, err)
	require.Len(t, authOpts.PublicKey.AllowedCredentials, 1)
	assert.Equal(t, strongCred.ID, []byte(authOpts.PublicKey.AllowedCredentials[0].CredentialID))

	strongCred.Counter++

	authJSON, _ := json.Marshal(authOpts.PublicKey)
	parsedAuth, _ := virtualwebauthn.ParseAssertionOptions(string(authJSON))
	assertion := virtualwebauthn.CreateAssertionResponse(rp, strongKey, strongCred, *parsedAuth)

	result, err := svc.FinishAuthentication(ctx, authOpts.SessionID, []byte(assertion))
	require.NoError(t, err)
	assert.Equal(t, Tier(4), result.TierLevel)

	// A tier 1 challenge admits both.
	authOpts, err = svc.BeginAuthentication(ctx, "tiered@example.com", 1)
	require.NoError(t, err)
	assert.Len(t, authOpts.PublicKey.AllowedCredentials, 2)
}

func TestIntegration_SignCountRegression(t *testing.T) {
	ctx := context.Background()

	cfg := &Config{
		RPID:          "example.com",
		RPDisplayName: "Example Corp",
		RPOrigins:     []string{"https://example.com"},
	}

	svc, err := NewService(ServiceParams{
		Config:          cfg,
		UserStore:       NewMemoryUserStore(),
		SessionStore:    NewMemorySessionStore(),
		CredentialStore: NewMemoryCredentialStore(),
	})
	require.NoError(t, err)

	rp := virtualwebauthn.RelyingParty{
		Name:   cfg.RPDisplayName,
		ID:     cfg.RPID,
		Origin: cfg.RPOrigins[0],
	}
	authenticator := virtualwebauthn.NewAuthenticator()
	credential := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)

	regOpts, err := svc.BeginRegistration(ctx, "counter@example.com", "counter", "Counter User", 1)
	require.NoError(t, err)

	regJSON, _ := json.Marshal(regOpts.PublicKey)
	parsedReg, _ := virtualwebauthn.ParseAttestationOptions(string(regJSON))
	attestation := virtualwebauthn.CreateAttestationResponse(rp, authenticator, credential, *parsedReg)

	_, err = svc.FinishRegistration(ctx, regOpts.SessionID, []byte(attestation))
	require.NoError(t, err)
	authenticator.AddCredential(credential)

	login := func() (*AuthenticationResult, error) {
		authOpts, err := svc.BeginAuthentication(ctx, "counter@example.com", 1)
		require.NoError(t, err)

		authJSON, _ := json.Marshal(authOpts.PublicKey)
		parsedAuth, _ := virtualwebauthn.ParseAssertionOptions(string(authJSON))
		assertion := virtualwebauthn.CreateAssertionResponse(rp, authenticator, credential, *parsedAuth)

		return svc.FinishAuthentication(ctx, authOpts.SessionID, []byte(assertion))
	}

	// Authenticators that do not implement a counter always report zero.
	// Zero-to-zero transitions are tolerated, repeatedly.
	result, err := login()
	require.NoError(t, err)
	assert.Equal(t, uint32(0), result.SignCount)

	result, err = login()
	require.NoError(t, err)
	assert.Equal(t, uint32(0), result.SignCount)

	// Once the counter starts moving it must keep moving.
	credential.Counter++
	result, err = login()
	require.NoError(t, err)
	assert.Equal(t, uint32(1), result.SignCount)

	// A replay of an already-used counter value reads as a clone.
	_, err = login()
	assert.ErrorIs(t, err, ErrClonedAuthenticator)

	summaries, err := svc.ListCredentials(ctx, "counter@example.com")
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.True(t, summaries[0].CloneWarning)
	assert.Equal(t, uint32(1), summaries[0].SignCount)

	// The flagged credential still authenticates once the counter
	// advances past the stored value.
	credential.Counter++
	result, err = login()
	require.NoError(t, err)
	assert.Equal(t, uint32(2), result.SignCount)
}

func TestIntegration_TokenIssuance(t *testing.T) {
	ctx := context.Background()

	signingKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	issuer, err := NewDefaultTokenIssuer(&TokenIssuerConfig{
		SigningKey: signingKey,
		Issuer:     "passkey-test",
		Audience:   []string{"passkey-test-clients"},
	})
	require.NoError(t, err)

	cfg := &Config{
		RPID:          "example.com",
		RPDisplayName: "Example Corp",
		RPOrigins:     []string{"https://example.com"},
	}

	svc, err := NewService(ServiceParams{
		Config:          cfg,
		UserStore:       NewMemoryUserStore(),
		SessionStore:    NewMemorySessionStore(),
		CredentialStore: NewMemoryCredentialStore(),
		TokenIssuer:     issuer,
	})
	require.NoError(t, err)

	rp := virtualwebauthn.RelyingParty{
		Name:   cfg.RPDisplayName,
		ID:     cfg.RPID,
		Origin: cfg.RPOrigins[0],
	}
	authenticator := virtualwebauthn.NewAuthenticator()
	credential := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)

	regOpts, err := svc.BeginRegistration(ctx, "jwt@example.com", "jwt", "JWT User", 2)
	require.NoError(t, err)

	regJSON, _ := json.Marshal(regOpts.PublicKey)
	parsedReg, _ := virtualwebauthn.ParseAttestationOptions(string(regJSON))
	attestation := virtualwebauthn.CreateAttestationResponse(rp, authenticator, credential, *parsedReg)

	reg, err := svc.FinishRegistration(ctx, regOpts.SessionID, []byte(attestation))
	require.NoError(t, err)
	require.NotEmpty(t, reg.Token)
	authenticator.AddCredential(credential)

	// The registration token verifies and carries the user identity.
	claims, err := issuer.VerifyToken(reg.Token)
	require.NoError(t, err)
	assert.Equal(t, "jwt@example.com", claims["sub"])
	assert.Equal(t, "JWT User", claims["name"])
	assert.Equal(t, "jwt", claims["username"])
	assert.Equal(t, "passkey-test", claims["iss"])

	// Authentication mints a fresh token too.
	credential.Counter++

	authOpts, err := svc.BeginAuthentication(ctx, "jwt@example.com", 2)
	require.NoError(t, err)

	authJSON, _ := json.Marshal(authOpts.PublicKey)
	parsedAuth, _ := virtualwebauthn.ParseAssertionOptions(string(authJSON))
	assertion := virtualwebauthn.CreateAssertionResponse(rp, authenticator, credential, *parsedAuth)

	result, err := svc.FinishAuthentication(ctx, authOpts.SessionID, []byte(assertion))
	require.NoError(t, err)
	require.NotEmpty(t, result.Token)

	claims, err = issuer.VerifyToken(result.Token)
	require.NoError(t, err)
	assert.Equal(t, "jwt@example.com", claims["sub"])
}
