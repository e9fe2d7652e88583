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
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	passkeyjwt "github.com/jeremyhahn/go-passkey/pkg/encoding/jwt"
)

// DefaultTokenIssuer issues JWT tokens for users that completed a
// passkey ceremony. The signing algorithm is derived from the key type:
// an HMAC secret signs HS256, asymmetric keys sign their natural
// algorithm.
type DefaultTokenIssuer struct {
	// signingKey is the key used to sign tokens
	signingKey any
	// verificationKey is the key used to verify tokens
	verificationKey any
	// issuer is the JWT issuer claim
	issuer string
	// audience is the JWT audience claim
	audience []string
	// expiresIn is how long tokens are valid
	expiresIn time.Duration
	// keyID is the key identifier for the kid header
	keyID string
	// signer is the JWT signer
	signer *passkeyjwt.Signer
}

// TokenIssuerConfig contains configuration for the token issuer.
type TokenIssuerConfig struct {
	// SigningKey signs tokens (required). Accepts an HMAC secret
	// ([]byte), *rsa.PrivateKey, *ecdsa.PrivateKey, or ed25519.PrivateKey.
	SigningKey any
	// Issuer is the JWT issuer claim (default: "go-passkey")
	Issuer string
	// Audience is the JWT audience claim (default: ["go-passkey"])
	Audience []string
	// ExpiresIn is how long tokens are valid (default: 1 hour)
	ExpiresIn time.Duration
	// KeyID is the key identifier for the kid header (optional)
	KeyID string
}

// NewDefaultTokenIssuer creates a new token issuer with the given
// configuration.
func NewDefaultTokenIssuer(config *TokenIssuerConfig) (*DefaultTokenIssuer, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if config.SigningKey == nil {
		return nil, fmt.Errorf("signing key is required")
	}

	// Set defaults
	issuer := config.Issuer
	if issuer == "" {
		issuer = "go-passkey"
	}

	audience := config.Audience
	if len(audience) == 0 {
		audience = []string{"go-passkey"}
	}

	expiresIn := config.ExpiresIn
	if expiresIn == 0 {
		expiresIn = time.Hour
	}

	verificationKey, err := passkeyjwt.VerificationKeyFor(config.SigningKey)
	if err != nil {
		return nil, err
	}

	return &DefaultTokenIssuer{
		signingKey:      config.SigningKey,
		verificationKey: verificationKey,
		issuer:          issuer,
		audience:        audience,
		expiresIn:       expiresIn,
		keyID:           config.KeyID,
		signer:          passkeyjwt.NewSigner(),
	}, nil
}

// IssueToken creates a JWT for the authenticated user.
func (g *DefaultTokenIssuer) IssueToken(ctx context.Context, user User) (string, error) {
	now := time.Now()

	claims := jwt.MapClaims{
		"iss": g.issuer,
		"aud": g.audience,
		"sub": user.UserID(),
		"iat": now.Unix(),
		"exp": now.Add(g.expiresIn).Unix(),
		"nbf": now.Unix(),
		// Custom claims
		"name":     user.WebAuthnDisplayName(),
		"username": user.WebAuthnName(),
	}

	if g.keyID != "" {
		return g.signer.SignWithKID(g.signingKey, claims, g.keyID)
	}

	return g.signer.Sign(g.signingKey, claims)
}

// VerifyToken verifies a JWT and returns the claims.
func (g *DefaultTokenIssuer) VerifyToken(tokenString string) (jwt.MapClaims, error) {
	verifier := passkeyjwt.NewVerifier()
	opts := &passkeyjwt.VerifyOptions{
		ValidateIssuer:   true,
		ExpectedIssuer:   g.issuer,
		ValidateAudience: len(g.audience) > 0,
		ExpectedAudience: g.audience[0],
		ValidateExpiry:   true,
	}

	token, err := verifier.VerifyWithOptions(tokenString, g.verificationKey, opts)
	if err != nil {
		return nil, fmt.Errorf("token verification failed: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid claims type")
	}

	return claims, nil
}

// Issuer returns the configured issuer.
func (g *DefaultTokenIssuer) Issuer() string {
	return g.issuer
}

// Audience returns the configured audience.
func (g *DefaultTokenIssuer) Audience() []string {
	return g.audience
}

// ExpiresIn returns the token expiration duration.
func (g *DefaultTokenIssuer) ExpiresIn() time.Duration {
	return g.expiresIn
}

// VerificationKey returns the key that verifies issued tokens: the
// public key for asymmetric signers, the shared secret for HMAC.
func (g *DefaultTokenIssuer) VerificationKey() any {
	return g.verificationKey
}

// KeyID returns the configured key identifier, empty if none was set.
func (g *DefaultTokenIssuer) KeyID() string {
	return g.keyID
}
