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
	"crypto/rand"
	"encoding/base64"
	"time"
)

// SessionKind distinguishes the two ceremony flows a session can belong to.
type SessionKind string

// Session kinds.
const (
	SessionKindRegistration   SessionKind = "registration"
	SessionKindAuthentication SessionKind = "authentication"
)

// Valid reports whether the kind names a known ceremony flow.
func (k SessionKind) Valid() bool {
	return k == SessionKindRegistration || k == SessionKindAuthentication
}

// Session sizes and lifetime.
const (
	// sessionIDBytes is the entropy of a session identifier.
	sessionIDBytes = 32

	// challengeBytes is the entropy of a ceremony challenge.
	challengeBytes = 32

	// DefaultSessionTTL is the lifetime of a pending session.
	DefaultSessionTTL = 300 * time.Second
)

// Session is a short-lived, single-use record binding a ceremony
// challenge to an optional user and a security tier. A session is created
// by a begin operation and consumed exactly once by the matching finish
// operation or removed by the expiry sweep.
type Session struct {
	// ID is the opaque, unguessable session identifier.
	ID string `json:"id"`

	// Kind is the ceremony flow the session belongs to.
	Kind SessionKind `json:"kind"`

	// Challenge is the raw random challenge.
	Challenge []byte `json:"challenge"`

	// ChallengeEncoded is the URL-safe base64 form sent to the client and
	// expected back in clientDataJSON.
	ChallengeEncoded string `json:"challenge_encoded"`

	// UserID binds the session to a user. Empty on authentication
	// sessions enables the usernameless (discoverable credential) flow.
	UserID string `json:"user_id,omitempty"`

	// Tier is the security tier the ceremony was begun at.
	Tier Tier `json:"tier"`

	// CreatedAt is when the session was issued.
	CreatedAt time.Time `json:"created_at"`

	// ExpiresAt is the deadline after which the session is invalid.
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the session deadline has passed at the given
// instant.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// NewSession creates a pending ceremony session with a fresh random
// session ID and challenge.
func NewSession(kind SessionKind, userID string, tier Tier, ttl time.Duration) (*Session, error) {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}

	id, err := randomToken(sessionIDBytes)
	if err != nil {
		return nil, err
	}

	challenge := make([]byte, challengeBytes)
	if _, err := rand.Read(challenge); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &Session{
		ID:               id,
		Kind:             kind,
		Challenge:        challenge,
		ChallengeEncoded: base64.RawURLEncoding.EncodeToString(challenge),
		UserID:           userID,
		Tier:             tier,
		CreatedAt:        now,
		ExpiresAt:        now.Add(ttl),
	}, nil
}

// SetChallenge replaces the session challenge, keeping the raw and
// encoded forms consistent. Used when a library-generated challenge takes
// precedence over the locally generated one.
func (s *Session) SetChallenge(challenge []byte) {
	s.Challenge = challenge
	s.ChallengeEncoded = base64.RawURLEncoding.EncodeToString(challenge)
}

// randomToken returns n bytes from the CSPRNG in unpadded URL-safe base64.
func randomToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
