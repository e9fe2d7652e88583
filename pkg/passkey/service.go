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
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
)

// Ceremony types expected in clientDataJSON.
const (
	ceremonyTypeCreate = "webauthn.create"
	ceremonyTypeGet    = "webauthn.get"
)

// collectedClientData is the subset of clientDataJSON the service checks
// before delegating to the verifier.
type collectedClientData struct {
	Type      string `json:"type"`
	Challenge string `json:"challenge"`
	Origin    string `json:"origin"`
}

// Service provides tiered passkey registration and authentication
// operations. It owns the ceremony state machine: session issue and
// consume, tier policy resolution, policy hook checks, client data
// validation, verifier delegation, and credential lifecycle.
type Service struct {
	config     *Config
	users      UserStore
	sessions   SessionStore
	creds      CredentialStore
	verifier   Verifier
	fallback   *FallbackVerifier
	policy     PolicyHook
	tokens     TokenIssuer // optional
	credLocks  sync.Map    // credential key -> *sync.Mutex
	configured bool
}

// ServiceParams contains dependencies for creating a passkey service.
type ServiceParams struct {
	// Config is the passkey configuration (required).
	Config *Config

	// UserStore is the user persistence layer (required).
	UserStore UserStore

	// SessionStore is the pending-session persistence layer (required).
	SessionStore SessionStore

	// CredentialStore is the credential persistence layer (required).
	CredentialStore CredentialStore

	// Verifier validates ceremony responses. If nil, a LibraryVerifier
	// backed by go-webauthn is created from Config.
	Verifier Verifier

	// PolicyHook gates ceremony responses. If nil, DefaultPolicyHook is
	// used.
	PolicyHook PolicyHook

	// TokenIssuer is an optional token generator for post-ceremony
	// tokens. If nil, results carry no token.
	TokenIssuer TokenIssuer
}

// NewService creates a new passkey service with the provided dependencies.
func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if params.UserStore == nil {
		return nil, fmt.Errorf("user store is required")
	}
	if params.SessionStore == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if params.CredentialStore == nil {
		return nil, fmt.Errorf("credential store is required")
	}

	// Set defaults and validate
	params.Config.SetDefaults()
	if err := params.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	verifier := params.Verifier
	if verifier == nil {
		var err error
		verifier, err = NewLibraryVerifier(params.Config)
		if err != nil {
			return nil, fmt.Errorf("failed to create verifier: %w", err)
		}
	}

	policy := params.PolicyHook
	if policy == nil {
		policy = NewDefaultPolicyHook()
	}

	return &Service{
		config:     params.Config,
		users:      params.UserStore,
		sessions:   params.SessionStore,
		creds:      params.CredentialStore,
		verifier:   verifier,
		fallback:   NewFallbackVerifier(),
		policy:     policy,
		tokens:     params.TokenIssuer,
		configured: true,
	}, nil
}

// BeginRegistration starts a registration ceremony at the given tier.
// The user is created on first registration. Returns the creation
// options for the client ceremony along with the session handle.
func (s *Service) BeginRegistration(ctx context.Context, userID, name, displayName string, tier Tier) (*RegistrationOptions, error) {
	if !s.configured {
		return nil, ErrNotConfigured
	}
	if userID == "" {
		return nil, NewError("validate user id", ErrInvalidRequest)
	}
	if !tier.Valid() {
		return nil, NewError("validate tier", ErrInvalidTier)
	}

	// Get existing user or create new one
	user, err := s.users.Get(ctx, userID)
	if err != nil {
		if !IsUserNotFound(err) {
			return nil, WrapError("get user", err)
		}
		user, err = s.users.Create(ctx, userID, name, displayName)
		if err != nil {
			return nil, WrapError("create user", err)
		}
	}

	// Existing credentials become the exclude list so the same
	// authenticator cannot be registered twice.
	existing, err := s.creds.GetByUserID(ctx, userID)
	if err != nil {
		return nil, WrapError("get credentials", err)
	}
	excludeList := descriptorsFromCredentials(existing)

	tierPolicy := PolicyForTier(tier)

	session, err := NewSession(SessionKindRegistration, userID, tier, s.config.SessionTTL)
	if err != nil {
		return nil, WrapError("create session", err)
	}

	publicKey := buildCreationOptions(s.config, user, session, excludeList, tierPolicy)
	if provider, ok := s.verifier.(OptionsProvider); ok {
		library, err := provider.CreationOptions(newCeremonyUser(user, existing), excludeList, tierPolicy)
		if err != nil {
			return nil, WrapError("generate creation options", err)
		}
		publicKey = mergeCreationOptions(publicKey, *library)
		session.SetChallenge([]byte(publicKey.Challenge))
	}

	if err := s.sessions.Save(ctx, session); err != nil {
		return nil, WrapError("save session", err)
	}

	return &RegistrationOptions{
		SessionID: session.ID,
		ExpiresAt: session.ExpiresAt,
		PublicKey: publicKey,
	}, nil
}

// FinishRegistration completes a registration ceremony. The session is
// consumed on every terminal outcome, success or failure, so a session
// ID can never be replayed.
func (s *Service) FinishRegistration(ctx context.Context, sessionID string, response []byte) (*RegistrationResult, error) {
	if !s.configured {
		return nil, ErrNotConfigured
	}

	session, err := s.sessions.Consume(ctx, sessionID)
	if err != nil {
		return nil, WrapError("consume session", err)
	}
	if session.Kind != SessionKindRegistration {
		return nil, NewError("check session kind", ErrInvalidSession)
	}

	if err := s.checkPolicy(ctx, session.UserID, OpRegistration, response); err != nil {
		return nil, err
	}

	if err := s.verifyClientData(response, ceremonyTypeCreate, session); err != nil {
		return nil, err
	}

	user, err := s.users.Get(ctx, session.UserID)
	if err != nil {
		return nil, WrapError("get user", err)
	}

	verified, err := s.verifier.VerifyRegistration(ctx, newCeremonyUser(user, nil), s.librarySession(session, user.WebAuthnID()), response)
	if err != nil {
		return nil, err
	}

	cred := &Credential{
		ID:              verified.CredentialID,
		UserID:          user.UserID(),
		PublicKey:       verified.PublicKey,
		AttestationType: verified.AttestationType,
		Transport:       verified.Transport,
		TierLevel:       session.Tier,
		DeviceType:      DeviceTypeFromTransports(verified.Transport),
		Flags:           verified.Flags,
		Authenticator: AuthenticatorMeta{
			AAGUID:     verified.AAGUID,
			SignCount:  0,
			Attachment: verified.Attachment,
		},
		LibraryVerified: verified.LibraryVerified,
		CreatedAt:       time.Now().UTC(),
	}

	if err := s.creds.Save(ctx, cred); err != nil {
		return nil, WrapError("save credential", err)
	}

	token, err := s.issueToken(ctx, user)
	if err != nil {
		return nil, WrapError("issue token", err)
	}

	return &RegistrationResult{
		CredentialID:    cred.EncodedID(),
		UserID:          user.UserID(),
		TierLevel:       session.Tier,
		DeviceType:      cred.DeviceType,
		LibraryVerified: verified.LibraryVerified,
		Token:           token,
	}, nil
}

// BeginAuthentication starts an authentication ceremony at the given
// tier. An empty userID selects the usernameless (discoverable
// credential) flow: the allow list stays empty and the credential is
// resolved from the response at finish time. When a userID is given the
// allow list is that user's credentials registered at or above the
// requested tier.
func (s *Service) BeginAuthentication(ctx context.Context, userID string, tier Tier) (*AuthenticationOptions, error) {
	if !s.configured {
		return nil, ErrNotConfigured
	}
	if !tier.Valid() {
		return nil, NewError("validate tier", ErrInvalidTier)
	}

	var (
		allowList []protocol.CredentialDescriptor
		ceremony  webauthn.User
	)

	if userID != "" {
		user, err := s.users.Get(ctx, userID)
		if err != nil {
			return nil, WrapError("get user", err)
		}

		creds, err := s.creds.GetByUserID(ctx, userID)
		if err != nil {
			return nil, WrapError("get credentials", err)
		}

		eligible := make([]*Credential, 0, len(creds))
		for _, cred := range creds {
			if cred.TierLevel >= tier {
				eligible = append(eligible, cred)
			}
		}
		if len(eligible) == 0 {
			return nil, NewError("filter credentials by tier", ErrNoCredentials)
		}

		allowList = descriptorsFromCredentials(eligible)
		ceremony = newCeremonyUser(user, creds)
	}

	tierPolicy := PolicyForTier(tier)

	session, err := NewSession(SessionKindAuthentication, userID, tier, s.config.SessionTTL)
	if err != nil {
		return nil, WrapError("create session", err)
	}

	publicKey := buildRequestOptions(s.config, session, allowList, tierPolicy)
	if provider, ok := s.verifier.(OptionsProvider); ok {
		library, err := provider.RequestOptions(ceremony, allowList, tierPolicy)
		if err != nil {
			return nil, WrapError("generate request options", err)
		}
		publicKey = mergeRequestOptions(publicKey, *library)
		session.SetChallenge([]byte(publicKey.Challenge))
	}

	if err := s.sessions.Save(ctx, session); err != nil {
		return nil, WrapError("save session", err)
	}

	return &AuthenticationOptions{
		SessionID: session.ID,
		ExpiresAt: session.ExpiresAt,
		PublicKey: publicKey,
	}, nil
}

// FinishAuthentication completes an authentication ceremony. The
// asserted credential is resolved across all users, which is what makes
// the usernameless flow work; a session bound to a user rejects
// credentials owned by anyone else. The session is consumed on every
// terminal outcome.
func (s *Service) FinishAuthentication(ctx context.Context, sessionID string, response []byte) (*AuthenticationResult, error) {
	if !s.configured {
		return nil, ErrNotConfigured
	}

	session, err := s.sessions.Consume(ctx, sessionID)
	if err != nil {
		return nil, WrapError("consume session", err)
	}
	if session.Kind != SessionKindAuthentication {
		return nil, NewError("check session kind", ErrInvalidSession)
	}

	credentialID, err := assertedCredentialID(response)
	if err != nil {
		return nil, err
	}

	cred, err := s.creds.GetByCredentialID(ctx, credentialID)
	if err != nil {
		return nil, WrapError("resolve credential", err)
	}

	if session.UserID != "" && session.UserID != cred.UserID {
		return nil, NewError("check credential owner", ErrUserMismatch)
	}

	if err := s.checkPolicy(ctx, cred.UserID, OpAuthentication, response); err != nil {
		return nil, err
	}

	if err := s.verifyClientData(response, ceremonyTypeGet, session); err != nil {
		return nil, err
	}

	user, err := s.users.Get(ctx, cred.UserID)
	if err != nil {
		return nil, WrapError("get user", err)
	}

	userCreds, err := s.creds.GetByUserID(ctx, cred.UserID)
	if err != nil {
		return nil, WrapError("get credentials", err)
	}

	// Credentials without key material cannot be cryptographically
	// verified and always take the reduced assurance path.
	verifier := s.verifier
	if len(cred.PublicKey) == 0 {
		verifier = s.fallback
	}

	verified, err := verifier.VerifyAuthentication(ctx, newCeremonyUser(user, userCreds), cred, s.librarySession(session, user.WebAuthnID()), response)
	if err != nil {
		return nil, err
	}

	updated, err := s.commitAuthentication(ctx, cred.ID, verified)
	if err != nil {
		return nil, err
	}

	token, err := s.issueToken(ctx, user)
	if err != nil {
		return nil, WrapError("issue token", err)
	}

	return &AuthenticationResult{
		UserID:          updated.UserID,
		CredentialID:    updated.EncodedID(),
		TierLevel:       updated.TierLevel,
		DeviceType:      updated.DeviceType,
		SignCount:       updated.Authenticator.SignCount,
		LibraryVerified: verified.LibraryVerified,
		Token:           token,
	}, nil
}

// ListCredentials returns redacted credential metadata for a user.
// Listings never carry key material or full credential IDs.
func (s *Service) ListCredentials(ctx context.Context, userID string) ([]*CredentialSummary, error) {
	if !s.configured {
		return nil, ErrNotConfigured
	}

	creds, err := s.creds.GetByUserID(ctx, userID)
	if err != nil {
		return nil, WrapError("get credentials", err)
	}

	summaries := make([]*CredentialSummary, len(creds))
	for i, cred := range creds {
		summaries[i] = cred.Summary()
	}
	return summaries, nil
}

// RevokeCredential removes a single credential owned by the user. The
// credential ID is the URL-safe base64 form returned at registration.
// Revoking an unknown credential, or one owned by another user, returns
// ErrCredentialNotFound rather than silently succeeding.
func (s *Service) RevokeCredential(ctx context.Context, userID, credentialID string) error {
	if !s.configured {
		return ErrNotConfigured
	}

	id, err := decodeBase64URL(credentialID)
	if err != nil {
		return NewError("decode credential id", ErrCredentialNotFound)
	}

	cred, err := s.creds.GetByCredentialID(ctx, id)
	if err != nil {
		return WrapError("get credential", err)
	}
	if cred.UserID != userID {
		return NewError("check credential owner", ErrCredentialNotFound)
	}

	return WrapError("delete credential", s.creds.Delete(ctx, id))
}

// SweepExpired removes expired and corrupt pending sessions from the
// session store and reports how many entries were removed.
func (s *Service) SweepExpired(ctx context.Context) (*SweepReport, error) {
	if !s.configured {
		return nil, ErrNotConfigured
	}

	report, err := s.sessions.Sweep(ctx, time.Now().UTC())
	if err != nil {
		return nil, WrapError("sweep sessions", err)
	}
	return report, nil
}

// Health reports active credential counts, pending session counts, and
// the tier and device type distributions across stored credentials.
func (s *Service) Health(ctx context.Context) (*HealthReport, error) {
	if !s.configured {
		return nil, ErrNotConfigured
	}

	creds, err := s.creds.All(ctx)
	if err != nil {
		return nil, WrapError("list credentials", err)
	}

	pending, err := s.sessions.PendingCount(ctx)
	if err != nil {
		return nil, WrapError("count pending sessions", err)
	}

	report := &HealthReport{
		ActiveCredentials:      len(creds),
		PendingRegistrations:   pending[SessionKindRegistration],
		PendingAuthentications: pending[SessionKindAuthentication],
		TierDistribution:       make(map[Tier]int),
		DeviceDistribution:     make(map[DeviceType]int),
	}
	for _, cred := range creds {
		report.TierDistribution[cred.TierLevel]++
		report.DeviceDistribution[cred.DeviceType]++
	}
	return report, nil
}

// IsRegistered checks if a user has any registered credentials.
func (s *Service) IsRegistered(ctx context.Context, userID string) (bool, error) {
	if !s.configured {
		return false, ErrNotConfigured
	}

	if userID == "" {
		return false, nil
	}

	creds, err := s.creds.GetByUserID(ctx, userID)
	if err != nil {
		return false, WrapError("get credentials", err)
	}
	return len(creds) > 0, nil
}

// GetUser retrieves a user by identifier.
func (s *Service) GetUser(ctx context.Context, userID string) (User, error) {
	if !s.configured {
		return nil, ErrNotConfigured
	}

	return s.users.Get(ctx, userID)
}

// Config returns the service configuration.
func (s *Service) Config() *Config {
	return s.config
}

// checkPolicy runs the policy hook with the decoded response as the
// payload. A response that does not decode to a JSON object reaches the
// hook as a nil payload, which the default hook rejects.
func (s *Service) checkPolicy(ctx context.Context, userID string, op OperationKind, response []byte) error {
	var payload map[string]any
	if err := json.Unmarshal(response, &payload); err != nil {
		payload = nil
	}

	if err := s.policy.Check(ctx, userID, op, payload); err != nil {
		return NewError("policy check", fmt.Errorf("%w: %s", ErrPolicyRejected, err))
	}
	return nil
}

// verifyClientData decodes clientDataJSON from the response and checks
// the ceremony type, challenge, and origin against the session before
// any verifier runs. The challenge must match the session's encoded
// challenge exactly, and the origin must exactly match a configured
// relying party origin.
func (s *Service) verifyClientData(response []byte, wantType string, session *Session) error {
	var envelope credentialEnvelope
	if err := json.Unmarshal(response, &envelope); err != nil {
		return NewError("decode response envelope", ErrMalformedResponse)
	}
	if envelope.Response.ClientDataJSON == "" {
		return NewError("decode client data", ErrMalformedResponse)
	}

	raw, err := decodeBase64URL(envelope.Response.ClientDataJSON)
	if err != nil {
		return NewError("decode client data", ErrMalformedResponse)
	}

	var clientData collectedClientData
	if err := json.Unmarshal(raw, &clientData); err != nil {
		return NewError("decode client data", ErrMalformedResponse)
	}

	if clientData.Type != wantType {
		return NewError("check ceremony type", ErrMalformedResponse)
	}
	if clientData.Challenge != session.ChallengeEncoded {
		return NewError("check challenge", ErrChallengeMismatch)
	}
	if !s.config.AllowedOrigin(clientData.Origin) {
		return NewError("check origin", ErrOriginMismatch)
	}
	return nil
}

// commitAuthentication applies the verified counter update to the
// stored credential. Updates to a single credential are serialized by a
// per-credential lock, and the stored state is re-read inside the lock
// so two racing authentications cannot both apply stale counters. A
// counter regression on the verified path records a clone warning on
// the credential and fails the authentication without advancing the
// counter or last-used time.
func (s *Service) commitAuthentication(ctx context.Context, credID []byte, verified *VerifiedAuthentication) (*Credential, error) {
	lock := s.credentialLock(credID)
	lock.Lock()
	defer lock.Unlock()

	cred, err := s.creds.GetByCredentialID(ctx, credID)
	if err != nil {
		return nil, WrapError("get credential for update", err)
	}

	if verified.LibraryVerified {
		stored := cred.Authenticator.SignCount
		regressed := verified.NewSignCount <= stored && !(verified.NewSignCount == 0 && stored == 0)
		if verified.CloneWarning || regressed {
			cred.Authenticator.CloneWarning = true
			if err := s.creds.Update(ctx, cred); err != nil {
				return nil, WrapError("record clone warning", err)
			}
			return nil, NewError("check sign count", ErrClonedAuthenticator)
		}
		cred.Authenticator.SignCount = verified.NewSignCount
	} else {
		// Reduced assurance path: blind increment over the stored value.
		cred.Authenticator.SignCount++
	}

	cred.Flags.BackupEligible = verified.BackupEligible
	cred.Flags.BackupState = verified.BackupState
	cred.LastUsedAt = time.Now().UTC()

	if err := s.creds.Update(ctx, cred); err != nil {
		return nil, WrapError("update credential", err)
	}
	return cred, nil
}

// credentialLock returns the mutex serializing commits for a credential.
func (s *Service) credentialLock(credID []byte) *sync.Mutex {
	lock, _ := s.credLocks.LoadOrStore(credentialKey(credID), &sync.Mutex{})
	return lock.(*sync.Mutex)
}

// librarySession converts a stored session to the go-webauthn session
// shape consumed by the library verifier. The user verification
// requirement is re-derived from the session tier so the library
// enforces the UV flag for tiers that require it.
func (s *Service) librarySession(session *Session, userID []byte) webauthn.SessionData {
	return webauthn.SessionData{
		Challenge:        session.ChallengeEncoded,
		UserID:           userID,
		Expires:          session.ExpiresAt,
		UserVerification: PolicyForTier(session.Tier).UserVerification(),
	}
}

// assertedCredentialID extracts the credential ID the client asserted.
func assertedCredentialID(response []byte) ([]byte, error) {
	var envelope credentialEnvelope
	if err := json.Unmarshal(response, &envelope); err != nil {
		return nil, NewError("decode response envelope", ErrMalformedResponse)
	}
	return decodeCredentialID(&envelope)
}

// issueToken mints a post-ceremony token when an issuer is configured.
func (s *Service) issueToken(ctx context.Context, user User) (string, error) {
	if s.tokens == nil {
		return "", nil
	}
	return s.tokens.IssueToken(ctx, user)
}
