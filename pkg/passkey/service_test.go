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
	"encoding/base64"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testOrigin = "https://example.com"

func validTestConfig() *Config {
	return &Config{
		RPID:          "example.com",
		RPDisplayName: "Example",
		RPOrigins:     []string{testOrigin},
	}
}

func newTestService(t *testing.T) *Service {
	svc, err := NewService(ServiceParams{
		Config:          validTestConfig(),
		UserStore:       NewMemoryUserStore(),
		SessionStore:    NewMemorySessionStore(),
		CredentialStore: NewMemoryCredentialStore(),
	})
	require.NoError(t, err)
	return svc
}

// registerTestCredential runs a full registration ceremony with the
// given authenticator.
func registerTestCredential(t *testing.T, svc *Service, mock *MockAuthenticator, userID string, tier Tier) *RegistrationResult {
	t.Helper()
	ctx := context.Background()

	opts, err := svc.BeginRegistration(ctx, userID, userID, userID, tier)
	require.NoError(t, err)

	attestation, err := mock.CreateAttestationResponse(opts.PublicKey.Challenge, testOrigin)
	require.NoError(t, err)

	result, err := svc.FinishRegistration(ctx, opts.SessionID, attestation)
	require.NoError(t, err)
	return result
}

// authenticateTestCredential runs a full authentication ceremony with
// the given authenticator.
func authenticateTestCredential(t *testing.T, svc *Service, mock *MockAuthenticator, userID string, tier Tier) *AuthenticationResult {
	t.Helper()
	ctx := context.Background()

	opts, err := svc.BeginAuthentication(ctx, userID, tier)
	require.NoError(t, err)

	assertion, err := mock.CreateAssertionResponse(opts.PublicKey.Challenge, []byte(userID), testOrigin)
	require.NoError(t, err)

	result, err := svc.FinishAuthentication(ctx, opts.SessionID, assertion)
	require.NoError(t, err)
	return result
}

type stubTokenIssuer struct {
	token string
	err   error
}

func (s *stubTokenIssuer) IssueToken(ctx context.Context, user User) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.token, nil
}

// recordingPolicyHook records every check it sees and optionally denies
// all of them.
type recordingPolicyHook struct {
	mu      sync.Mutex
	userIDs []string
	ops     []OperationKind
	deny    error
}

func (h *recordingPolicyHook) Check(ctx context.Context, userID string, op OperationKind, payload map[string]any) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.userIDs = append(h.userIDs, userID)
	h.ops = append(h.ops, op)
	return h.deny
}

func TestNewService(t *testing.T) {
	tests := []struct {
		name    string
		params  ServiceParams
		wantErr string
	}{
		{
			name:    "nil config",
			params:  ServiceParams{},
			wantErr: "config is required",
		},
		{
			name: "nil user store",
			params: ServiceParams{
				Config: validTestConfig(),
			},
			wantErr: "user store is required",
		},
		{
			name: "nil session store",
			params: ServiceParams{
				Config:    validTestConfig(),
				UserStore: NewMemoryUserStore(),
			},
			wantErr: "session store is required",
		},
		{
			name: "nil credential store",
			params: ServiceParams{
				Config:       validTestConfig(),
				UserStore:    NewMemoryUserStore(),
				SessionStore: NewMemorySessionStore(),
			},
			wantErr: "credential store is required",
		},
		{
			name: "invalid config",
			params: ServiceParams{
				Config:          &Config{},
				UserStore:       NewMemoryUserStore(),
				SessionStore:    NewMemorySessionStore(),
				CredentialStore: NewMemoryCredentialStore(),
			},
			wantErr: "invalid config",
		},
		{
			name: "valid params",
			params: ServiceParams{
				Config:          validTestConfig(),
				UserStore:       NewMemoryUserStore(),
				SessionStore:    NewMemorySessionStore(),
				CredentialStore: NewMemoryCredentialStore(),
			},
		},
		{
			name: "valid params with token issuer",
			params: ServiceParams{
				Config:          validTestConfig(),
				UserStore:       NewMemoryUserStore(),
				SessionStore:    NewMemorySessionStore(),
				CredentialStore: NewMemoryCredentialStore(),
				TokenIssuer:     &stubTokenIssuer{token: "token"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := NewService(tt.params)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.Nil(t, svc)
			} else {
				require.NoError(t, err)
				assert.NotNil(t, svc)
				assert.NotNil(t, svc.Config())
			}
		})
	}
}

func TestService_BeginRegistration(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	opts, err := svc.BeginRegistration(ctx, "test@example.com", "test", "Test User", 2)
	require.NoError(t, err)
	assert.NotEmpty(t, opts.SessionID)
	assert.True(t, opts.ExpiresAt.After(time.Now()))
	assert.Equal(t, "example.com", opts.PublicKey.RelyingParty.ID)
	assert.Equal(t, "test@example.com", opts.PublicKey.User.Name)
	assert.NotEmpty(t, opts.PublicKey.Challenge)

	// A second begin for the same user reuses the user record and mints
	// a distinct session and challenge.
	opts2, err := svc.BeginRegistration(ctx, "test@example.com", "test", "Test User", 2)
	require.NoError(t, err)
	assert.NotEqual(t, opts.SessionID, opts2.SessionID)
	assert.NotEqual(t, opts.PublicKey.Challenge, opts2.PublicKey.Challenge)
}

func TestService_BeginRegistration_Validation(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	_, err := svc.BeginRegistration(ctx, "", "name", "display", 1)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = svc.BeginRegistration(ctx, "test@example.com", "name", "display", 6)
	assert.ErrorIs(t, err, ErrInvalidTier)

	_, err = svc.BeginRegistration(ctx, "test@example.com", "name", "display", -1)
	assert.ErrorIs(t, err, ErrInvalidTier)
}

func TestService_BeginRegistration_TierShapesOptions(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	tests := []struct {
		tier           Tier
		wantUV         protocol.UserVerificationRequirement
		wantAttachment protocol.AuthenticatorAttachment
	}{
		{tier: 0, wantUV: protocol.VerificationPreferred},
		{tier: 1, wantUV: protocol.VerificationPreferred},
		{tier: 2, wantUV: protocol.VerificationRequired},
		{tier: 3, wantUV: protocol.VerificationRequired, wantAttachment: protocol.Platform},
		{tier: 5, wantUV: protocol.VerificationRequired, wantAttachment: protocol.Platform},
	}

	for _, tt := range tests {
		opts, err := svc.BeginRegistration(ctx, "tiers@example.com", "tiers", "Tiers", tt.tier)
		require.NoError(t, err)

		selection := opts.PublicKey.AuthenticatorSelection
		assert.Equal(t, tt.wantUV, selection.UserVerification, "tier %d", tt.tier)
		assert.Equal(t, tt.wantAttachment, selection.AuthenticatorAttachment, "tier %d", tt.tier)
	}
}

func TestService_BeginRegistration_ExcludeListAccumulates(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	mock1, err := NewMockAuthenticator("example.com")
	require.NoError(t, err)
	mock2, err := NewMockAuthenticator("example.com")
	require.NoError(t, err)

	first := registerTestCredential(t, svc, mock1, "u1", TierMin)
	second := registerTestCredential(t, svc, mock2, "u1", TierMin)

	opts, err := svc.BeginRegistration(ctx, "u1", "u1", "u1", TierMin)
	require.NoError(t, err)

	var got []string
	for _, desc := range opts.PublicKey.CredentialExcludeList {
		got = append(got, base64.RawURLEncoding.EncodeToString(desc.CredentialID))
	}
	assert.ElementsMatch(t, []string{first.CredentialID, second.CredentialID}, got)
}

func TestService_FinishRegistration_Success(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	mock, err := NewMockAuthenticator("example.com")
	require.NoError(t, err)

	result := registerTestCredential(t, svc, mock, "alice@example.com", 2)
	assert.Equal(t, "alice@example.com", result.UserID)
	assert.Equal(t, Tier(2), result.TierLevel)
	assert.Equal(t, DeviceUSB, result.DeviceType)
	assert.True(t, result.LibraryVerified)
	assert.Empty(t, result.Token)

	// The stored credential carries the verified key material and tier.
	cred, err := svc.creds.GetByCredentialID(ctx, mock.CredentialID)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", cred.UserID)
	assert.NotEmpty(t, cred.PublicKey)
	assert.Equal(t, Tier(2), cred.TierLevel)
	assert.Equal(t, uint32(0), cred.Authenticator.SignCount)
	assert.True(t, cred.Flags.UserPresent)
	assert.True(t, cred.Flags.UserVerified)
	assert.False(t, cred.CreatedAt.IsZero())
}

func TestService_FinishRegistration_SessionSingleUse(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	mock, err := NewMockAuthenticator("example.com")
	require.NoError(t, err)

	opts, err := svc.BeginRegistration(ctx, "replay@example.com", "replay", "Replay", 1)
	require.NoError(t, err)

	attestation, err := mock.CreateAttestationResponse(opts.PublicKey.Challenge, testOrigin)
	require.NoError(t, err)

	_, err = svc.FinishRegistration(ctx, opts.SessionID, attestation)
	require.NoError(t, err)

	_, err = svc.FinishRegistration(ctx, opts.SessionID, attestation)
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestService_FinishRegistration_FailureConsumesSession(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	mock, err := NewMockAuthenticator("example.com")
	require.NoError(t, err)

	opts, err := svc.BeginRegistration(ctx, "burned@example.com", "burned", "Burned", 1)
	require.NoError(t, err)

	// First attempt fails on a malformed body. The session must be gone
	// afterwards even though nothing was registered.
	_, err = svc.FinishRegistration(ctx, opts.SessionID, []byte("{}"))
	assert.ErrorIs(t, err, ErrMalformedResponse)

	attestation, err := mock.CreateAttestationResponse(opts.PublicKey.Challenge, testOrigin)
	require.NoError(t, err)

	_, err = svc.FinishRegistration(ctx, opts.SessionID, attestation)
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestService_FinishRegistration_ExpiredSession(t *testing.T) {
	ctx := context.Background()

	svc, err := NewService(ServiceParams{
		Config: &Config{
			RPID:          "example.com",
			RPDisplayName: "Example",
			RPOrigins:     []string{testOrigin},
			SessionTTL:    5 * time.Millisecond,
		},
		UserStore:       NewMemoryUserStore(),
		SessionStore:    NewMemorySessionStore(),
		CredentialStore: NewMemoryCredentialStore(),
	})
	require.NoError(t, err)

	mock, err := NewMockAuthenticator("example.com")
	require.NoError(t, err)

	opts, err := svc.BeginRegistration(ctx, "late@example.com", "late", "Late", 1)
	require.NoError(t, err)

	attestation, err := mock.CreateAttestationResponse(opts.PublicKey.Challenge, testOrigin)
	require.NoError(t, err)

	time.Sleep(25 * time.Millisecond)

	_, err = svc.FinishRegistration(ctx, opts.SessionID, attestation)
	assert.ErrorIs(t, err, ErrSessionExpired)

	// The expired consume removed the entry; a retry is indistinguishable
	// from an unknown session.
	_, err = svc.FinishRegistration(ctx, opts.SessionID, attestation)
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestService_FinishRegistration_ChallengeMismatch(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	mock, err := NewMockAuthenticator("example.com")
	require.NoError(t, err)

	opts, err := svc.BeginRegistration(ctx, "challenge@example.com", "c", "C", 1)
	require.NoError(t, err)

	attestation, err := mock.CreateAttestationResponse([]byte("attacker-chosen-challenge"), testOrigin)
	require.NoError(t, err)

	_, err = svc.FinishRegistration(ctx, opts.SessionID, attestation)
	assert.ErrorIs(t, err, ErrChallengeMismatch)
}

func TestService_FinishRegistration_OriginMismatch(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	mock, err := NewMockAuthenticator("example.com")
	require.NoError(t, err)

	opts, err := svc.BeginRegistration(ctx, "origin@example.com", "o", "O", 1)
	require.NoError(t, err)

	attestation, err := mock.CreateAttestationResponse(opts.PublicKey.Challenge, "https://evil.example.net")
	require.NoError(t, err)

	_, err = svc.FinishRegistration(ctx, opts.SessionID, attestation)
	assert.ErrorIs(t, err, ErrOriginMismatch)
}

func TestService_FinishRegistration_PolicyHook(t *testing.T) {
	ctx := context.Background()

	hook := &recordingPolicyHook{deny: errors.New("tenant suspended")}
	svc, err := NewService(ServiceParams{
		Config:          validTestConfig(),
		UserStore:       NewMemoryUserStore(),
		SessionStore:    NewMemorySessionStore(),
		CredentialStore: NewMemoryCredentialStore(),
		PolicyHook:      hook,
	})
	require.NoError(t, err)

	mock, err := NewMockAuthenticator("example.com")
	require.NoError(t, err)

	opts, err := svc.BeginRegistration(ctx, "denied@example.com", "denied", "Denied", 1)
	require.NoError(t, err)

	attestation, err := mock.CreateAttestationResponse(opts.PublicKey.Challenge, testOrigin)
	require.NoError(t, err)

	_, err = svc.FinishRegistration(ctx, opts.SessionID, attestation)
	assert.ErrorIs(t, err, ErrPolicyRejected)
	assert.Contains(t, err.Error(), "tenant suspended")

	// The hook saw the session's user and operation kind.
	require.Len(t, hook.userIDs, 1)
	assert.Equal(t, "denied@example.com", hook.userIDs[0])
	assert.Equal(t, OpRegistration, hook.ops[0])

	// Nothing was stored and the session is gone.
	creds, err := svc.ListCredentials(ctx, "denied@example.com")
	require.NoError(t, err)
	assert.Empty(t, creds)

	_, err = svc.FinishRegistration(ctx, opts.SessionID, attestation)
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestService_FinishRegistration_WrongSessionKind(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	mock, err := NewMockAuthenticator("example.com")
	require.NoError(t, err)

	authOpts, err := svc.BeginAuthentication(ctx, "", 0)
	require.NoError(t, err)

	attestation, err := mock.CreateAttestationResponse(authOpts.PublicKey.Challenge, testOrigin)
	require.NoError(t, err)

	_, err = svc.FinishRegistration(ctx, authOpts.SessionID, attestation)
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestService_FinishRegistration_DuplicateCredential(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	mock, err := NewMockAuthenticator("example.com")
	require.NoError(t, err)
	registerTestCredential(t, svc, mock, "dup@example.com", 1)

	// Same authenticator, fresh session: the store rejects the second
	// copy of the credential ID.
	opts, err := svc.BeginRegistration(ctx, "dup@example.com", "dup", "Dup", 1)
	require.NoError(t, err)

	attestation, err := mock.CreateAttestationResponse(opts.PublicKey.Challenge, testOrigin)
	require.NoError(t, err)

	_, err = svc.FinishRegistration(ctx, opts.SessionID, attestation)
	assert.ErrorIs(t, err, ErrCredentialAlreadyExists)
}

func TestService_BeginAuthentication(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	mock, err := NewMockAuthenticator("example.com")
	require.NoError(t, err)
	registerTestCredential(t, svc, mock, "alice@example.com", 2)

	t.Run("allow list for known user", func(t *testing.T) {
		opts, err := svc.BeginAuthentication(ctx, "alice@example.com", 2)
		require.NoError(t, err)
		assert.NotEmpty(t, opts.SessionID)
		require.Len(t, opts.PublicKey.AllowedCredentials, 1)
		assert.Equal(t, mock.CredentialID, []byte(opts.PublicKey.AllowedCredentials[0].CredentialID))
		assert.Equal(t, protocol.VerificationRequired, opts.PublicKey.UserVerification)
	})

	t.Run("discoverable flow", func(t *testing.T) {
		opts, err := svc.BeginAuthentication(ctx, "", 0)
		require.NoError(t, err)
		assert.Empty(t, opts.PublicKey.AllowedCredentials)
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := svc.BeginAuthentication(ctx, "nobody@example.com", 0)
		assert.True(t, IsUserNotFound(err))
	})

	t.Run("tier filter excludes lower tier credentials", func(t *testing.T) {
		_, err := svc.BeginAuthentication(ctx, "alice@example.com", 4)
		assert.ErrorIs(t, err, ErrNoCredentials)
	})

	t.Run("invalid tier", func(t *testing.T) {
		_, err := svc.BeginAuthentication(ctx, "alice@example.com", 9)
		assert.ErrorIs(t, err, ErrInvalidTier)
	})
}

func TestService_FinishAuthentication_Success(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	mock, err := NewMockAuthenticator("example.com")
	require.NoError(t, err)
	reg := registerTestCredential(t, svc, mock, "alice@example.com", 2)

	result := authenticateTestCredential(t, svc, mock, "alice@example.com", 2)
	assert.Equal(t, "alice@example.com", result.UserID)
	assert.Equal(t, reg.CredentialID, result.CredentialID)
	assert.Equal(t, Tier(2), result.TierLevel)
	assert.Equal(t, uint32(1), result.SignCount)
	assert.True(t, result.LibraryVerified)

	// The stored counter and last-used time advanced.
	cred, err := svc.creds.GetByCredentialID(ctx, mock.CredentialID)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), cred.Authenticator.SignCount)
	assert.False(t, cred.LastUsedAt.IsZero())
	assert.False(t, cred.Authenticator.CloneWarning)

	// Counters keep advancing across ceremonies.
	result = authenticateTestCredential(t, svc, mock, "alice@example.com", 2)
	assert.Equal(t, uint32(2), result.SignCount)
}

func TestService_FinishAuthentication_SessionRace(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	mock, err := NewMockAuthenticator("example.com")
	require.NoError(t, err)
	registerTestCredential(t, svc, mock, "race@example.com", 1)

	opts, err := svc.BeginAuthentication(ctx, "race@example.com", 1)
	require.NoError(t, err)

	assertion, err := mock.CreateAssertionResponse(opts.PublicKey.Challenge, []byte("race@example.com"), testOrigin)
	require.NoError(t, err)

	// Two callers race to finish the same session. Exactly one may win;
	// the other must observe the session as already consumed.
	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = svc.FinishAuthentication(ctx, opts.SessionID, assertion)
		}(i)
	}
	wg.Wait()

	var wins, consumed int
	for _, err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrInvalidSession):
			consumed++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, consumed)
}

func TestService_FinishAuthentication_UnknownCredential(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	stranger, err := NewMockAuthenticator("example.com")
	require.NoError(t, err)

	opts, err := svc.BeginAuthentication(ctx, "", 0)
	require.NoError(t, err)

	assertion, err := stranger.CreateAssertionResponse(opts.PublicKey.Challenge, nil, testOrigin)
	require.NoError(t, err)

	_, err = svc.FinishAuthentication(ctx, opts.SessionID, assertion)
	assert.ErrorIs(t, err, ErrCredentialNotFound)
}

func TestService_FinishAuthentication_UserMismatch(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	aliceMock, err := NewMockAuthenticator("example.com")
	require.NoError(t, err)
	registerTestCredential(t, svc, aliceMock, "alice@example.com", 1)

	bobMock, err := NewMockAuthenticator("example.com")
	require.NoError(t, err)
	registerTestCredential(t, svc, bobMock, "bob@example.com", 1)

	// Alice's session answered with Bob's credential.
	opts, err := svc.BeginAuthentication(ctx, "alice@example.com", 1)
	require.NoError(t, err)

	assertion, err := bobMock.CreateAssertionResponse(opts.PublicKey.Challenge, []byte("bob@example.com"), testOrigin)
	require.NoError(t, err)

	_, err = svc.FinishAuthentication(ctx, opts.SessionID, assertion)
	assert.ErrorIs(t, err, ErrUserMismatch)

	// Bob's counter did not move.
	cred, err := svc.creds.GetByCredentialID(ctx, bobMock.CredentialID)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), cred.Authenticator.SignCount)
}

func TestService_FinishAuthentication_CloneDetection(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	mock, err := NewMockAuthenticator("example.com")
	require.NoError(t, err)
	registerTestCredential(t, svc, mock, "cloned@example.com", 1)

	// Legitimate authentication advances the counter to 1.
	authenticateTestCredential(t, svc, mock, "cloned@example.com", 1)

	// A cloned device replays the old counter state.
	mock.SetSignCount(0)

	opts, err := svc.BeginAuthentication(ctx, "cloned@example.com", 1)
	require.NoError(t, err)

	assertion, err := mock.CreateAssertionResponse(opts.PublicKey.Challenge, []byte("cloned@example.com"), testOrigin)
	require.NoError(t, err)

	_, err = svc.FinishAuthentication(ctx, opts.SessionID, assertion)
	assert.ErrorIs(t, err, ErrClonedAuthenticator)

	// The warning is recorded and the counter did not advance.
	cred, err := svc.creds.GetByCredentialID(ctx, mock.CredentialID)
	require.NoError(t, err)
	assert.True(t, cred.Authenticator.CloneWarning)
	assert.Equal(t, uint32(1), cred.Authenticator.SignCount)
}

func TestService_FinishAuthentication_PolicySeesResolvedUser(t *testing.T) {
	ctx := context.Background()

	hook := &recordingPolicyHook{}
	svc, err := NewService(ServiceParams{
		Config:          validTestConfig(),
		UserStore:       NewMemoryUserStore(),
		SessionStore:    NewMemorySessionStore(),
		CredentialStore: NewMemoryCredentialStore(),
		PolicyHook:      hook,
	})
	require.NoError(t, err)

	mock, err := NewMockAuthenticator("example.com", WithResidentKey(true))
	require.NoError(t, err)
	registerTestCredential(t, svc, mock, "carol@example.com", 2)

	// Usernameless session: the hook must still receive the credential
	// owner, resolved from the response, never an empty user.
	opts, err := svc.BeginAuthentication(ctx, "", 2)
	require.NoError(t, err)

	assertion, err := mock.CreateAssertionResponse(opts.PublicKey.Challenge, []byte("carol@example.com"), testOrigin)
	require.NoError(t, err)

	result, err := svc.FinishAuthentication(ctx, opts.SessionID, assertion)
	require.NoError(t, err)
	assert.Equal(t, "carol@example.com", result.UserID)

	require.NotEmpty(t, hook.userIDs)
	for _, userID := range hook.userIDs {
		assert.Equal(t, "carol@example.com", userID)
	}
	assert.Equal(t, OpAuthentication, hook.ops[len(hook.ops)-1])
}

func TestService_FallbackVerifier_ExplicitStrategy(t *testing.T) {
	ctx := context.Background()

	svc, err := NewService(ServiceParams{
		Config:          validTestConfig(),
		UserStore:       NewMemoryUserStore(),
		SessionStore:    NewMemorySessionStore(),
		CredentialStore: NewMemoryCredentialStore(),
		Verifier:        NewFallbackVerifier(),
	})
	require.NoError(t, err)

	mock, err := NewMockAuthenticator("example.com")
	require.NoError(t, err)

	// Registration stores the client-asserted credential without key
	// material and marks it unverified.
	reg := registerTestCredential(t, svc, mock, "fallback@example.com", 1)
	assert.False(t, reg.LibraryVerified)

	cred, err := svc.creds.GetByCredentialID(ctx, mock.CredentialID)
	require.NoError(t, err)
	assert.Empty(t, cred.PublicKey)
	assert.False(t, cred.LibraryVerified)

	// Authentication takes the reduced assurance path: counter is a
	// blind increment over the stored value.
	result := authenticateTestCredential(t, svc, mock, "fallback@example.com", 1)
	assert.False(t, result.LibraryVerified)
	assert.Equal(t, uint32(1), result.SignCount)

	result = authenticateTestCredential(t, svc, mock, "fallback@example.com", 1)
	assert.Equal(t, uint32(2), result.SignCount)
}

func TestService_FallbackVerifier_KeylessCredential(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	// A credential imported without key material, e.g. migrated from a
	// system that never stored public keys.
	_, err := svc.users.Create(ctx, "legacy@example.com", "legacy", "Legacy")
	require.NoError(t, err)

	mock, err := NewMockAuthenticator("example.com")
	require.NoError(t, err)

	err = svc.creds.Save(ctx, &Credential{
		ID:        mock.CredentialID,
		UserID:    "legacy@example.com",
		TierLevel: 1,
		Authenticator: AuthenticatorMeta{
			SignCount: 41,
		},
	})
	require.NoError(t, err)

	// Even though the service verifier is the library one, a keyless
	// credential routes through the fallback.
	result := authenticateTestCredential(t, svc, mock, "legacy@example.com", 1)
	assert.False(t, result.LibraryVerified)
	assert.Equal(t, uint32(42), result.SignCount)

	cred, err := svc.creds.GetByCredentialID(ctx, mock.CredentialID)
	require.NoError(t, err)
	assert.Equal(t, uint32(42), cred.Authenticator.SignCount)
}

func TestService_ListCredentials(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	// Unknown users list empty, not an error.
	summaries, err := svc.ListCredentials(ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.Empty(t, summaries)

	mock, err := NewMockAuthenticator("example.com")
	require.NoError(t, err)
	reg := registerTestCredential(t, svc, mock, "alice@example.com", 3)

	summaries, err = svc.ListCredentials(ctx, "alice@example.com")
	require.NoError(t, err)
	require.Len(t, summaries, 1)

	summary := summaries[0]
	assert.Equal(t, Tier(3), summary.TierLevel)
	assert.Equal(t, uint32(0), summary.SignCount)
	assert.NotEqual(t, reg.CredentialID, summary.CredentialID)
	assert.Contains(t, reg.CredentialID, summary.CredentialID[:len(summary.CredentialID)-3])
}

func TestService_RevokeCredential(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	mock, err := NewMockAuthenticator("example.com")
	require.NoError(t, err)
	reg := registerTestCredential(t, svc, mock, "alice@example.com", 1)

	t.Run("unknown credential", func(t *testing.T) {
		err := svc.RevokeCredential(ctx, "alice@example.com", "bm8tc3VjaC1jcmVkZW50aWFs")
		assert.True(t, IsCredentialNotFound(err))
	})

	t.Run("undecodable credential id", func(t *testing.T) {
		err := svc.RevokeCredential(ctx, "alice@example.com", "!!!not-base64!!!")
		assert.True(t, IsCredentialNotFound(err))
	})

	t.Run("credential owned by another user", func(t *testing.T) {
		err := svc.RevokeCredential(ctx, "mallory@example.com", reg.CredentialID)
		assert.True(t, IsCredentialNotFound(err))

		// Still present for the real owner.
		summaries, err := svc.ListCredentials(ctx, "alice@example.com")
		require.NoError(t, err)
		assert.Len(t, summaries, 1)
	})

	t.Run("success", func(t *testing.T) {
		err := svc.RevokeCredential(ctx, "alice@example.com", reg.CredentialID)
		require.NoError(t, err)

		summaries, err := svc.ListCredentials(ctx, "alice@example.com")
		require.NoError(t, err)
		assert.Empty(t, summaries)

		err = svc.RevokeCredential(ctx, "alice@example.com", reg.CredentialID)
		assert.True(t, IsCredentialNotFound(err))
	})
}

func TestService_SweepExpired(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	expired := func(kind SessionKind) *Session {
		session, err := NewSession(kind, "sweep@example.com", 1, time.Minute)
		require.NoError(t, err)
		session.ExpiresAt = time.Now().Add(-time.Minute)
		return session
	}

	require.NoError(t, svc.sessions.Save(ctx, expired(SessionKindRegistration)))
	require.NoError(t, svc.sessions.Save(ctx, expired(SessionKindRegistration)))
	require.NoError(t, svc.sessions.Save(ctx, expired(SessionKindAuthentication)))

	live, err := NewSession(SessionKindRegistration, "sweep@example.com", 1, time.Hour)
	require.NoError(t, err)
	require.NoError(t, svc.sessions.Save(ctx, live))

	report, err := svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.RegistrationsRemoved)
	assert.Equal(t, 1, report.AuthenticationsRemoved)
	assert.Equal(t, 0, report.CorruptRemoved)
	assert.Equal(t, 3, report.Total())

	// The live session survived the sweep.
	pending, err := svc.sessions.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, pending[SessionKindRegistration])
	assert.Equal(t, 0, pending[SessionKindAuthentication])

	report, err = svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Total())
}

func TestService_Health(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	report, err := svc.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.ActiveCredentials)
	assert.Empty(t, report.TierDistribution)
	assert.Empty(t, report.DeviceDistribution)

	usbMock, err := NewMockAuthenticator("example.com")
	require.NoError(t, err)
	registerTestCredential(t, svc, usbMock, "usb@example.com", 2)

	platformMock, err := NewMockAuthenticator("example.com", WithTransports(protocol.Internal))
	require.NoError(t, err)
	registerTestCredential(t, svc, platformMock, "platform@example.com", 3)

	// One pending session of each kind.
	_, err = svc.BeginRegistration(ctx, "pending@example.com", "p", "P", 1)
	require.NoError(t, err)
	_, err = svc.BeginAuthentication(ctx, "", 0)
	require.NoError(t, err)

	report, err = svc.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.ActiveCredentials)
	assert.Equal(t, 1, report.PendingRegistrations)
	assert.Equal(t, 1, report.PendingAuthentications)
	assert.Equal(t, map[Tier]int{2: 1, 3: 1}, report.TierDistribution)
	assert.Equal(t, map[DeviceType]int{DeviceUSB: 1, DevicePlatform: 1}, report.DeviceDistribution)
}

func TestService_IsRegistered(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	registered, err := svc.IsRegistered(ctx, "")
	require.NoError(t, err)
	assert.False(t, registered)

	registered, err = svc.IsRegistered(ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.False(t, registered)

	// A begun but unfinished registration does not count.
	_, err = svc.BeginRegistration(ctx, "pending@example.com", "p", "P", 1)
	require.NoError(t, err)
	registered, err = svc.IsRegistered(ctx, "pending@example.com")
	require.NoError(t, err)
	assert.False(t, registered)

	mock, err := NewMockAuthenticator("example.com")
	require.NoError(t, err)
	registerTestCredential(t, svc, mock, "done@example.com", 1)

	registered, err = svc.IsRegistered(ctx, "done@example.com")
	require.NoError(t, err)
	assert.True(t, registered)
}

func TestService_GetUser(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	_, err := svc.GetUser(ctx, "nobody@example.com")
	assert.True(t, IsUserNotFound(err))

	_, err = svc.BeginRegistration(ctx, "alice@example.com", "alice", "Alice A.", 1)
	require.NoError(t, err)

	user, err := svc.GetUser(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", user.UserID())
	assert.Equal(t, "alice", user.WebAuthnName())
	assert.Equal(t, "Alice A.", user.WebAuthnDisplayName())
}

func TestService_TokenIssuer(t *testing.T) {
	svc, err := NewService(ServiceParams{
		Config:          validTestConfig(),
		UserStore:       NewMemoryUserStore(),
		SessionStore:    NewMemorySessionStore(),
		CredentialStore: NewMemoryCredentialStore(),
		TokenIssuer:     &stubTokenIssuer{token: "issued-token"},
	})
	require.NoError(t, err)

	mock, err := NewMockAuthenticator("example.com")
	require.NoError(t, err)

	reg := registerTestCredential(t, svc, mock, "token@example.com", 1)
	assert.Equal(t, "issued-token", reg.Token)

	auth := authenticateTestCredential(t, svc, mock, "token@example.com", 1)
	assert.Equal(t, "issued-token", auth.Token)
}

func TestService_NotConfigured(t *testing.T) {
	ctx := context.Background()
	svc := &Service{}

	_, err := svc.BeginRegistration(ctx, "u", "n", "d", 1)
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = svc.FinishRegistration(ctx, "session", nil)
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = svc.BeginAuthentication(ctx, "u", 1)
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = svc.FinishAuthentication(ctx, "session", nil)
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = svc.ListCredentials(ctx, "u")
	assert.ErrorIs(t, err, ErrNotConfigured)

	err = svc.RevokeCredential(ctx, "u", "cred")
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = svc.SweepExpired(ctx)
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = svc.Health(ctx)
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = svc.IsRegistered(ctx, "u")
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = svc.GetUser(ctx, "u")
	assert.ErrorIs(t, err, ErrNotConfigured)
}
