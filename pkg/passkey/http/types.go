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

package http

// HeaderSessionID is the header name for the session ID.
const HeaderSessionID = "X-Session-Id"

// BeginRegistrationRequest is the request body for starting registration.
type BeginRegistrationRequest struct {
	// UserID is the caller-assigned user identifier (required).
	UserID string `json:"user_id"`

	// Name is the user's account name (optional, defaults to user_id).
	Name string `json:"name,omitempty"`

	// DisplayName is the user's display name (optional, defaults to name).
	DisplayName string `json:"display_name,omitempty"`

	// Tier is the security tier to register at (0-5).
	Tier int `json:"tier"`
}

// BeginAuthenticationRequest is the request body for starting
// authentication.
type BeginAuthenticationRequest struct {
	// UserID is the caller-assigned user identifier (optional).
	// If not provided, the discoverable credentials flow is used.
	UserID string `json:"user_id,omitempty"`

	// Tier is the minimum security tier to authenticate at (0-5).
	Tier int `json:"tier"`
}

// RegistrationStatusResponse is the response for registration status.
type RegistrationStatusResponse struct {
	// Registered indicates if the user has registered credentials.
	Registered bool `json:"registered"`
}

// RevokeResponse is the response after revoking a credential.
type RevokeResponse struct {
	// Revoked indicates the credential was removed.
	Revoked bool `json:"revoked"`

	// CredentialID echoes the revoked credential ID.
	CredentialID string `json:"credential_id"`
}

// ErrorResponse is the response format for errors.
type ErrorResponse struct {
	// Error is the error code.
	Error string `json:"error"`

	// Message is a human-readable error message.
	Message string `json:"message"`
}

// Error codes returned in ErrorResponse.
const (
	ErrorCodeInvalidRequest      = "invalid_request"
	ErrorCodeInvalidSession      = "invalid_session"
	ErrorCodeSessionExpired      = "session_expired"
	ErrorCodeMalformedResponse   = "malformed_response"
	ErrorCodeChallengeMismatch   = "challenge_mismatch"
	ErrorCodeOriginMismatch      = "origin_mismatch"
	ErrorCodeUserMismatch        = "user_mismatch"
	ErrorCodeUserNotFound        = "user_not_found"
	ErrorCodeNoCredentials       = "no_credentials"
	ErrorCodeCredentialNotFound  = "credential_not_found"
	ErrorCodeCredentialExists    = "credential_exists"
	ErrorCodePolicyRejected      = "policy_rejected"
	ErrorCodeVerificationFailed  = "verification_failed"
	ErrorCodeUnsupportedFormat   = "unsupported_format"
	ErrorCodeClonedAuthenticator = "cloned_authenticator"
	ErrorCodeInvalidTier         = "invalid_tier"
	ErrorCodeInternalError       = "internal_error"
)
