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
	"errors"
	"fmt"
)

// Sentinel errors for passkey operations. All of these are recoverable
// request-level failures, never process-fatal.
var (
	// ErrInvalidSession is returned when a session ID is unknown or has
	// already been consumed.
	ErrInvalidSession = errors.New("invalid session id")

	// ErrSessionExpired is returned when a session exists but its
	// expiry deadline has passed.
	ErrSessionExpired = errors.New("session expired")

	// ErrMalformedResponse is returned when a client ceremony response
	// cannot be decoded or carries the wrong ceremony type.
	ErrMalformedResponse = errors.New("malformed ceremony response")

	// ErrChallengeMismatch is returned when the challenge echoed in
	// clientDataJSON differs from the challenge bound to the session.
	ErrChallengeMismatch = errors.New("challenge mismatch")

	// ErrOriginMismatch is returned when the origin in clientDataJSON is
	// not one of the configured relying party origins.
	ErrOriginMismatch = errors.New("origin mismatch")

	// ErrUserMismatch is returned when a session is bound to one user but
	// the asserted credential belongs to another.
	ErrUserMismatch = errors.New("credential does not belong to session user")

	// ErrUserNotFound is returned when a user cannot be found.
	ErrUserNotFound = errors.New("user not found")

	// ErrUserAlreadyExists is returned when attempting to create a user that already exists.
	ErrUserAlreadyExists = errors.New("user already exists")

	// ErrCredentialNotFound is returned when a credential cannot be found.
	ErrCredentialNotFound = errors.New("credential not found")

	// ErrCredentialAlreadyExists is returned when attempting to register a duplicate credential.
	ErrCredentialAlreadyExists = errors.New("credential already exists")

	// ErrPolicyRejected is returned when the policy hook denies an operation.
	ErrPolicyRejected = errors.New("rejected by policy")

	// ErrVerificationFailed is returned when signature or attestation
	// verification fails.
	ErrVerificationFailed = errors.New("verification failed")

	// ErrUnsupportedFormat is returned when a response uses an attestation
	// or assertion format the verifier does not support.
	ErrUnsupportedFormat = errors.New("unsupported response format")

	// ErrClonedAuthenticator is returned when the reported sign count
	// regressed, indicating a possible cloned authenticator.
	ErrClonedAuthenticator = errors.New("cloned authenticator detected")

	// ErrInvalidTier is returned when a requested tier is outside 0-5.
	ErrInvalidTier = errors.New("invalid security tier")

	// ErrInvalidRequest is returned when required request fields are
	// missing or unusable.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrNoCredentials is returned when a user has no registered credentials.
	ErrNoCredentials = errors.New("user has no registered credentials")

	// ErrNotConfigured is returned when the service is not properly configured.
	ErrNotConfigured = errors.New("passkey service not configured")
)

// PasskeyError wraps an error with the operation that produced it.
type PasskeyError struct {
	Op  string // Operation that failed
	Err error  // Underlying error
}

// Error returns the error message.
func (e *PasskeyError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *PasskeyError) Unwrap() error {
	return e.Err
}

// Is reports whether the target error matches.
func (e *PasskeyError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewError creates a new PasskeyError with the given operation and error.
func NewError(op string, err error) error {
	return &PasskeyError{
		Op:  op,
		Err: err,
	}
}

// WrapError wraps an error with an operation name if it's not nil.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	return NewError(op, err)
}

// IsInvalidSession returns true if the error indicates an unknown or
// already consumed session.
func IsInvalidSession(err error) bool {
	return errors.Is(err, ErrInvalidSession)
}

// IsSessionExpired returns true if the error indicates a session has expired.
func IsSessionExpired(err error) bool {
	return errors.Is(err, ErrSessionExpired)
}

// IsUserNotFound returns true if the error indicates a user was not found.
func IsUserNotFound(err error) bool {
	return errors.Is(err, ErrUserNotFound)
}

// IsCredentialNotFound returns true if the error indicates a credential was not found.
func IsCredentialNotFound(err error) bool {
	return errors.Is(err, ErrCredentialNotFound)
}

// IsPolicyRejected returns true if the error indicates the policy hook
// denied the operation.
func IsPolicyRejected(err error) bool {
	return errors.Is(err, ErrPolicyRejected)
}

// IsVerificationFailed returns true if the error indicates verification failed.
func IsVerificationFailed(err error) bool {
	return errors.Is(err, ErrVerificationFailed)
}
