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
	"time"
)

// UserStore is the interface applications implement for user persistence.
// This interface is intentionally minimal - applications bring their own
// user model.
type UserStore interface {
	// Get retrieves a user by identifier.
	// Returns ErrUserNotFound if the user does not exist.
	Get(ctx context.Context, userID string) (User, error)

	// Create creates a new user with the given identity.
	// Returns ErrUserAlreadyExists if the identifier is taken.
	Create(ctx context.Context, userID, name, displayName string) (User, error)
}

// SessionStore manages pending ceremony sessions. Sessions are
// short-lived and strictly single-use: Consume atomically removes the
// session it returns, so two concurrent consumers of the same ID observe
// exactly one success.
type SessionStore interface {
	// Save persists a pending session under its ID.
	Save(ctx context.Context, session *Session) error

	// Consume atomically removes and returns a session.
	// Returns ErrInvalidSession when the ID is unknown or already
	// consumed, and ErrSessionExpired when the session deadline passed
	// (the entry is removed in that case too).
	Consume(ctx context.Context, sessionID string) (*Session, error)

	// Sweep removes sessions whose deadline passed at the given instant,
	// along with entries that fail to deserialize. It reports how many
	// entries of each kind were removed and how many were corrupt.
	Sweep(ctx context.Context, now time.Time) (*SweepReport, error)

	// PendingCount reports outstanding sessions per ceremony kind.
	PendingCount(ctx context.Context) (map[SessionKind]int, error)
}

// CredentialStore manages registered credential persistence. Credential
// IDs are globally unique across users; GetByCredentialID resolves a
// credential without knowing its owner, which is what enables the
// usernameless authentication flow.
type CredentialStore interface {
	// Save stores a new credential.
	// Returns ErrCredentialAlreadyExists on a duplicate credential ID.
	Save(ctx context.Context, cred *Credential) error

	// GetByUserID retrieves all credentials owned by a user.
	// Returns an empty slice if the user has no credentials.
	GetByUserID(ctx context.Context, userID string) ([]*Credential, error)

	// GetByCredentialID retrieves a credential by its ID, searching
	// across all users.
	// Returns ErrCredentialNotFound if the credential does not exist.
	GetByCredentialID(ctx context.Context, credID []byte) (*Credential, error)

	// Update updates an existing credential (sign counter, last used).
	// Returns ErrCredentialNotFound if the credential does not exist.
	Update(ctx context.Context, cred *Credential) error

	// Delete removes a credential by its ID.
	// Returns ErrCredentialNotFound if the credential does not exist.
	Delete(ctx context.Context, credID []byte) error

	// All returns every stored credential. Used by health reporting to
	// build tier and device distributions.
	All(ctx context.Context) ([]*Credential, error)
}

// OperationKind names the ceremony flow a policy check applies to.
type OperationKind string

// Operation kinds accepted by the policy hook.
const (
	OpRegistration   OperationKind = "registration"
	OpAuthentication OperationKind = "authentication"
)

// Valid reports whether the operation kind names a known flow.
func (k OperationKind) Valid() bool {
	return k == OpRegistration || k == OpAuthentication
}

// PolicyHook is a pluggable pre-check gate consulted before any ceremony
// response is accepted. It is defense-in-depth only and never substitutes
// for challenge, origin, or signature verification.
type PolicyHook interface {
	// Check returns nil to allow the operation or an error (wrapped as
	// ErrPolicyRejected by the service) to deny it.
	Check(ctx context.Context, userID string, op OperationKind, payload map[string]any) error
}

// TokenIssuer is an optional interface for minting tokens after a
// successful ceremony. When nil the service omits tokens from results.
type TokenIssuer interface {
	// IssueToken creates a token for the authenticated user.
	IssueToken(ctx context.Context, user User) (string, error)
}
