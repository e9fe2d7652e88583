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
	"encoding/base64"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
)

// DeviceType classifies the authenticator hardware a credential was
// created on, inferred from the transports the client declared.
type DeviceType string

// Known device types.
const (
	DevicePlatform  DeviceType = "platform_authenticator"
	DeviceUSB       DeviceType = "usb_security_key"
	DeviceNFC       DeviceType = "nfc_authenticator"
	DeviceBluetooth DeviceType = "bluetooth_authenticator"
	DeviceUnknown   DeviceType = "unknown"
)

// DeviceTypeFromTransports infers the device type from declared
// authenticator transports. The first recognized transport wins;
// an internal transport always classifies as a platform authenticator.
func DeviceTypeFromTransports(transports []protocol.AuthenticatorTransport) DeviceType {
	for _, t := range transports {
		switch t {
		case protocol.Internal:
			return DevicePlatform
		case protocol.USB:
			return DeviceUSB
		case protocol.NFC:
			return DeviceNFC
		case protocol.BLE:
			return DeviceBluetooth
		}
	}
	return DeviceUnknown
}

// User represents a registered account the relying party knows about.
// The interface embeds webauthn.User so implementations plug directly
// into the go-webauthn library during delegated verification.
type User interface {
	webauthn.User

	// UserID returns the caller-assigned opaque user identifier.
	UserID() string

	// DisplayName returns the user's human-readable display name.
	DisplayName() string
}

// Credential is a registered public-key credential stored by the
// relying party. Credential IDs are globally unique across all users so
// authentication can resolve a credential without knowing the user in
// advance.
type Credential struct {
	// ID is the credential identifier assigned by the authenticator.
	ID []byte `json:"id"`

	// UserID is the owning user's identifier.
	UserID string `json:"user_id"`

	// PublicKey is the credential's public key in COSE format. It may be
	// empty when the credential was registered through the reduced
	// assurance fallback verifier.
	PublicKey []byte `json:"public_key,omitempty"`

	// AttestationType indicates the type of attestation used.
	AttestationType string `json:"attestation_type"`

	// Transport lists the transports declared by the authenticator.
	Transport []protocol.AuthenticatorTransport `json:"transport,omitempty"`

	// TierLevel is the security tier the credential was registered at.
	TierLevel Tier `json:"tier_level"`

	// DeviceType classifies the authenticator hardware.
	DeviceType DeviceType `json:"device_type"`

	// Flags contains authenticator flags captured at registration.
	Flags CredentialFlags `json:"flags"`

	// Authenticator contains authenticator-specific data.
	Authenticator AuthenticatorMeta `json:"authenticator"`

	// LibraryVerified records whether the registration ceremony was
	// cryptographically verified rather than accepted at face value.
	LibraryVerified bool `json:"library_verified"`

	// CreatedAt is when the credential was registered.
	CreatedAt time.Time `json:"created_at"`

	// LastUsedAt is when the credential last completed an authentication.
	LastUsedAt time.Time `json:"last_used_at,omitempty"`
}

// CredentialFlags contains authenticator capability flags.
type CredentialFlags struct {
	// UserPresent indicates the user was present during the ceremony.
	UserPresent bool `json:"user_present"`

	// UserVerified indicates the user was verified (biometric, PIN).
	UserVerified bool `json:"user_verified"`

	// BackupEligible indicates the credential can be backed up.
	BackupEligible bool `json:"backup_eligible"`

	// BackupState indicates the credential is currently backed up.
	BackupState bool `json:"backup_state"`
}

// AuthenticatorMeta contains authenticator-specific information.
type AuthenticatorMeta struct {
	// AAGUID is the authenticator's model identifier.
	AAGUID []byte `json:"aaguid,omitempty"`

	// SignCount is the signature counter for clone detection.
	SignCount uint32 `json:"sign_count"`

	// CloneWarning indicates a potential cloned authenticator was
	// observed for this credential.
	CloneWarning bool `json:"clone_warning"`

	// Attachment indicates how the authenticator is attached.
	Attachment protocol.AuthenticatorAttachment `json:"attachment,omitempty"`
}

// EncodedID returns the credential ID in unpadded URL-safe base64, the
// form used on the wire and in revocation requests.
func (c *Credential) EncodedID() string {
	return base64.RawURLEncoding.EncodeToString(c.ID)
}

// ToWebAuthn converts the credential to the go-webauthn library type so
// the library verifier can validate assertions against it.
func (c *Credential) ToWebAuthn() webauthn.Credential {
	return webauthn.Credential{
		ID:              c.ID,
		PublicKey:       c.PublicKey,
		AttestationType: c.AttestationType,
		Transport:       c.Transport,
		Flags: webauthn.CredentialFlags{
			UserPresent:    c.Flags.UserPresent,
			UserVerified:   c.Flags.UserVerified,
			BackupEligible: c.Flags.BackupEligible,
			BackupState:    c.Flags.BackupState,
		},
		Authenticator: webauthn.Authenticator{
			AAGUID:       c.Authenticator.AAGUID,
			SignCount:    c.Authenticator.SignCount,
			CloneWarning: c.Authenticator.CloneWarning,
			Attachment:   c.Authenticator.Attachment,
		},
	}
}

// CredentialSummary is the redacted listing form of a credential.
// It never carries key material and truncates the credential ID so
// listings cannot be replayed into authentication requests.
type CredentialSummary struct {
	// CredentialID is the truncated, URL-safe form of the credential ID.
	CredentialID string `json:"credential_id"`

	// TierLevel is the tier the credential was registered at.
	TierLevel Tier `json:"tier_level"`

	// DeviceType classifies the authenticator hardware.
	DeviceType DeviceType `json:"device_type"`

	// LibraryVerified reports whether registration was cryptographically
	// verified.
	LibraryVerified bool `json:"library_verified"`

	// SignCount is the current signature counter.
	SignCount uint32 `json:"sign_count"`

	// CloneWarning reports whether a counter regression was ever seen.
	CloneWarning bool `json:"clone_warning,omitempty"`

	// CreatedAt is when the credential was registered.
	CreatedAt time.Time `json:"created_at"`

	// LastUsedAt is when the credential last authenticated, zero if never.
	LastUsedAt time.Time `json:"last_used_at,omitempty"`
}

// redactedIDLength is the number of leading characters of the encoded
// credential ID preserved in listings.
const redactedIDLength = 12

// Summary returns the redacted listing form of the credential.
func (c *Credential) Summary() *CredentialSummary {
	id := c.EncodedID()
	if len(id) > redactedIDLength {
		id = id[:redactedIDLength] + "..."
	}
	return &CredentialSummary{
		CredentialID:    id,
		TierLevel:       c.TierLevel,
		DeviceType:      c.DeviceType,
		LibraryVerified: c.LibraryVerified,
		SignCount:       c.Authenticator.SignCount,
		CloneWarning:    c.Authenticator.CloneWarning,
		CreatedAt:       c.CreatedAt,
		LastUsedAt:      c.LastUsedAt,
	}
}

// RegistrationResult is returned after a successful registration ceremony.
type RegistrationResult struct {
	// CredentialID is the new credential's ID in URL-safe base64.
	CredentialID string `json:"credential_id"`

	// UserID is the owning user's identifier.
	UserID string `json:"user_id"`

	// TierLevel is the tier the credential was registered at.
	TierLevel Tier `json:"tier_level"`

	// DeviceType classifies the authenticator hardware.
	DeviceType DeviceType `json:"device_type"`

	// LibraryVerified reports whether the attestation was
	// cryptographically verified.
	LibraryVerified bool `json:"library_verified"`

	// Token is a post-registration token when a TokenIssuer is configured.
	Token string `json:"token,omitempty"`
}

// AuthenticationResult is returned after a successful authentication
// ceremony.
type AuthenticationResult struct {
	// UserID is the resolved owning user's identifier.
	UserID string `json:"user_id"`

	// CredentialID is the asserted credential's ID in URL-safe base64.
	CredentialID string `json:"credential_id"`

	// TierLevel is the tier the credential was registered at.
	TierLevel Tier `json:"tier_level"`

	// DeviceType classifies the authenticator hardware.
	DeviceType DeviceType `json:"device_type"`

	// SignCount is the credential's signature counter after this
	// authentication.
	SignCount uint32 `json:"sign_count"`

	// LibraryVerified reports whether the assertion signature was
	// cryptographically verified. False marks the reduced assurance
	// fallback path.
	LibraryVerified bool `json:"library_verified"`

	// Token is a post-authentication token when a TokenIssuer is configured.
	Token string `json:"token,omitempty"`
}

// SweepReport counts the entries removed by an expired-session sweep.
type SweepReport struct {
	// RegistrationsRemoved counts removed registration sessions.
	RegistrationsRemoved int `json:"registrations_removed"`

	// AuthenticationsRemoved counts removed authentication sessions.
	AuthenticationsRemoved int `json:"authentications_removed"`

	// CorruptRemoved counts entries discarded because they failed to
	// deserialize.
	CorruptRemoved int `json:"corrupt_removed"`
}

// Total returns the total number of removed entries.
func (r *SweepReport) Total() int {
	return r.RegistrationsRemoved + r.AuthenticationsRemoved + r.CorruptRemoved
}

// HealthReport describes the live state of the credential manager.
type HealthReport struct {
	// ActiveCredentials is the number of stored credentials.
	ActiveCredentials int `json:"active_credentials"`

	// PendingRegistrations is the number of outstanding registration
	// sessions.
	PendingRegistrations int `json:"pending_registrations"`

	// PendingAuthentications is the number of outstanding authentication
	// sessions.
	PendingAuthentications int `json:"pending_authentications"`

	// TierDistribution counts credentials per tier.
	TierDistribution map[Tier]int `json:"tier_distribution"`

	// DeviceDistribution counts credentials per device type.
	DeviceDistribution map[DeviceType]int `json:"device_distribution"`
}

// DefaultUser is a minimal User implementation used by the in-memory
// store and auto-provisioned on first registration.
type DefaultUser struct {
	id          string
	name        string
	displayName string
	credentials []webauthn.Credential
}

// NewDefaultUser creates a new DefaultUser with the given identity.
func NewDefaultUser(id, name, displayName string) *DefaultUser {
	return &DefaultUser{
		id:          id,
		name:        name,
		displayName: displayName,
	}
}

// UserID returns the caller-assigned user identifier.
func (u *DefaultUser) UserID() string {
	return u.id
}

// WebAuthnID returns the user handle presented to authenticators.
func (u *DefaultUser) WebAuthnID() []byte {
	return []byte(u.id)
}

// WebAuthnName returns the user's account name.
func (u *DefaultUser) WebAuthnName() string {
	if u.name == "" {
		return u.id
	}
	return u.name
}

// WebAuthnDisplayName returns the user's display name.
func (u *DefaultUser) WebAuthnDisplayName() string {
	if u.displayName == "" {
		return u.WebAuthnName()
	}
	return u.displayName
}

// WebAuthnCredentials returns the credentials attached for a ceremony.
// The service populates these from the credential store before handing
// the user to the verifier.
func (u *DefaultUser) WebAuthnCredentials() []webauthn.Credential {
	return u.credentials
}

// DisplayName returns the user's display name.
func (u *DefaultUser) DisplayName() string {
	return u.displayName
}

// ceremonyUser adapts a stored user plus that user's credentials into the
// webauthn.User shape the library verifier consumes. Credentials stay
// owned by the credential store; this wrapper only carries a snapshot for
// the duration of one ceremony.
type ceremonyUser struct {
	User
	creds []webauthn.Credential
}

func newCeremonyUser(u User, creds []*Credential) *ceremonyUser {
	converted := make([]webauthn.Credential, len(creds))
	for i, c := range creds {
		converted[i] = c.ToWebAuthn()
	}
	return &ceremonyUser{User: u, creds: converted}
}

// WebAuthnCredentials returns the ceremony credential snapshot.
func (u *ceremonyUser) WebAuthnCredentials() []webauthn.Credential {
	return u.creds
}
