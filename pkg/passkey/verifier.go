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
	"encoding/json"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
)

// VerifiedRegistration is the verifier's report for a registration
// ceremony. When the verifier performed cryptographic validation its
// reported credential ID and public key take precedence over anything
// the client asserted.
type VerifiedRegistration struct {
	// CredentialID is the verified (or client-asserted) credential ID.
	CredentialID []byte

	// PublicKey is the credential public key in COSE format. Empty when
	// the fallback verifier accepted the response without validation.
	PublicKey []byte

	// AttestationType names the attestation format that was verified.
	AttestationType string

	// Transport lists the transports the authenticator declared.
	Transport []protocol.AuthenticatorTransport

	// AAGUID is the authenticator model identifier, when known.
	AAGUID []byte

	// Attachment is the authenticator attachment, when known.
	Attachment protocol.AuthenticatorAttachment

	// Flags carries the authenticator flags observed at registration.
	Flags CredentialFlags

	// LibraryVerified is true when the attestation was cryptographically
	// verified rather than accepted at face value.
	LibraryVerified bool
}

// VerifiedAuthentication is the verifier's report for an authentication
// ceremony.
type VerifiedAuthentication struct {
	// NewSignCount is the signature counter reported by the
	// authenticator (fallback: stored counter plus one).
	NewSignCount uint32

	// BackupEligible reports the credential's backup eligibility flag.
	BackupEligible bool

	// BackupState reports the credential's current backup flag.
	BackupState bool

	// CloneWarning is set when the counter regressed, indicating a
	// possible cloned authenticator.
	CloneWarning bool

	// LibraryVerified is true when the assertion signature was
	// cryptographically verified.
	LibraryVerified bool
}

// Verifier validates ceremony responses. Implementations are selected at
// service construction time: NewLibraryVerifier for full cryptographic
// validation, NewFallbackVerifier for the reduced assurance path.
type Verifier interface {
	// VerifyRegistration validates an attestation response against the
	// session data and reports the credential to store.
	VerifyRegistration(ctx context.Context, user webauthn.User, session webauthn.SessionData, response []byte) (*VerifiedRegistration, error)

	// VerifyAuthentication validates an assertion response for the
	// already resolved credential and reports the counter update.
	VerifyAuthentication(ctx context.Context, user webauthn.User, credential *Credential, session webauthn.SessionData, response []byte) (*VerifiedAuthentication, error)
}

// OptionsProvider is implemented by verifiers that can also generate
// ceremony options. When the configured Verifier provides options, the
// service merges them over its manually built defaults.
type OptionsProvider interface {
	// CreationOptions generates registration options for the user.
	CreationOptions(user webauthn.User, exclusions []protocol.CredentialDescriptor, policy TierPolicy) (*protocol.PublicKeyCredentialCreationOptions, error)

	// RequestOptions generates authentication options. A nil user
	// requests the discoverable (usernameless) flow.
	RequestOptions(user webauthn.User, allowList []protocol.CredentialDescriptor, policy TierPolicy) (*protocol.PublicKeyCredentialRequestOptions, error)
}

// LibraryVerifier delegates ceremony validation to go-webauthn/webauthn.
// It performs full attestation and assertion verification, including
// signature checks against the stored public key and sign counter
// tracking for clone detection.
type LibraryVerifier struct {
	webauthn *webauthn.WebAuthn
}

// NewLibraryVerifier creates a verifier backed by go-webauthn/webauthn.
func NewLibraryVerifier(config *Config) (*LibraryVerifier, error) {
	wa, err := webauthn.New(config.ToWebAuthnConfig())
	if err != nil {
		return nil, WrapError("create webauthn instance", err)
	}
	return &LibraryVerifier{webauthn: wa}, nil
}

// VerifyRegistration parses and fully verifies an attestation response.
func (v *LibraryVerifier) VerifyRegistration(ctx context.Context, user webauthn.User, session webauthn.SessionData, response []byte) (*VerifiedRegistration, error) {
	parsed, err := protocol.ParseCredentialCreationResponseBytes(response)
	if err != nil {
		return nil, NewError("parse attestation response", ErrMalformedResponse)
	}

	credential, err := v.webauthn.CreateCredential(user, session, parsed)
	if err != nil {
		return nil, NewError("verify attestation", ErrVerificationFailed)
	}

	return &VerifiedRegistration{
		CredentialID:    credential.ID,
		PublicKey:       credential.PublicKey,
		AttestationType: credential.AttestationType,
		Transport:       credential.Transport,
		AAGUID:          credential.Authenticator.AAGUID,
		Attachment:      credential.Authenticator.Attachment,
		Flags: CredentialFlags{
			UserPresent:    credential.Flags.UserPresent,
			UserVerified:   credential.Flags.UserVerified,
			BackupEligible: credential.Flags.BackupEligible,
			BackupState:    credential.Flags.BackupState,
		},
		LibraryVerified: true,
	}, nil
}

// VerifyAuthentication parses and fully verifies an assertion response.
func (v *LibraryVerifier) VerifyAuthentication(ctx context.Context, user webauthn.User, credential *Credential, session webauthn.SessionData, response []byte) (*VerifiedAuthentication, error) {
	parsed, err := protocol.ParseCredentialRequestResponseBytes(response)
	if err != nil {
		return nil, NewError("parse assertion response", ErrMalformedResponse)
	}

	validated, err := v.webauthn.ValidateLogin(user, session, parsed)
	if err != nil {
		return nil, NewError("verify assertion", ErrVerificationFailed)
	}

	return &VerifiedAuthentication{
		NewSignCount:    validated.Authenticator.SignCount,
		BackupEligible:  validated.Flags.BackupEligible,
		BackupState:     validated.Flags.BackupState,
		CloneWarning:    validated.Authenticator.CloneWarning,
		LibraryVerified: true,
	}, nil
}

// CreationOptions generates registration options through the library so
// its challenge and exclude list handling take precedence in the merge.
func (v *LibraryVerifier) CreationOptions(user webauthn.User, exclusions []protocol.CredentialDescriptor, policy TierPolicy) (*protocol.PublicKeyCredentialCreationOptions, error) {
	creation, _, err := v.webauthn.BeginRegistration(user,
		webauthn.WithExclusions(exclusions),
		webauthn.WithAuthenticatorSelection(policy.AuthenticatorSelection()),
		webauthn.WithConveyancePreference(policy.Attestation()),
		webauthn.WithExtensions(policy.RegistrationExtensions()),
		webauthn.WithCredentialParameters(defaultCredentialParameters),
	)
	if err != nil {
		return nil, WrapError("begin registration", err)
	}
	return &creation.Response, nil
}

// RequestOptions generates authentication options through the library.
func (v *LibraryVerifier) RequestOptions(user webauthn.User, allowList []protocol.CredentialDescriptor, policy TierPolicy) (*protocol.PublicKeyCredentialRequestOptions, error) {
	var (
		assertion *protocol.CredentialAssertion
		err       error
	)

	if user == nil {
		assertion, _, err = v.webauthn.BeginDiscoverableLogin(
			webauthn.WithUserVerification(policy.UserVerification()),
			webauthn.WithAssertionExtensions(policy.AuthenticationExtensions()),
		)
	} else {
		assertion, _, err = v.webauthn.BeginLogin(user,
			webauthn.WithAllowedCredentials(allowList),
			webauthn.WithUserVerification(policy.UserVerification()),
			webauthn.WithAssertionExtensions(policy.AuthenticationExtensions()),
		)
	}
	if err != nil {
		return nil, WrapError("begin login", err)
	}
	return &assertion.Response, nil
}

// credentialEnvelope is the minimal wire shape of a public-key
// credential response, used by the fallback verifier which accepts
// responses without a verification library.
type credentialEnvelope struct {
	ID       string `json:"id"`
	RawID    string `json:"rawId"`
	Type     string `json:"type"`
	Response struct {
		ClientDataJSON    string   `json:"clientDataJSON"`
		AttestationObject string   `json:"attestationObject"`
		AuthenticatorData string   `json:"authenticatorData"`
		Signature         string   `json:"signature"`
		UserHandle        string   `json:"userHandle"`
		Transports        []string `json:"transports"`
	} `json:"response"`
}

// FallbackVerifier accepts client-asserted ceremony responses without
// cryptographic validation. Every result is marked LibraryVerified=false
// so downstream authorization can treat it as reduced assurance. The
// challenge, origin, and ceremony type checks still happen in the
// service before this verifier runs.
type FallbackVerifier struct{}

// NewFallbackVerifier creates the reduced assurance verifier.
func NewFallbackVerifier() *FallbackVerifier {
	return &FallbackVerifier{}
}

// VerifyRegistration accepts a client-asserted attestation response.
// The credential is stored without key material.
func (v *FallbackVerifier) VerifyRegistration(ctx context.Context, user webauthn.User, session webauthn.SessionData, response []byte) (*VerifiedRegistration, error) {
	envelope, err := decodeEnvelope(response)
	if err != nil {
		return nil, err
	}
	if envelope.Response.AttestationObject == "" || envelope.Response.ClientDataJSON == "" {
		return nil, NewError("decode attestation response", ErrMalformedResponse)
	}

	credentialID, err := decodeCredentialID(envelope)
	if err != nil {
		return nil, err
	}

	transports := make([]protocol.AuthenticatorTransport, 0, len(envelope.Response.Transports))
	for _, t := range envelope.Response.Transports {
		transports = append(transports, protocol.AuthenticatorTransport(t))
	}

	return &VerifiedRegistration{
		CredentialID:    credentialID,
		Transport:       transports,
		LibraryVerified: false,
	}, nil
}

// VerifyAuthentication accepts a client-asserted assertion response and
// advances the stored sign counter by one.
func (v *FallbackVerifier) VerifyAuthentication(ctx context.Context, user webauthn.User, credential *Credential, session webauthn.SessionData, response []byte) (*VerifiedAuthentication, error) {
	envelope, err := decodeEnvelope(response)
	if err != nil {
		return nil, err
	}
	if envelope.Response.AuthenticatorData == "" || envelope.Response.ClientDataJSON == "" {
		return nil, NewError("decode assertion response", ErrMalformedResponse)
	}

	return &VerifiedAuthentication{
		NewSignCount:    credential.Authenticator.SignCount + 1,
		BackupEligible:  credential.Flags.BackupEligible,
		BackupState:     credential.Flags.BackupState,
		LibraryVerified: false,
	}, nil
}

func decodeEnvelope(response []byte) (*credentialEnvelope, error) {
	var envelope credentialEnvelope
	if err := json.Unmarshal(response, &envelope); err != nil {
		return nil, NewError("decode response envelope", ErrMalformedResponse)
	}
	if envelope.Type != "public-key" {
		return nil, NewError("decode response envelope", ErrUnsupportedFormat)
	}
	return &envelope, nil
}

func decodeCredentialID(envelope *credentialEnvelope) ([]byte, error) {
	encoded := envelope.RawID
	if encoded == "" {
		encoded = envelope.ID
	}
	if encoded == "" {
		return nil, NewError("decode credential id", ErrMalformedResponse)
	}
	id, err := decodeBase64URL(encoded)
	if err != nil {
		return nil, NewError("decode credential id", ErrMalformedResponse)
	}
	return id, nil
}

// decodeBase64URL decodes URL-safe base64 with or without padding.
func decodeBase64URL(s string) ([]byte, error) {
	if decoded, err := base64.RawURLEncoding.DecodeString(s); err == nil {
		return decoded, nil
	}
	return base64.URLEncoding.DecodeString(s)
}
