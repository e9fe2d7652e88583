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
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/protocol/webauthncose"
)

// defaultCredentialParameters is the fixed list of signature algorithms
// advertised in registration options, strongest curves first.
var defaultCredentialParameters = []protocol.CredentialParameter{
	{Type: protocol.PublicKeyCredentialType, Algorithm: webauthncose.AlgES256},
	{Type: protocol.PublicKeyCredentialType, Algorithm: webauthncose.AlgES384},
	{Type: protocol.PublicKeyCredentialType, Algorithm: webauthncose.AlgES512},
	{Type: protocol.PublicKeyCredentialType, Algorithm: webauthncose.AlgEdDSA},
	{Type: protocol.PublicKeyCredentialType, Algorithm: webauthncose.AlgRS256},
}

// RegistrationOptions is the begin-registration response: the session
// handle plus the creation options the client ceremony consumes.
type RegistrationOptions struct {
	// SessionID identifies the pending session to the finish call.
	SessionID string `json:"session_id"`

	// ExpiresAt is the session deadline.
	ExpiresAt time.Time `json:"expires_at"`

	// PublicKey carries the WebAuthn credential creation options.
	PublicKey protocol.PublicKeyCredentialCreationOptions `json:"publicKey"`
}

// AuthenticationOptions is the begin-authentication response: the session
// handle plus the request options the client ceremony consumes.
type AuthenticationOptions struct {
	// SessionID identifies the pending session to the finish call.
	SessionID string `json:"session_id"`

	// ExpiresAt is the session deadline.
	ExpiresAt time.Time `json:"expires_at"`

	// PublicKey carries the WebAuthn credential request options.
	PublicKey protocol.PublicKeyCredentialRequestOptions `json:"publicKey"`
}

// descriptorsFromCredentials converts stored credentials to the
// descriptor form used in exclude and allow lists.
func descriptorsFromCredentials(creds []*Credential) []protocol.CredentialDescriptor {
	descriptors := make([]protocol.CredentialDescriptor, len(creds))
	for i, cred := range creds {
		descriptors[i] = protocol.CredentialDescriptor{
			Type:         protocol.PublicKeyCredentialType,
			CredentialID: cred.ID,
			Transport:    cred.Transport,
		}
	}
	return descriptors
}

// buildCreationOptions assembles registration options from local state:
// relying party identity from the config, the session challenge, the
// fixed algorithm list, and the tier-resolved authenticator policy.
func buildCreationOptions(cfg *Config, user User, session *Session, excludeList []protocol.CredentialDescriptor, policy TierPolicy) protocol.PublicKeyCredentialCreationOptions {
	return protocol.PublicKeyCredentialCreationOptions{
		RelyingParty: protocol.RelyingPartyEntity{
			CredentialEntity: protocol.CredentialEntity{
				Name: cfg.RPDisplayName,
			},
			ID: cfg.RPID,
		},
		User: protocol.UserEntity{
			CredentialEntity: protocol.CredentialEntity{
				Name: user.WebAuthnName(),
			},
			DisplayName: user.WebAuthnDisplayName(),
			ID:          protocol.URLEncodedBase64(user.WebAuthnID()),
		},
		Challenge:              protocol.URLEncodedBase64(session.Challenge),
		Parameters:             defaultCredentialParameters,
		Timeout:                int(cfg.CeremonyTimeout.Milliseconds()),
		CredentialExcludeList:  excludeList,
		AuthenticatorSelection: policy.AuthenticatorSelection(),
		Attestation:            policy.Attestation(),
		Extensions:             policy.RegistrationExtensions(),
	}
}

// buildRequestOptions assembles authentication options from local state.
// The allow list is already filtered to credentials at or above the
// requested tier; an empty list enables the usernameless flow.
func buildRequestOptions(cfg *Config, session *Session, allowList []protocol.CredentialDescriptor, policy TierPolicy) protocol.PublicKeyCredentialRequestOptions {
	return protocol.PublicKeyCredentialRequestOptions{
		Challenge:          protocol.URLEncodedBase64(session.Challenge),
		Timeout:            int(cfg.CeremonyTimeout.Milliseconds()),
		RelyingPartyID:     cfg.RPID,
		AllowedCredentials: allowList,
		UserVerification:   policy.UserVerification(),
		Extensions:         policy.AuthenticationExtensions(),
	}
}

// mergeCreationOptions folds library-produced creation options over the
// manually built defaults. The library's challenge, exclude list, relying
// party identity, and user verification requirement take precedence;
// manual values fill every gap the library left empty.
func mergeCreationOptions(manual, library protocol.PublicKeyCredentialCreationOptions) protocol.PublicKeyCredentialCreationOptions {
	merged := manual

	if len(library.Challenge) > 0 {
		merged.Challenge = library.Challenge
	}
	if len(library.CredentialExcludeList) > 0 {
		merged.CredentialExcludeList = library.CredentialExcludeList
	}
	if library.RelyingParty.ID != "" {
		merged.RelyingParty = library.RelyingParty
	}
	if library.AuthenticatorSelection.UserVerification != "" {
		merged.AuthenticatorSelection.UserVerification = library.AuthenticatorSelection.UserVerification
	}

	if len(merged.Parameters) == 0 {
		merged.Parameters = library.Parameters
	}
	if merged.Timeout == 0 {
		merged.Timeout = library.Timeout
	}
	if merged.Attestation == "" {
		merged.Attestation = library.Attestation
	}
	if len(merged.Extensions) == 0 {
		merged.Extensions = library.Extensions
	}
	return merged
}

// mergeRequestOptions folds library-produced request options over the
// manually built defaults. The library's challenge, relying party ID, and
// user verification requirement take precedence. The allow list always
// comes from the manual options because it carries the tier filter.
func mergeRequestOptions(manual, library protocol.PublicKeyCredentialRequestOptions) protocol.PublicKeyCredentialRequestOptions {
	merged := manual

	if len(library.Challenge) > 0 {
		merged.Challenge = library.Challenge
	}
	if library.RelyingPartyID != "" {
		merged.RelyingPartyID = library.RelyingPartyID
	}
	if library.UserVerification != "" {
		merged.UserVerification = library.UserVerification
	}

	if merged.Timeout == 0 {
		merged.Timeout = library.Timeout
	}
	if len(merged.Extensions) == 0 {
		merged.Extensions = library.Extensions
	}
	return merged
}
