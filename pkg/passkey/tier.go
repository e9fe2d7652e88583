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
	"github.com/go-webauthn/webauthn/protocol"
)

// Tier is a numeric security level controlling which authenticator
// properties are mandatory for a ceremony. Higher tiers are strictly more
// restrictive than lower ones.
type Tier int

// Supported security tiers.
const (
	// TierMin is the lowest security tier (any authenticator accepted).
	TierMin Tier = 0

	// TierUserVerification is the first tier requiring user verification.
	TierUserVerification Tier = 2

	// TierPlatform is the first tier restricted to platform authenticators.
	TierPlatform Tier = 3

	// TierHMACSecret is the first tier requesting hmac-secret extensions.
	TierHMACSecret Tier = 4

	// TierMax is the highest security tier (resident platform keys only).
	TierMax Tier = 5
)

// Valid reports whether the tier is within the supported range.
func (t Tier) Valid() bool {
	return t >= TierMin && t <= TierMax
}

// TierPolicy describes the authenticator properties a tier demands.
// The table is strictly monotonic in restrictiveness: once a property
// becomes required at a tier it stays required at every higher tier.
type TierPolicy struct {
	// Tier is the level this policy was resolved for.
	Tier Tier

	// RequireUserVerification requires biometric/PIN user verification.
	// Required from TierUserVerification upward.
	RequireUserVerification bool

	// PlatformAttachment restricts ceremonies to platform authenticators.
	// Required from TierPlatform upward.
	PlatformAttachment bool

	// RequireResidentKey requires a discoverable (resident) credential.
	// Required only at TierMax.
	RequireResidentKey bool
}

// PolicyForTier resolves the authenticator policy for a tier. Tiers
// outside the supported range are clamped into it so that a stored
// credential with a corrupt tier still resolves to something sane.
func PolicyForTier(tier Tier) TierPolicy {
	if tier < TierMin {
		tier = TierMin
	}
	if tier > TierMax {
		tier = TierMax
	}
	return TierPolicy{
		Tier:                    tier,
		RequireUserVerification: tier >= TierUserVerification,
		PlatformAttachment:      tier >= TierPlatform,
		RequireResidentKey:      tier >= TierMax,
	}
}

// UserVerification returns the protocol-level user verification
// requirement for the policy.
func (p TierPolicy) UserVerification() protocol.UserVerificationRequirement {
	if p.RequireUserVerification {
		return protocol.VerificationRequired
	}
	return protocol.VerificationPreferred
}

// AuthenticatorSelection builds the authenticator selection criteria for
// registration options.
func (p TierPolicy) AuthenticatorSelection() protocol.AuthenticatorSelection {
	selection := protocol.AuthenticatorSelection{
		UserVerification: p.UserVerification(),
		ResidentKey:      protocol.ResidentKeyRequirementPreferred,
	}
	if p.PlatformAttachment {
		selection.AuthenticatorAttachment = protocol.Platform
	}
	if p.RequireResidentKey {
		selection.ResidentKey = protocol.ResidentKeyRequirementRequired
		requireResident := true
		selection.RequireResidentKey = &requireResident
	}
	return selection
}

// Attestation returns the attestation conveyance preference for the
// policy: direct attestation from TierPlatform upward, none below.
func (p TierPolicy) Attestation() protocol.ConveyancePreference {
	if p.Tier >= TierPlatform {
		return protocol.PreferDirectAttestation
	}
	return protocol.PreferNoAttestation
}

// RegistrationExtensions returns the client extension inputs requested
// during registration. credProps is always requested; the hmac-secret
// create extension is added from TierHMACSecret upward.
func (p TierPolicy) RegistrationExtensions() protocol.AuthenticationExtensions {
	ext := protocol.AuthenticationExtensions{
		"credProps": true,
	}
	if p.Tier >= TierHMACSecret {
		ext["hmacCreateSecret"] = true
	}
	return ext
}

// AuthenticationExtensions returns the client extension inputs requested
// during authentication. The hmac-secret get extension is requested from
// TierHMACSecret upward.
func (p TierPolicy) AuthenticationExtensions() protocol.AuthenticationExtensions {
	ext := protocol.AuthenticationExtensions{}
	if p.Tier >= TierHMACSecret {
		ext["hmacGetSecret"] = true
	}
	return ext
}
