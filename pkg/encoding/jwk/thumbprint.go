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

package jwk

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// Thumbprint computes the RFC 7638 SHA-256 thumbprint of the key,
// base64url-encoded. The thumbprint hashes only the required members
// of the key type, serialized in lexicographic order, so it is stable
// across kid/alg/use changes and serves as the default key ID.
func (k *JWK) Thumbprint() (string, error) {
	canonical, err := k.canonicalJSON()
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256([]byte(canonical))
	return base64.RawURLEncoding.EncodeToString(sum[:]), nil
}

// canonicalJSON serializes the required members in lexicographic member
// order per RFC 7638 Section 3.2. encoding/json cannot guarantee member
// order, so the document is built by hand.
func (k *JWK) canonicalJSON() (string, error) {
	switch k.KeyType {
	case KeyTypeEC:
		if k.Curve == "" || k.X == "" || k.Y == "" {
			return "", fmt.Errorf("jwk: EC key missing required members")
		}
		return fmt.Sprintf(`{"crv":%q,"kty":"EC","x":%q,"y":%q}`, k.Curve, k.X, k.Y), nil

	case KeyTypeRSA:
		if k.N == "" || k.E == "" {
			return "", fmt.Errorf("jwk: RSA key missing required members")
		}
		return fmt.Sprintf(`{"e":%q,"kty":"RSA","n":%q}`, k.E, k.N), nil

	case KeyTypeOKP:
		if k.Curve == "" || k.X == "" {
			return "", fmt.Errorf("jwk: OKP key missing required members")
		}
		return fmt.Sprintf(`{"crv":%q,"kty":"OKP","x":%q}`, k.Curve, k.X), nil

	default:
		return "", fmt.Errorf("%w: kty %q", ErrUnsupportedKey, k.KeyType)
	}
}
