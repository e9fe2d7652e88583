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

// Package jwk encodes token verification keys as JSON Web Keys
// (RFC 7517) for the server's JWKS endpoint. Relying party backends
// fetch the set to verify tokens issued after passkey ceremonies.
//
// Only the public key types the token issuer signs with are supported:
// RSA, ECDSA (P-256, P-384, P-521) and Ed25519. Private and symmetric
// keys are never encoded; an HMAC-signed deployment has no JWKS.
package jwk

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
)

// Key types (RFC 7518 Section 6.1)
const (
	KeyTypeRSA = "RSA"
	KeyTypeEC  = "EC"
	KeyTypeOKP = "OKP"
)

// Named curves (RFC 7518 Section 6.2.1.1, RFC 8037 Section 3.1)
const (
	CurveP256    = "P-256"
	CurveP384    = "P-384"
	CurveP521    = "P-521"
	CurveEd25519 = "Ed25519"
)

// ErrUnsupportedKey is returned for key types that cannot be encoded.
var ErrUnsupportedKey = fmt.Errorf("jwk: unsupported key type")

// JWK is a JSON Web Key holding a token verification public key.
type JWK struct {
	// KeyType identifies the key family: RSA, EC or OKP.
	KeyType string `json:"kty"`

	// Use declares the intended key use, always "sig" here.
	Use string `json:"use,omitempty"`

	// Algorithm is the JWS algorithm the key verifies.
	Algorithm string `json:"alg,omitempty"`

	// KeyID distinguishes keys within a set. When the token issuer has
	// no configured key ID, the RFC 7638 thumbprint is used.
	KeyID string `json:"kid,omitempty"`

	// Curve names the EC or OKP curve.
	Curve string `json:"crv,omitempty"`

	// X is the EC x coordinate or the OKP public key, base64url.
	X string `json:"x,omitempty"`

	// Y is the EC y coordinate, base64url.
	Y string `json:"y,omitempty"`

	// N is the RSA modulus, base64url.
	N string `json:"n,omitempty"`

	// E is the RSA public exponent, base64url.
	E string `json:"e,omitempty"`
}

// Set is a JWK Set (RFC 7517 Section 5), the document served at the
// JWKS endpoint.
type Set struct {
	Keys []*JWK `json:"keys"`
}

// FromPublicKey encodes a public key as a signature-use JWK. The key ID
// defaults to the key's RFC 7638 thumbprint.
func FromPublicKey(pub crypto.PublicKey) (*JWK, error) {
	var (
		jwk *JWK
		err error
	)

	switch key := pub.(type) {
	case *rsa.PublicKey:
		jwk, err = fromRSAPublicKey(key)
	case *ecdsa.PublicKey:
		jwk, err = fromECDSAPublicKey(key)
	case ed25519.PublicKey:
		jwk, err = fromEd25519PublicKey(key)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedKey, pub)
	}
	if err != nil {
		return nil, err
	}

	jwk.Use = "sig"

	kid, err := jwk.Thumbprint()
	if err != nil {
		return nil, err
	}
	jwk.KeyID = kid

	return jwk, nil
}

// ToPublicKey decodes the JWK back into a crypto.PublicKey.
func (k *JWK) ToPublicKey() (crypto.PublicKey, error) {
	switch k.KeyType {
	case KeyTypeRSA:
		return k.toRSAPublicKey()
	case KeyTypeEC:
		return k.toECDSAPublicKey()
	case KeyTypeOKP:
		return k.toEd25519PublicKey()
	default:
		return nil, fmt.Errorf("%w: kty %q", ErrUnsupportedKey, k.KeyType)
	}
}

// Marshal encodes the JWK as JSON.
func (k *JWK) Marshal() ([]byte, error) {
	return json.Marshal(k)
}

// Unmarshal decodes a JWK from JSON.
func Unmarshal(data []byte) (*JWK, error) {
	var jwk JWK
	if err := json.Unmarshal(data, &jwk); err != nil {
		return nil, fmt.Errorf("jwk: decode: %w", err)
	}
	return &jwk, nil
}

// NewSet builds a JWK Set from public keys.
func NewSet(keys ...crypto.PublicKey) (*Set, error) {
	set := &Set{Keys: make([]*JWK, 0, len(keys))}
	for _, pub := range keys {
		jwk, err := FromPublicKey(pub)
		if err != nil {
			return nil, err
		}
		set.Keys = append(set.Keys, jwk)
	}
	return set, nil
}

// Marshal encodes the set as JSON.
func (s *Set) Marshal() ([]byte, error) {
	return json.Marshal(s)
}

// UnmarshalSet decodes a JWK Set from JSON.
func UnmarshalSet(data []byte) (*Set, error) {
	var set Set
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("jwk: decode set: %w", err)
	}
	return &set, nil
}

// Lookup returns the key with the given key ID, nil if absent.
func (s *Set) Lookup(kid string) *JWK {
	for _, key := range s.Keys {
		if key.KeyID == kid {
			return key
		}
	}
	return nil
}

func fromRSAPublicKey(key *rsa.PublicKey) (*JWK, error) {
	if key.N == nil {
		return nil, fmt.Errorf("jwk: RSA public key has no modulus")
	}
	return &JWK{
		KeyType:   KeyTypeRSA,
		Algorithm: "RS256",
		N:         base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
		E:         base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
	}, nil
}

func (k *JWK) toRSAPublicKey() (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("jwk: decode n: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("jwk: decode e: %w", err)
	}

	e := new(big.Int).SetBytes(eBytes)
	if !e.IsInt64() || e.Int64() <= 0 {
		return nil, fmt.Errorf("jwk: invalid RSA exponent")
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: int(e.Int64()),
	}, nil
}

func fromECDSAPublicKey(key *ecdsa.PublicKey) (*JWK, error) {
	var crv, alg string
	switch key.Curve {
	case elliptic.P256():
		crv, alg = CurveP256, "ES256"
	case elliptic.P384():
		crv, alg = CurveP384, "ES384"
	case elliptic.P521():
		crv, alg = CurveP521, "ES512"
	default:
		return nil, fmt.Errorf("%w: curve %v", ErrUnsupportedKey, key.Curve)
	}

	// Coordinates are fixed-length big-endian per RFC 7518 Section 6.2.1.2
	byteLen := (key.Curve.Params().BitSize + 7) / 8
	x := make([]byte, byteLen)
	y := make([]byte, byteLen)
	key.X.FillBytes(x)
	key.Y.FillBytes(y)

	return &JWK{
		KeyType:   KeyTypeEC,
		Algorithm: alg,
		Curve:     crv,
		X:         base64.RawURLEncoding.EncodeToString(x),
		Y:         base64.RawURLEncoding.EncodeToString(y),
	}, nil
}

func (k *JWK) toECDSAPublicKey() (*ecdsa.PublicKey, error) {
	var curve elliptic.Curve
	switch k.Curve {
	case CurveP256:
		curve = elliptic.P256()
	case CurveP384:
		curve = elliptic.P384()
	case CurveP521:
		curve = elliptic.P521()
	default:
		return nil, fmt.Errorf("%w: crv %q", ErrUnsupportedKey, k.Curve)
	}

	xBytes, err := base64.RawURLEncoding.DecodeString(k.X)
	if err != nil {
		return nil, fmt.Errorf("jwk: decode x: %w", err)
	}
	yBytes, err := base64.RawURLEncoding.DecodeString(k.Y)
	if err != nil {
		return nil, fmt.Errorf("jwk: decode y: %w", err)
	}

	pub := &ecdsa.PublicKey{
		Curve: curve,
		X:     new(big.Int).SetBytes(xBytes),
		Y:     new(big.Int).SetBytes(yBytes),
	}
	if !curve.IsOnCurve(pub.X, pub.Y) {
		return nil, fmt.Errorf("jwk: point is not on curve %s", k.Curve)
	}

	return pub, nil
}

func fromEd25519PublicKey(key ed25519.PublicKey) (*JWK, error) {
	if len(key) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("jwk: invalid Ed25519 public key length %d", len(key))
	}
	return &JWK{
		KeyType:   KeyTypeOKP,
		Algorithm: "EdDSA",
		Curve:     CurveEd25519,
		X:         base64.RawURLEncoding.EncodeToString(key),
	}, nil
}

func (k *JWK) toEd25519PublicKey() (ed25519.PublicKey, error) {
	if k.Curve != CurveEd25519 {
		return nil, fmt.Errorf("%w: crv %q", ErrUnsupportedKey, k.Curve)
	}
	xBytes, err := base64.RawURLEncoding.DecodeString(k.X)
	if err != nil {
		return nil, fmt.Errorf("jwk: decode x: %w", err)
	}
	if len(xBytes) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("jwk: invalid Ed25519 public key length %d", len(xBytes))
	}
	return ed25519.PublicKey(xBytes), nil
}
