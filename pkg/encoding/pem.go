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

// Package encoding provides PEM and PKCS#8 codecs for token signing
// key material. Keys load from disk in standard formats, optionally
// encrypted with a password.
package encoding

import (
	"bytes"
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"fmt"
)

// PEM block types
const (
	PEMTypeRSAPrivateKey       = "RSA PRIVATE KEY"
	PEMTypeECPrivateKey        = "EC PRIVATE KEY"
	PEMTypePrivateKey          = "PRIVATE KEY"
	PEMTypeEncryptedPrivateKey = "ENCRYPTED PRIVATE KEY"
	PEMTypePublicKey           = "PUBLIC KEY"
)

// EncodePrivateKeyPEM encodes a private key to PEM format.
// If a password is provided, the key will be encrypted using PKCS#8.
// If password is nil or empty, the key will be encoded without encryption.
//
// The keyAlgorithm parameter helps determine the PEM block type:
//   - x509.RSA: Uses "RSA PRIVATE KEY" (unencrypted) or "ENCRYPTED PRIVATE KEY" (encrypted)
//   - x509.ECDSA: Uses "EC PRIVATE KEY" (unencrypted) or "ENCRYPTED PRIVATE KEY" (encrypted)
//   - x509.Ed25519: Uses "PRIVATE KEY" (unencrypted) or "ENCRYPTED PRIVATE KEY" (encrypted)
func EncodePrivateKeyPEM(privateKey crypto.PrivateKey, keyAlgorithm x509.PublicKeyAlgorithm, password []byte) ([]byte, error) {
	if privateKey == nil {
		return nil, ErrInvalidPrivateKey
	}

	// Encode to PKCS#8 DER first
	der, err := EncodePKCS8(privateKey, password)
	if err != nil {
		return nil, err
	}

	block := &pem.Block{
		Type:  getPEMBlockType(keyAlgorithm, password),
		Bytes: der,
	}

	var buf bytes.Buffer
	if err := pem.Encode(&buf, block); err != nil {
		return nil, fmt.Errorf("failed to encode PEM: %w", err)
	}

	return buf.Bytes(), nil
}

// DecodePrivateKeyPEM decodes PEM encoded data to a private key.
// If the PEM data is encrypted, a password must be provided.
//
// Returns the private key as crypto.PrivateKey (type assert to specific type if needed).
func DecodePrivateKeyPEM(data []byte, password []byte) (crypto.PrivateKey, error) {
	if len(data) == 0 {
		return nil, ErrInvalidData
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, ErrInvalidPEMEncoding
	}

	return DecodePKCS8(block.Bytes, password)
}

// EncodePublicKeyPEM encodes a public key to PEM format.
func EncodePublicKeyPEM(publicKey crypto.PublicKey) ([]byte, error) {
	if publicKey == nil {
		return nil, ErrInvalidPublicKey
	}

	// Encode to PKIX DER
	der, err := EncodePublicKeyPKIX(publicKey)
	if err != nil {
		return nil, err
	}

	block := &pem.Block{
		Type:  PEMTypePublicKey,
		Bytes: der,
	}

	var buf bytes.Buffer
	if err := pem.Encode(&buf, block); err != nil {
		return nil, fmt.Errorf("failed to encode PEM: %w", err)
	}

	return buf.Bytes(), nil
}

// DecodePublicKeyPEM decodes PEM encoded data to a public key.
//
// Returns the public key as crypto.PublicKey (type assert to specific type if needed).
func DecodePublicKeyPEM(data []byte) (crypto.PublicKey, error) {
	if len(data) == 0 {
		return nil, ErrInvalidData
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, ErrInvalidPEMEncoding
	}

	return DecodePublicKeyPKIX(block.Bytes)
}

// getPEMBlockType determines the appropriate PEM block type based on key algorithm and encryption
func getPEMBlockType(keyAlgorithm x509.PublicKeyAlgorithm, password []byte) string {
	// If encrypted, always use ENCRYPTED PRIVATE KEY
	if len(password) > 0 {
		return PEMTypeEncryptedPrivateKey
	}

	// Unencrypted - use algorithm-specific types
	switch keyAlgorithm {
	case x509.RSA:
		return PEMTypeRSAPrivateKey
	case x509.ECDSA:
		return PEMTypeECPrivateKey
	case x509.Ed25519:
		return PEMTypePrivateKey
	default:
		return PEMTypePrivateKey
	}
}
