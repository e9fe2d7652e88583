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

package storage

// This file provides adapter functions that wrap Backend operations with
// the session/credential/user path conventions. Callers hand in encoded
// record bytes; serialization stays with the caller so the storage layer
// never depends on domain types.

// SaveSession stores session data for the given ID using the backend.
// It automatically constructs the storage path using SessionPath(id).
// Returns ErrInvalidID if the ID is empty.
// Returns any error from the backend Put operation.
func SaveSession(backend Backend, id string, data []byte) error {
	if id == "" {
		return ErrInvalidID
	}
	return backend.Put(SessionPath(id), data, nil)
}

// GetSession retrieves session data for the given ID using the backend.
// It automatically constructs the storage path using SessionPath(id).
// Returns ErrInvalidID if the ID is empty.
// Returns ErrNotFound if the session does not exist.
// Returns any error from the backend Get operation.
func GetSession(backend Backend, id string) ([]byte, error) {
	if id == "" {
		return nil, ErrInvalidID
	}
	return backend.Get(SessionPath(id))
}

// DeleteSession removes session data for the given ID using the backend.
// It automatically constructs the storage path using SessionPath(id).
// Returns ErrInvalidID if the ID is empty.
// Returns ErrNotFound if the session does not exist.
// Returns any error from the backend Delete operation.
func DeleteSession(backend Backend, id string) error {
	if id == "" {
		return ErrInvalidID
	}
	return backend.Delete(SessionPath(id))
}

// SessionExists checks if a session exists for the given ID using the backend.
// It automatically constructs the storage path using SessionPath(id).
// Returns ErrInvalidID if the ID is empty.
// Returns any error from the backend Exists operation.
func SessionExists(backend Backend, id string) (bool, error) {
	if id == "" {
		return false, ErrInvalidID
	}
	return backend.Exists(SessionPath(id))
}

// SaveCredential stores credential data for the given ID using the backend.
// It automatically constructs the storage path using CredentialPath(id).
// Returns ErrInvalidID if the ID is empty.
// Returns any error from the backend Put operation.
func SaveCredential(backend Backend, id string, data []byte) error {
	if id == "" {
		return ErrInvalidID
	}
	return backend.Put(CredentialPath(id), data, nil)
}

// GetCredential retrieves credential data for the given ID using the backend.
// It automatically constructs the storage path using CredentialPath(id).
// Returns ErrInvalidID if the ID is empty.
// Returns ErrNotFound if the credential does not exist.
// Returns any error from the backend Get operation.
func GetCredential(backend Backend, id string) ([]byte, error) {
	if id == "" {
		return nil, ErrInvalidID
	}
	return backend.Get(CredentialPath(id))
}

// DeleteCredential removes credential data for the given ID using the backend.
// It automatically constructs the storage path using CredentialPath(id).
// Returns ErrInvalidID if the ID is empty.
// Returns ErrNotFound if the credential does not exist.
// Returns any error from the backend Delete operation.
func DeleteCredential(backend Backend, id string) error {
	if id == "" {
		return ErrInvalidID
	}
	return backend.Delete(CredentialPath(id))
}

// CredentialExists checks if a credential exists for the given ID using the backend.
// It automatically constructs the storage path using CredentialPath(id).
// Returns ErrInvalidID if the ID is empty.
// Returns any error from the backend Exists operation.
func CredentialExists(backend Backend, id string) (bool, error) {
	if id == "" {
		return false, ErrInvalidID
	}
	return backend.Exists(CredentialPath(id))
}

// SaveUser stores user data for the given ID using the backend.
// It automatically constructs the storage path using UserPath(id).
// Returns ErrInvalidID if the ID is empty.
// Returns any error from the backend Put operation.
func SaveUser(backend Backend, id string, data []byte) error {
	if id == "" {
		return ErrInvalidID
	}
	return backend.Put(UserPath(id), data, nil)
}

// GetUser retrieves user data for the given ID using the backend.
// It automatically constructs the storage path using UserPath(id).
// Returns ErrInvalidID if the ID is empty.
// Returns ErrNotFound if the user does not exist.
// Returns any error from the backend Get operation.
func GetUser(backend Backend, id string) ([]byte, error) {
	if id == "" {
		return nil, ErrInvalidID
	}
	return backend.Get(UserPath(id))
}

// DeleteUser removes user data for the given ID using the backend.
// It automatically constructs the storage path using UserPath(id).
// Returns ErrInvalidID if the ID is empty.
// Returns ErrNotFound if the user does not exist.
// Returns any error from the backend Delete operation.
func DeleteUser(backend Backend, id string) error {
	if id == "" {
		return ErrInvalidID
	}
	return backend.Delete(UserPath(id))
}

// UserExists checks if a user exists for the given ID using the backend.
// It automatically constructs the storage path using UserPath(id).
// Returns ErrInvalidID if the ID is empty.
// Returns any error from the backend Exists operation.
func UserExists(backend Backend, id string) (bool, error) {
	if id == "" {
		return false, ErrInvalidID
	}
	return backend.Exists(UserPath(id))
}
