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

import (
	"strings"
)

// SessionPath returns the storage path for a pending ceremony session
// with the given ID. The path follows the convention: sessions/{id}.json
func SessionPath(id string) string {
	return "sessions/" + id + ".json"
}

// CredentialPath returns the storage path for a credential with the
// given ID. The path follows the convention: credentials/{id}.json
func CredentialPath(id string) string {
	return "credentials/" + id + ".json"
}

// UserPath returns the storage path for a user record with the given ID.
// The path follows the convention: users/{id}.json
func UserPath(id string) string {
	return "users/" + id + ".json"
}

// ListSessions retrieves all pending session IDs from the backend by
// listing all keys with the "sessions/" prefix. It automatically strips
// the prefix and suffix to return just the IDs.
// Returns an empty slice if no sessions exist.
// Returns an error if the backend operation fails.
func ListSessions(backend Backend) ([]string, error) {
	keys, err := backend.List("sessions/")
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		// Strip "sessions/" prefix and ".json" suffix
		id := strings.TrimPrefix(k, "sessions/")
		id = strings.TrimSuffix(id, ".json")
		if id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// ListCredentials retrieves all credential IDs from the backend by
// listing all keys with the "credentials/" prefix. It automatically
// strips the prefix and suffix to return just the IDs.
// Returns an empty slice if no credentials exist.
// Returns an error if the backend operation fails.
func ListCredentials(backend Backend) ([]string, error) {
	keys, err := backend.List("credentials/")
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		// Strip "credentials/" prefix and ".json" suffix
		id := strings.TrimPrefix(k, "credentials/")
		id = strings.TrimSuffix(id, ".json")
		if id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// ListUsers retrieves all user IDs from the backend by listing all keys
// with the "users/" prefix. It automatically strips the prefix and
// suffix to return just the IDs.
// Returns an empty slice if no users exist.
// Returns an error if the backend operation fails.
func ListUsers(backend Backend) ([]string, error) {
	keys, err := backend.List("users/")
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		// Strip "users/" prefix and ".json" suffix
		id := strings.TrimPrefix(k, "users/")
		id = strings.TrimSuffix(id, ".json")
		if id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
