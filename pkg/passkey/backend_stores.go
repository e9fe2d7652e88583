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
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jeremyhahn/go-passkey/pkg/storage"
)

// BackendSessionStore persists pending ceremony sessions through a
// storage.Backend, one JSON record per session. Consume holds the store
// mutex for the whole lookup-and-delete, so within a process a session
// ID is returned at most once. Entries that fail to deserialize are
// dropped on contact and counted by the sweep.
type BackendSessionStore struct {
	mu      sync.Mutex
	backend storage.Backend
}

// NewBackendSessionStore creates a session store on top of the given
// storage backend.
func NewBackendSessionStore(backend storage.Backend) *BackendSessionStore {
	return &BackendSessionStore{backend: backend}
}

// Save persists a pending session under its ID.
func (s *BackendSessionStore) Save(ctx context.Context, session *Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return storage.SaveSession(s.backend, session.ID, data)
}

// Consume atomically removes and returns a session.
func (s *BackendSessionStore) Consume(ctx context.Context, sessionID string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := storage.GetSession(s.backend, sessionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrInvalidID) {
			return nil, ErrInvalidSession
		}
		return nil, fmt.Errorf("load session: %w", err)
	}

	// The entry is gone regardless of what happens next; a session is
	// never returned twice.
	if err := storage.DeleteSession(s.backend, sessionID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("delete session: %w", err)
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, ErrInvalidSession
	}

	if session.Expired(time.Now()) {
		return nil, ErrSessionExpired
	}
	return &session, nil
}

// Sweep removes sessions whose deadline passed at the given instant,
// along with entries that fail to deserialize.
func (s *BackendSessionStore) Sweep(ctx context.Context, now time.Time) (*SweepReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, err := storage.ListSessions(s.backend)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	report := &SweepReport{}
	for _, id := range ids {
		data, err := storage.GetSession(s.backend, id)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("load session %q: %w", id, err)
		}

		var session Session
		if err := json.Unmarshal(data, &session); err != nil {
			if err := storage.DeleteSession(s.backend, id); err != nil && !errors.Is(err, storage.ErrNotFound) {
				return nil, fmt.Errorf("delete corrupt session %q: %w", id, err)
			}
			report.CorruptRemoved++
			continue
		}

		if !session.Expired(now) {
			continue
		}

		if err := storage.DeleteSession(s.backend, id); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("delete expired session %q: %w", id, err)
		}
		switch session.Kind {
		case SessionKindAuthentication:
			report.AuthenticationsRemoved++
		default:
			report.RegistrationsRemoved++
		}
	}
	return report, nil
}

// PendingCount reports outstanding sessions per ceremony kind. Entries
// that fail to deserialize are skipped; the next sweep removes them.
func (s *BackendSessionStore) PendingCount(ctx context.Context) (map[SessionKind]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, err := storage.ListSessions(s.backend)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	counts := map[SessionKind]int{
		SessionKindRegistration:   0,
		SessionKindAuthentication: 0,
	}
	for _, id := range ids {
		data, err := storage.GetSession(s.backend, id)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("load session %q: %w", id, err)
		}

		var session Session
		if err := json.Unmarshal(data, &session); err != nil {
			continue
		}
		counts[session.Kind]++
	}
	return counts, nil
}

// BackendCredentialStore persists registered credentials through a
// storage.Backend, keyed by the hex form of the credential ID.
type BackendCredentialStore struct {
	mu      sync.RWMutex
	backend storage.Backend
}

// NewBackendCredentialStore creates a credential store on top of the
// given storage backend.
func NewBackendCredentialStore(backend storage.Backend) *BackendCredentialStore {
	return &BackendCredentialStore{backend: backend}
}

// Save stores a new credential.
func (s *BackendCredentialStore) Save(ctx context.Context, cred *Credential) error {
	data, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("encode credential: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := credentialKey(cred.ID)
	exists, err := storage.CredentialExists(s.backend, key)
	if err != nil {
		return fmt.Errorf("check credential: %w", err)
	}
	if exists {
		return ErrCredentialAlreadyExists
	}
	return storage.SaveCredential(s.backend, key, data)
}

// GetByUserID retrieves all credentials owned by a user.
func (s *BackendCredentialStore) GetByUserID(ctx context.Context, userID string) ([]*Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all, err := s.loadAll()
	if err != nil {
		return nil, err
	}

	creds := make([]*Credential, 0)
	for _, cred := range all {
		if cred.UserID == userID {
			creds = append(creds, cred)
		}
	}
	return creds, nil
}

// GetByCredentialID retrieves a credential by its ID across all users.
func (s *BackendCredentialStore) GetByCredentialID(ctx context.Context, credID []byte) (*Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.load(credentialKey(credID))
}

// Update updates an existing credential.
func (s *BackendCredentialStore) Update(ctx context.Context, cred *Credential) error {
	data, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("encode credential: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := credentialKey(cred.ID)
	exists, err := storage.CredentialExists(s.backend, key)
	if err != nil {
		return fmt.Errorf("check credential: %w", err)
	}
	if !exists {
		return ErrCredentialNotFound
	}
	return storage.SaveCredential(s.backend, key, data)
}

// Delete removes a credential by its ID.
func (s *BackendCredentialStore) Delete(ctx context.Context, credID []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := storage.DeleteCredential(s.backend, credentialKey(credID))
	if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrInvalidID) {
		return ErrCredentialNotFound
	}
	return err
}

// All returns every stored credential.
func (s *BackendCredentialStore) All(ctx context.Context) ([]*Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.loadAll()
}

func (s *BackendCredentialStore) load(key string) (*Credential, error) {
	data, err := storage.GetCredential(s.backend, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrInvalidID) {
			return nil, ErrCredentialNotFound
		}
		return nil, fmt.Errorf("load credential: %w", err)
	}

	var cred Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		return nil, fmt.Errorf("decode credential %q: %w", key, storage.ErrInvalidData)
	}
	return &cred, nil
}

func (s *BackendCredentialStore) loadAll() ([]*Credential, error) {
	ids, err := storage.ListCredentials(s.backend)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}

	creds := make([]*Credential, 0, len(ids))
	for _, id := range ids {
		cred, err := s.load(id)
		if err != nil {
			if errors.Is(err, ErrCredentialNotFound) || errors.Is(err, storage.ErrInvalidData) {
				continue
			}
			return nil, err
		}
		creds = append(creds, cred)
	}
	return creds, nil
}

// storedUser is the JSON record form of a user.
type storedUser struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
}

// BackendUserStore persists user records through a storage.Backend.
type BackendUserStore struct {
	mu      sync.RWMutex
	backend storage.Backend
}

// NewBackendUserStore creates a user store on top of the given storage
// backend.
func NewBackendUserStore(backend storage.Backend) *BackendUserStore {
	return &BackendUserStore{backend: backend}
}

// Get retrieves a user by identifier.
func (s *BackendUserStore) Get(ctx context.Context, userID string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := storage.GetUser(s.backend, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrInvalidID) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("load user: %w", err)
	}

	var record storedUser
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("decode user %q: %w", userID, storage.ErrInvalidData)
	}
	return NewDefaultUser(record.ID, record.Name, record.DisplayName), nil
}

// Create creates a new user with the given identity.
func (s *BackendUserStore) Create(ctx context.Context, userID, name, displayName string) (User, error) {
	data, err := json.Marshal(storedUser{ID: userID, Name: name, DisplayName: displayName})
	if err != nil {
		return nil, fmt.Errorf("encode user: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	exists, err := storage.UserExists(s.backend, userID)
	if err != nil {
		if errors.Is(err, storage.ErrInvalidID) {
			return nil, ErrInvalidRequest
		}
		return nil, fmt.Errorf("check user: %w", err)
	}
	if exists {
		return nil, ErrUserAlreadyExists
	}

	if err := storage.SaveUser(s.backend, userID, data); err != nil {
		return nil, fmt.Errorf("save user: %w", err)
	}
	return NewDefaultUser(userID, name, displayName), nil
}
