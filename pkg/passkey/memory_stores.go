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
	"encoding/hex"
	"sync"
	"time"
)

// MemoryUserStore is an in-memory implementation of UserStore.
// This is intended for development and testing only.
type MemoryUserStore struct {
	mu    sync.RWMutex
	users map[string]*DefaultUser
}

// NewMemoryUserStore creates a new in-memory user store.
func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{
		users: make(map[string]*DefaultUser),
	}
}

// Get retrieves a user by identifier.
func (s *MemoryUserStore) Get(ctx context.Context, userID string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// Create creates a new user with the given identity.
func (s *MemoryUserStore) Create(ctx context.Context, userID, name, displayName string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[userID]; ok {
		return nil, ErrUserAlreadyExists
	}

	user := NewDefaultUser(userID, name, displayName)
	s.users[userID] = user
	return user, nil
}

// Count returns the number of users in the store.
func (s *MemoryUserStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}

// Clear removes all users from the store.
func (s *MemoryUserStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = make(map[string]*DefaultUser)
}

// MemorySessionStore is an in-memory implementation of SessionStore.
// Consume holds the write lock for the whole lookup-and-delete so a
// session ID can only ever be returned once, no matter how many callers
// race on it.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewMemorySessionStore creates a new in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]*Session),
	}
}

// Save persists a pending session under its ID.
func (s *MemorySessionStore) Save(ctx context.Context, session *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[session.ID] = session
	return nil
}

// Consume atomically removes and returns a session.
func (s *MemorySessionStore) Consume(ctx context.Context, sessionID string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrInvalidSession
	}
	delete(s.sessions, sessionID)

	if session.Expired(time.Now()) {
		return nil, ErrSessionExpired
	}
	return session, nil
}

// Sweep removes sessions whose deadline passed at the given instant.
func (s *MemorySessionStore) Sweep(ctx context.Context, now time.Time) (*SweepReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	report := &SweepReport{}
	for id, session := range s.sessions {
		if !session.Expired(now) {
			continue
		}
		delete(s.sessions, id)
		switch session.Kind {
		case SessionKindAuthentication:
			report.AuthenticationsRemoved++
		default:
			report.RegistrationsRemoved++
		}
	}
	return report, nil
}

// PendingCount reports outstanding sessions per ceremony kind.
func (s *MemorySessionStore) PendingCount(ctx context.Context) (map[SessionKind]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := map[SessionKind]int{
		SessionKindRegistration:   0,
		SessionKindAuthentication: 0,
	}
	for _, session := range s.sessions {
		counts[session.Kind]++
	}
	return counts, nil
}

// Count returns the number of sessions in the store.
func (s *MemorySessionStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Clear removes all sessions from the store.
func (s *MemorySessionStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = make(map[string]*Session)
}

// MemoryCredentialStore is an in-memory implementation of CredentialStore.
// Credentials are indexed by credential ID globally and by owning user.
type MemoryCredentialStore struct {
	mu       sync.RWMutex
	byID     map[string]*Credential
	byUserID map[string][]*Credential
}

// NewMemoryCredentialStore creates a new in-memory credential store.
func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{
		byID:     make(map[string]*Credential),
		byUserID: make(map[string][]*Credential),
	}
}

func credentialKey(credID []byte) string {
	return hex.EncodeToString(credID)
}

// copyCredential returns a shallow copy. Callers mutate scalar fields
// (counters, flags, timestamps) and publish through Update, so sharing
// the byte slices is safe.
func copyCredential(cred *Credential) *Credential {
	c := *cred
	return &c
}

// Save stores a new credential.
func (s *MemoryCredentialStore) Save(ctx context.Context, cred *Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := credentialKey(cred.ID)
	if _, ok := s.byID[key]; ok {
		return ErrCredentialAlreadyExists
	}

	s.byID[key] = cred
	s.byUserID[cred.UserID] = append(s.byUserID[cred.UserID], cred)
	return nil
}

// GetByUserID retrieves all credentials owned by a user.
func (s *MemoryCredentialStore) GetByUserID(ctx context.Context, userID string) ([]*Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	creds, ok := s.byUserID[userID]
	if !ok {
		return []*Credential{}, nil
	}

	// Return copies to prevent external modification
	result := make([]*Credential, len(creds))
	for i, cred := range creds {
		result[i] = copyCredential(cred)
	}
	return result, nil
}

// GetByCredentialID retrieves a credential by its ID across all users.
func (s *MemoryCredentialStore) GetByCredentialID(ctx context.Context, credID []byte) (*Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cred, ok := s.byID[credentialKey(credID)]
	if !ok {
		return nil, ErrCredentialNotFound
	}
	return copyCredential(cred), nil
}

// Update updates an existing credential.
func (s *MemoryCredentialStore) Update(ctx context.Context, cred *Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := credentialKey(cred.ID)
	if _, ok := s.byID[key]; !ok {
		return ErrCredentialNotFound
	}

	s.byID[key] = cred

	creds := s.byUserID[cred.UserID]
	for i, c := range creds {
		if credentialKey(c.ID) == key {
			creds[i] = cred
			break
		}
	}
	return nil
}

// Delete removes a credential by its ID.
func (s *MemoryCredentialStore) Delete(ctx context.Context, credID []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := credentialKey(credID)
	cred, ok := s.byID[key]
	if !ok {
		return ErrCredentialNotFound
	}

	delete(s.byID, key)

	creds := s.byUserID[cred.UserID]
	for i, c := range creds {
		if credentialKey(c.ID) == key {
			s.byUserID[cred.UserID] = append(creds[:i], creds[i+1:]...)
			break
		}
	}
	if len(s.byUserID[cred.UserID]) == 0 {
		delete(s.byUserID, cred.UserID)
	}
	return nil
}

// All returns every stored credential.
func (s *MemoryCredentialStore) All(ctx context.Context) ([]*Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*Credential, 0, len(s.byID))
	for _, cred := range s.byID {
		result = append(result, copyCredential(cred))
	}
	return result, nil
}

// Count returns the total number of credentials in the store.
func (s *MemoryCredentialStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// Clear removes all credentials from the store.
func (s *MemoryCredentialStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID = make(map[string]*Credential)
	s.byUserID = make(map[string][]*Credential)
}
