package zalo

import (
	"context"
	"sync"
	"time"
)

// Credentials is the mutable token triple. A zero ExpiresAt means the expiry
// is unknown.
type Credentials struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// AppIdentity is the static application identity used for refreshes.
type AppIdentity struct {
	AppID     string
	AppSecret string
}

// CredentialStore persists Credentials. Save must replace all three fields
// as one unit so a reader never sees a new token with an old expiry.
type CredentialStore interface {
	Load(ctx context.Context) (Credentials, error)
	Save(ctx context.Context, creds Credentials) error
}

// Seeder is implemented by stores that can be initialised from configuration
// without clobbering credentials a previous refresh already wrote.
type Seeder interface {
	Seed(ctx context.Context, creds Credentials) (bool, error)
}

// MemoryCredentialStore keeps credentials in process memory.
type MemoryCredentialStore struct {
	mu    sync.RWMutex
	creds Credentials
	saves int
}

// NewMemoryCredentialStore returns a store holding initial.
func NewMemoryCredentialStore(initial Credentials) *MemoryCredentialStore {
	return &MemoryCredentialStore{creds: initial}
}

// Load returns a copy of the current credentials.
func (s *MemoryCredentialStore) Load(ctx context.Context) (Credentials, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds, nil
}

// Save replaces the credentials.
func (s *MemoryCredentialStore) Save(ctx context.Context, creds Credentials) error {
	s.mu.Lock()
	s.creds = creds
	s.saves++
	s.mu.Unlock()
	return nil
}

// Seed sets creds only if no access token is held yet.
func (s *MemoryCredentialStore) Seed(ctx context.Context, creds Credentials) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.creds.AccessToken != "" {
		return false, nil
	}
	s.creds = creds
	return true, nil
}

// Saves reports how many times Save was called.
func (s *MemoryCredentialStore) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}
