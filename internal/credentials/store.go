// Package credentials persists the driver's session on the device.
package credentials

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"courier/internal/domain"
)

// ErrNoCredential is returned when no session is stored.
var ErrNoCredential = errors.New("no stored credential")

// Store reads and writes the persisted session.
type Store interface {
	Load(ctx context.Context) (*domain.AuthCredential, error)
	Save(ctx context.Context, cred *domain.AuthCredential) error
	Clear(ctx context.Context) error
}

// TokenExpiry returns the exp claim of a JWT without verifying its signature.
// The agent only uses it to decide whether a refresh token is worth sending.
func TokenExpiry(token string) (time.Time, bool) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// FillExpiry sets missing expiry fields from the tokens' exp claims.
func FillExpiry(cred *domain.AuthCredential) {
	if cred.AccessExpiresAt == nil {
		if exp, ok := TokenExpiry(cred.AccessToken); ok {
			cred.AccessExpiresAt = &exp
		}
	}
	if cred.RefreshExpiresAt == nil && cred.RefreshToken != "" {
		if exp, ok := TokenExpiry(cred.RefreshToken); ok {
			cred.RefreshExpiresAt = &exp
		}
	}
}

// MemoryStore keeps the session in memory.
type MemoryStore struct {
	mu   sync.RWMutex
	cred *domain.AuthCredential
}

// NewMemoryStore creates a store holding cred (may be nil).
func NewMemoryStore(cred *domain.AuthCredential) *MemoryStore {
	return &MemoryStore{cred: clone(cred)}
}

// Load implements Store.
func (s *MemoryStore) Load(context.Context) (*domain.AuthCredential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cred == nil {
		return nil, ErrNoCredential
	}
	return clone(s.cred), nil
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, cred *domain.AuthCredential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cred = clone(cred)
	return nil
}

// Clear implements Store.
func (s *MemoryStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cred = nil
	return nil
}

func clone(cred *domain.AuthCredential) *domain.AuthCredential {
	if cred == nil {
		return nil
	}
	c := *cred
	return &c
}
