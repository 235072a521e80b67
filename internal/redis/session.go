package redis

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"courier/internal/domain"
)

const refreshSessionPrefix = "session:refresh:"

// SessionStore keeps refresh sessions in Redis. A session is consumed on
// first use so refresh tokens rotate.
type SessionStore struct {
	client *redis.Client
}

// NewSessionStore creates a new SessionStore.
func NewSessionStore(client *redis.Client) *SessionStore {
	return &SessionStore{client: client}
}

// SaveSession stores a refresh session until ttl elapses.
func (s *SessionStore) SaveSession(ctx context.Context, session *domain.RefreshSession, ttl time.Duration) error {
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, refreshSessionPrefix+session.ID, data, ttl).Err()
}

// ConsumeSession atomically reads and deletes a refresh session.
// It returns nil when the session does not exist or was already used.
func (s *SessionStore) ConsumeSession(ctx context.Context, id string) (*domain.RefreshSession, error) {
	data, err := s.client.GetDel(ctx, refreshSessionPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var session domain.RefreshSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// RevokeSession deletes a refresh session.
func (s *SessionStore) RevokeSession(ctx context.Context, id string) error {
	return s.client.Del(ctx, refreshSessionPrefix+id).Err()
}
