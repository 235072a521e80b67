package redis

import (
	"context"
	"time"

	"courier/internal/domain"
)

// LocationStoreInterface defines the interface for order location operations.
type LocationStoreInterface interface {
	UpdateOrderLocation(ctx context.Context, orderID string, lat, lng float64, at time.Time) error
	OrderLocation(ctx context.Context, orderID string) (*OrderLocation, error)
	RemoveOrderLocation(ctx context.Context, orderID string) error
}

// LockStoreInterface defines the interface for distributed locking.
type LockStoreInterface interface {
	AcquireOrderLock(ctx context.Context, orderID string, ttl time.Duration) (string, error)
	ReleaseOrderLock(ctx context.Context, orderID, token string) error
}

// SessionStoreInterface defines the interface for refresh session storage.
type SessionStoreInterface interface {
	SaveSession(ctx context.Context, session *domain.RefreshSession, ttl time.Duration) error
	ConsumeSession(ctx context.Context, id string) (*domain.RefreshSession, error)
	RevokeSession(ctx context.Context, id string) error
}

// Ensure concrete types implement interfaces.
var (
	_ LocationStoreInterface = (*LocationStore)(nil)
	_ LockStoreInterface     = (*LockStore)(nil)
	_ SessionStoreInterface  = (*SessionStore)(nil)
)
