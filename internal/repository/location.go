package repository

import (
	"context"

	"courier/internal/domain"
)

// LocationRepository stores the location history reported by drivers.
type LocationRepository interface {
	// Append adds one history row.
	Append(ctx context.Context, record *domain.LocationRecord) error

	// ListByOrder returns the newest rows mentioning orderID, newest first.
	ListByOrder(ctx context.Context, orderID string, limit int) ([]*domain.LocationRecord, error)
}
