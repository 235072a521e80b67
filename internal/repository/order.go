package repository

import (
	"context"

	"courier/internal/domain"
)

// OrderRepository defines the persistence operations for delivery orders.
type OrderRepository interface {
	// Create persists a new order.
	Create(ctx context.Context, order *domain.DeliveryOrder) error

	// GetByID retrieves an order by ID.
	GetByID(ctx context.Context, id string) (*domain.DeliveryOrder, error)

	// ListByDriver retrieves the non-terminal orders assigned to a driver,
	// oldest first.
	ListByDriver(ctx context.Context, driverID string) ([]*domain.DeliveryOrder, error)

	// UpdateStatus moves an order to status.
	UpdateStatus(ctx context.Context, id string, status domain.OrderStatus) error
}
