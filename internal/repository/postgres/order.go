package postgres

import (
	"context"
	"database/sql"

	"courier/internal/domain"
)

// OrderRepository is a PostgreSQL implementation of repository.OrderRepository.
type OrderRepository struct {
	q Querier
}

// NewOrderRepository creates a new PostgreSQL order repository.
func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{q: db}
}

// NewOrderRepositoryWithTx creates an order repository using a transaction.
func NewOrderRepositoryWithTx(tx *sql.Tx) *OrderRepository {
	return &OrderRepository{q: tx}
}

// Create persists a new order.
func (r *OrderRepository) Create(ctx context.Context, order *domain.DeliveryOrder) error {
	query := `
		INSERT INTO orders (id, driver_id, status, live_tracking_enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.q.ExecContext(ctx, query,
		order.ID,
		order.DriverID,
		order.Status,
		order.LiveTrackingEnabled,
		order.CreatedAt,
		order.UpdatedAt,
	)
	if err != nil {
		return mapError(err)
	}
	return nil
}

// GetByID retrieves an order by ID.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*domain.DeliveryOrder, error) {
	query := `
		SELECT id, driver_id, status, live_tracking_enabled, created_at, updated_at
		FROM orders WHERE id = $1
	`

	var order domain.DeliveryOrder
	err := r.q.QueryRowContext(ctx, query, id).Scan(
		&order.ID,
		&order.DriverID,
		&order.Status,
		&order.LiveTrackingEnabled,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, mapError(err)
	}

	return &order, nil
}

// ListByDriver retrieves the non-terminal orders assigned to a driver, oldest first.
func (r *OrderRepository) ListByDriver(ctx context.Context, driverID string) ([]*domain.DeliveryOrder, error) {
	query := `
		SELECT id, driver_id, status, live_tracking_enabled, created_at, updated_at
		FROM orders
		WHERE driver_id = $1 AND status NOT IN ($2, $3)
		ORDER BY created_at, id
	`
	rows, err := r.q.QueryContext(ctx, query, driverID, domain.OrderStatusDelivered, domain.OrderStatusCancelled)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*domain.DeliveryOrder
	for rows.Next() {
		var order domain.DeliveryOrder
		if err := rows.Scan(
			&order.ID,
			&order.DriverID,
			&order.Status,
			&order.LiveTrackingEnabled,
			&order.CreatedAt,
			&order.UpdatedAt,
		); err != nil {
			return nil, err
		}
		orders = append(orders, &order)
	}
	return orders, rows.Err()
}

// UpdateStatus moves an order to status.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, status domain.OrderStatus) error {
	query := `UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2`
	return execOne(ctx, r.q, query, status, id)
}
