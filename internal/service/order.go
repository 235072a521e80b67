package service

import (
	"context"
	"time"

	"github.com/coder/quartz"
	"github.com/google/uuid"

	"courier/internal/domain"
	"courier/internal/redis"
	"courier/internal/repository"
)

const orderLockTTL = 5 * time.Second

// OrderService handles delivery order operations.
type OrderService struct {
	orderRepo     repository.OrderRepository
	driverRepo    repository.DriverRepository
	locationStore redis.LocationStoreInterface
	lockStore     redis.LockStoreInterface
	clock         quartz.Clock
}

// NewOrderService creates a new OrderService. lockStore may be nil.
func NewOrderService(
	orderRepo repository.OrderRepository,
	driverRepo repository.DriverRepository,
	locationStore redis.LocationStoreInterface,
	lockStore redis.LockStoreInterface,
	clock quartz.Clock,
) *OrderService {
	if clock == nil {
		clock = quartz.NewReal()
	}
	return &OrderService{
		orderRepo:     orderRepo,
		driverRepo:    driverRepo,
		locationStore: locationStore,
		lockStore:     lockStore,
		clock:         clock,
	}
}

// CreateOrderRequest contains the parameters for dispatching an order to a driver.
type CreateOrderRequest struct {
	DriverID            string
	LiveTrackingEnabled bool
}

// Create assigns a new pending order to a driver.
func (s *OrderService) Create(ctx context.Context, req CreateOrderRequest) (*domain.DeliveryOrder, error) {
	if req.DriverID == "" {
		return nil, ErrInvalidDriverID
	}

	if _, err := s.driverRepo.GetByID(ctx, req.DriverID); err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	order := &domain.DeliveryOrder{
		ID:                  uuid.New().String(),
		DriverID:            req.DriverID,
		Status:              domain.OrderStatusPending,
		LiveTrackingEnabled: req.LiveTrackingEnabled,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := s.orderRepo.Create(ctx, order); err != nil {
		return nil, err
	}

	return order, nil
}

// ListForDriver returns the driver's open orders in the shape the agent reconciles.
func (s *OrderService) ListForDriver(ctx context.Context, driverID string) ([]domain.Order, error) {
	if driverID == "" {
		return nil, ErrInvalidDriverID
	}

	records, err := s.orderRepo.ListByDriver(ctx, driverID)
	if err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(records))
	for _, r := range records {
		orders = append(orders, domain.Order{
			ID:                  r.ID,
			Status:              r.Status,
			LiveTrackingEnabled: r.LiveTrackingEnabled,
		})
	}
	return orders, nil
}

// UpdateOrderStatusRequest contains the parameters for a driver status change.
type UpdateOrderStatusRequest struct {
	OrderID  string
	DriverID string
	Status   domain.OrderStatus
}

// UpdateStatus moves an order along its lifecycle. Orders reaching a terminal
// status leave the live location index.
func (s *OrderService) UpdateStatus(ctx context.Context, req UpdateOrderStatusRequest) (*domain.DeliveryOrder, error) {
	if req.OrderID == "" {
		return nil, ErrInvalidOrderID
	}
	if req.DriverID == "" {
		return nil, ErrInvalidDriverID
	}
	if !validOrderStatus(req.Status) {
		return nil, ErrInvalidOrderStatus
	}

	if s.lockStore != nil {
		token, err := s.lockStore.AcquireOrderLock(ctx, req.OrderID, orderLockTTL)
		if err != nil {
			return nil, err
		}
		if token == "" {
			return nil, ErrOrderLocked
		}
		defer func() { _ = s.lockStore.ReleaseOrderLock(context.WithoutCancel(ctx), req.OrderID, token) }()
	}

	order, err := s.orderRepo.GetByID(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}

	if order.DriverID != req.DriverID {
		return nil, ErrOrderNotAssigned
	}

	if !order.Status.CanTransitionTo(req.Status) {
		return nil, ErrInvalidStatusTransition
	}

	if err := s.orderRepo.UpdateStatus(ctx, order.ID, req.Status); err != nil {
		return nil, err
	}
	order.Status = req.Status
	order.UpdatedAt = s.clock.Now().UTC()

	if req.Status.Terminal() && s.locationStore != nil {
		_ = s.locationStore.RemoveOrderLocation(ctx, order.ID)
	}

	return order, nil
}

func validOrderStatus(status domain.OrderStatus) bool {
	switch status {
	case domain.OrderStatusPending,
		domain.OrderStatusAccepted,
		domain.OrderStatusInProgress,
		domain.OrderStatusPickedUp,
		domain.OrderStatusInTransit,
		domain.OrderStatusDelivered,
		domain.OrderStatusCancelled:
		return true
	default:
		return false
	}
}
