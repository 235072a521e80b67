package domain

import "time"

// OrderStatus represents the delivery status of an order.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusAccepted   OrderStatus = "accepted"
	OrderStatusInProgress OrderStatus = "in_progress"
	OrderStatusPickedUp   OrderStatus = "picked_up"
	OrderStatusInTransit  OrderStatus = "in_transit"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// Trackable reports whether an order in this status needs live location reporting.
func (s OrderStatus) Trackable() bool {
	switch s {
	case OrderStatusInProgress, OrderStatusPickedUp, OrderStatusInTransit:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further status change is possible.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusAccepted},
	OrderStatusAccepted:   {OrderStatusInProgress},
	OrderStatusInProgress: {OrderStatusPickedUp},
	OrderStatusPickedUp:   {OrderStatusInTransit},
	OrderStatusInTransit:  {OrderStatusDelivered},
}

// CanTransitionTo reports whether an order may move from s to next.
// Any non-terminal order may be cancelled.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	if s.Terminal() {
		return false
	}
	if next == OrderStatusCancelled {
		return true
	}
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Order is the reconciliation input: one entry of the driver's order list.
type Order struct {
	ID                  string      `json:"id"`
	Status              OrderStatus `json:"status"`
	LiveTrackingEnabled bool        `json:"live_tracking_enabled"`
}

// Eligible reports whether the order must currently receive location updates.
func (o Order) Eligible() bool {
	return o.LiveTrackingEnabled && o.Status.Trackable()
}

// TrackedOrder is an eligible order remembered by the reconciler.
// It is updated in place while it stays eligible so AddedAt is preserved.
type TrackedOrder struct {
	OrderID             string
	Status              OrderStatus
	LiveTrackingEnabled bool
	AddedAt             time.Time
}

// DeliveryOrder is the gateway's persisted order record.
type DeliveryOrder struct {
	ID                  string
	DriverID            string
	Status              OrderStatus
	LiveTrackingEnabled bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}
