// Package orders reads the driver's order list from the backend and feeds it
// to the reconciler.
package orders

import (
	"context"
	"fmt"
	"net/url"

	"courier/internal/domain"
	"courier/internal/transport"
)

// ListPath is the backend endpoint listing the driver's orders.
const ListPath = "/driver/orders"

// API is the transport surface the orders client needs.
type API interface {
	Get(ctx context.Context, path string) (*transport.Response, error)
	Post(ctx context.Context, path string, body any) (*transport.Response, error)
	Invalidate()
}

// Client talks to the backend order endpoints.
type Client struct {
	api API
}

// NewClient creates a Client.
func NewClient(api API) *Client {
	return &Client{api: api}
}

type statusRequest struct {
	Status domain.OrderStatus `json:"status"`
}

// FetchOrders returns the driver's current order list.
func (c *Client) FetchOrders(ctx context.Context) ([]domain.Order, error) {
	resp, err := c.api.Get(ctx, ListPath)
	if err != nil {
		return nil, fmt.Errorf("fetch orders: %w", err)
	}
	var orders []domain.Order
	if err := resp.Decode(&orders); err != nil {
		return nil, fmt.Errorf("fetch orders: %w", err)
	}
	return orders, nil
}

// SubmitStatus moves an order to status. Cached order reads are dropped so
// the next fetch sees the change.
func (c *Client) SubmitStatus(ctx context.Context, orderID string, status domain.OrderStatus) error {
	path := ListPath + "/" + url.PathEscape(orderID) + "/status"
	resp, err := c.api.Post(ctx, path, statusRequest{Status: status})
	if err != nil {
		return fmt.Errorf("submit status: %w", err)
	}
	if !resp.OK() {
		return fmt.Errorf("submit status: %w: %d", transport.ErrUnexpectedStatus, resp.StatusCode)
	}
	c.api.Invalidate()
	return nil
}
