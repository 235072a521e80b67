package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"courier/internal/domain"
	"courier/internal/middleware"
	"courier/internal/service"
)

// OrderHandler handles HTTP requests for delivery orders.
type OrderHandler struct {
	orderService *service.OrderService
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(orderService *service.OrderService) *OrderHandler {
	return &OrderHandler{orderService: orderService}
}

// UpdateStatusRequest is the HTTP request body for an order status change.
type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// CreateOrderRequest is the HTTP request body for dispatching an order.
type CreateOrderRequest struct {
	DriverID            string `json:"driver_id" binding:"required"`
	LiveTrackingEnabled bool   `json:"live_tracking_enabled"`
}

// OrderResponse is the HTTP response for order data.
type OrderResponse struct {
	ID                  string `json:"id"`
	DriverID            string `json:"driver_id"`
	Status              string `json:"status"`
	LiveTrackingEnabled bool   `json:"live_tracking_enabled"`
	UpdatedAt           string `json:"updated_at"`
}

func toOrderResponse(o *domain.DeliveryOrder) OrderResponse {
	return OrderResponse{
		ID:                  o.ID,
		DriverID:            o.DriverID,
		Status:              string(o.Status),
		LiveTrackingEnabled: o.LiveTrackingEnabled,
		UpdatedAt:           o.UpdatedAt.Format(time.RFC3339),
	}
}

// ListDriverOrders handles GET /driver/orders
func (h *OrderHandler) ListDriverOrders(c *gin.Context) {
	orders, err := h.orderService.ListForDriver(c.Request.Context(), middleware.DriverID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, orders)
}

// UpdateStatus handles POST /driver/orders/:id/status
func (h *OrderHandler) UpdateStatus(c *gin.Context) {
	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	order, err := h.orderService.UpdateStatus(c.Request.Context(), service.UpdateOrderStatusRequest{
		OrderID:  c.Param("id"),
		DriverID: middleware.DriverID(c),
		Status:   domain.OrderStatus(req.Status),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toOrderResponse(order))
}

// CreateOrder handles POST /v1/orders
func (h *OrderHandler) CreateOrder(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	order, err := h.orderService.Create(c.Request.Context(), service.CreateOrderRequest{
		DriverID:            req.DriverID,
		LiveTrackingEnabled: req.LiveTrackingEnabled,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, toOrderResponse(order))
}
