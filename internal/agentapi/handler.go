// Package agentapi is the agent's local HTTP API, used by the driver app shell
// to report app state, log in and out, and inspect tracking.
package agentapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"courier/internal/domain"
	"courier/internal/location"
	"courier/internal/session"
	"courier/internal/transport"
)

// Tracker is the tracking engine surface exposed over the API.
type Tracker interface {
	TrackingStatus() domain.TrackingStatus
	Precision() location.Precision
	SetTrackingPrecision(p location.Precision)
}

// Lifecycle receives app-state and session events.
type Lifecycle interface {
	OnAppStateChange(state domain.AppState)
	OnLogin()
	OnLogout(reason error)
	AppState() domain.AppState
}

// Sessions logs the driver in and out.
type Sessions interface {
	Login(ctx context.Context, phone, pin string) error
	Logout(ctx context.Context) error
	Authenticated(ctx context.Context) bool
}

// OrderStatusSubmitter sends order status changes to the backend.
type OrderStatusSubmitter interface {
	SubmitStatus(ctx context.Context, orderID string, status domain.OrderStatus) error
}

// Refresher asks for an immediate order list fetch.
type Refresher interface {
	Refresh()
}

// TrackedLister lists the orders the reconciler has started.
type TrackedLister interface {
	Tracked() []domain.TrackedOrder
}

// Handler serves the agent API.
type Handler struct {
	tracker   Tracker
	lifecycle Lifecycle
	sessions  Sessions
	orders    OrderStatusSubmitter
	refresher Refresher
	tracked   TrackedLister
}

// NewHandler creates a Handler.
func NewHandler(tracker Tracker, lifecycle Lifecycle, sessions Sessions, orders OrderStatusSubmitter, refresher Refresher, tracked TrackedLister) *Handler {
	return &Handler{
		tracker:   tracker,
		lifecycle: lifecycle,
		sessions:  sessions,
		orders:    orders,
		refresher: refresher,
		tracked:   tracked,
	}
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Authenticated bool                  `json:"authenticated"`
	AppState      domain.AppState       `json:"app_state"`
	Precision     string                `json:"precision"`
	Tracking      domain.TrackingStatus `json:"tracking"`
	Orders        []TrackedOrderView    `json:"orders"`
}

// TrackedOrderView is one tracked order in the status response.
type TrackedOrderView struct {
	OrderID string             `json:"order_id"`
	Status  domain.OrderStatus `json:"status"`
	AddedAt string             `json:"added_at"`
}

// AppStateRequest is the body of POST /app-state.
type AppStateRequest struct {
	State domain.AppState `json:"state"`
}

// LoginRequest is the body of POST /session/login.
type LoginRequest struct {
	Phone string `json:"phone"`
	PIN   string `json:"pin"`
}

// OrderStatusRequest is the body of POST /orders/:id/status.
type OrderStatusRequest struct {
	Status domain.OrderStatus `json:"status"`
}

// PrecisionRequest is the body of PUT /tracking/precision.
type PrecisionRequest struct {
	Precision string `json:"precision"`
}

// Status handles GET /status
func (h *Handler) Status(c *gin.Context) {
	tracked := h.tracked.Tracked()
	views := make([]TrackedOrderView, 0, len(tracked))
	for _, t := range tracked {
		views = append(views, TrackedOrderView{
			OrderID: t.OrderID,
			Status:  t.Status,
			AddedAt: t.AddedAt.UTC().Format(time.RFC3339),
		})
	}

	status := h.tracker.TrackingStatus()
	if status.ActiveOrderIDs == nil {
		status.ActiveOrderIDs = []string{}
	}
	c.JSON(http.StatusOK, StatusResponse{
		Authenticated: h.sessions.Authenticated(c.Request.Context()),
		AppState:      h.lifecycle.AppState(),
		Precision:     h.tracker.Precision().Name,
		Tracking:      status,
		Orders:        views,
	})
}

// AppState handles POST /app-state
func (h *Handler) AppState(c *gin.Context) {
	var req AppStateRequest
	if err := c.ShouldBindJSON(&req); err != nil || !req.State.Valid() {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "state must be one of active, background, inactive"})
		return
	}
	h.lifecycle.OnAppStateChange(req.State)
	c.JSON(http.StatusAccepted, gin.H{"state": req.State})
}

// Login handles POST /session/login
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Phone == "" || req.PIN == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "phone and pin are required"})
		return
	}

	if err := h.sessions.Login(c.Request.Context(), req.Phone, req.PIN); err != nil {
		respondError(c, err)
		return
	}
	h.lifecycle.OnLogin()
	c.JSON(http.StatusOK, gin.H{"authenticated": true})
}

// Logout handles POST /session/logout
func (h *Handler) Logout(c *gin.Context) {
	if err := h.sessions.Logout(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	h.lifecycle.OnLogout(nil)
	c.JSON(http.StatusOK, gin.H{"authenticated": false})
}

// SubmitOrderStatus handles POST /orders/:id/status
func (h *Handler) SubmitOrderStatus(c *gin.Context) {
	orderID := c.Param("id")
	var req OrderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Status == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "status is required"})
		return
	}

	if err := h.orders.SubmitStatus(c.Request.Context(), orderID, req.Status); err != nil {
		respondError(c, err)
		return
	}
	h.refresher.Refresh()
	c.JSON(http.StatusAccepted, gin.H{"order_id": orderID, "status": req.Status})
}

// SetPrecision handles PUT /tracking/precision
func (h *Handler) SetPrecision(c *gin.Context) {
	var req PrecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	p, err := location.ParsePrecision(req.Precision)
	if err != nil {
		respondError(c, err)
		return
	}
	h.tracker.SetTrackingPrecision(p)
	c.JSON(http.StatusOK, gin.H{"precision": p.Name})
}

func respondError(c *gin.Context, err error) {
	c.JSON(mapErrorToHTTPStatus(err), ErrorResponse{Error: err.Error()})
}

func mapErrorToHTTPStatus(err error) int {
	switch {
	case errors.Is(err, location.ErrUnknownPrecision):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrInvalidCredentials),
		errors.Is(err, transport.ErrNotAuthenticated),
		errors.Is(err, transport.ErrSessionExpired):
		return http.StatusUnauthorized
	case errors.Is(err, transport.ErrUnexpectedStatus),
		errors.Is(err, transport.ErrRefreshFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
