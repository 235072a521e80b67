package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"courier/internal/middleware"
	"courier/internal/service"
)

// TrackingHandler handles location reports and location reads.
type TrackingHandler struct {
	trackingService *service.TrackingService
}

// NewTrackingHandler creates a new TrackingHandler.
func NewTrackingHandler(trackingService *service.TrackingService) *TrackingHandler {
	return &TrackingHandler{trackingService: trackingService}
}

// UpdateLocationRequest is the HTTP request body of a location report.
type UpdateLocationRequest struct {
	OrderID   string   `json:"order_id" binding:"required"`
	Latitude  *float64 `json:"latitude" binding:"required"`
	Longitude *float64 `json:"longitude" binding:"required"`
}

// UpdateLocationResponse lists which orders the report was stored for.
type UpdateLocationResponse struct {
	Accepted []string `json:"accepted"`
	Ignored  []string `json:"ignored"`
}

// OrderLocationResponse is the latest position of an order.
type OrderLocationResponse struct {
	OrderID   string  `json:"order_id"`
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	UpdatedAt string  `json:"updated_at,omitempty"`
}

// LocationRecordResponse is one history row.
type LocationRecordResponse struct {
	DriverID   string   `json:"driver_id"`
	OrderIDs   []string `json:"order_ids"`
	Lat        float64  `json:"lat"`
	Lng        float64  `json:"lng"`
	ReceivedAt string   `json:"received_at"`
}

// UpdateLocation handles POST /driver/tracking/update-location
func (h *TrackingHandler) UpdateLocation(c *gin.Context) {
	var req UpdateLocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	result, err := h.trackingService.Ingest(c.Request.Context(), service.IngestRequest{
		DriverID: middleware.DriverID(c),
		OrderIDs: req.OrderID,
		Lat:      *req.Latitude,
		Lng:      *req.Longitude,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, UpdateLocationResponse{
		Accepted: nonNil(result.Accepted),
		Ignored:  nonNil(result.Ignored),
	})
}

// GetOrderLocation handles GET /orders/:id/location
func (h *TrackingHandler) GetOrderLocation(c *gin.Context) {
	loc, err := h.trackingService.LatestLocation(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	resp := OrderLocationResponse{OrderID: loc.OrderID, Lat: loc.Lat, Lng: loc.Lng}
	if !loc.UpdatedAt.IsZero() {
		resp.UpdatedAt = loc.UpdatedAt.Format(time.RFC3339)
	}
	respondJSON(c, http.StatusOK, resp)
}

// GetOrderHistory handles GET /orders/:id/locations
func (h *TrackingHandler) GetOrderHistory(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))

	records, err := h.trackingService.History(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		respondError(c, err)
		return
	}

	response := make([]LocationRecordResponse, 0, len(records))
	for _, r := range records {
		response = append(response, LocationRecordResponse{
			DriverID:   r.DriverID,
			OrderIDs:   r.OrderIDs,
			Lat:        r.Lat,
			Lng:        r.Lng,
			ReceivedAt: r.ReceivedAt.Format(time.RFC3339),
		})
	}

	respondJSON(c, http.StatusOK, response)
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
