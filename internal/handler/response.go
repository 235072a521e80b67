package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"courier/internal/repository"
	"courier/internal/service"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// respondError sends an error response with the appropriate HTTP status code.
func respondError(c *gin.Context, err error) {
	code := mapErrorToHTTPStatus(err)
	if code == http.StatusInternalServerError {
		_ = c.Error(err)
		c.JSON(code, ErrorResponse{Error: "internal error"})
		return
	}
	c.JSON(code, ErrorResponse{Error: err.Error()})
}

// respondJSON sends a JSON response with the given status code.
func respondJSON(c *gin.Context, code int, data any) {
	c.JSON(code, data)
}

// errorStatuses is checked in order; the first matching sentinel wins.
var errorStatuses = []struct {
	err    error
	status int
}{
	{repository.ErrNotFound, http.StatusNotFound},

	{service.ErrInvalidDriverID, http.StatusBadRequest},
	{service.ErrInvalidOrderID, http.StatusBadRequest},
	{service.ErrInvalidOrderIDs, http.StatusBadRequest},
	{service.ErrInvalidLocation, http.StatusBadRequest},
	{service.ErrInvalidOrderStatus, http.StatusBadRequest},
	{service.ErrInvalidPhone, http.StatusBadRequest},
	{service.ErrInvalidPIN, http.StatusBadRequest},

	{service.ErrInvalidCredentials, http.StatusUnauthorized},
	{service.ErrInvalidRefreshToken, http.StatusUnauthorized},
	{service.ErrInvalidToken, http.StatusUnauthorized},

	{service.ErrOrderNotAssigned, http.StatusForbidden},

	{service.ErrInvalidStatusTransition, http.StatusConflict},
	{service.ErrOrderNotTrackable, http.StatusConflict},
	{service.ErrOrderLocked, http.StatusConflict},
	{service.ErrDriverAlreadyExists, http.StatusConflict},
}

// mapErrorToHTTPStatus maps service/repository errors to HTTP status codes.
func mapErrorToHTTPStatus(err error) int {
	for _, e := range errorStatuses {
		if errors.Is(err, e.err) {
			return e.status
		}
	}
	return http.StatusInternalServerError
}
