package service

import "errors"

var (
	// ErrInvalidDriverID is returned when driver ID is empty.
	ErrInvalidDriverID = errors.New("invalid driver id")

	// ErrInvalidOrderID is returned when order ID is empty.
	ErrInvalidOrderID = errors.New("invalid order id")

	// ErrInvalidOrderIDs is returned when a location update names no order.
	ErrInvalidOrderIDs = errors.New("invalid order ids")

	// ErrInvalidLocation is returned when location coordinates are invalid.
	ErrInvalidLocation = errors.New("invalid location")

	// ErrInvalidOrderStatus is returned when the requested status is unknown.
	ErrInvalidOrderStatus = errors.New("invalid order status")

	// ErrInvalidStatusTransition is returned when an order cannot move to the requested status.
	ErrInvalidStatusTransition = errors.New("invalid order status transition")

	// ErrOrderNotAssigned is returned when the order belongs to another driver.
	ErrOrderNotAssigned = errors.New("order not assigned to this driver")

	// ErrOrderNotTrackable is returned when none of the reported orders accepts location updates.
	ErrOrderNotTrackable = errors.New("order not trackable")

	// ErrOrderLocked is returned when another status change for the order is in flight.
	ErrOrderLocked = errors.New("order is being updated")

	// ErrInvalidCredentials is returned when phone or PIN do not match.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidToken is returned when an access token is missing, malformed or expired.
	ErrInvalidToken = errors.New("token is invalid")

	// ErrInvalidRefreshToken is returned when a refresh token is unknown, expired or already used.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")

	// ErrInvalidPhone is returned when phone is empty.
	ErrInvalidPhone = errors.New("invalid phone")

	// ErrInvalidPIN is returned when a PIN is not 4 to 8 digits.
	ErrInvalidPIN = errors.New("invalid pin")

	// ErrDriverAlreadyExists is returned when the phone is already registered.
	ErrDriverAlreadyExists = errors.New("driver already exists")
)
