package transport

import "errors"

var (
	// ErrNotAuthenticated is returned for an authenticated call with no stored session.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrSessionExpired is returned when the session could not be refreshed and the
	// driver has been logged out.
	ErrSessionExpired = errors.New("session expired")

	// ErrRefreshFailed is returned when a refresh round trip failed transiently.
	ErrRefreshFailed = errors.New("token refresh failed")

	// ErrUnexpectedStatus is returned by Response.Decode for non-2xx responses.
	ErrUnexpectedStatus = errors.New("unexpected response status")
)
