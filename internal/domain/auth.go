package domain

import "time"

// AuthCredential is the persisted session of the driver.
type AuthCredential struct {
	AccessToken      string     `json:"access_token"`
	RefreshToken     string     `json:"refresh_token,omitempty"`
	AccessExpiresAt  *time.Time `json:"access_expires_at,omitempty"`
	RefreshExpiresAt *time.Time `json:"refresh_expires_at,omitempty"`
}

// RefreshUsable reports whether the refresh token exists and has not expired at now.
func (c *AuthCredential) RefreshUsable(now time.Time) bool {
	if c == nil || c.RefreshToken == "" {
		return false
	}
	if c.RefreshExpiresAt != nil && !now.Before(*c.RefreshExpiresAt) {
		return false
	}
	return true
}

// RefreshSession is a gateway-side refresh token record.
type RefreshSession struct {
	ID        string `json:"id"`
	DriverID  string `json:"driver_id"`
	ExpiresAt int64  `json:"expires_at"`
}
