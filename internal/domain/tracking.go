package domain

// TrackingStatus is the read-only view of the tracking engine exposed to UI collaborators.
type TrackingStatus struct {
	IsTracking     bool     `json:"is_tracking"`
	ActiveOrderIDs []string `json:"active_order_ids"`
	OrderCount     int      `json:"order_count"`
}

// AppState is the foreground state of the driver application.
type AppState string

const (
	AppStateActive     AppState = "active"
	AppStateBackground AppState = "background"
	AppStateInactive   AppState = "inactive"
)

// Valid reports whether s is a known app state.
func (s AppState) Valid() bool {
	switch s {
	case AppStateActive, AppStateBackground, AppStateInactive:
		return true
	default:
		return false
	}
}
