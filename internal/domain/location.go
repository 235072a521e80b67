package domain

import "time"

// LocationSample is a single device position fix. It is immutable once produced.
type LocationSample struct {
	Latitude       float64
	Longitude      float64
	AccuracyMeters *float64 // nil when the provider does not report accuracy
	TimestampMs    int64
}

// Time returns the fix time.
func (s LocationSample) Time() time.Time {
	return time.UnixMilli(s.TimestampMs)
}

// Age returns how old the fix is relative to now.
func (s LocationSample) Age(now time.Time) time.Duration {
	return now.Sub(s.Time())
}

// Accuracy returns a pointer suitable for LocationSample.AccuracyMeters.
func Accuracy(meters float64) *float64 {
	return &meters
}

// OrderLocation is the latest reported position of an order, as stored by the gateway.
type OrderLocation struct {
	OrderID   string
	Lat       float64
	Lng       float64
	UpdatedAt time.Time
}

// LocationRecord is one row of the gateway's location history.
type LocationRecord struct {
	ID         string
	DriverID   string
	OrderIDs   []string
	Lat        float64
	Lng        float64
	ReceivedAt time.Time
}
