package domain

// DriverStatus represents the current status of a driver.
type DriverStatus string

const (
	DriverStatusOnline  DriverStatus = "ONLINE"
	DriverStatusOffline DriverStatus = "OFFLINE"
	DriverStatusOnDuty  DriverStatus = "ON_DUTY"
)

// Driver represents a courier registered with the gateway.
type Driver struct {
	ID      string
	Name    string
	Phone   string
	PINHash string
	Status  DriverStatus
}
