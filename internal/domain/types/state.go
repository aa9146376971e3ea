package types

// VehicleState is the trip status of a single bus.
type VehicleState string

const (
	StateActive   VehicleState = "active"
	StateInactive VehicleState = "inactive"
	StateOffline  VehicleState = "offline"
)

func (s VehicleState) Valid() bool {
	switch s {
	case StateActive, StateInactive, StateOffline:
		return true
	default:
		return false
	}
}
