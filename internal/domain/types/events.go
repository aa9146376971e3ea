package types

// WebSocket event names, shared by inbound handling and fan-out.
// The names are part of the wire contract with the driver and
// observer apps.
const (
	EventLocationUpdate = "busLocationUpdate"
	EventTripStarted    = "tripStarted"
	EventTripEnded      = "tripEnded"
	EventLocationSaved  = "locationSaved"
)
