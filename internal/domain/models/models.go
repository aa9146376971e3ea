package models

import (
	"math"
	"time"

	"github.com/campus-transit/bustrack/internal/domain/types"
)

// LocationSample is one stored GPS fix. Immutable once appended.
type LocationSample struct {
	BusID          string    `json:"busId"`
	Latitude       float64   `json:"latitude"`
	Longitude      float64   `json:"longitude"`
	SpeedKph       int       `json:"speed"`
	HeadingDegrees float64   `json:"heading"`
	CapturedAt     time.Time `json:"timestamp"`
	AccuracyMeters float64   `json:"accuracy"`
}

// VehicleStatus is the single mutable status record of one bus.
type VehicleStatus struct {
	BusID                string             `json:"busId"`
	State                types.VehicleState `json:"status"`
	TripStartedAt        *time.Time         `json:"tripStarted,omitempty"`
	TripEndedAt          *time.Time         `json:"tripEnded,omitempty"`
	LastLocationUpdateAt *time.Time         `json:"lastLocationUpdate,omitempty"`
	OwningConnectionID   *string            `json:"owningConnectionId,omitempty"`
}

// DefaultStatus is the stub returned for a bus that has no status row yet.
func DefaultStatus(busID string) VehicleStatus {
	return VehicleStatus{
		BusID: busID,
		State: types.StateOffline,
	}
}

// StatusPatch is a merge-patch for a VehicleStatus row: nil fields are
// left untouched, the Clear flags force a field back to NULL.
type StatusPatch struct {
	State                *types.VehicleState
	TripStartedAt        *time.Time
	TripEndedAt          *time.Time
	ClearTripEnded       bool
	LastLocationUpdateAt *time.Time
	OwningConnectionID   *string
	ClearOwner           bool
}

// IsEmpty reports whether the patch would change nothing.
func (p StatusPatch) IsEmpty() bool {
	return p.State == nil &&
		p.TripStartedAt == nil &&
		p.TripEndedAt == nil &&
		!p.ClearTripEnded &&
		p.LastLocationUpdateAt == nil &&
		p.OwningConnectionID == nil &&
		!p.ClearOwner
}

// LocationUpdate is the busLocationUpdate wire payload, re-broadcast
// verbatim to observers. Speed is the raw speed over ground in m/s as
// reported by the device; it is converted to km/h only when stored.
type LocationUpdate struct {
	BusID     string     `json:"busId"`
	Latitude  *float64   `json:"latitude"`
	Longitude *float64   `json:"longitude"`
	Speed     *float64   `json:"speed,omitempty"`
	Heading   *float64   `json:"heading,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
	Accuracy  *float64   `json:"accuracy,omitempty"`
}

// TripEvent is the tripStarted / tripEnded wire payload.
type TripEvent struct {
	BusID     string     `json:"busId"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// LocationAck is the sender-only locationSaved acknowledgment.
type LocationAck struct {
	Success   bool       `json:"success"`
	BusID     string     `json:"busId"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// NewLocationSample normalizes a wire update into a storable sample.
// Coordinates are truncated to 6 decimal digits, the raw m/s speed
// becomes integer km/h, and a missing capture time falls back to the
// server receipt time.
func NewLocationSample(upd LocationUpdate, receivedAt time.Time) LocationSample {
	sample := LocationSample{
		BusID:      upd.BusID,
		SpeedKph:   SpeedKph(upd.Speed),
		CapturedAt: receivedAt,
	}

	if upd.Latitude != nil {
		sample.Latitude = TruncateCoord(*upd.Latitude)
	}
	if upd.Longitude != nil {
		sample.Longitude = TruncateCoord(*upd.Longitude)
	}
	if upd.Heading != nil {
		sample.HeadingDegrees = *upd.Heading
	}
	if upd.Timestamp != nil && !upd.Timestamp.IsZero() {
		sample.CapturedAt = *upd.Timestamp
	}
	if upd.Accuracy != nil {
		sample.AccuracyMeters = *upd.Accuracy
	}

	return sample
}

// TruncateCoord cuts a coordinate down to 6 decimal digits (~11cm),
// the precision the driver apps report.
func TruncateCoord(v float64) float64 {
	return math.Trunc(v*1e6) / 1e6
}

// SpeedKph converts a raw speed over ground (m/s) into whole km/h.
// Devices report a missing or negative speed when stationary or when
// the fix has no velocity; both map to 0.
func SpeedKph(raw *float64) int {
	if raw == nil || *raw <= 0 {
		return 0
	}
	return int(math.Round(*raw * 3.6))
}
