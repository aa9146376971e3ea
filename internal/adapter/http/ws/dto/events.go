package dto

import (
	"time"

	"github.com/campus-transit/bustrack/internal/domain/models"
	"github.com/campus-transit/bustrack/pkg/validator"
)

// LocationUpdateReq is the inbound busLocationUpdate payload.
type LocationUpdateReq struct {
	BusID     string     `json:"busId"`
	Latitude  *float64   `json:"latitude"`
	Longitude *float64   `json:"longitude"`
	Speed     *float64   `json:"speed,omitempty"`
	Heading   *float64   `json:"heading,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
	Accuracy  *float64   `json:"accuracy,omitempty"`
}

func (r *LocationUpdateReq) Validate(v *validator.Validator) {
	// BusID
	v.Check(r.BusID != "", "busId", "must be provided")

	// Coordinates
	if r.Latitude != nil && r.Longitude != nil {
		v.Check(*r.Latitude >= -90 && *r.Latitude <= 90, "latitude", "must be between -90 and 90")
		v.Check(*r.Longitude >= -180 && *r.Longitude <= 180, "longitude", "must be between -180 and 180")
	} else {
		v.Check(r.Latitude != nil, "latitude", "must be provided")
		v.Check(r.Longitude != nil, "longitude", "must be provided")
	}

	// Heading
	if r.Heading != nil {
		v.Check(*r.Heading >= 0 && *r.Heading < 360, "heading", "must be between 0 and 360")
	}

	// Accuracy
	if r.Accuracy != nil {
		v.Check(*r.Accuracy >= 0, "accuracy", "must not be negative")
	}
}

func (r *LocationUpdateReq) ToModel() models.LocationUpdate {
	return models.LocationUpdate{
		BusID:     r.BusID,
		Latitude:  r.Latitude,
		Longitude: r.Longitude,
		Speed:     r.Speed,
		Heading:   r.Heading,
		Timestamp: r.Timestamp,
		Accuracy:  r.Accuracy,
	}
}

// TripEventReq is the inbound tripStarted / tripEnded payload.
type TripEventReq struct {
	BusID     string     `json:"busId"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

func (r *TripEventReq) Validate(v *validator.Validator) {
	v.Check(r.BusID != "", "busId", "must be provided")
}

func (r *TripEventReq) ToModel() models.TripEvent {
	return models.TripEvent{
		BusID:     r.BusID,
		Timestamp: r.Timestamp,
	}
}
