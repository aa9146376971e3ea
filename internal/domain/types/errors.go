package types

import "errors"

var (
	ErrUnknownVehicle = errors.New("unknown bus id")
	ErrNoLocations    = errors.New("no locations recorded")
	ErrNotFound       = errors.New("requested item not found")
)
