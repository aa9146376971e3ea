package tracker

import (
	"context"
	"errors"
	"fmt"

	"github.com/campus-transit/bustrack/internal/domain/models"
	"github.com/campus-transit/bustrack/internal/domain/types"
	"github.com/campus-transit/bustrack/pkg/logger"
)

const (
	// DefaultRecentLimit is applied when a history query names no limit.
	DefaultRecentLimit = 50
	// MaxRecentLimit caps a history response regardless of what the
	// client asked for.
	MaxRecentLimit = 500
)

// Reads serves the REST read side: status and history queries. It goes
// through the same registry as the Router but never mutates anything.
type Reads struct {
	registry *Registry
	log      logger.Logger
}

func NewReads(registry *Registry, log logger.Logger) *Reads {
	return &Reads{
		registry: registry,
		log:      log,
	}
}

// FleetStatus returns the status of every registered bus, with a
// default offline stub for any bus whose row cannot be read.
func (s *Reads) FleetStatus(ctx context.Context) (map[string]models.VehicleStatus, error) {
	statuses := make(map[string]models.VehicleStatus, len(s.registry.IDs()))

	for _, busID := range s.registry.IDs() {
		pair, err := s.registry.Resolve(busID)
		if err != nil {
			return nil, err
		}

		st, err := pair.Status.Get(ctx)
		if err != nil {
			return nil, fmt.Errorf("status for %s: %w", busID, err)
		}
		statuses[busID] = st
	}

	return statuses, nil
}

// RecentLocations returns up to limit samples for one bus, newest
// first. Zero or negative limits fall back to the default; anything
// above the cap is clamped.
func (s *Reads) RecentLocations(ctx context.Context, busID string, limit int) ([]models.LocationSample, error) {
	pair, err := s.registry.Resolve(busID)
	if err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	if limit > MaxRecentLimit {
		limit = MaxRecentLimit
	}

	return pair.Locations.Recent(ctx, limit)
}

// Latest returns the newest sample and the current status of one bus.
// The sample is nil when the bus has no history yet.
func (s *Reads) Latest(ctx context.Context, busID string) (*models.LocationSample, models.VehicleStatus, error) {
	pair, err := s.registry.Resolve(busID)
	if err != nil {
		return nil, models.VehicleStatus{}, err
	}

	status, err := pair.Status.Get(ctx)
	if err != nil {
		return nil, models.VehicleStatus{}, err
	}

	sample, err := pair.Locations.Latest(ctx)
	if err != nil {
		if errors.Is(err, types.ErrNoLocations) {
			return nil, status, nil
		}
		return nil, models.VehicleStatus{}, err
	}

	return &sample, status, nil
}
