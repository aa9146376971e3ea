package tracker

import (
	"fmt"
	"sort"

	"github.com/campus-transit/bustrack/internal/domain/types"
)

// StorePair is the storage partition dedicated to one bus.
type StorePair struct {
	Locations LocationStore
	Status    StatusStore
}

// Registry is the closed set of vehicles known at startup. It is the
// only way to reach a bus's stores; identifiers outside the set are
// rejected before any store is touched.
type Registry struct {
	pairs map[string]StorePair
	ids   []string
}

func NewRegistry(pairs map[string]StorePair) *Registry {
	ids := make([]string, 0, len(pairs))
	for id := range pairs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	return &Registry{
		pairs: pairs,
		ids:   ids,
	}
}

// Resolve returns the store pair for a bus, or ErrUnknownVehicle.
// Pure lookup, no I/O.
func (r *Registry) Resolve(busID string) (StorePair, error) {
	pair, ok := r.pairs[busID]
	if !ok {
		return StorePair{}, fmt.Errorf("%w: %s", types.ErrUnknownVehicle, busID)
	}
	return pair, nil
}

// Has reports whether busID is part of the fleet.
func (r *Registry) Has(busID string) bool {
	_, ok := r.pairs[busID]
	return ok
}

// IDs returns the fleet identifiers in stable order.
func (r *Registry) IDs() []string {
	return r.ids
}
