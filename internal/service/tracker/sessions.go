package tracker

import (
	"sort"
	"sync"

	"github.com/campus-transit/bustrack/pkg/uuid"
)

// SessionTracker maps each live connection to the buses it has claimed
// by sending trip or location events. Volatile, owned exclusively by
// the Router; a connection usually claims at most one bus but nothing
// here assumes that.
type SessionTracker struct {
	mu     sync.Mutex
	claims map[uuid.UUID]map[string]struct{}
}

func NewSessionTracker() *SessionTracker {
	return &SessionTracker{
		claims: make(map[uuid.UUID]map[string]struct{}),
	}
}

// Claim records that connID currently reports for busID.
func (s *SessionTracker) Claim(connID uuid.UUID, busID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	buses, ok := s.claims[connID]
	if !ok {
		buses = make(map[string]struct{})
		s.claims[connID] = buses
	}
	buses[busID] = struct{}{}
}

// Owned returns the buses currently claimed by connID, sorted.
func (s *SessionTracker) Owned(connID uuid.UUID) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedKeys(s.claims[connID])
}

// Release drops all claims of connID and returns them. The second
// call for the same connection returns nil, which keeps disconnect
// cleanup idempotent.
func (s *SessionTracker) Release(connID uuid.UUID) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	buses, ok := s.claims[connID]
	if !ok {
		return nil
	}
	delete(s.claims, connID)
	return sortedKeys(buses)
}

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
