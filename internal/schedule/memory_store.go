package schedule

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps the slot inventory in process memory. Used by tests and
// by local development when no database is configured.
type MemoryStore struct {
	mu    sync.RWMutex
	slots map[string]map[int64]*Slot // provider -> unix start -> slot
}

// NewMemoryStore creates an empty in-memory inventory.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{slots: make(map[string]map[int64]*Slot)}
}

// Seed adds slots to the inventory, replacing any existing block at the
// same (provider, start).
func (s *MemoryStore) Seed(slots ...Slot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, slot := range slots {
		byStart, ok := s.slots[slot.Provider]
		if !ok {
			byStart = make(map[int64]*Slot)
			s.slots[slot.Provider] = byStart
		}
		copied := slot
		byStart[slot.Start.Unix()] = &copied
	}
}

// ListAvailable returns available slots in [from, to), earliest first.
func (s *MemoryStore) ListAvailable(_ context.Context, provider string, from, to time.Time) ([]Slot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Slot
	for _, slot := range s.slots[provider] {
		if !slot.Available {
			continue
		}
		if slot.Start.Before(from) || !slot.Start.Before(to) {
			continue
		}
		out = append(out, *slot)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

// Reserve flips the requested blocks under a single lock, all-or-nothing.
func (s *MemoryStore) Reserve(_ context.Context, provider string, starts []time.Time, patientID int) ([]Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byStart := s.slots[provider]
	targets := make([]*Slot, 0, len(starts))
	for _, start := range starts {
		slot, ok := byStart[start.Unix()]
		if !ok {
			return nil, ErrSlotNotFound
		}
		if !slot.Available {
			return nil, ErrSlotConflict
		}
		targets = append(targets, slot)
	}

	bound := make([]Slot, 0, len(targets))
	for _, slot := range targets {
		pid := patientID
		slot.Available = false
		slot.PatientID = &pid
		bound = append(bound, *slot)
	}
	return bound, nil
}

// Snapshot returns a copy of every slot for a provider, for assertions.
func (s *MemoryStore) Snapshot(provider string) []Slot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Slot
	for _, slot := range s.slots[provider] {
		out = append(out, *slot)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

var _ Store = (*MemoryStore)(nil)
