package schedule

import (
	"context"
	"time"
)

// Store is the durable slot inventory. Implementations must make Reserve
// atomic: either every requested block flips available→bound, or none does.
// ListAvailable runs against a consistent snapshot and may go stale by the
// time a caller acts on it; the coordinator handles that as a conflict.
type Store interface {
	// ListAvailable returns the provider's available slots with
	// from <= start < to, ordered by start ascending.
	ListAvailable(ctx context.Context, provider string, from, to time.Time) ([]Slot, error)

	// Reserve flips the slots at exactly the given starts to unavailable and
	// binds patientID to each, all-or-nothing. Returns ErrSlotNotFound if any
	// start has no slot row, ErrSlotConflict if any is already taken.
	Reserve(ctx context.Context, provider string, starts []time.Time, patientID int) ([]Slot, error)
}
