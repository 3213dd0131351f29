package schedule

import (
	"errors"
	"time"
)

// SlotInterval is the fixed width of a bookable time block.
const SlotInterval = 30 * time.Minute

// Slot is one bookable time block in a provider's calendar.
// An unavailable slot always carries the patient it was booked for;
// slots are flipped, never deleted.
type Slot struct {
	Provider  string    `json:"provider"`
	Start     time.Time `json:"start"`
	Available bool      `json:"available"`
	PatientID *int      `json:"patient_id,omitempty"`
}

// Duration classifies how many consecutive slots a visit occupies.
type Duration string

const (
	// DurationStandard is a single 30-minute slot.
	DurationStandard Duration = "standard"
	// DurationExtended is a 60-minute visit spanning two consecutive slots.
	DurationExtended Duration = "extended"
)

// Blocks returns how many consecutive 30-minute slots the duration occupies.
func (d Duration) Blocks() int {
	if d == DurationExtended {
		return 2
	}
	return 1
}

// Minutes returns the visit length in minutes.
func (d Duration) Minutes() int {
	return d.Blocks() * 30
}

// DurationForPatient returns the visit length policy: new patients get an
// extended first visit, returning patients a standard one.
func DurationForPatient(isNew bool) Duration {
	if isNew {
		return DurationExtended
	}
	return DurationStandard
}

// Outcome tags the result of a reservation attempt.
type Outcome string

const (
	OutcomeReserved Outcome = "reserved"
	OutcomeConflict Outcome = "conflict"
	OutcomeNotFound Outcome = "not_found"
)

// ReserveResult reports what a reserve call did. Slots is populated only
// when Outcome is OutcomeReserved and then holds every block that was bound.
type ReserveResult struct {
	Outcome Outcome
	Slots   []Slot
}

var (
	// ErrSlotConflict means at least one required slot was already taken.
	ErrSlotConflict = errors.New("schedule: slot no longer available")
	// ErrSlotNotFound means a required slot does not exist in the inventory.
	ErrSlotNotFound = errors.New("schedule: slot not found")
	// ErrPersistence wraps store failures where no partial write occurred.
	ErrPersistence = errors.New("schedule: persistence failure")
)

// blockStarts expands a reservation start into the one or two block start
// times the duration requires.
func blockStarts(start time.Time, d Duration) []time.Time {
	starts := []time.Time{start}
	if d == DurationExtended {
		starts = append(starts, start.Add(SlotInterval))
	}
	return starts
}
