package appointment

import (
	"errors"
	"fmt"
	"time"

	"github.com/clinicops/scheduling-agent/internal/schedule"
)

// Status is the confirmation lifecycle of an appointment draft.
type Status string

const (
	// StatusProposed means candidate slots were presented and a selection
	// is awaited.
	StatusProposed Status = "proposed"
	// StatusConfirmed means the slots are reserved and side effects ran.
	StatusConfirmed Status = "confirmed"
	// StatusConflicted means the selected slots were taken first. Only a
	// fresh availability query moves the draft back to proposed.
	StatusConflicted Status = "conflicted"
)

// ErrConflict reports that another booking won the selected slots.
var ErrConflict = errors.New("appointment: selected slots no longer available")

// ValidationError flags unusable patient input. The draft is left exactly
// as it was so the patient can be re-prompted.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("appointment: invalid input: %s", e.Reason)
}

// Appointment is a booking draft moving through the confirmation flow.
type Appointment struct {
	PatientID  int               `json:"patient_id"`
	Provider   string            `json:"provider"`
	Start      time.Time         `json:"start"`
	Duration   schedule.Duration `json:"duration"`
	Status     Status            `json:"status"`
	Candidates []time.Time       `json:"candidates,omitempty"`
	Finalized  bool              `json:"finalized"`
}

// Propose builds a fresh draft holding the presented candidates.
func Propose(patientID int, provider string, d schedule.Duration, candidates []time.Time) *Appointment {
	return &Appointment{
		PatientID:  patientID,
		Provider:   provider,
		Duration:   d,
		Status:     StatusProposed,
		Candidates: candidates,
	}
}
