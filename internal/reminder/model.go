package reminder

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind names when a reminder fires relative to the appointment start.
type Kind string

const (
	// KindOffsetDay fires 24 hours before the appointment.
	KindOffsetDay Kind = "offset_day"
	// KindOffsetHours3 fires 3 hours before the appointment.
	KindOffsetHours3 Kind = "offset_3h"
	// KindImmediate fires right away, used when the 3-hour mark has
	// already passed by the time the booking lands.
	KindImmediate Kind = "immediate"
)

// JobStatus is the delivery state of a reminder job.
type JobStatus string

const (
	StatusPending JobStatus = "pending"
	// StatusSending marks a claimed job. Delivery is at most once: a job
	// stuck in sending after a crash is treated as handled.
	StatusSending JobStatus = "sending"
	StatusSent    JobStatus = "sent"
	StatusFailed  JobStatus = "failed"
)

var ErrPersistence = errors.New("reminder: persistence failure")

// Booking carries everything the scheduler needs about a confirmed
// appointment.
type Booking struct {
	PatientID   int
	PatientName string
	Phone       string
	Provider    string
	Start       time.Time
	NewPatient  bool
}

// Job is one deferred reminder. Key is deterministic so rescheduling the
// same booking replaces rather than duplicates.
type Job struct {
	ID        uuid.UUID `json:"id"`
	Key       string    `json:"key"`
	Kind      Kind      `json:"kind"`
	PatientID int       `json:"patient_id"`
	Phone     string    `json:"phone"`
	Body      string    `json:"body"`
	Start     time.Time `json:"start"`
	FireAt    time.Time `json:"fire_at"`
	Status    JobStatus `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// JobKey derives the idempotency key for one reminder.
func JobKey(patientID int, start time.Time, kind Kind) string {
	return fmt.Sprintf("%d_%s_%s", patientID, start.UTC().Format("20060102T1504"), kind)
}
