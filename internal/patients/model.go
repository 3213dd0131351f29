package patients

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrPatientNotFound = errors.New("patients: patient not found")
	ErrInvalidName     = errors.New("patients: first and last name required")
	ErrInvalidDOB      = errors.New("patients: date of birth required")
)

// Patient is a directory record. Phone and Email hold sanitized contact
// points, written back after normalization.
type Patient struct {
	ID        int       `json:"id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	DOB       time.Time `json:"dob"`
	Phone     string    `json:"phone"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// FullName renders "First Last" for outbound messages.
func (p *Patient) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// CreatePatientRequest carries the fields gathered during intake.
type CreatePatientRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	DOB       time.Time `json:"dob"`
	Phone     string `json:"phone"`
	Email     string `json:"email"`
}

// Validate checks the minimum identity fields.
func (r *CreatePatientRequest) Validate() error {
	if strings.TrimSpace(r.FirstName) == "" || strings.TrimSpace(r.LastName) == "" {
		return ErrInvalidName
	}
	if r.DOB.IsZero() {
		return ErrInvalidDOB
	}
	return nil
}
