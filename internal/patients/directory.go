package patients

import (
	"context"
	"time"
)

// Directory looks patients up by identity and registers new ones.
// Identity is first name + last name + date of birth, matched
// case-insensitively on names and by calendar date on DOB.
type Directory interface {
	Find(ctx context.Context, firstName, lastName string, dob time.Time) (*Patient, error)
	Create(ctx context.Context, req *CreatePatientRequest) (*Patient, error)
	Get(ctx context.Context, id int) (*Patient, error)
	UpdateContact(ctx context.Context, id int, phone, email string) error
}
