package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrPersistence = errors.New("ledger: persistence failure")

// Entry is one exported appointment row. The ledger is append-only;
// entries are never updated or removed.
type Entry struct {
	ID        uuid.UUID `json:"id"`
	PatientID int       `json:"patient_id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Provider  string    `json:"provider"`
	Start     time.Time `json:"start"`
	Duration  string    `json:"duration"`
	CreatedAt time.Time `json:"created_at"`
}

// Ledger records confirmed appointments and feeds reminder recovery.
type Ledger interface {
	Append(ctx context.Context, entry Entry) (Entry, error)
	ListUpcoming(ctx context.Context, after time.Time) ([]Entry, error)
}
