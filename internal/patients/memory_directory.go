package patients

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryDirectory keeps patients in process memory. Used by tests and by
// single-node deployments running without Postgres.
type MemoryDirectory struct {
	mu     sync.RWMutex
	nextID int
	byID   map[int]*Patient
}

// NewMemoryDirectory creates an empty directory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{nextID: 1, byID: make(map[int]*Patient)}
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// Find matches by case-insensitive name and calendar DOB.
func (d *MemoryDirectory) Find(ctx context.Context, firstName, lastName string, dob time.Time) (*Patient, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, p := range d.byID {
		if strings.EqualFold(p.FirstName, strings.TrimSpace(firstName)) &&
			strings.EqualFold(p.LastName, strings.TrimSpace(lastName)) &&
			sameDate(p.DOB, dob) {
			clone := *p
			return &clone, nil
		}
	}
	return nil, ErrPatientNotFound
}

// Create registers a new patient and assigns the next ID.
func (d *MemoryDirectory) Create(ctx context.Context, req *CreatePatientRequest) (*Patient, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	p := &Patient{
		ID:        d.nextID,
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
		DOB:       req.DOB,
		Phone:     req.Phone,
		Email:     req.Email,
		CreatedAt: time.Now().UTC(),
	}
	d.byID[p.ID] = p
	d.nextID++
	clone := *p
	return &clone, nil
}

// Get fetches a patient by ID.
func (d *MemoryDirectory) Get(ctx context.Context, id int) (*Patient, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.byID[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	clone := *p
	return &clone, nil
}

// UpdateContact writes sanitized contact points back to the record.
func (d *MemoryDirectory) UpdateContact(ctx context.Context, id int, phone, email string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.byID[id]
	if !ok {
		return ErrPatientNotFound
	}
	p.Phone = phone
	p.Email = email
	return nil
}

var _ Directory = (*MemoryDirectory)(nil)
