package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB abstracts the pgx pool surface the store needs, for testing.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore persists the slot inventory in the provider_slots table.
// Reserve runs check-and-flip inside a transaction with row locks, so a
// crash mid-reserve leaves the table untouched.
type PostgresStore struct {
	db DB
}

// NewPostgresStore creates a store backed by a pgx pool.
func NewPostgresStore(db DB) *PostgresStore {
	if db == nil {
		panic("schedule: db required")
	}
	return &PostgresStore{db: db}
}

// ListAvailable returns available slots in [from, to), earliest first.
func (s *PostgresStore) ListAvailable(ctx context.Context, provider string, from, to time.Time) ([]Slot, error) {
	rows, err := s.db.Query(ctx, `
		SELECT provider, start_at, available, patient_id
		FROM provider_slots
		WHERE provider = $1 AND available AND start_at >= $2 AND start_at < $3
		ORDER BY start_at ASC`, provider, from, to)
	if err != nil {
		return nil, fmt.Errorf("schedule: list available: %w", errors.Join(ErrPersistence, err))
	}
	defer rows.Close()
	return scanSlots(rows)
}

// Reserve locks the requested rows, verifies every block is still free, and
// flips them in one transaction. No partial reservation survives an error.
func (s *PostgresStore) Reserve(ctx context.Context, provider string, starts []time.Time, patientID int) ([]Slot, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("schedule: begin reserve: %w", errors.Join(ErrPersistence, err))
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
		SELECT provider, start_at, available, patient_id
		FROM provider_slots
		WHERE provider = $1 AND start_at = ANY($2)
		ORDER BY start_at ASC
		FOR UPDATE`, provider, starts)
	if err != nil {
		return nil, fmt.Errorf("schedule: lock slots: %w", errors.Join(ErrPersistence, err))
	}
	locked, err := scanSlots(rows)
	if err != nil {
		return nil, err
	}

	if len(locked) != len(starts) {
		return nil, ErrSlotNotFound
	}
	for _, slot := range locked {
		if !slot.Available {
			return nil, ErrSlotConflict
		}
	}

	tag, err := tx.Exec(ctx, `
		UPDATE provider_slots
		SET available = FALSE, patient_id = $3
		WHERE provider = $1 AND start_at = ANY($2)`, provider, starts, patientID)
	if err != nil {
		return nil, fmt.Errorf("schedule: flip slots: %w", errors.Join(ErrPersistence, err))
	}
	if int(tag.RowsAffected()) != len(starts) {
		return nil, fmt.Errorf("schedule: flip slots: expected %d rows, got %d: %w",
			len(starts), tag.RowsAffected(), ErrPersistence)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("schedule: commit reserve: %w", errors.Join(ErrPersistence, err))
	}

	pid := patientID
	bound := make([]Slot, 0, len(locked))
	for _, slot := range locked {
		slot.Available = false
		slot.PatientID = &pid
		bound = append(bound, slot)
	}
	return bound, nil
}

func scanSlots(rows pgx.Rows) ([]Slot, error) {
	defer rows.Close()
	var out []Slot
	for rows.Next() {
		var slot Slot
		if err := rows.Scan(&slot.Provider, &slot.Start, &slot.Available, &slot.PatientID); err != nil {
			return nil, fmt.Errorf("schedule: scan slot: %w", errors.Join(ErrPersistence, err))
		}
		out = append(out, slot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("schedule: read slots: %w", errors.Join(ErrPersistence, err))
	}
	return out, nil
}

var _ Store = (*PostgresStore)(nil)
