package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the pgx pool surface the ledger needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresLedger stores appointment exports in the relational database.
type PostgresLedger struct {
	db DB
}

// NewPostgresLedger initializes a ledger backed by pgxpool.
func NewPostgresLedger(db DB) *PostgresLedger {
	if db == nil {
		panic("ledger: db required")
	}
	return &PostgresLedger{db: db}
}

// Append inserts one row.
func (l *PostgresLedger) Append(ctx context.Context, entry Entry) (Entry, error) {
	entry.ID = uuid.New()
	row := l.db.QueryRow(ctx, `
		INSERT INTO appointment_ledger (id, patient_id, first_name, last_name, provider, start_at, duration)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`,
		entry.ID, entry.PatientID, entry.FirstName, entry.LastName, entry.Provider, entry.Start, entry.Duration)
	if err := row.Scan(&entry.CreatedAt); err != nil {
		return Entry{}, fmt.Errorf("ledger: insert failed: %w", errors.Join(ErrPersistence, err))
	}
	return entry, nil
}

// ListUpcoming returns entries with a start after the given instant,
// earliest first.
func (l *PostgresLedger) ListUpcoming(ctx context.Context, after time.Time) ([]Entry, error) {
	rows, err := l.db.Query(ctx, `
		SELECT id, patient_id, first_name, last_name, provider, start_at, duration, created_at
		FROM appointment_ledger
		WHERE start_at > $1
		ORDER BY start_at ASC`, after)
	if err != nil {
		return nil, fmt.Errorf("ledger: list upcoming: %w", errors.Join(ErrPersistence, err))
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.PatientID, &e.FirstName, &e.LastName, &e.Provider, &e.Start, &e.Duration, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("ledger: scan: %w", errors.Join(ErrPersistence, err))
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ledger: read rows: %w", errors.Join(ErrPersistence, err))
	}
	return out, nil
}

var _ Ledger = (*PostgresLedger)(nil)
