package patients

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the pgx pool surface the directory needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresDirectory stores patients in the relational database.
type PostgresDirectory struct {
	db DB
}

// NewPostgresDirectory initializes a directory backed by pgxpool.
func NewPostgresDirectory(db DB) *PostgresDirectory {
	if db == nil {
		panic("patients: db required")
	}
	return &PostgresDirectory{db: db}
}

const patientColumns = `id, first_name, last_name, dob, phone, email, created_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	if err := row.Scan(&p.ID, &p.FirstName, &p.LastName, &p.DOB, &p.Phone, &p.Email, &p.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, fmt.Errorf("patients: scan: %w", err)
	}
	return &p, nil
}

// Find matches by case-insensitive name and calendar DOB.
func (d *PostgresDirectory) Find(ctx context.Context, firstName, lastName string, dob time.Time) (*Patient, error) {
	row := d.db.QueryRow(ctx, `
		SELECT `+patientColumns+`
		FROM patients
		WHERE lower(first_name) = lower($1) AND lower(last_name) = lower($2) AND dob = $3
		ORDER BY id ASC
		LIMIT 1`, firstName, lastName, dob)
	return scanPatient(row)
}

// Create inserts a new patient row.
func (d *PostgresDirectory) Create(ctx context.Context, req *CreatePatientRequest) (*Patient, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	row := d.db.QueryRow(ctx, `
		INSERT INTO patients (first_name, last_name, dob, phone, email)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+patientColumns,
		req.FirstName, req.LastName, req.DOB, req.Phone, req.Email)
	p, err := scanPatient(row)
	if err != nil {
		return nil, fmt.Errorf("patients: insert failed: %w", err)
	}
	return p, nil
}

// Get fetches a patient by ID.
func (d *PostgresDirectory) Get(ctx context.Context, id int) (*Patient, error) {
	row := d.db.QueryRow(ctx, `
		SELECT `+patientColumns+`
		FROM patients
		WHERE id = $1`, id)
	return scanPatient(row)
}

// UpdateContact writes sanitized contact points back to the row.
func (d *PostgresDirectory) UpdateContact(ctx context.Context, id int, phone, email string) error {
	tag, err := d.db.Exec(ctx, `
		UPDATE patients SET phone = $2, email = $3 WHERE id = $1`, id, phone, email)
	if err != nil {
		return fmt.Errorf("patients: update contact: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPatientNotFound
	}
	return nil
}

var _ Directory = (*PostgresDirectory)(nil)
