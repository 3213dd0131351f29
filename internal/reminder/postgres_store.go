package reminder

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the pgx pool surface the store needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore persists reminder jobs in the reminder_jobs table.
type PostgresStore struct {
	db DB
}

// NewPostgresStore creates a store backed by a pgx pool.
func NewPostgresStore(db DB) *PostgresStore {
	if db == nil {
		panic("reminder: db required")
	}
	return &PostgresStore{db: db}
}

// Upsert inserts or refreshes a pending job. The WHERE guard keeps a job
// that already went out from being resurrected.
func (s *PostgresStore) Upsert(ctx context.Context, job Job) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO reminder_jobs (id, job_key, kind, patient_id, phone, body, start_at, fire_at, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'pending')
		ON CONFLICT (job_key) DO UPDATE
		SET phone = EXCLUDED.phone, body = EXCLUDED.body, fire_at = EXCLUDED.fire_at
		WHERE reminder_jobs.status = 'pending'`,
		job.ID, job.Key, job.Kind, job.PatientID, job.Phone, job.Body, job.Start, job.FireAt)
	if err != nil {
		return fmt.Errorf("reminder: upsert job: %w", errors.Join(ErrPersistence, err))
	}
	return nil
}

// Find returns one job by key.
func (s *PostgresStore) Find(ctx context.Context, key string) (Job, bool, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, job_key, kind, patient_id, phone, body, start_at, fire_at, status, created_at
		FROM reminder_jobs
		WHERE job_key = $1`, key)
	var j Job
	err := row.Scan(&j.ID, &j.Key, &j.Kind, &j.PatientID, &j.Phone, &j.Body, &j.Start, &j.FireAt, &j.Status, &j.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Job{}, false, nil
	}
	if err != nil {
		return Job{}, false, fmt.Errorf("reminder: find job: %w", errors.Join(ErrPersistence, err))
	}
	return j, true, nil
}

// Claim moves a pending job to sending. The status guard lets exactly one
// caller own the send.
func (s *PostgresStore) Claim(ctx context.Context, key string) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE reminder_jobs SET status = 'sending' WHERE job_key = $1 AND status = 'pending'`, key)
	if err != nil {
		return false, fmt.Errorf("reminder: claim job: %w", errors.Join(ErrPersistence, err))
	}
	return tag.RowsAffected() == 1, nil
}

// ListPending returns pending jobs ordered by fire time.
func (s *PostgresStore) ListPending(ctx context.Context) ([]Job, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, job_key, kind, patient_id, phone, body, start_at, fire_at, status, created_at
		FROM reminder_jobs
		WHERE status = 'pending'
		ORDER BY fire_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("reminder: list pending: %w", errors.Join(ErrPersistence, err))
	}
	defer rows.Close()

	var out []Job
	for rows.Next() {
		var j Job
		if err := rows.Scan(&j.ID, &j.Key, &j.Kind, &j.PatientID, &j.Phone, &j.Body, &j.Start, &j.FireAt, &j.Status, &j.CreatedAt); err != nil {
			return nil, fmt.Errorf("reminder: scan job: %w", errors.Join(ErrPersistence, err))
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reminder: read jobs: %w", errors.Join(ErrPersistence, err))
	}
	return out, nil
}

// MarkSent flips a job to sent.
func (s *PostgresStore) MarkSent(ctx context.Context, key string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE reminder_jobs SET status = 'sent', sent_at = now() WHERE job_key = $1`, key)
	if err != nil {
		return fmt.Errorf("reminder: mark sent: %w", errors.Join(ErrPersistence, err))
	}
	return nil
}

// MarkFailed flips a job to failed and records the reason.
func (s *PostgresStore) MarkFailed(ctx context.Context, key, reason string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE reminder_jobs SET status = 'failed', failure_reason = $2 WHERE job_key = $1`, key, reason)
	if err != nil {
		return fmt.Errorf("reminder: mark failed: %w", errors.Join(ErrPersistence, err))
	}
	return nil
}

var _ JobStore = (*PostgresStore)(nil)
