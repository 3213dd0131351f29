package reminder

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jobRow(j Job) *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "job_key", "kind", "patient_id", "phone", "body", "start_at", "fire_at", "status", "created_at",
	}).AddRow(j.ID, j.Key, j.Kind, j.PatientID, j.Phone, j.Body, j.Start, j.FireAt, j.Status, j.CreatedAt)
}

func TestPostgresStoreFind(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	want := Job{
		ID: uuid.New(), Key: JobKey(7, apptStart, KindOffsetHours3),
		Kind: KindOffsetHours3, PatientID: 7, Phone: "+919876543210",
		Body: "short-notice reminder", Start: apptStart,
		FireAt: apptStart.Add(-3 * time.Hour), Status: StatusPending,
		CreatedAt: apptStart.Add(-48 * time.Hour),
	}
	mock.ExpectQuery("SELECT id, job_key, kind").
		WithArgs(want.Key).
		WillReturnRows(jobRow(want))

	store := NewPostgresStore(mock)
	got, ok, err := store.Find(context.Background(), want.Key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreFindMissing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT id, job_key, kind").
		WithArgs("no-such-key").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "job_key", "kind", "patient_id", "phone", "body", "start_at", "fire_at", "status", "created_at",
		}))

	store := NewPostgresStore(mock)
	_, ok, err := store.Find(context.Background(), "no-such-key")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreClaim(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	key := JobKey(7, apptStart, KindOffsetHours3)
	mock.ExpectExec("UPDATE reminder_jobs SET status = 'sending'").
		WithArgs(key).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE reminder_jobs SET status = 'sending'").
		WithArgs(key).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	store := NewPostgresStore(mock)
	first, err := store.Claim(context.Background(), key)
	require.NoError(t, err)
	second, err := store.Claim(context.Background(), key)
	require.NoError(t, err)
	assert.True(t, first, "the pending row goes to the first claimer")
	assert.False(t, second, "a claimed row must not be claimable again")
	assert.NoError(t, mock.ExpectationsWereMet())
}
