package patients

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var dob = time.Date(1990, time.June, 15, 0, 0, 0, 0, time.UTC)

func TestMemoryDirectoryFindIsCaseInsensitive(t *testing.T) {
	dir := NewMemoryDirectory()
	created, err := dir.Create(context.Background(), &CreatePatientRequest{
		FirstName: "Priya", LastName: "Sharma", DOB: dob, Phone: "+919876543210",
	})
	require.NoError(t, err)

	found, err := dir.Find(context.Background(), "priya", "SHARMA", dob)
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)
	assert.Equal(t, "Priya Sharma", found.FullName())

	_, err = dir.Find(context.Background(), "Priya", "Sharma", dob.AddDate(0, 0, 1))
	assert.ErrorIs(t, err, ErrPatientNotFound)
}

func TestMemoryDirectoryCreateValidates(t *testing.T) {
	dir := NewMemoryDirectory()
	_, err := dir.Create(context.Background(), &CreatePatientRequest{FirstName: "Priya", DOB: dob})
	assert.ErrorIs(t, err, ErrInvalidName)
	_, err = dir.Create(context.Background(), &CreatePatientRequest{FirstName: "Priya", LastName: "Sharma"})
	assert.ErrorIs(t, err, ErrInvalidDOB)
}

func TestMemoryDirectoryUpdateContact(t *testing.T) {
	dir := NewMemoryDirectory()
	created, err := dir.Create(context.Background(), &CreatePatientRequest{
		FirstName: "Priya", LastName: "Sharma", DOB: dob,
	})
	require.NoError(t, err)

	require.NoError(t, dir.UpdateContact(context.Background(), created.ID, "+919876543210", "priya@example.com"))
	got, err := dir.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "+919876543210", got.Phone)
	assert.Equal(t, "priya@example.com", got.Email)

	assert.ErrorIs(t, dir.UpdateContact(context.Background(), 999, "", ""), ErrPatientNotFound)
}

func TestPostgresDirectoryFind(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now().UTC()
	mock.ExpectQuery("SELECT id, first_name, last_name, dob, phone, email, created_at").
		WithArgs("Priya", "Sharma", dob).
		WillReturnRows(pgxmock.NewRows([]string{"id", "first_name", "last_name", "dob", "phone", "email", "created_at"}).
			AddRow(7, "Priya", "Sharma", dob, "+919876543210", "priya@example.com", now))

	dir := NewPostgresDirectory(mock)
	p, err := dir.Find(context.Background(), "Priya", "Sharma", dob)
	require.NoError(t, err)
	assert.Equal(t, 7, p.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDirectoryFindMiss(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT id, first_name, last_name, dob, phone, email, created_at").
		WithArgs("Priya", "Sharma", dob).
		WillReturnRows(pgxmock.NewRows([]string{"id", "first_name", "last_name", "dob", "phone", "email", "created_at"}))

	dir := NewPostgresDirectory(mock)
	_, err = dir.Find(context.Background(), "Priya", "Sharma", dob)
	assert.ErrorIs(t, err, ErrPatientNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDirectoryCreate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now().UTC()
	mock.ExpectQuery("INSERT INTO patients").
		WithArgs("Priya", "Sharma", dob, "+919876543210", "priya@example.com").
		WillReturnRows(pgxmock.NewRows([]string{"id", "first_name", "last_name", "dob", "phone", "email", "created_at"}).
			AddRow(7, "Priya", "Sharma", dob, "+919876543210", "priya@example.com", now))

	dir := NewPostgresDirectory(mock)
	p, err := dir.Create(context.Background(), &CreatePatientRequest{
		FirstName: "Priya", LastName: "Sharma", DOB: dob,
		Phone: "+919876543210", Email: "priya@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, 7, p.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
