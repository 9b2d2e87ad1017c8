package database

import (
	"context"
	"errors"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestWithinTxCommitsOnSuccess(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE activities").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := NewTransactor(db).WithinTx(context.Background(), func(exec sqlx.ExtContext) error {
		_, err := exec.ExecContext(context.Background(), "UPDATE activities SET current_participants = 1")
		return err
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithinTxRollsBackOnError(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectRollback()

	sentinel := errors.New("capacity exhausted")
	err := NewTransactor(db).WithinTx(context.Background(), func(exec sqlx.ExtContext) error {
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithinTxBeginFailure(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	mock.ExpectBegin().WillReturnError(errors.New("connection refused"))

	called := false
	err := NewTransactor(db).WithinTx(context.Background(), func(exec sqlx.ExtContext) error {
		called = true
		return nil
	})
	require.Error(t, err)
	assert.False(t, called)
}

func TestIsUniqueViolation(t *testing.T) {
	constraint, ok := IsUniqueViolation(&pq.Error{Code: "23505", Constraint: "attendances_session_subject_key"})
	assert.True(t, ok)
	assert.Equal(t, "attendances_session_subject_key", constraint)

	_, ok = IsUniqueViolation(&pq.Error{Code: "23503"})
	assert.False(t, ok)

	_, ok = IsUniqueViolation(errors.New("plain"))
	assert.False(t, ok)
}
