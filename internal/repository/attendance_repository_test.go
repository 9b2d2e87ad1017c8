package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/volunteer-hours-api/internal/models"
	"github.com/noah-isme/volunteer-hours-api/pkg/database"
)

func TestAttendanceRepositoryCreateDuplicate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO attendances")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO attendances")).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "attendances_session_subject_key"})

	record := func() *models.Attendance {
		return &models.Attendance{SessionID: "ses-1", SubjectID: "stu-1", EnrollmentID: "enr-1", Method: models.CheckInMethodQR, CheckedInAt: time.Now(), HoursCredited: 1}
	}
	first := record()
	require.NoError(t, repo.Create(context.Background(), nil, first))
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, models.AttendanceStatusPresent, first.Status)

	err := repo.Create(context.Background(), nil, record())
	_, dup := database.IsUniqueViolation(err)
	assert.True(t, dup)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryHoursBySubject(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("GROUP BY s.activity_id, a.title")).
		WithArgs("stu-1").
		WillReturnRows(sqlmock.NewRows([]string{"activity_id", "activity_title", "sessions_attended", "hours"}).
			AddRow("act-1", "Beach cleanup", 2, 3.5).
			AddRow("act-2", "Food bank", 1, 1.0))

	rows, err := repo.HoursBySubject(context.Background(), "stu-1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 3.5, rows[0].Hours)
	assert.Equal(t, 2, rows[0].SessionsAttended)
}
