package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/volunteer-hours-api/internal/models"
)

var activityRowColumns = []string{"id", "coordinator_id", "title", "description", "location", "max_participants", "current_participants", "status", "created_at", "updated_at", "deleted_at"}

func TestActivityRepositoryLockByIDUsesRowLock(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewActivityRepository(db)

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM activities WHERE id = $1 AND deleted_at IS NULL FOR UPDATE")).
		WithArgs("act-1").
		WillReturnRows(sqlmock.NewRows(activityRowColumns).
			AddRow("act-1", "prof-1", "Beach cleanup", "", "Pier 4", 10, 9, models.ActivityStatusOpen, now, now, nil))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE activities SET current_participants = $2")).
		WithArgs("act-1", 10, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tx, err := db.BeginTxx(context.Background(), nil)
	require.NoError(t, err)
	activity, err := repo.LockByID(context.Background(), tx, "act-1")
	require.NoError(t, err)
	assert.Equal(t, 1, activity.AvailableSpots())
	require.NoError(t, repo.SetParticipants(context.Background(), tx, "act-1", activity.CurrentParticipants+1))
	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestActivityRepositoryFindByIDMissing(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewActivityRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM activities WHERE id = $1 AND deleted_at IS NULL")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), nil, "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestActivityRepositoryListFiltersAndCounts(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewActivityRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM activities WHERE deleted_at IS NULL AND status = $1 AND coordinator_id = $2 ORDER BY created_at DESC LIMIT 20 OFFSET 0")).
		WithArgs(models.ActivityStatusOpen, "prof-1").
		WillReturnRows(sqlmock.NewRows(activityRowColumns).
			AddRow("act-1", "prof-1", "Food bank", "", "", 5, 2, models.ActivityStatusOpen, now, now, nil))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM activities WHERE deleted_at IS NULL")).
		WithArgs(models.ActivityStatusOpen, "prof-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	items, total, err := repo.List(context.Background(), models.ActivityFilter{Status: models.ActivityStatusOpen, CoordinatorID: "prof-1"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 1, total)
	require.NoError(t, mock.ExpectationsWereMet())
}
