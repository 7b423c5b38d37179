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

	"github.com/noah-isme/sma-teacher-attendance/internal/models"
)

func TestPolicyRepositoryGet(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPolicyRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "start_time", "end_time", "grace_minutes", "half_day_minutes", "timezone", "weekend_days", "created_at", "updated_at"}).
		AddRow("default", "08:00", "16:00", 10, 240, "Asia/Jakarta", "Sunday", now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM school_settings WHERE id = $1")).
		WithArgs(models.DefaultPolicyID).
		WillReturnRows(rows)

	policy, err := repo.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "08:00", policy.StartTime)
	assert.Equal(t, 10, policy.GraceMinutes)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPolicyRepositoryGetMissing(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPolicyRepository(db)

	mock.ExpectQuery("FROM school_settings").WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background())
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestPolicyRepositorySave(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPolicyRepository(db)

	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("ON CONFLICT (id) DO UPDATE SET")).
		WithArgs("default", "09:00", "17:00", 15, 240, "UTC", "Saturday,Sunday", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(created))

	policy := &models.AttendancePolicy{StartTime: "09:00", EndTime: "17:00", GraceMinutes: 15, HalfDayMinutes: 240, Timezone: "UTC", WeekendDays: "Saturday,Sunday"}
	require.NoError(t, repo.Save(context.Background(), policy))
	assert.Equal(t, models.DefaultPolicyID, policy.ID)
	assert.Equal(t, created, policy.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}
