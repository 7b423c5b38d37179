package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-teacher-attendance/internal/models"
	"github.com/noah-isme/sma-teacher-attendance/pkg/clock"
	"github.com/noah-isme/sma-teacher-attendance/pkg/config"
	appErrors "github.com/noah-isme/sma-teacher-attendance/pkg/errors"
)

type mockPolicyRepo struct {
	stored *models.AttendancePolicy
	getErr error
	saves  int
}

func (m *mockPolicyRepo) Get(ctx context.Context) (*models.AttendancePolicy, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	if m.stored == nil {
		return nil, sql.ErrNoRows
	}
	cp := *m.stored
	return &cp, nil
}

func (m *mockPolicyRepo) Save(ctx context.Context, policy *models.AttendancePolicy) error {
	m.saves++
	policy.ID = models.DefaultPolicyID
	cp := *policy
	m.stored = &cp
	return nil
}

func testAttendanceConfig() config.AttendanceConfig {
	return config.AttendanceConfig{
		Timezone:              "UTC",
		DefaultStartTime:      "08:00",
		DefaultEndTime:        "15:00",
		DefaultGraceMinutes:   10,
		DefaultHalfDayMinutes: 200,
		DefaultWeekendDays:    "Friday,Saturday",
	}
}

func TestPolicyServiceCurrentCreatesDefaults(t *testing.T) {
	repo := &mockPolicyRepo{}
	svc := NewPolicyService(repo, nil, nil, testAttendanceConfig(), validator.New(), zap.NewNop())

	policy, err := svc.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "08:00", policy.StartTime)
	assert.Equal(t, 10, policy.GraceMinutes)
	assert.Equal(t, "Friday,Saturday", policy.WeekendDays)
	assert.Equal(t, 1, repo.saves)

	_, err = svc.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, repo.saves)
}

func TestPolicyServiceCurrentError(t *testing.T) {
	repo := &mockPolicyRepo{getErr: errors.New("db down")}
	svc := NewPolicyService(repo, nil, nil, testAttendanceConfig(), nil, nil)

	_, err := svc.Current(context.Background())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
}

func TestDefaultPolicyFallbacks(t *testing.T) {
	policy := DefaultPolicy(config.AttendanceConfig{DefaultGraceMinutes: 15})
	assert.Equal(t, "09:00", policy.StartTime)
	assert.Equal(t, "17:00", policy.EndTime)
	assert.Equal(t, "UTC", policy.Timezone)
	assert.Equal(t, "Saturday,Sunday", policy.WeekendDays)
}

func TestPolicyServiceUpdatePartial(t *testing.T) {
	stored := defaultPolicy()
	repo := &mockPolicyRepo{stored: &stored}
	audit := &mockAuditWriter{}
	svc := NewPolicyService(repo, audit, nil, testAttendanceConfig(), validator.New(), zap.NewNop())

	updated, err := svc.Update(context.Background(), UpdatePolicyRequest{
		StartTime:    ptr("08:30"),
		GraceMinutes: ptr(5),
		WeekendDays:  ptr(" Sunday , "),
	}, Actor{UserID: "admin"})
	require.NoError(t, err)
	assert.Equal(t, "08:30", updated.StartTime)
	assert.Equal(t, "17:00", updated.EndTime)
	assert.Equal(t, 5, updated.GraceMinutes)
	assert.Equal(t, "Sunday", updated.WeekendDays)
	assert.Equal(t, "08:30", repo.stored.StartTime)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionSettingsUpdate, audit.logs[0].Action)
}

func TestPolicyServiceUpdateValidation(t *testing.T) {
	stored := defaultPolicy()
	repo := &mockPolicyRepo{stored: &stored}
	svc := NewPolicyService(repo, nil, nil, testAttendanceConfig(), validator.New(), zap.NewNop())
	ctx := context.Background()

	cases := []UpdatePolicyRequest{
		{StartTime: ptr("25:00")},
		{GraceMinutes: ptr(-1)},
		{Timezone: ptr("Mars/Olympus")},
		{WeekendDays: ptr("Caturday")},
		{StartTime: ptr("18:00")},
	}
	for i, req := range cases {
		_, err := svc.Update(ctx, req, Actor{})
		require.Error(t, err, "case %d", i)
		assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code, "case %d", i)
	}
	assert.Zero(t, repo.saves)
}

func TestPolicyServiceTimezoneDrivesClock(t *testing.T) {
	stored := defaultPolicy()
	stored.Timezone = "Asia/Jakarta"
	repo := &mockPolicyRepo{stored: &stored}
	clk := clock.NewReal(time.UTC)
	svc := NewPolicyService(repo, nil, nil, testAttendanceConfig(), validator.New(), zap.NewNop()).WithClock(clk)
	ctx := context.Background()

	_, err := svc.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Asia/Jakarta", clk.Location().String())

	_, err = svc.Update(ctx, UpdatePolicyRequest{Timezone: ptr("Europe/Amsterdam")}, Actor{UserID: "admin"})
	require.NoError(t, err)
	assert.Equal(t, "Europe/Amsterdam", clk.Location().String())
	assert.Equal(t, "Europe/Amsterdam", clk.Now().Location().String())
}

func TestPolicyServiceUnknownStoredTimezoneKeepsClock(t *testing.T) {
	stored := defaultPolicy()
	stored.Timezone = "Mars/Olympus"
	repo := &mockPolicyRepo{stored: &stored}
	clk := clock.NewReal(time.UTC)
	svc := NewPolicyService(repo, nil, nil, testAttendanceConfig(), validator.New(), zap.NewNop()).WithClock(clk)

	_, err := svc.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, time.UTC, clk.Location())
}
