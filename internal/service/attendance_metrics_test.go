package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-teacher-attendance/internal/models"
	appErrors "github.com/noah-isme/sma-teacher-attendance/pkg/errors"
)

func defaultPolicy() models.AttendancePolicy {
	return models.AttendancePolicy{
		ID:             models.DefaultPolicyID,
		StartTime:      "09:00",
		EndTime:        "17:00",
		GraceMinutes:   15,
		HalfDayMinutes: 240,
		Timezone:       "UTC",
		WeekendDays:    "Saturday,Sunday",
	}
}

func ptr[T any](v T) *T { return &v }

func TestCalculateMetrics(t *testing.T) {
	cases := []struct {
		name    string
		timeIn  *string
		timeOut *string
		late    int
		early   int
		total   *int
	}{
		{name: "no check-in", late: 0, early: 0, total: nil},
		{name: "within grace", timeIn: ptr("09:10"), late: 0},
		{name: "exactly at grace limit", timeIn: ptr("09:15"), late: 0},
		{name: "late after grace", timeIn: ptr("09:20"), late: 5},
		{name: "early arrival", timeIn: ptr("08:30"), late: 0},
		{name: "full day", timeIn: ptr("09:20"), timeOut: ptr("17:00"), late: 5, early: 0, total: ptr(460)},
		{name: "left early", timeIn: ptr("09:00"), timeOut: ptr("16:30"), late: 0, early: 30, total: ptr(450)},
		{name: "stayed late", timeIn: ptr("08:55"), timeOut: ptr("18:10"), total: ptr(555)},
		{name: "check-out before check-in", timeIn: ptr("10:00"), timeOut: ptr("09:30"), late: 45, early: 450, total: ptr(-30)},
		{name: "check-out without check-in is ignored", timeOut: ptr("17:00")},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m, err := CalculateMetrics(tc.timeIn, tc.timeOut, defaultPolicy())
			require.NoError(t, err)
			assert.Equal(t, tc.late, m.LateMinutes)
			assert.Equal(t, tc.early, m.EarlyMinutes)
			assert.Equal(t, tc.total, m.TotalMinutes)
		})
	}
}

func TestCalculateMetricsIsDeterministic(t *testing.T) {
	first, err := CalculateMetrics(ptr("09:31"), ptr("15:02"), defaultPolicy())
	require.NoError(t, err)
	second, err := CalculateMetrics(ptr("09:31"), ptr("15:02"), defaultPolicy())
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 16, first.LateMinutes)
	assert.Equal(t, 118, first.EarlyMinutes)
}

func TestCalculateMetricsRejectsMalformedTimes(t *testing.T) {
	_, err := CalculateMetrics(ptr("9am"), nil, defaultPolicy())
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	policy := defaultPolicy()
	policy.EndTime = "25:00"
	_, err = CalculateMetrics(ptr("09:00"), ptr("17:00"), policy)
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}
