package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttendanceDayStatus(t *testing.T) {
	absent := AttendanceDay{TeacherID: "t-1", Date: "2024-03-04"}
	assert.False(t, absent.Marked())
	assert.Equal(t, AttendanceStatusNotMarked, absent.Status())

	marked := AttendanceDay{TeacherID: "t-1", Date: "2024-03-04", Record: &AttendanceRecord{Status: AttendanceStatusLeave}}
	assert.True(t, marked.Marked())
	assert.Equal(t, AttendanceStatusLeave, marked.Status())
}

func TestAttendanceStatusValid(t *testing.T) {
	assert.True(t, AttendanceStatusHalfDay.Valid())
	assert.False(t, AttendanceStatus("LATE").Valid())
}

func TestPolicyWeekend(t *testing.T) {
	p := AttendancePolicy{WeekendDays: "Saturday, sunday,"}
	assert.Equal(t, []string{"Saturday", "sunday"}, p.WeekendDayList())
	assert.True(t, p.IsWeekend(time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC)))
	assert.False(t, p.IsWeekend(time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)))
}

func TestReportJobParamsScan(t *testing.T) {
	status := AttendanceStatusAbsent
	params := ReportJobParams{StartDate: "2024-03-01", Status: &status, Format: ReportFormatPDF}
	raw, err := params.Value()
	require.NoError(t, err)

	var decoded ReportJobParams
	require.NoError(t, decoded.Scan(raw))
	assert.Equal(t, params, decoded)
	assert.Equal(t, "2024-03-01", decoded.Filter().StartDate)

	require.NoError(t, decoded.Scan(nil))
	assert.Equal(t, ReportJobParams{}, decoded)
	assert.Error(t, decoded.Scan(42))
}
