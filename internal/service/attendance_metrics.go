package service

import (
	"fmt"
	"time"

	"github.com/noah-isme/sma-teacher-attendance/internal/models"
	appErrors "github.com/noah-isme/sma-teacher-attendance/pkg/errors"
)

const clockLayout = "15:04"

// minutesOfDay converts an HH:mm wall-clock time into minutes since midnight.
func minutesOfDay(value string) (int, error) {
	t, err := time.Parse(clockLayout, value)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, fmt.Sprintf("invalid time %q, expected HH:mm", value))
	}
	return t.Hour()*60 + t.Minute(), nil
}

// CalculateMetrics derives late, early and worked minutes for a day from its
// check-in and check-out times. All values are minutes on a single day; a
// check-out earlier than the check-in yields a negative total rather than
// rolling over midnight.
func CalculateMetrics(timeIn, timeOut *string, policy models.AttendancePolicy) (models.AttendanceMetrics, error) {
	var metrics models.AttendanceMetrics
	if timeIn == nil {
		return metrics, nil
	}

	in, err := minutesOfDay(*timeIn)
	if err != nil {
		return metrics, err
	}
	start, err := minutesOfDay(policy.StartTime)
	if err != nil {
		return metrics, err
	}
	if lateDiff := in - start; lateDiff > policy.GraceMinutes {
		metrics.LateMinutes = lateDiff - policy.GraceMinutes
	}

	if timeOut == nil {
		return metrics, nil
	}

	out, err := minutesOfDay(*timeOut)
	if err != nil {
		return metrics, err
	}
	end, err := minutesOfDay(policy.EndTime)
	if err != nil {
		return metrics, err
	}
	total := out - in
	metrics.TotalMinutes = &total
	if earlyDiff := end - out; earlyDiff > 0 {
		metrics.EarlyMinutes = earlyDiff
	}
	return metrics, nil
}
