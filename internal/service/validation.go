package service

import (
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/sma-teacher-attendance/internal/models"
)

var (
	clockPattern   = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)
	isoDatePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
)

// registerAttendanceValidations installs the custom tags shared by attendance
// payloads: attendance_status, clock (HH:mm), iso_date (YYYY-MM-DD) and
// weekdays (comma separated English day names).
func registerAttendanceValidations(v *validator.Validate) {
	_ = v.RegisterValidation("attendance_status", func(fl validator.FieldLevel) bool {
		return models.AttendanceStatus(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("clock", func(fl validator.FieldLevel) bool {
		return clockPattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("iso_date", func(fl validator.FieldLevel) bool {
		return isISODate(fl.Field().String())
	})
	_ = v.RegisterValidation("weekdays", func(fl validator.FieldLevel) bool {
		return validWeekdays(fl.Field().String())
	})
}

func isISODate(value string) bool {
	if !isoDatePattern.MatchString(value) {
		return false
	}
	_, err := time.Parse("2006-01-02", value)
	return err == nil
}

func validWeekdays(value string) bool {
	names := map[string]struct{}{}
	for d := time.Sunday; d <= time.Saturday; d++ {
		names[strings.ToLower(d.String())] = struct{}{}
	}
	for _, part := range strings.Split(value, ",") {
		day := strings.ToLower(strings.TrimSpace(part))
		if day == "" {
			continue
		}
		if _, ok := names[day]; !ok {
			return false
		}
	}
	return true
}

func normalizeOptional(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
