package models

import (
	"strings"
	"time"
)

// DefaultPolicyID is the key of the single school_settings row.
const DefaultPolicyID = "default"

// AttendancePolicy holds school hours and tolerances. Times are HH:mm wall clock.
// HalfDayMinutes, WeekendDays and Timezone are stored for clients; metric
// calculation only reads the start and end times and the grace period.
type AttendancePolicy struct {
	ID             string    `db:"id" json:"id"`
	StartTime      string    `db:"start_time" json:"start_time"`
	EndTime        string    `db:"end_time" json:"end_time"`
	GraceMinutes   int       `db:"grace_minutes" json:"grace_minutes"`
	HalfDayMinutes int       `db:"half_day_minutes" json:"half_day_minutes"`
	Timezone       string    `db:"timezone" json:"timezone"`
	WeekendDays    string    `db:"weekend_days" json:"weekend_days"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// WeekendDayList splits WeekendDays into trimmed day names.
func (p AttendancePolicy) WeekendDayList() []string {
	var days []string
	for _, part := range strings.Split(p.WeekendDays, ",") {
		if day := strings.TrimSpace(part); day != "" {
			days = append(days, day)
		}
	}
	return days
}

// IsWeekend reports whether t falls on one of the configured weekend days.
func (p AttendancePolicy) IsWeekend(t time.Time) bool {
	name := t.Weekday().String()
	for _, day := range p.WeekendDayList() {
		if strings.EqualFold(day, name) {
			return true
		}
	}
	return false
}
