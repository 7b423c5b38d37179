package models

import "time"

// AttendanceStatus is the state of a teacher's working day.
type AttendanceStatus string

const (
	AttendanceStatusPresent   AttendanceStatus = "PRESENT"
	AttendanceStatusAbsent    AttendanceStatus = "ABSENT"
	AttendanceStatusLeave     AttendanceStatus = "LEAVE"
	AttendanceStatusHalfDay   AttendanceStatus = "HALF_DAY"
	AttendanceStatusNotMarked AttendanceStatus = "NOT_MARKED"
)

// Valid reports whether s is one of the known statuses.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendanceStatusPresent, AttendanceStatusAbsent, AttendanceStatusLeave, AttendanceStatusHalfDay, AttendanceStatusNotMarked:
		return true
	default:
		return false
	}
}

// AttendanceRecord is the single row stored per (teacher, date). Date is
// YYYY-MM-DD and TimeIn/TimeOut are HH:mm in the school's wall clock.
// LateMinutes, EarlyMinutes and TotalMinutes are derived from the policy that was
// in force at the time of the write.
type AttendanceRecord struct {
	ID           string           `db:"id" json:"id"`
	TeacherID    string           `db:"teacher_id" json:"teacher_id"`
	Date         string           `db:"date" json:"date"`
	Status       AttendanceStatus `db:"status" json:"status"`
	TimeIn       *string          `db:"time_in" json:"time_in,omitempty"`
	TimeOut      *string          `db:"time_out" json:"time_out,omitempty"`
	LateMinutes  int              `db:"late_minutes" json:"late_minutes"`
	EarlyMinutes int              `db:"early_minutes" json:"early_minutes"`
	TotalMinutes *int             `db:"total_minutes" json:"total_minutes,omitempty"`
	Notes        *string          `db:"notes" json:"notes,omitempty"`
	EditedBy     *string          `db:"edited_by" json:"edited_by,omitempty"`
	EditReason   *string          `db:"edit_reason" json:"edit_reason,omitempty"`
	CreatedAt    time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time        `db:"updated_at" json:"updated_at"`
}

// ApplyMetrics copies calculated metrics onto the record.
func (r *AttendanceRecord) ApplyMetrics(m AttendanceMetrics) {
	r.LateMinutes = m.LateMinutes
	r.EarlyMinutes = m.EarlyMinutes
	r.TotalMinutes = m.TotalMinutes
}

// AttendanceRecordView joins a record with teacher and editor details for listings.
type AttendanceRecordView struct {
	AttendanceRecord
	TeacherName       string  `db:"teacher_name" json:"teacher_name"`
	TeacherDepartment string  `db:"teacher_department" json:"teacher_department"`
	TeacherSubject    string  `db:"teacher_subject" json:"teacher_subject"`
	TeacherPhotoURL   *string `db:"teacher_photo_url" json:"teacher_photo_url,omitempty"`
	EditorName        *string `db:"editor_name" json:"editor_name,omitempty"`
}

// AttendanceMetrics are the derived minute counts of a record.
type AttendanceMetrics struct {
	LateMinutes  int  `json:"late_minutes"`
	EarlyMinutes int  `json:"early_minutes"`
	TotalMinutes *int `json:"total_minutes,omitempty"`
}

// AttendanceDay is either a stored record or the absence of one. Callers must
// check Marked before dereferencing Record.
type AttendanceDay struct {
	TeacherID string            `json:"teacher_id"`
	Date      string            `json:"date"`
	Record    *AttendanceRecord `json:"record,omitempty"`
}

// Marked reports whether a record exists for the day.
func (d AttendanceDay) Marked() bool {
	return d.Record != nil
}

// Status returns the record status, or NOT_MARKED when no record exists.
func (d AttendanceDay) Status() AttendanceStatus {
	if d.Record == nil {
		return AttendanceStatusNotMarked
	}
	return d.Record.Status
}

// AttendanceFilter narrows report queries. Empty fields are ignored.
type AttendanceFilter struct {
	StartDate  string
	EndDate    string
	TeacherID  string
	Department string
	Status     *AttendanceStatus
	Page       int
	PageSize   int
}

// AttendanceStats aggregates records over a filtered range.
type AttendanceStats struct {
	TotalDays            int     `db:"total_days" json:"total_days"`
	PresentDays          int     `db:"present_days" json:"present_days"`
	AbsentDays           int     `db:"absent_days" json:"absent_days"`
	LeaveDays            int     `db:"leave_days" json:"leave_days"`
	HalfDays             int     `db:"half_days" json:"half_days"`
	AttendancePercentage float64 `db:"-" json:"attendance_percentage"`
	TotalLateMinutes     int     `db:"total_late_minutes" json:"total_late_minutes"`
	TotalEarlyMinutes    int     `db:"total_early_minutes" json:"total_early_minutes"`
	TotalWorkedMinutes   int     `db:"total_worked_minutes" json:"total_worked_minutes"`
	AverageWorkedMinutes int     `db:"-" json:"average_worked_minutes"`
}

// StatusCount is one row of a per-status count query.
type StatusCount struct {
	Status AttendanceStatus `db:"status"`
	Count  int              `db:"count"`
}

// TodayStats counts statuses for a single date across active teachers.
type TodayStats struct {
	Date          string `json:"date"`
	TotalTeachers int    `json:"total_teachers"`
	Present       int    `json:"present"`
	Absent        int    `json:"absent"`
	Leave         int    `json:"leave"`
	HalfDay       int    `json:"half_day"`
	NotMarked     int    `json:"not_marked"`
}
