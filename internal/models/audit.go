package models

import "time"

// Audited actions.
const (
	AuditActionLogin             = "LOGIN"
	AuditActionPinChange         = "PIN_CHANGE"
	AuditActionAttendanceMark    = "ATTENDANCE_MARK"
	AuditActionAttendanceEdit    = "ATTENDANCE_EDIT"
	AuditActionSettingsUpdate    = "SETTINGS_UPDATE"
	AuditActionTeacherDeactivate = "TEACHER_DEACTIVATE"
	AuditActionReportExport      = "REPORT_EXPORT"
	AuditActionUserCreate        = "USER_CREATE"
	AuditActionUserUpdate        = "USER_UPDATE"
	AuditActionPinReset          = "PIN_RESET"
)

// AuditLog represents an audit trail record. Old and new values are JSON snapshots.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	UserID     *string   `db:"user_id" json:"user_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	OldValues  []byte    `db:"old_values" json:"old_values,omitempty"`
	NewValues  []byte    `db:"new_values" json:"new_values,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
