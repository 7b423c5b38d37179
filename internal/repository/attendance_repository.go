package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-teacher-attendance/internal/models"
)

const attendanceColumns = `id, teacher_id, date, status, time_in, time_out, late_minutes, early_minutes, total_minutes, notes, edited_by, edit_reason, created_at, updated_at`

const attendanceViewSelect = `SELECT a.id, a.teacher_id, a.date, a.status, a.time_in, a.time_out, a.late_minutes, a.early_minutes, a.total_minutes, a.notes, a.edited_by, a.edit_reason, a.created_at, a.updated_at,
t.name AS teacher_name, t.department AS teacher_department, t.subject AS teacher_subject, t.photo_url AS teacher_photo_url, u.name AS editor_name
FROM attendance_records a
JOIN teachers t ON t.id = a.teacher_id
LEFT JOIN users u ON u.id = a.edited_by`

// AttendanceRepository persists attendance records. A unique index on
// (teacher_id, date) guarantees at most one record per teacher per day.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs an AttendanceRepository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// FindDay returns the record of a teacher on date, or sql.ErrNoRows.
func (r *AttendanceRepository) FindDay(ctx context.Context, teacherID, date string) (*models.AttendanceRecord, error) {
	query := `SELECT ` + attendanceColumns + ` FROM attendance_records WHERE teacher_id = $1 AND date = $2`
	var record models.AttendanceRecord
	if err := r.db.GetContext(ctx, &record, query, teacherID, date); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find attendance day: %w", err)
	}
	return &record, nil
}

// FindByID returns a record by id, or sql.ErrNoRows.
func (r *AttendanceRepository) FindByID(ctx context.Context, id string) (*models.AttendanceRecord, error) {
	query := `SELECT ` + attendanceColumns + ` FROM attendance_records WHERE id = $1`
	var record models.AttendanceRecord
	if err := r.db.GetContext(ctx, &record, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find attendance record: %w", err)
	}
	return &record, nil
}

// Upsert inserts the record or overwrites the existing row for the same
// (teacher_id, date). The stored id and created_at are written back to record.
func (r *AttendanceRepository) Upsert(ctx context.Context, record *models.AttendanceRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	const query = `INSERT INTO attendance_records (` + attendanceColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
ON CONFLICT (teacher_id, date) DO UPDATE SET
status = EXCLUDED.status, time_in = EXCLUDED.time_in, time_out = EXCLUDED.time_out,
late_minutes = EXCLUDED.late_minutes, early_minutes = EXCLUDED.early_minutes, total_minutes = EXCLUDED.total_minutes,
notes = EXCLUDED.notes, edited_by = EXCLUDED.edited_by, edit_reason = EXCLUDED.edit_reason, updated_at = EXCLUDED.updated_at
RETURNING id, created_at`

	var stored struct {
		ID        string    `db:"id"`
		CreatedAt time.Time `db:"created_at"`
	}
	err := r.db.GetContext(ctx, &stored, query,
		record.ID, record.TeacherID, record.Date, record.Status, record.TimeIn, record.TimeOut,
		record.LateMinutes, record.EarlyMinutes, record.TotalMinutes, record.Notes, record.EditedBy, record.EditReason,
		record.CreatedAt, record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert attendance record: %w", err)
	}
	record.ID = stored.ID
	record.CreatedAt = stored.CreatedAt
	return nil
}

// Update overwrites the mutable fields of an existing record.
func (r *AttendanceRepository) Update(ctx context.Context, record *models.AttendanceRecord) error {
	record.UpdatedAt = time.Now().UTC()
	const query = `UPDATE attendance_records SET status = :status, time_in = :time_in, time_out = :time_out, late_minutes = :late_minutes, early_minutes = :early_minutes, total_minutes = :total_minutes, notes = :notes, edited_by = :edited_by, edit_reason = :edit_reason, updated_at = :updated_at WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, record)
	if err != nil {
		return fmt.Errorf("update attendance record: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListByDate returns every record of date joined with teacher data, ordered by teacher name.
func (r *AttendanceRepository) ListByDate(ctx context.Context, date string) ([]models.AttendanceRecordView, error) {
	query := attendanceViewSelect + ` WHERE a.date = $1 ORDER BY t.name ASC`
	var records []models.AttendanceRecordView
	if err := r.db.SelectContext(ctx, &records, query, date); err != nil {
		return nil, fmt.Errorf("list attendance by date: %w", err)
	}
	return records, nil
}

// List returns a filtered page of records, newest date first, plus the total count.
func (r *AttendanceRepository) List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecordView, int, error) {
	where, args := buildAttendanceWhere(filter)

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 500 {
		size = 50
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("%s%s ORDER BY a.date DESC, t.name ASC LIMIT %d OFFSET %d", attendanceViewSelect, where, size, offset)
	var records []models.AttendanceRecordView
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list attendance records: %w", err)
	}

	countQuery := "SELECT COUNT(*) FROM attendance_records a JOIN teachers t ON t.id = a.teacher_id" + where
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count attendance records: %w", err)
	}
	return records, total, nil
}

// Export returns every record matching filter in report order, ignoring pagination.
func (r *AttendanceRepository) Export(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecordView, error) {
	where, args := buildAttendanceWhere(filter)
	query := attendanceViewSelect + where + " ORDER BY a.date DESC, t.name ASC"
	var records []models.AttendanceRecordView
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, fmt.Errorf("export attendance records: %w", err)
	}
	return records, nil
}

// Stats aggregates counts and minute totals over the filtered records.
func (r *AttendanceRepository) Stats(ctx context.Context, filter models.AttendanceFilter) (*models.AttendanceStats, error) {
	where, args := buildAttendanceWhere(filter)
	query := `SELECT COUNT(*) AS total_days,
COUNT(*) FILTER (WHERE a.status = 'PRESENT') AS present_days,
COUNT(*) FILTER (WHERE a.status = 'ABSENT') AS absent_days,
COUNT(*) FILTER (WHERE a.status = 'LEAVE') AS leave_days,
COUNT(*) FILTER (WHERE a.status = 'HALF_DAY') AS half_days,
COALESCE(SUM(a.late_minutes), 0) AS total_late_minutes,
COALESCE(SUM(a.early_minutes), 0) AS total_early_minutes,
COALESCE(SUM(a.total_minutes), 0) AS total_worked_minutes
FROM attendance_records a JOIN teachers t ON t.id = a.teacher_id` + where

	var stats models.AttendanceStats
	if err := r.db.GetContext(ctx, &stats, query, args...); err != nil {
		return nil, fmt.Errorf("aggregate attendance stats: %w", err)
	}
	return &stats, nil
}

// StatusCounts groups the records of active teachers on date by status.
func (r *AttendanceRepository) StatusCounts(ctx context.Context, date string) ([]models.StatusCount, error) {
	const query = `SELECT a.status, COUNT(*) AS count FROM attendance_records a JOIN teachers t ON t.id = a.teacher_id WHERE a.date = $1 AND t.active = TRUE GROUP BY a.status`
	var counts []models.StatusCount
	if err := r.db.SelectContext(ctx, &counts, query, date); err != nil {
		return nil, fmt.Errorf("count attendance statuses: %w", err)
	}
	return counts, nil
}

func buildAttendanceWhere(filter models.AttendanceFilter) (string, []interface{}) {
	var conditions []string
	var args []interface{}

	if filter.StartDate != "" {
		conditions = append(conditions, fmt.Sprintf("a.date >= $%d", len(args)+1))
		args = append(args, filter.StartDate)
	}
	if filter.EndDate != "" {
		conditions = append(conditions, fmt.Sprintf("a.date <= $%d", len(args)+1))
		args = append(args, filter.EndDate)
	}
	if filter.TeacherID != "" {
		conditions = append(conditions, fmt.Sprintf("a.teacher_id = $%d", len(args)+1))
		args = append(args, filter.TeacherID)
	}
	if filter.Department != "" {
		conditions = append(conditions, fmt.Sprintf("t.department = $%d", len(args)+1))
		args = append(args, filter.Department)
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("a.status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}

	if len(conditions) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}
