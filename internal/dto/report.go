package dto

import (
	"time"

	"github.com/noah-isme/sma-teacher-attendance/internal/models"
)

// GenerateReportRequest captures POST /reports/generate payload.
type GenerateReportRequest struct {
	StartDate  string                   `json:"start_date" validate:"omitempty,iso_date"`
	EndDate    string                   `json:"end_date" validate:"omitempty,iso_date"`
	TeacherID  string                   `json:"teacher_id"`
	Department string                   `json:"department"`
	Status     *models.AttendanceStatus `json:"status" validate:"omitempty,attendance_status"`
	Format     models.ReportFormat      `json:"format" validate:"required,oneof=csv pdf"`
}

// Params converts the request into persisted job parameters.
func (r GenerateReportRequest) Params() models.ReportJobParams {
	return models.ReportJobParams{
		StartDate:  r.StartDate,
		EndDate:    r.EndDate,
		TeacherID:  r.TeacherID,
		Department: r.Department,
		Status:     r.Status,
		Format:     r.Format,
	}
}

// ReportJobResponse is returned after enqueueing a report.
type ReportJobResponse struct {
	ID       string              `json:"id"`
	Status   models.ReportStatus `json:"status"`
	Progress int                 `json:"progress"`
}

// ReportStatusResponse exposes job progress metadata.
type ReportStatusResponse struct {
	ID         string              `json:"id"`
	Status     models.ReportStatus `json:"status"`
	Progress   int                 `json:"progress"`
	ResultURL  *string             `json:"result_url,omitempty"`
	Error      *string             `json:"error,omitempty"`
	CreatedAt  time.Time           `json:"created_at"`
	FinishedAt *time.Time          `json:"finished_at,omitempty"`
}
