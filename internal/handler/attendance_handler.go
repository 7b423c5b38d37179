package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-teacher-attendance/internal/middleware"
	"github.com/noah-isme/sma-teacher-attendance/internal/models"
	"github.com/noah-isme/sma-teacher-attendance/internal/service"
	appErrors "github.com/noah-isme/sma-teacher-attendance/pkg/errors"
	"github.com/noah-isme/sma-teacher-attendance/pkg/response"
)

type attendanceService interface {
	Today(ctx context.Context) ([]models.AttendanceRecordView, error)
	ByDate(ctx context.Context, date string) ([]models.AttendanceRecordView, error)
	Day(ctx context.Context, teacherID, date string) (*models.AttendanceDay, error)
	TeacherForUser(ctx context.Context, userID string) (*models.Teacher, error)
	CheckIn(ctx context.Context, teacherID string) (*models.AttendanceRecord, error)
	CheckOut(ctx context.Context, teacherID string) (*models.AttendanceRecord, error)
	Mark(ctx context.Context, req service.MarkAttendanceRequest, actor service.Actor) (*models.AttendanceRecord, error)
	Edit(ctx context.Context, recordID string, req service.EditAttendanceRequest, actor service.Actor) (*models.AttendanceRecord, error)
	TodayStats(ctx context.Context) (*models.TodayStats, bool, error)
}

// AttendanceHandler exposes the daily attendance endpoints.
type AttendanceHandler struct {
	attendance attendanceService
}

// NewAttendanceHandler constructs the handler.
func NewAttendanceHandler(attendance attendanceService) *AttendanceHandler {
	return &AttendanceHandler{attendance: attendance}
}

// dayResponse flattens an AttendanceDay so clients always see a status.
type dayResponse struct {
	TeacherID string                   `json:"teacher_id"`
	Date      string                   `json:"date"`
	Status    models.AttendanceStatus  `json:"status"`
	Marked    bool                     `json:"marked"`
	Record    *models.AttendanceRecord `json:"record,omitempty"`
}

// Today godoc
// @Summary Today's attendance
// @Tags Attendance
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /attendance/today [get]
func (h *AttendanceHandler) Today(c *gin.Context) {
	records, err := h.attendance.Today(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}

// ByDate godoc
// @Summary Attendance for a date
// @Tags Attendance
// @Produce json
// @Param date path string true "Date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /attendance/date/{date} [get]
func (h *AttendanceHandler) ByDate(c *gin.Context) {
	records, err := h.attendance.ByDate(c.Request.Context(), c.Param("date"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}

// Day godoc
// @Summary Attendance day of a teacher
// @Description Returns NOT_MARKED when no record exists for the day
// @Tags Attendance
// @Produce json
// @Param id path string true "Teacher ID"
// @Param date path string true "Date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /attendance/teachers/{id}/days/{date} [get]
func (h *AttendanceHandler) Day(c *gin.Context) {
	date := c.Param("date")
	if !validDate(date) {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "date must be formatted as YYYY-MM-DD"))
		return
	}
	day, err := h.attendance.Day(c.Request.Context(), c.Param("id"), date)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dayResponse{
		TeacherID: day.TeacherID,
		Date:      day.Date,
		Status:    day.Status(),
		Marked:    day.Marked(),
		Record:    day.Record,
	}, nil)
}

// CheckIn godoc
// @Summary Check in
// @Description Records the current time as time in for the calling teacher
// @Tags Attendance
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /attendance/check-in [post]
func (h *AttendanceHandler) CheckIn(c *gin.Context) {
	teacher, ok := h.currentTeacher(c)
	if !ok {
		return
	}
	record, err := h.attendance.CheckIn(c.Request.Context(), teacher.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// CheckOut godoc
// @Summary Check out
// @Tags Attendance
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /attendance/check-out [post]
func (h *AttendanceHandler) CheckOut(c *gin.Context) {
	teacher, ok := h.currentTeacher(c)
	if !ok {
		return
	}
	record, err := h.attendance.CheckOut(c.Request.Context(), teacher.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// Mark godoc
// @Summary Mark attendance
// @Description Creates or replaces the record of a teacher for a date
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body service.MarkAttendanceRequest true "Attendance payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /attendance/mark [post]
func (h *AttendanceHandler) Mark(c *gin.Context) {
	var req service.MarkAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid attendance payload"))
		return
	}
	record, err := h.attendance.Mark(c.Request.Context(), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// Edit godoc
// @Summary Edit attendance record
// @Tags Attendance
// @Accept json
// @Produce json
// @Param recordId path string true "Record ID"
// @Param payload body service.EditAttendanceRequest true "Edit payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /attendance/{recordId} [put]
func (h *AttendanceHandler) Edit(c *gin.Context) {
	var req service.EditAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid attendance payload"))
		return
	}
	record, err := h.attendance.Edit(c.Request.Context(), c.Param("recordId"), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// TodayStats godoc
// @Summary Today's counts per status
// @Tags Attendance
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /attendance/stats/today [get]
func (h *AttendanceHandler) TodayStats(c *gin.Context) {
	stats, cacheHit, err := h.attendance.TodayStats(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	response.JSON(c, http.StatusOK, stats, nil, middleware.ExtractMeta(c))
}

func (h *AttendanceHandler) currentTeacher(c *gin.Context) (*models.Teacher, bool) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return nil, false
	}
	teacher, err := h.attendance.TeacherForUser(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return nil, false
	}
	return teacher, true
}
