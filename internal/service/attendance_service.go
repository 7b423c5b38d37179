package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-teacher-attendance/internal/models"
	"github.com/noah-isme/sma-teacher-attendance/pkg/clock"
	appErrors "github.com/noah-isme/sma-teacher-attendance/pkg/errors"
)

type attendanceRepository interface {
	FindDay(ctx context.Context, teacherID, date string) (*models.AttendanceRecord, error)
	FindByID(ctx context.Context, id string) (*models.AttendanceRecord, error)
	Upsert(ctx context.Context, record *models.AttendanceRecord) error
	Update(ctx context.Context, record *models.AttendanceRecord) error
	ListByDate(ctx context.Context, date string) ([]models.AttendanceRecordView, error)
	StatusCounts(ctx context.Context, date string) ([]models.StatusCount, error)
}

type attendanceTeacherLookup interface {
	FindByID(ctx context.Context, id string) (*models.Teacher, error)
	FindByUserID(ctx context.Context, userID string) (*models.Teacher, error)
	CountActive(ctx context.Context) (int, error)
}

type policyProvider interface {
	Current(ctx context.Context) (*models.AttendancePolicy, error)
}

// Attendance write actions, used for logs and metrics.
const (
	attendanceActionCheckIn  = "check_in"
	attendanceActionCheckOut = "check_out"
	attendanceActionMark     = "mark"
	attendanceActionEdit     = "edit"
)

// MarkAttendanceRequest sets a teacher's attendance for any date.
type MarkAttendanceRequest struct {
	TeacherID string                  `json:"teacher_id" validate:"required"`
	Date      string                  `json:"date" validate:"required,iso_date"`
	Status    models.AttendanceStatus `json:"status" validate:"required,attendance_status"`
	TimeIn    *string                 `json:"time_in" validate:"omitempty,clock"`
	TimeOut   *string                 `json:"time_out" validate:"omitempty,clock"`
	Notes     *string                 `json:"notes" validate:"omitempty,max=1000"`
}

// EditAttendanceRequest corrects an existing record. EditReason is mandatory.
type EditAttendanceRequest struct {
	Status     models.AttendanceStatus `json:"status" validate:"required,attendance_status"`
	TimeIn     *string                 `json:"time_in" validate:"omitempty,clock"`
	TimeOut    *string                 `json:"time_out" validate:"omitempty,clock"`
	Notes      *string                 `json:"notes" validate:"omitempty,max=1000"`
	EditReason string                  `json:"edit_reason" validate:"required,max=500"`
}

// AttendanceServiceConfig tunes optional behaviour of the attendance service.
type AttendanceServiceConfig struct {
	StatsTTL time.Duration
}

// AttendanceService owns the one-record-per-teacher-per-day lifecycle.
type AttendanceService struct {
	repo      attendanceRepository
	teachers  attendanceTeacherLookup
	policies  policyProvider
	audit     auditWriter
	cache     *CacheService
	metrics   *MetricsService
	clock     clock.Clock
	validator *validator.Validate
	logger    *zap.Logger
	config    AttendanceServiceConfig
}

// NewAttendanceService constructs the attendance service. cache and metrics may be nil.
func NewAttendanceService(
	repo attendanceRepository,
	teachers attendanceTeacherLookup,
	policies policyProvider,
	audit auditWriter,
	cache *CacheService,
	metrics *MetricsService,
	clk clock.Clock,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg AttendanceServiceConfig,
) *AttendanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if clk == nil {
		clk = clock.NewReal(time.UTC)
	}
	if cfg.StatsTTL <= 0 {
		cfg.StatsTTL = 30 * time.Second
	}
	registerAttendanceValidations(validate)
	return &AttendanceService{
		repo:      repo,
		teachers:  teachers,
		policies:  policies,
		audit:     audit,
		cache:     cache,
		metrics:   metrics,
		clock:     clk,
		validator: validate,
		logger:    logger,
		config:    cfg,
	}
}

// Today returns the records of the current date.
func (s *AttendanceService) Today(ctx context.Context) ([]models.AttendanceRecordView, error) {
	return s.ByDate(ctx, clock.Date(s.clock.Now()))
}

// ByDate returns the records of date joined with teacher details, ordered by teacher name.
func (s *AttendanceService) ByDate(ctx context.Context, date string) ([]models.AttendanceRecordView, error) {
	if !isISODate(date) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "date must be formatted as YYYY-MM-DD")
	}
	records, err := s.repo.ListByDate(ctx, date)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attendance")
	}
	return records, nil
}

// Day returns the attendance of one teacher on one date. A day without a
// record is returned with a nil Record rather than as an error.
func (s *AttendanceService) Day(ctx context.Context, teacherID, date string) (*models.AttendanceDay, error) {
	if !isISODate(date) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "date must be formatted as YYYY-MM-DD")
	}
	if _, err := s.loadTeacher(ctx, teacherID); err != nil {
		return nil, err
	}
	record, err := s.findDay(ctx, teacherID, date)
	if err != nil {
		return nil, err
	}
	return &models.AttendanceDay{TeacherID: teacherID, Date: date, Record: record}, nil
}

// TeacherForUser resolves the teacher profile linked to a user account.
func (s *AttendanceService) TeacherForUser(ctx context.Context, userID string) (*models.Teacher, error) {
	teacher, err := s.teachers.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher profile not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher profile")
	}
	return teacher, nil
}

// CheckIn records the current time as today's check-in and marks the teacher PRESENT.
func (s *AttendanceService) CheckIn(ctx context.Context, teacherID string) (*models.AttendanceRecord, error) {
	record, err := s.checkIn(ctx, teacherID)
	s.recordOutcome(attendanceActionCheckIn, err)
	return record, err
}

func (s *AttendanceService) checkIn(ctx context.Context, teacherID string) (*models.AttendanceRecord, error) {
	now := s.clock.Now()
	date := clock.Date(now)

	existing, err := s.findDay(ctx, teacherID, date)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.TimeIn != nil {
		return nil, appErrors.ErrAlreadyCheckedIn
	}

	policy, err := s.currentPolicy(ctx)
	if err != nil {
		return nil, err
	}

	record := &models.AttendanceRecord{TeacherID: teacherID, Date: date}
	if existing != nil {
		copied := *existing
		record = &copied
	}
	timeIn := clock.HourMinute(now)
	record.TimeIn = &timeIn
	record.Status = models.AttendanceStatusPresent
	metrics, err := CalculateMetrics(record.TimeIn, record.TimeOut, *policy)
	if err != nil {
		return nil, err
	}
	record.ApplyMetrics(metrics)

	if err := s.repo.Upsert(ctx, record); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record check-in")
	}
	s.metrics.ObserveLateMinutes(record.LateMinutes)
	s.invalidateStats(ctx, date)
	s.logger.Info("teacher checked in",
		zap.String("teacher_id", teacherID),
		zap.String("date", date),
		zap.String("time_in", timeIn),
		zap.Int("late_minutes", record.LateMinutes),
	)
	return record, nil
}

// CheckOut records the current time as today's check-out. The teacher must have
// checked in and not yet checked out.
func (s *AttendanceService) CheckOut(ctx context.Context, teacherID string) (*models.AttendanceRecord, error) {
	record, err := s.checkOut(ctx, teacherID)
	s.recordOutcome(attendanceActionCheckOut, err)
	return record, err
}

func (s *AttendanceService) checkOut(ctx context.Context, teacherID string) (*models.AttendanceRecord, error) {
	now := s.clock.Now()
	date := clock.Date(now)

	existing, err := s.findDay(ctx, teacherID, date)
	if err != nil {
		return nil, err
	}
	if existing == nil || existing.TimeIn == nil {
		return nil, appErrors.ErrNotCheckedIn
	}
	if existing.TimeOut != nil {
		return nil, appErrors.ErrAlreadyCheckedOut
	}

	policy, err := s.currentPolicy(ctx)
	if err != nil {
		return nil, err
	}

	record := *existing
	timeOut := clock.HourMinute(now)
	record.TimeOut = &timeOut
	metrics, err := CalculateMetrics(record.TimeIn, record.TimeOut, *policy)
	if err != nil {
		return nil, err
	}
	record.ApplyMetrics(metrics)

	if err := s.repo.Upsert(ctx, &record); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record check-out")
	}
	s.invalidateStats(ctx, date)
	s.logger.Info("teacher checked out",
		zap.String("teacher_id", teacherID),
		zap.String("date", date),
		zap.String("time_out", timeOut),
		zap.Int("early_minutes", record.EarlyMinutes),
	)
	return &record, nil
}

// Mark sets a teacher's attendance for a date, creating or overwriting the
// record. Metrics are recomputed from the supplied times.
func (s *AttendanceService) Mark(ctx context.Context, req MarkAttendanceRequest, actor Actor) (*models.AttendanceRecord, error) {
	record, err := s.mark(ctx, req, actor)
	s.recordOutcome(attendanceActionMark, err)
	return record, err
}

func (s *AttendanceService) mark(ctx context.Context, req MarkAttendanceRequest, actor Actor) (*models.AttendanceRecord, error) {
	req.TeacherID = strings.TrimSpace(req.TeacherID)
	req.TimeIn = normalizeOptional(req.TimeIn)
	req.TimeOut = normalizeOptional(req.TimeOut)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance payload")
	}
	if err := validateTimes(req.TimeIn, req.TimeOut); err != nil {
		return nil, err
	}
	if _, err := s.loadTeacher(ctx, req.TeacherID); err != nil {
		return nil, err
	}

	existing, err := s.findDay(ctx, req.TeacherID, req.Date)
	if err != nil {
		return nil, err
	}
	policy, err := s.currentPolicy(ctx)
	if err != nil {
		return nil, err
	}
	metrics, err := CalculateMetrics(req.TimeIn, req.TimeOut, *policy)
	if err != nil {
		return nil, err
	}

	record := &models.AttendanceRecord{TeacherID: req.TeacherID, Date: req.Date}
	if existing != nil {
		copied := *existing
		record = &copied
	}
	record.Status = req.Status
	record.TimeIn = req.TimeIn
	record.TimeOut = req.TimeOut
	record.Notes = normalizeOptional(req.Notes)
	record.ApplyMetrics(metrics)

	if err := s.repo.Upsert(ctx, record); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark attendance")
	}
	s.invalidateStats(ctx, req.Date)
	var previous interface{}
	if existing != nil {
		previous = existing
	}
	recordAudit(ctx, s.audit, s.logger, actor, models.AuditActionAttendanceMark, "attendance", &record.ID, previous, record)
	s.logger.Info("attendance marked",
		zap.String("teacher_id", record.TeacherID),
		zap.String("date", record.Date),
		zap.String("status", string(record.Status)),
		zap.String("marked_by", actor.UserID),
	)
	return record, nil
}

// Edit corrects an existing record and stamps the editor and reason.
func (s *AttendanceService) Edit(ctx context.Context, recordID string, req EditAttendanceRequest, actor Actor) (*models.AttendanceRecord, error) {
	record, err := s.edit(ctx, recordID, req, actor)
	s.recordOutcome(attendanceActionEdit, err)
	return record, err
}

func (s *AttendanceService) edit(ctx context.Context, recordID string, req EditAttendanceRequest, actor Actor) (*models.AttendanceRecord, error) {
	req.EditReason = strings.TrimSpace(req.EditReason)
	if req.EditReason == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "edit reason is required")
	}
	req.TimeIn = normalizeOptional(req.TimeIn)
	req.TimeOut = normalizeOptional(req.TimeOut)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance payload")
	}
	if err := validateTimes(req.TimeIn, req.TimeOut); err != nil {
		return nil, err
	}

	existing, err := s.repo.FindByID(ctx, recordID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "attendance record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance record")
	}

	policy, err := s.currentPolicy(ctx)
	if err != nil {
		return nil, err
	}
	metrics, err := CalculateMetrics(req.TimeIn, req.TimeOut, *policy)
	if err != nil {
		return nil, err
	}

	record := *existing
	record.Status = req.Status
	record.TimeIn = req.TimeIn
	record.TimeOut = req.TimeOut
	record.Notes = normalizeOptional(req.Notes)
	record.ApplyMetrics(metrics)
	editor := actor.UserID
	reason := req.EditReason
	record.EditedBy = &editor
	record.EditReason = &reason

	if err := s.repo.Update(ctx, &record); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "attendance record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update attendance record")
	}
	s.invalidateStats(ctx, record.Date)
	recordAudit(ctx, s.audit, s.logger, actor, models.AuditActionAttendanceEdit, "attendance", &record.ID, existing, &record)
	s.logger.Info("attendance edited",
		zap.String("record_id", record.ID),
		zap.String("teacher_id", record.TeacherID),
		zap.String("date", record.Date),
		zap.String("status", string(record.Status)),
		zap.String("edited_by", editor),
	)
	return &record, nil
}

// TodayStats counts today's statuses across active teachers. Teachers without a
// PRESENT, ABSENT, LEAVE or HALF_DAY record are reported as not marked. The
// boolean reports whether the result came from the cache.
func (s *AttendanceService) TodayStats(ctx context.Context) (*models.TodayStats, bool, error) {
	date := clock.Date(s.clock.Now())
	key := todayStatsKey(date)

	var cached models.TodayStats
	if s.cache.Get(ctx, key, &cached) {
		return &cached, true, nil
	}

	total, err := s.teachers.CountActive(ctx)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count teachers")
	}
	counts, err := s.repo.StatusCounts(ctx, date)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count attendance")
	}

	stats := &models.TodayStats{Date: date, TotalTeachers: total}
	for _, c := range counts {
		switch c.Status {
		case models.AttendanceStatusPresent:
			stats.Present = c.Count
		case models.AttendanceStatusAbsent:
			stats.Absent = c.Count
		case models.AttendanceStatusLeave:
			stats.Leave = c.Count
		case models.AttendanceStatusHalfDay:
			stats.HalfDay = c.Count
		}
	}
	stats.NotMarked = total - (stats.Present + stats.Absent + stats.Leave + stats.HalfDay)
	if stats.NotMarked < 0 {
		stats.NotMarked = 0
	}

	s.cache.Set(ctx, key, stats, s.config.StatsTTL)
	return stats, false, nil
}

func (s *AttendanceService) loadTeacher(ctx context.Context, id string) (*models.Teacher, error) {
	teacher, err := s.teachers.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}
	return teacher, nil
}

// findDay returns nil without error when no record exists.
func (s *AttendanceService) findDay(ctx context.Context, teacherID, date string) (*models.AttendanceRecord, error) {
	record, err := s.repo.FindDay(ctx, teacherID, date)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance")
	}
	return record, nil
}

func (s *AttendanceService) currentPolicy(ctx context.Context) (*models.AttendancePolicy, error) {
	policy, err := s.policies.Current(ctx)
	if err != nil {
		return nil, appErrors.FromError(err)
	}
	return policy, nil
}

func (s *AttendanceService) invalidateStats(ctx context.Context, date string) {
	s.cache.Invalidate(ctx, todayStatsKey(date))
}

func (s *AttendanceService) recordOutcome(action string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = appErrors.FromError(err).Code
	}
	s.metrics.RecordAttendanceWrite(action, outcome)
}

func validateTimes(timeIn, timeOut *string) error {
	if timeOut != nil && timeIn == nil {
		return appErrors.Clone(appErrors.ErrValidation, "time_out requires time_in")
	}
	return nil
}
