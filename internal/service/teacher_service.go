package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-teacher-attendance/internal/models"
	appErrors "github.com/noah-isme/sma-teacher-attendance/pkg/errors"
)

type teacherRepository interface {
	List(ctx context.Context, filter models.TeacherFilter) ([]models.Teacher, int, error)
	FindByID(ctx context.Context, id string) (*models.Teacher, error)
	FindByUserID(ctx context.Context, userID string) (*models.Teacher, error)
	Create(ctx context.Context, teacher *models.Teacher) error
	Update(ctx context.Context, teacher *models.Teacher) error
	Deactivate(ctx context.Context, id string) error
}

// CreateTeacherRequest represents payload for creating teachers.
type CreateTeacherRequest struct {
	Name       string  `json:"name" validate:"required,max=255"`
	Department string  `json:"department" validate:"required,max=255"`
	Subject    string  `json:"subject" validate:"required,max=255"`
	PhotoURL   *string `json:"photo_url" validate:"omitempty,url"`
	UserID     *string `json:"user_id" validate:"omitempty"`
}

// UpdateTeacherRequest represents a partial teacher update.
type UpdateTeacherRequest struct {
	Name       *string `json:"name" validate:"omitempty,min=1,max=255"`
	Department *string `json:"department" validate:"omitempty,min=1,max=255"`
	Subject    *string `json:"subject" validate:"omitempty,min=1,max=255"`
	PhotoURL   *string `json:"photo_url" validate:"omitempty,url"`
	Active     *bool   `json:"active"`
}

// TeacherService orchestrates teacher operations.
type TeacherService struct {
	repo      teacherRepository
	audit     auditWriter
	cache     *CacheService
	clockDate func() string
	validator *validator.Validate
	logger    *zap.Logger
}

// NewTeacherService constructs a TeacherService.
func NewTeacherService(repo teacherRepository, audit auditWriter, validate *validator.Validate, logger *zap.Logger) *TeacherService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TeacherService{repo: repo, audit: audit, validator: validate, logger: logger}
}

// WithStatsInvalidation makes roster changes drop the cached daily stats of
// the date returned by today, since the active teacher count changes.
func (s *TeacherService) WithStatsInvalidation(cache *CacheService, today func() string) *TeacherService {
	s.cache = cache
	s.clockDate = today
	return s
}

// List returns teachers plus pagination data. Only active teachers are listed
// unless the filter says otherwise.
func (s *TeacherService) List(ctx context.Context, filter models.TeacherFilter) ([]models.Teacher, *models.Pagination, error) {
	if filter.Active == nil {
		active := true
		filter.Active = &active
	}
	filter.Search = strings.TrimSpace(filter.Search)
	teachers, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list teachers")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 100
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return teachers, pagination, nil
}

// Get returns a teacher by id.
func (s *TeacherService) Get(ctx context.Context, id string) (*models.Teacher, error) {
	teacher, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}
	return teacher, nil
}

// Create registers a new teacher record.
func (s *TeacherService) Create(ctx context.Context, req CreateTeacherRequest) (*models.Teacher, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Department = strings.TrimSpace(req.Department)
	req.Subject = strings.TrimSpace(req.Subject)
	req.PhotoURL = normalizeOptional(req.PhotoURL)
	req.UserID = normalizeOptional(req.UserID)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid teacher payload")
	}
	if req.UserID != nil {
		if err := s.ensureUserUnlinked(ctx, *req.UserID); err != nil {
			return nil, err
		}
	}

	teacher := &models.Teacher{
		UserID:     req.UserID,
		Name:       req.Name,
		Department: req.Department,
		Subject:    req.Subject,
		PhotoURL:   req.PhotoURL,
		Active:     true,
	}
	if err := s.repo.Create(ctx, teacher); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create teacher")
	}
	s.invalidateStats(ctx)
	s.logger.Info("teacher created", zap.String("teacher_id", teacher.ID), zap.String("department", teacher.Department))
	return teacher, nil
}

// Update modifies an existing teacher. Nil fields are left unchanged.
func (s *TeacherService) Update(ctx context.Context, id string, req UpdateTeacherRequest) (*models.Teacher, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid teacher payload")
	}

	teacher, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		teacher.Name = strings.TrimSpace(*req.Name)
	}
	if req.Department != nil {
		teacher.Department = strings.TrimSpace(*req.Department)
	}
	if req.Subject != nil {
		teacher.Subject = strings.TrimSpace(*req.Subject)
	}
	if req.PhotoURL != nil {
		teacher.PhotoURL = normalizeOptional(req.PhotoURL)
	}
	if req.Active != nil {
		teacher.Active = *req.Active
	}
	if teacher.Name == "" || teacher.Department == "" || teacher.Subject == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "name, department and subject cannot be blank")
	}

	if err := s.repo.Update(ctx, teacher); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update teacher")
	}
	if req.Active != nil {
		s.invalidateStats(ctx)
	}
	return teacher, nil
}

// Deactivate marks a teacher inactive and disables the linked login.
func (s *TeacherService) Deactivate(ctx context.Context, id string, actor Actor) error {
	teacher, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Deactivate(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate teacher")
	}
	s.invalidateStats(ctx)
	recordAudit(ctx, s.audit, s.logger, actor, models.AuditActionTeacherDeactivate, "teacher", &teacher.ID, teacher, map[string]bool{"active": false})
	s.logger.Info("teacher deactivated", zap.String("teacher_id", id), zap.String("deactivated_by", actor.UserID))
	return nil
}

func (s *TeacherService) ensureUserUnlinked(ctx context.Context, userID string) error {
	_, err := s.repo.FindByUserID(ctx, userID)
	switch {
	case err == nil:
		return appErrors.Clone(appErrors.ErrConflict, "user is already linked to a teacher")
	case errors.Is(err, sql.ErrNoRows):
		return nil
	default:
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check user link")
	}
}

func (s *TeacherService) invalidateStats(ctx context.Context) {
	if s.clockDate == nil {
		return
	}
	s.cache.Invalidate(ctx, todayStatsKey(s.clockDate()))
}
