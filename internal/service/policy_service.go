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
	"github.com/noah-isme/sma-teacher-attendance/pkg/config"
	appErrors "github.com/noah-isme/sma-teacher-attendance/pkg/errors"
)

type policyRepository interface {
	Get(ctx context.Context) (*models.AttendancePolicy, error)
	Save(ctx context.Context, policy *models.AttendancePolicy) error
}

// UpdatePolicyRequest carries a partial settings update. Nil fields are kept.
type UpdatePolicyRequest struct {
	StartTime      *string `json:"start_time" validate:"omitempty,clock"`
	EndTime        *string `json:"end_time" validate:"omitempty,clock"`
	GraceMinutes   *int    `json:"grace_minutes" validate:"omitempty,min=0,max=720"`
	HalfDayMinutes *int    `json:"half_day_minutes" validate:"omitempty,min=0,max=1440"`
	Timezone       *string `json:"timezone" validate:"omitempty,timezone"`
	WeekendDays    *string `json:"weekend_days" validate:"omitempty,weekdays"`
}

type zoneSetter interface {
	SetLocation(loc *time.Location)
}

// PolicyService manages the school-hours policy used by attendance metrics.
type PolicyService struct {
	repo      policyRepository
	zone      zoneSetter
	audit     auditWriter
	cache     *CacheService
	defaults  config.AttendanceConfig
	validator *validator.Validate
	logger    *zap.Logger
}

// NewPolicyService constructs a PolicyService. defaults seed the policy row the
// first time it is read.
func NewPolicyService(repo policyRepository, audit auditWriter, cache *CacheService, defaults config.AttendanceConfig, validate *validator.Validate, logger *zap.Logger) *PolicyService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	registerAttendanceValidations(validate)
	return &PolicyService{repo: repo, audit: audit, cache: cache, defaults: defaults, validator: validate, logger: logger}
}

// WithClock makes the policy timezone drive clk, so "today" and check-in
// times follow the saved setting instead of the boot-time configuration.
func (s *PolicyService) WithClock(clk zoneSetter) *PolicyService {
	s.zone = clk
	return s
}

// DefaultPolicy builds the fallback policy from configuration.
func DefaultPolicy(cfg config.AttendanceConfig) models.AttendancePolicy {
	policy := models.AttendancePolicy{
		ID:             models.DefaultPolicyID,
		StartTime:      cfg.DefaultStartTime,
		EndTime:        cfg.DefaultEndTime,
		GraceMinutes:   cfg.DefaultGraceMinutes,
		HalfDayMinutes: cfg.DefaultHalfDayMinutes,
		Timezone:       cfg.Timezone,
		WeekendDays:    cfg.DefaultWeekendDays,
	}
	if policy.StartTime == "" {
		policy.StartTime = "09:00"
	}
	if policy.EndTime == "" {
		policy.EndTime = "17:00"
	}
	if policy.Timezone == "" {
		policy.Timezone = "UTC"
	}
	if policy.WeekendDays == "" {
		policy.WeekendDays = "Saturday,Sunday"
	}
	return policy
}

// Current returns the active policy, creating it from defaults when none exists.
func (s *PolicyService) Current(ctx context.Context) (*models.AttendancePolicy, error) {
	var cached models.AttendancePolicy
	if s.cache.Get(ctx, cacheKeyPolicy, &cached) {
		s.applyTimezone(&cached)
		return &cached, nil
	}

	policy, err := s.repo.Get(ctx)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load settings")
		}
		defaults := DefaultPolicy(s.defaults)
		if err := s.repo.Save(ctx, &defaults); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create default settings")
		}
		s.logger.Info("default attendance policy created", zap.String("start_time", defaults.StartTime), zap.String("end_time", defaults.EndTime))
		policy = &defaults
	}

	s.cache.Set(ctx, cacheKeyPolicy, policy, 0)
	s.applyTimezone(policy)
	return policy, nil
}

func (s *PolicyService) applyTimezone(policy *models.AttendancePolicy) {
	if s.zone == nil || policy.Timezone == "" {
		return
	}
	loc, err := time.LoadLocation(policy.Timezone)
	if err != nil {
		s.logger.Warn("ignoring unknown policy timezone", zap.String("timezone", policy.Timezone), zap.Error(err))
		return
	}
	s.zone.SetLocation(loc)
}

// Update applies a partial change to the policy. Records already stored keep
// the metrics computed under the previous policy.
func (s *PolicyService) Update(ctx context.Context, req UpdatePolicyRequest, actor Actor) (*models.AttendancePolicy, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid settings payload")
	}

	current, err := s.Current(ctx)
	if err != nil {
		return nil, err
	}
	previous := *current
	updated := *current
	if req.StartTime != nil {
		updated.StartTime = *req.StartTime
	}
	if req.EndTime != nil {
		updated.EndTime = *req.EndTime
	}
	if req.GraceMinutes != nil {
		updated.GraceMinutes = *req.GraceMinutes
	}
	if req.HalfDayMinutes != nil {
		updated.HalfDayMinutes = *req.HalfDayMinutes
	}
	if req.Timezone != nil {
		updated.Timezone = strings.TrimSpace(*req.Timezone)
	}
	if req.WeekendDays != nil {
		updated.WeekendDays = strings.Join(models.AttendancePolicy{WeekendDays: *req.WeekendDays}.WeekendDayList(), ",")
	}

	start, err := minutesOfDay(updated.StartTime)
	if err != nil {
		return nil, err
	}
	end, err := minutesOfDay(updated.EndTime)
	if err != nil {
		return nil, err
	}
	if end <= start {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end_time must be after start_time")
	}

	if err := s.repo.Save(ctx, &updated); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save settings")
	}
	s.cache.Invalidate(ctx, cacheKeyPolicy)
	s.applyTimezone(&updated)

	id := updated.ID
	recordAudit(ctx, s.audit, s.logger, actor, models.AuditActionSettingsUpdate, "settings", &id, previous, updated)
	s.logger.Info("attendance policy updated",
		zap.String("start_time", updated.StartTime),
		zap.String("end_time", updated.EndTime),
		zap.Int("grace_minutes", updated.GraceMinutes),
		zap.String("updated_by", actor.UserID),
	)
	return &updated, nil
}
