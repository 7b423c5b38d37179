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
	appErrors "github.com/noah-isme/sma-teacher-attendance/pkg/errors"
)

type userRepository interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByPhoneOrEmail(ctx context.Context, identifier string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	UpdatePin(ctx context.Context, id, pinHash string, updatedAt time.Time) error
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// CreateUserRequest represents payload for creating logins.
type CreateUserRequest struct {
	Name         string          `json:"name" validate:"required,max=255"`
	PhoneOrEmail string          `json:"phone_or_email" validate:"required,max=255"`
	Role         models.UserRole `json:"role" validate:"required,oneof=ADMIN TEACHER"`
	PIN          string          `json:"pin" validate:"required,numeric,min=4,max=6"`
}

// UpdateUserRequest payload for updating logins. Nil fields are kept.
type UpdateUserRequest struct {
	Name   *string          `json:"name" validate:"omitempty,min=1,max=255"`
	Role   *models.UserRole `json:"role" validate:"omitempty,oneof=ADMIN TEACHER"`
	Active *bool            `json:"active"`
}

// ResetPinRequest lets an administrator set a new PIN for a user.
type ResetPinRequest struct {
	PIN string `json:"pin" validate:"required,numeric,min=4,max=6"`
}

// UserService manages login accounts. Teachers need one linked to their
// profile before they can check in.
type UserService struct {
	repo      userRepository
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewUserService creates an instance of UserService.
func NewUserService(repo userRepository, validate *validator.Validate, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &UserService{repo: repo, validator: validate, logger: logger, now: time.Now}
}

// List returns paginated users and pagination metadata.
func (s *UserService) List(ctx context.Context, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 200 {
		filter.PageSize = 50
	}
	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}
	return users, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Get returns a user by ID.
func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return user, nil
}

// Create adds a new login. The login identifier is unique case-insensitively.
func (s *UserService) Create(ctx context.Context, req CreateUserRequest, actor Actor) (*models.User, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.PhoneOrEmail = strings.TrimSpace(req.PhoneOrEmail)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid create user payload")
	}

	if _, err := s.repo.FindByPhoneOrEmail(ctx, req.PhoneOrEmail); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "phone or email already registered")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check login uniqueness")
	}

	hash, err := HashPIN(req.PIN)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash pin")
	}

	user := &models.User{
		Name:         req.Name,
		PhoneOrEmail: strings.ToLower(req.PhoneOrEmail),
		Role:         req.Role,
		Active:       true,
		PinHash:      hash,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}

	recordAudit(ctx, s.repo, s.logger, actor, models.AuditActionUserCreate, "users", &user.ID, nil,
		map[string]interface{}{"id": user.ID, "phone_or_email": user.PhoneOrEmail, "role": user.Role})
	s.logger.Info("user created", zap.String("user_id", user.ID), zap.String("role", string(user.Role)))
	return user, nil
}

// Update modifies name, role or active flag.
func (s *UserService) Update(ctx context.Context, id string, req UpdateUserRequest, actor Actor) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid update payload")
	}

	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	previous := map[string]interface{}{"name": user.Name, "role": user.Role, "active": user.Active}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "name cannot be blank")
		}
		user.Name = name
	}
	if req.Role != nil {
		user.Role = *req.Role
	}
	if req.Active != nil {
		if !*req.Active && actor.UserID == user.ID {
			return nil, appErrors.Clone(appErrors.ErrValidation, "cannot deactivate your own account")
		}
		user.Active = *req.Active
	}

	if err := s.repo.Update(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update user")
	}

	recordAudit(ctx, s.repo, s.logger, actor, models.AuditActionUserUpdate, "users", &user.ID, previous,
		map[string]interface{}{"name": user.Name, "role": user.Role, "active": user.Active})
	return user, nil
}

// ResetPin replaces the PIN of a user without knowing the old one.
func (s *UserService) ResetPin(ctx context.Context, id string, req ResetPinRequest, actor Actor) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid pin")
	}
	user, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	hash, err := HashPIN(req.PIN)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash pin")
	}
	if err := s.repo.UpdatePin(ctx, user.ID, hash, s.now().UTC()); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update pin")
	}
	recordAudit(ctx, s.repo, s.logger, actor, models.AuditActionPinReset, "users", &user.ID, nil, nil)
	return nil
}
