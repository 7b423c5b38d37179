package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/sma-teacher-attendance/internal/models"
	appErrors "github.com/noah-isme/sma-teacher-attendance/pkg/errors"
)

type mockAuthRepo struct {
	users            map[string]*models.User
	findErr          error
	auditLogs        []*models.AuditLog
	lastLoginUpdated bool
}

func (m *mockAuthRepo) FindByPhoneOrEmail(ctx context.Context, identifier string) (*models.User, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	for _, user := range m.users {
		if user.PhoneOrEmail == identifier {
			return user, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if user, ok := m.users[id]; ok {
		return user, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	m.lastLoginUpdated = true
	return nil
}

func (m *mockAuthRepo) UpdatePin(ctx context.Context, id, pinHash string, updatedAt time.Time) error {
	user, ok := m.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	user.PinHash = pinHash
	return nil
}

func (m *mockAuthRepo) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.auditLogs = append(m.auditLogs, log)
	return nil
}

func newAuthFixture(t *testing.T) (*AuthService, *mockAuthRepo) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("1234"), bcrypt.MinCost)
	require.NoError(t, err)

	repo := &mockAuthRepo{users: map[string]*models.User{
		"admin": {ID: "admin", Name: "Admin User", PhoneOrEmail: "admin@school.com", PinHash: string(hash), Role: models.RoleAdmin, Active: true},
		"u1":    {ID: "u1", Name: "Alice", PhoneOrEmail: "0811", PinHash: string(hash), Role: models.RoleTeacher, Active: true},
		"u2":    {ID: "u2", Name: "Gone", PhoneOrEmail: "gone@school.com", PinHash: string(hash), Role: models.RoleTeacher, Active: false},
	}}
	teachers := newMockTeacherRepo(models.Teacher{ID: "t1", UserID: ptr("u1"), Name: "Alice", Active: true})
	svc := NewAuthService(repo, teachers, validator.New(), zap.NewNop(), AuthConfig{
		TokenSecret:    "secret",
		TokenExpiry:    time.Hour,
		RememberExpiry: 24 * time.Hour,
		Issuer:         "test",
	})
	return svc, repo
}

func TestAuthServiceLoginSuccess(t *testing.T) {
	svc, repo := newAuthFixture(t)
	fixed := time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	resp, err := svc.Login(context.Background(), models.LoginRequest{PhoneOrEmail: " admin@school.com ", PIN: "1234"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, fixed.Add(time.Hour), resp.ExpiresAt)
	assert.Equal(t, models.RoleAdmin, resp.User.Role)
	assert.Nil(t, resp.User.TeacherID)
	assert.True(t, repo.lastLoginUpdated)
	require.Len(t, repo.auditLogs, 1)
	assert.Equal(t, models.AuditActionLogin, repo.auditLogs[0].Action)

	claims, err := svc.ValidateToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.UserID)
	assert.Equal(t, models.RoleAdmin, claims.Role)
}

func TestAuthServiceLoginRememberDevice(t *testing.T) {
	svc, _ := newAuthFixture(t)
	fixed := time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	resp, err := svc.Login(context.Background(), models.LoginRequest{PhoneOrEmail: "0811", PIN: "1234", RememberDevice: true})
	require.NoError(t, err)
	assert.Equal(t, fixed.Add(24*time.Hour), resp.ExpiresAt)
	require.NotNil(t, resp.User.TeacherID)
	assert.Equal(t, "t1", *resp.User.TeacherID)
}

func TestAuthServiceLoginFailures(t *testing.T) {
	svc, _ := newAuthFixture(t)
	ctx := context.Background()

	_, err := svc.Login(ctx, models.LoginRequest{PhoneOrEmail: "admin@school.com", PIN: "9999"})
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)

	_, err = svc.Login(ctx, models.LoginRequest{PhoneOrEmail: "nobody", PIN: "1234"})
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)

	_, err = svc.Login(ctx, models.LoginRequest{PhoneOrEmail: "gone@school.com", PIN: "1234"})
	assert.Equal(t, appErrors.ErrInactiveAccount.Code, appErrors.FromError(err).Code)
	assert.Equal(t, 401, appErrors.FromError(err).Status)

	_, err = svc.Login(ctx, models.LoginRequest{PhoneOrEmail: "admin@school.com", PIN: "12"})
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceLoginRepositoryError(t *testing.T) {
	svc, repo := newAuthFixture(t)
	repo.findErr = errors.New("db down")

	_, err := svc.Login(context.Background(), models.LoginRequest{PhoneOrEmail: "admin@school.com", PIN: "1234"})
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceChangePin(t *testing.T) {
	svc, repo := newAuthFixture(t)
	ctx := context.Background()

	err := svc.ChangePin(ctx, "u1", models.ChangePinRequest{OldPIN: "0000", NewPIN: "5678"}, Actor{})
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)

	require.NoError(t, svc.ChangePin(ctx, "u1", models.ChangePinRequest{OldPIN: "1234", NewPIN: "5678"}, Actor{IP: "127.0.0.1"}))
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.users["u1"].PinHash), []byte("5678")))
	require.Len(t, repo.auditLogs, 1)
	assert.Equal(t, models.AuditActionPinChange, repo.auditLogs[0].Action)
	assert.Equal(t, "127.0.0.1", repo.auditLogs[0].IPAddress)

	_, err = svc.Login(ctx, models.LoginRequest{PhoneOrEmail: "0811", PIN: "5678"})
	require.NoError(t, err)
}

func TestAuthServiceMe(t *testing.T) {
	svc, _ := newAuthFixture(t)

	info, err := svc.Me(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "Alice", info.Name)
	assert.Equal(t, "t1", *info.TeacherID)

	_, err = svc.Me(context.Background(), "missing")
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceValidateTokenExpired(t *testing.T) {
	svc, _ := newAuthFixture(t)
	issued := time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return issued }

	resp, err := svc.Login(context.Background(), models.LoginRequest{PhoneOrEmail: "admin@school.com", PIN: "1234"})
	require.NoError(t, err)

	svc.now = func() time.Time { return issued.Add(2 * time.Hour) }
	_, err = svc.ValidateToken(resp.Token)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)

	_, err = svc.ValidateToken("not-a-token")
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}
