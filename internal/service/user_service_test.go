package service

import (
	"context"
	"database/sql"
	"strings"
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

type mockUserRepo struct {
	users     map[string]*models.User
	lastList  models.UserFilter
	auditLogs []*models.AuditLog
	pinHashes map[string]string
}

func newMockUserRepo(users ...models.User) *mockUserRepo {
	repo := &mockUserRepo{users: map[string]*models.User{}, pinHashes: map[string]string{}}
	for i := range users {
		u := users[i]
		repo.users[u.ID] = &u
	}
	return repo
}

func (m *mockUserRepo) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	m.lastList = filter
	var users []models.User
	for _, u := range m.users {
		users = append(users, *u)
	}
	return users, len(users), nil
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if user, ok := m.users[id]; ok {
		cp := *user
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) FindByPhoneOrEmail(ctx context.Context, identifier string) (*models.User, error) {
	for _, u := range m.users {
		if strings.EqualFold(u.PhoneOrEmail, identifier) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) Create(ctx context.Context, user *models.User) error {
	user.ID = "u-new"
	cp := *user
	m.users[user.ID] = &cp
	return nil
}

func (m *mockUserRepo) Update(ctx context.Context, user *models.User) error {
	cp := *user
	m.users[user.ID] = &cp
	return nil
}

func (m *mockUserRepo) UpdatePin(ctx context.Context, id, pinHash string, updatedAt time.Time) error {
	m.pinHashes[id] = pinHash
	return nil
}

func (m *mockUserRepo) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.auditLogs = append(m.auditLogs, log)
	return nil
}

func newTestUserService(repo *mockUserRepo) *UserService {
	return NewUserService(repo, validator.New(), zap.NewNop())
}

func TestUserServiceCreate(t *testing.T) {
	repo := newMockUserRepo()
	svc := newTestUserService(repo)

	user, err := svc.Create(context.Background(), CreateUserRequest{
		Name:         " Alice ",
		PhoneOrEmail: "Alice@School.com",
		Role:         models.RoleTeacher,
		PIN:          "2468",
	}, Actor{UserID: "admin-1"})
	require.NoError(t, err)
	assert.Equal(t, "Alice", user.Name)
	assert.Equal(t, "alice@school.com", user.PhoneOrEmail)
	assert.True(t, user.Active)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PinHash), []byte("2468")))
	require.Len(t, repo.auditLogs, 1)
	assert.Equal(t, models.AuditActionUserCreate, repo.auditLogs[0].Action)
	assert.Nil(t, repo.auditLogs[0].OldValues)
}

func TestUserServiceCreateDuplicateLogin(t *testing.T) {
	repo := newMockUserRepo(models.User{ID: "u1", PhoneOrEmail: "alice@school.com"})
	svc := newTestUserService(repo)

	_, err := svc.Create(context.Background(), CreateUserRequest{Name: "A", PhoneOrEmail: "ALICE@school.com", Role: models.RoleTeacher, PIN: "1234"}, Actor{})
	assert.ErrorIs(t, err, appErrors.ErrConflict)
}

func TestUserServiceCreateValidation(t *testing.T) {
	svc := newTestUserService(newMockUserRepo())

	cases := []CreateUserRequest{
		{Name: "A", PhoneOrEmail: "a@b.c", Role: models.RoleTeacher, PIN: "12"},
		{Name: "A", PhoneOrEmail: "a@b.c", Role: models.RoleTeacher, PIN: "12ab"},
		{Name: "A", PhoneOrEmail: "a@b.c", Role: "STUDENT", PIN: "1234"},
		{Name: "  ", PhoneOrEmail: "a@b.c", Role: models.RoleAdmin, PIN: "1234"},
	}
	for _, req := range cases {
		_, err := svc.Create(context.Background(), req, Actor{})
		assert.ErrorIs(t, err, appErrors.ErrValidation)
	}
}

func TestUserServiceUpdate(t *testing.T) {
	repo := newMockUserRepo(models.User{ID: "u1", Name: "Alice", Role: models.RoleTeacher, Active: true})
	svc := newTestUserService(repo)

	role := models.RoleAdmin
	active := false
	user, err := svc.Update(context.Background(), "u1", UpdateUserRequest{Role: &role, Active: &active}, Actor{UserID: "admin-1"})
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, user.Role)
	assert.False(t, user.Active)
	require.Len(t, repo.auditLogs, 1)
	assert.Contains(t, string(repo.auditLogs[0].OldValues), `"active":true`)
}

func TestUserServiceUpdateRejectsSelfDeactivation(t *testing.T) {
	repo := newMockUserRepo(models.User{ID: "admin-1", Name: "Admin", Role: models.RoleAdmin, Active: true})
	svc := newTestUserService(repo)

	active := false
	_, err := svc.Update(context.Background(), "admin-1", UpdateUserRequest{Active: &active}, Actor{UserID: "admin-1"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
	assert.True(t, repo.users["admin-1"].Active)
}

func TestUserServiceUpdateNotFound(t *testing.T) {
	svc := newTestUserService(newMockUserRepo())

	_, err := svc.Update(context.Background(), "missing", UpdateUserRequest{}, Actor{})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestUserServiceResetPin(t *testing.T) {
	repo := newMockUserRepo(models.User{ID: "u1", Name: "Alice", Role: models.RoleTeacher, Active: true})
	svc := newTestUserService(repo)

	require.NoError(t, svc.ResetPin(context.Background(), "u1", ResetPinRequest{PIN: "9999"}, Actor{UserID: "admin-1"}))
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.pinHashes["u1"]), []byte("9999")))
	require.Len(t, repo.auditLogs, 1)
	assert.Equal(t, models.AuditActionPinReset, repo.auditLogs[0].Action)

	err := svc.ResetPin(context.Background(), "u1", ResetPinRequest{PIN: "1"}, Actor{})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestUserServiceListDefaults(t *testing.T) {
	repo := newMockUserRepo(models.User{ID: "u1"})
	svc := newTestUserService(repo)

	_, pagination, err := svc.List(context.Background(), models.UserFilter{PageSize: 1000})
	require.NoError(t, err)
	assert.Equal(t, 50, repo.lastList.PageSize)
	assert.Equal(t, 1, pagination.Page)
	assert.Equal(t, 1, pagination.TotalCount)
}
