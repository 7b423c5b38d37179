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

	"github.com/noah-isme/sma-teacher-attendance/internal/models"
	appErrors "github.com/noah-isme/sma-teacher-attendance/pkg/errors"
)

type mockTeacherRepo struct {
	items       map[string]*models.Teacher
	listResult  []models.Teacher
	listTotal   int
	listErr     error
	lastFilter  models.TeacherFilter
	deactivated []string
}

func newMockTeacherRepo(teachers ...models.Teacher) *mockTeacherRepo {
	repo := &mockTeacherRepo{items: map[string]*models.Teacher{}}
	for i := range teachers {
		t := teachers[i]
		repo.items[t.ID] = &t
	}
	return repo
}

func (m *mockTeacherRepo) List(ctx context.Context, filter models.TeacherFilter) ([]models.Teacher, int, error) {
	m.lastFilter = filter
	if m.listErr != nil {
		return nil, 0, m.listErr
	}
	return m.listResult, m.listTotal, nil
}

func (m *mockTeacherRepo) FindByID(ctx context.Context, id string) (*models.Teacher, error) {
	if teacher, ok := m.items[id]; ok {
		cp := *teacher
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockTeacherRepo) FindByUserID(ctx context.Context, userID string) (*models.Teacher, error) {
	for _, teacher := range m.items {
		if teacher.UserID != nil && *teacher.UserID == userID {
			cp := *teacher
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockTeacherRepo) CountActive(ctx context.Context) (int, error) {
	count := 0
	for _, teacher := range m.items {
		if teacher.Active {
			count++
		}
	}
	return count, nil
}

func (m *mockTeacherRepo) Create(ctx context.Context, teacher *models.Teacher) error {
	if teacher.ID == "" {
		teacher.ID = "generated"
	}
	now := time.Now()
	teacher.CreatedAt = now
	teacher.UpdatedAt = now
	cp := *teacher
	m.items[teacher.ID] = &cp
	return nil
}

func (m *mockTeacherRepo) Update(ctx context.Context, teacher *models.Teacher) error {
	if _, ok := m.items[teacher.ID]; !ok {
		return sql.ErrNoRows
	}
	cp := *teacher
	m.items[teacher.ID] = &cp
	return nil
}

func (m *mockTeacherRepo) Deactivate(ctx context.Context, id string) error {
	teacher, ok := m.items[id]
	if !ok {
		return sql.ErrNoRows
	}
	teacher.Active = false
	m.deactivated = append(m.deactivated, id)
	return nil
}

type mockAuditWriter struct {
	logs []models.AuditLog
}

func (m *mockAuditWriter) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.logs = append(m.logs, *log)
	return nil
}

func newTestTeacherService(repo *mockTeacherRepo, audit *mockAuditWriter) *TeacherService {
	return NewTeacherService(repo, audit, validator.New(), zap.NewNop())
}

func TestTeacherServiceListDefaultsToActive(t *testing.T) {
	repo := newMockTeacherRepo()
	repo.listResult = []models.Teacher{{ID: "t1", Name: "Alice"}}
	repo.listTotal = 1
	svc := newTestTeacherService(repo, nil)

	teachers, pagination, err := svc.List(context.Background(), models.TeacherFilter{Search: "  ali "})
	require.NoError(t, err)
	assert.Len(t, teachers, 1)
	require.NotNil(t, repo.lastFilter.Active)
	assert.True(t, *repo.lastFilter.Active)
	assert.Equal(t, "ali", repo.lastFilter.Search)
	assert.Equal(t, 1, pagination.Page)
	assert.Equal(t, 100, pagination.PageSize)
	assert.Equal(t, 1, pagination.TotalCount)
}

func TestTeacherServiceListError(t *testing.T) {
	repo := newMockTeacherRepo()
	repo.listErr = errors.New("boom")
	svc := newTestTeacherService(repo, nil)

	_, _, err := svc.List(context.Background(), models.TeacherFilter{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
}

func TestTeacherServiceCreate(t *testing.T) {
	repo := newMockTeacherRepo()
	svc := newTestTeacherService(repo, nil)

	teacher, err := svc.Create(context.Background(), CreateTeacherRequest{
		Name:       " Alice Smith ",
		Department: "Science",
		Subject:    "Physics",
		PhotoURL:   ptr("  "),
	})
	require.NoError(t, err)
	assert.Equal(t, "Alice Smith", teacher.Name)
	assert.True(t, teacher.Active)
	assert.Nil(t, teacher.PhotoURL)
	assert.Contains(t, repo.items, teacher.ID)
}

func TestTeacherServiceCreateValidation(t *testing.T) {
	svc := newTestTeacherService(newMockTeacherRepo(), nil)

	_, err := svc.Create(context.Background(), CreateTeacherRequest{Name: "Alice", Department: "Science"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestTeacherServiceCreateRejectsLinkedUser(t *testing.T) {
	repo := newMockTeacherRepo(models.Teacher{ID: "t1", UserID: ptr("u1"), Name: "Alice", Active: true})
	svc := newTestTeacherService(repo, nil)

	_, err := svc.Create(context.Background(), CreateTeacherRequest{Name: "Bob", Department: "Maths", Subject: "Algebra", UserID: ptr("u1")})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestTeacherServiceUpdatePartial(t *testing.T) {
	repo := newMockTeacherRepo(models.Teacher{ID: "t1", Name: "Alice", Department: "Science", Subject: "Physics", Active: true})
	svc := newTestTeacherService(repo, nil)

	teacher, err := svc.Update(context.Background(), "t1", UpdateTeacherRequest{Subject: ptr("Chemistry")})
	require.NoError(t, err)
	assert.Equal(t, "Alice", teacher.Name)
	assert.Equal(t, "Chemistry", repo.items["t1"].Subject)
}

func TestTeacherServiceUpdateRejectsBlankName(t *testing.T) {
	repo := newMockTeacherRepo(models.Teacher{ID: "t1", Name: "Alice", Department: "Science", Subject: "Physics", Active: true})
	svc := newTestTeacherService(repo, nil)

	_, err := svc.Update(context.Background(), "t1", UpdateTeacherRequest{Name: ptr("   ")})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestTeacherServiceGetNotFound(t *testing.T) {
	svc := newTestTeacherService(newMockTeacherRepo(), nil)

	_, err := svc.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestTeacherServiceDeactivate(t *testing.T) {
	repo := newMockTeacherRepo(models.Teacher{ID: "t1", Name: "Alice", Active: true})
	audit := &mockAuditWriter{}
	svc := newTestTeacherService(repo, audit)

	require.NoError(t, svc.Deactivate(context.Background(), "t1", Actor{UserID: "admin"}))
	assert.Equal(t, []string{"t1"}, repo.deactivated)
	assert.False(t, repo.items["t1"].Active)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionTeacherDeactivate, audit.logs[0].Action)
	assert.Equal(t, "admin", *audit.logs[0].UserID)

	err := svc.Deactivate(context.Background(), "missing", Actor{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
