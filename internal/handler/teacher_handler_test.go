package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-teacher-attendance/internal/models"
	"github.com/noah-isme/sma-teacher-attendance/internal/service"
	appErrors "github.com/noah-isme/sma-teacher-attendance/pkg/errors"
)

type fakeTeacherSrv struct {
	lastFilter  models.TeacherFilter
	created     service.CreateTeacherRequest
	updated     service.UpdateTeacherRequest
	deactivated string
	actor       service.Actor
	err         error
}

func (f *fakeTeacherSrv) List(_ context.Context, filter models.TeacherFilter) ([]models.Teacher, *models.Pagination, error) {
	f.lastFilter = filter
	return []models.Teacher{{ID: "t1", Name: "Alice"}}, &models.Pagination{Page: 1, PageSize: 100, TotalCount: 1}, f.err
}

func (f *fakeTeacherSrv) Get(_ context.Context, id string) (*models.Teacher, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.Teacher{ID: id}, nil
}

func (f *fakeTeacherSrv) Create(_ context.Context, req service.CreateTeacherRequest) (*models.Teacher, error) {
	f.created = req
	return &models.Teacher{ID: "t9", Name: req.Name, Active: true}, f.err
}

func (f *fakeTeacherSrv) Update(_ context.Context, id string, req service.UpdateTeacherRequest) (*models.Teacher, error) {
	f.updated = req
	return &models.Teacher{ID: id}, f.err
}

func (f *fakeTeacherSrv) Deactivate(_ context.Context, id string, actor service.Actor) error {
	f.deactivated = id
	f.actor = actor
	return f.err
}

func TestTeacherHandlerListFilters(t *testing.T) {
	srv := &fakeTeacherSrv{}
	handler := NewTeacherHandler(srv)

	c, w := newGinContext(http.MethodGet, "/teachers?search=ali&department=Science&active=false&page=2&limit=5", nil)
	handler.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ali", srv.lastFilter.Search)
	assert.Equal(t, "Science", srv.lastFilter.Department)
	require.NotNil(t, srv.lastFilter.Active)
	assert.False(t, *srv.lastFilter.Active)
	assert.Equal(t, 2, srv.lastFilter.Page)
	assert.Equal(t, 5, srv.lastFilter.PageSize)
}

func TestTeacherHandlerListDefaultsActiveToService(t *testing.T) {
	srv := &fakeTeacherSrv{}
	handler := NewTeacherHandler(srv)

	c, _ := newGinContext(http.MethodGet, "/teachers", nil)
	handler.List(c)

	assert.Nil(t, srv.lastFilter.Active)
	assert.Equal(t, 1, srv.lastFilter.Page)
}

func TestTeacherHandlerCreate(t *testing.T) {
	srv := &fakeTeacherSrv{}
	handler := NewTeacherHandler(srv)

	c, w := newGinContext(http.MethodPost, "/teachers", []byte(`{"name":"Eve","department":"Science","subject":"Biology"}`))
	handler.Create(c)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "Biology", srv.created.Subject)
}

func TestTeacherHandlerUpdateValidationError(t *testing.T) {
	handler := NewTeacherHandler(&fakeTeacherSrv{err: appErrors.Clone(appErrors.ErrValidation, "name cannot be blank")})

	c, w := newGinContext(http.MethodPut, "/teachers/t1", []byte(`{"name":"  "}`))
	c.Params = gin.Params{{Key: "id", Value: "t1"}}
	handler.Update(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTeacherHandlerGetNotFound(t *testing.T) {
	handler := NewTeacherHandler(&fakeTeacherSrv{err: appErrors.Clone(appErrors.ErrNotFound, "teacher not found")})

	c, w := newGinContext(http.MethodGet, "/teachers/missing", nil)
	c.Params = gin.Params{{Key: "id", Value: "missing"}}
	handler.Get(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTeacherHandlerDelete(t *testing.T) {
	srv := &fakeTeacherSrv{}
	handler := NewTeacherHandler(srv)

	c, w := newGinContext(http.MethodDelete, "/teachers/t1", nil)
	c.Params = gin.Params{{Key: "id", Value: "t1"}}
	asUser(c, "admin-1", models.RoleAdmin)
	handler.Delete(c)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "t1", srv.deactivated)
	assert.Equal(t, "admin-1", srv.actor.UserID)
}
