package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-teacher-attendance/internal/middleware"
	"github.com/noah-isme/sma-teacher-attendance/internal/models"
	"github.com/noah-isme/sma-teacher-attendance/internal/service"
	appErrors "github.com/noah-isme/sma-teacher-attendance/pkg/errors"
)

type fakeAttendanceSrv struct {
	views      []models.AttendanceRecordView
	lastDate   string
	day        *models.AttendanceDay
	teacher    *models.Teacher
	teacherErr error
	record     *models.AttendanceRecord
	writeErr   error
	checkedIn  string
	lastMark   service.MarkAttendanceRequest
	lastEdit   service.EditAttendanceRequest
	lastRecord string
	lastActor  service.Actor
	stats      *models.TodayStats
	statsHit   bool
}

func (f *fakeAttendanceSrv) Today(context.Context) ([]models.AttendanceRecordView, error) {
	return f.views, nil
}

func (f *fakeAttendanceSrv) ByDate(_ context.Context, date string) ([]models.AttendanceRecordView, error) {
	f.lastDate = date
	if date == "bad" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "date must be formatted as YYYY-MM-DD")
	}
	return f.views, nil
}

func (f *fakeAttendanceSrv) Day(_ context.Context, teacherID, date string) (*models.AttendanceDay, error) {
	if f.day == nil {
		return &models.AttendanceDay{TeacherID: teacherID, Date: date}, nil
	}
	return f.day, nil
}

func (f *fakeAttendanceSrv) TeacherForUser(context.Context, string) (*models.Teacher, error) {
	return f.teacher, f.teacherErr
}

func (f *fakeAttendanceSrv) CheckIn(_ context.Context, teacherID string) (*models.AttendanceRecord, error) {
	f.checkedIn = teacherID
	return f.record, f.writeErr
}

func (f *fakeAttendanceSrv) CheckOut(_ context.Context, teacherID string) (*models.AttendanceRecord, error) {
	f.checkedIn = teacherID
	return f.record, f.writeErr
}

func (f *fakeAttendanceSrv) Mark(_ context.Context, req service.MarkAttendanceRequest, actor service.Actor) (*models.AttendanceRecord, error) {
	f.lastMark = req
	f.lastActor = actor
	return f.record, f.writeErr
}

func (f *fakeAttendanceSrv) Edit(_ context.Context, recordID string, req service.EditAttendanceRequest, actor service.Actor) (*models.AttendanceRecord, error) {
	f.lastRecord = recordID
	f.lastEdit = req
	f.lastActor = actor
	return f.record, f.writeErr
}

func (f *fakeAttendanceSrv) TodayStats(context.Context) (*models.TodayStats, bool, error) {
	return f.stats, f.statsHit, nil
}

func TestAttendanceHandlerCheckInUsesTeacherProfile(t *testing.T) {
	timeIn := "09:20"
	srv := &fakeAttendanceSrv{
		teacher: &models.Teacher{ID: "t1"},
		record:  &models.AttendanceRecord{ID: "r1", TeacherID: "t1", Status: models.AttendanceStatusPresent, TimeIn: &timeIn, LateMinutes: 5},
	}
	handler := NewAttendanceHandler(srv)

	c, w := newGinContext(http.MethodPost, "/attendance/check-in", nil)
	asUser(c, "u1", models.RoleTeacher)
	handler.CheckIn(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "t1", srv.checkedIn)
	var record models.AttendanceRecord
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &record))
	assert.Equal(t, 5, record.LateMinutes)
}

func TestAttendanceHandlerCheckInConflict(t *testing.T) {
	srv := &fakeAttendanceSrv{teacher: &models.Teacher{ID: "t1"}, writeErr: appErrors.ErrAlreadyCheckedIn}
	handler := NewAttendanceHandler(srv)

	c, w := newGinContext(http.MethodPost, "/attendance/check-in", nil)
	asUser(c, "u1", models.RoleTeacher)
	handler.CheckIn(c)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, appErrors.ErrAlreadyCheckedIn.Code, decodeEnvelope(t, w).Error.Code)
}

func TestAttendanceHandlerCheckOutWithoutProfile(t *testing.T) {
	srv := &fakeAttendanceSrv{teacherErr: appErrors.Clone(appErrors.ErrNotFound, "teacher profile not found")}
	handler := NewAttendanceHandler(srv)

	c, w := newGinContext(http.MethodPost, "/attendance/check-out", nil)
	asUser(c, "u9", models.RoleTeacher)
	handler.CheckOut(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Empty(t, srv.checkedIn)
}

func TestAttendanceHandlerCheckInRequiresClaims(t *testing.T) {
	handler := NewAttendanceHandler(&fakeAttendanceSrv{})

	c, w := newGinContext(http.MethodPost, "/attendance/check-in", nil)
	handler.CheckIn(c)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAttendanceHandlerMark(t *testing.T) {
	srv := &fakeAttendanceSrv{record: &models.AttendanceRecord{ID: "r1", Status: models.AttendanceStatusLeave}}
	handler := NewAttendanceHandler(srv)

	body := []byte(`{"teacher_id":"t2","date":"2024-03-04","status":"LEAVE","notes":"medical"}`)
	c, w := newGinContext(http.MethodPost, "/attendance/mark", body)
	asUser(c, "admin-1", models.RoleAdmin)
	handler.Mark(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "t2", srv.lastMark.TeacherID)
	assert.Equal(t, models.AttendanceStatusLeave, srv.lastMark.Status)
	require.NotNil(t, srv.lastMark.Notes)
	assert.Equal(t, "admin-1", srv.lastActor.UserID)
}

func TestAttendanceHandlerMarkRejectsMalformedJSON(t *testing.T) {
	handler := NewAttendanceHandler(&fakeAttendanceSrv{})

	c, w := newGinContext(http.MethodPost, "/attendance/mark", []byte(`{"teacher_id":`))
	asUser(c, "admin-1", models.RoleAdmin)
	handler.Mark(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAttendanceHandlerEdit(t *testing.T) {
	srv := &fakeAttendanceSrv{record: &models.AttendanceRecord{ID: "r1"}}
	handler := NewAttendanceHandler(srv)

	body := []byte(`{"status":"PRESENT","time_in":"09:00","time_out":"17:00","edit_reason":"forgot to check out"}`)
	c, w := newGinContext(http.MethodPut, "/attendance/r1", body)
	c.Params = gin.Params{{Key: "recordId", Value: "r1"}}
	asUser(c, "admin-1", models.RoleAdmin)
	handler.Edit(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "r1", srv.lastRecord)
	assert.Equal(t, "forgot to check out", srv.lastEdit.EditReason)
	require.NotNil(t, srv.lastEdit.TimeOut)
	assert.Equal(t, "17:00", *srv.lastEdit.TimeOut)
}

func TestAttendanceHandlerEditNotFound(t *testing.T) {
	srv := &fakeAttendanceSrv{writeErr: appErrors.Wrap(sql.ErrNoRows, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "attendance record not found")}
	handler := NewAttendanceHandler(srv)

	c, w := newGinContext(http.MethodPut, "/attendance/missing", []byte(`{"status":"ABSENT","edit_reason":"x"}`))
	c.Params = gin.Params{{Key: "recordId", Value: "missing"}}
	asUser(c, "admin-1", models.RoleAdmin)
	handler.Edit(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAttendanceHandlerByDate(t *testing.T) {
	srv := &fakeAttendanceSrv{views: []models.AttendanceRecordView{{TeacherName: "Alice"}, {TeacherName: "Bob"}}}
	handler := NewAttendanceHandler(srv)

	c, w := newGinContext(http.MethodGet, "/attendance/date/2024-03-04", nil)
	c.Params = gin.Params{{Key: "date", Value: "2024-03-04"}}
	handler.ByDate(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2024-03-04", srv.lastDate)
	var views []models.AttendanceRecordView
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &views))
	assert.Len(t, views, 2)

	c, w = newGinContext(http.MethodGet, "/attendance/date/bad", nil)
	c.Params = gin.Params{{Key: "date", Value: "bad"}}
	handler.ByDate(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAttendanceHandlerDayNotMarked(t *testing.T) {
	handler := NewAttendanceHandler(&fakeAttendanceSrv{})

	c, w := newGinContext(http.MethodGet, "/attendance/teachers/t3/days/2024-03-04", nil)
	c.Params = gin.Params{{Key: "id", Value: "t3"}, {Key: "date", Value: "2024-03-04"}}
	handler.Day(c)

	require.Equal(t, http.StatusOK, w.Code)
	var day dayResponse
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &day))
	assert.Equal(t, models.AttendanceStatusNotMarked, day.Status)
	assert.False(t, day.Marked)
	assert.Nil(t, day.Record)
}

func TestAttendanceHandlerDayRejectsBadDate(t *testing.T) {
	handler := NewAttendanceHandler(&fakeAttendanceSrv{})

	c, w := newGinContext(http.MethodGet, "/attendance/teachers/t3/days/04-03-2024", nil)
	c.Params = gin.Params{{Key: "id", Value: "t3"}, {Key: "date", Value: "04-03-2024"}}
	handler.Day(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAttendanceHandlerTodayStatsReportsCacheHit(t *testing.T) {
	srv := &fakeAttendanceSrv{
		stats:    &models.TodayStats{Date: "2024-03-04", TotalTeachers: 3, Present: 1, NotMarked: 2},
		statsHit: true,
	}
	handler := NewAttendanceHandler(srv)

	c, w := newGinContext(http.MethodGet, "/attendance/stats/today", nil)
	handler.TodayStats(c)

	require.Equal(t, http.StatusOK, w.Code)
	env := decodeEnvelope(t, w)
	assert.Equal(t, true, env.Meta["cache_hit"])
	var stats models.TodayStats
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.Equal(t, 2, stats.NotMarked)
	assert.NotNil(t, middleware.ExtractMeta(c))
	assert.NotContains(t, env.Meta, "processing_time_ms")
}
