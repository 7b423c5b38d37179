package handler

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-teacher-attendance/internal/middleware"
	"github.com/noah-isme/sma-teacher-attendance/internal/models"
	"github.com/noah-isme/sma-teacher-attendance/internal/service"
	appErrors "github.com/noah-isme/sma-teacher-attendance/pkg/errors"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	claims, ok := middleware.CurrentClaims(c)
	if !ok {
		return nil
	}
	return claims
}

// actorFromContext describes the caller for audit entries.
func actorFromContext(c *gin.Context) service.Actor {
	actor := service.Actor{IP: c.ClientIP(), UserAgent: c.GetHeader("User-Agent")}
	if claims := claimsFromContext(c); claims != nil {
		actor.UserID = claims.UserID
	}
	return actor
}

func queryInt(c *gin.Context, key string, fallback int) int {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func validDate(value string) bool {
	_, err := time.Parse("2006-01-02", value)
	return err == nil
}

// parseAttendanceFilter reads the report query parameters. Dates are checked
// here so malformed values fail before reaching the database.
func parseAttendanceFilter(c *gin.Context) (models.AttendanceFilter, error) {
	filter := models.AttendanceFilter{
		StartDate:  strings.TrimSpace(c.Query("start_date")),
		EndDate:    strings.TrimSpace(c.Query("end_date")),
		TeacherID:  strings.TrimSpace(c.Query("teacher_id")),
		Department: strings.TrimSpace(c.Query("department")),
		Page:       queryInt(c, "page", 1),
		PageSize:   queryInt(c, "limit", 0),
	}
	for _, date := range []string{filter.StartDate, filter.EndDate} {
		if date != "" && !validDate(date) {
			return filter, appErrors.Clone(appErrors.ErrValidation, "dates must be formatted as YYYY-MM-DD")
		}
	}
	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		status := models.AttendanceStatus(strings.ToUpper(raw))
		if !status.Valid() {
			return filter, appErrors.Clone(appErrors.ErrValidation, "invalid status")
		}
		filter.Status = &status
	}
	return filter, nil
}
