package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-teacher-attendance/internal/models"
	"github.com/noah-isme/sma-teacher-attendance/internal/service"
	appErrors "github.com/noah-isme/sma-teacher-attendance/pkg/errors"
	"github.com/noah-isme/sma-teacher-attendance/pkg/response"
)

type policyService interface {
	Current(ctx context.Context) (*models.AttendancePolicy, error)
	Update(ctx context.Context, req service.UpdatePolicyRequest, actor service.Actor) (*models.AttendancePolicy, error)
}

// SettingsHandler exposes the school-hours policy.
type SettingsHandler struct {
	policies policyService
}

// NewSettingsHandler constructs the handler.
func NewSettingsHandler(policies policyService) *SettingsHandler {
	return &SettingsHandler{policies: policies}
}

// Get godoc
// @Summary Get attendance settings
// @Tags Settings
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /settings [get]
func (h *SettingsHandler) Get(c *gin.Context) {
	policy, err := h.policies.Current(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, policy, nil)
}

// Update godoc
// @Summary Update attendance settings
// @Description Partial update; stored records keep their metrics. The timezone decides "today" and check-in times from the next request on
// @Tags Settings
// @Accept json
// @Produce json
// @Param payload body service.UpdatePolicyRequest true "Settings payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /settings [put]
func (h *SettingsHandler) Update(c *gin.Context) {
	var req service.UpdatePolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid settings payload"))
		return
	}
	policy, err := h.policies.Update(c.Request.Context(), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, policy, nil)
}
