package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/volunteer-hours-api/internal/models"
	"github.com/noah-isme/volunteer-hours-api/pkg/response"
)

type hoursService interface {
	Summary(ctx context.Context, subjectID string) (*models.HoursSummary, error)
}

// HoursHandler exposes volunteer hour summaries.
type HoursHandler struct {
	hours hoursService
}

// NewHoursHandler constructs HoursHandler.
func NewHoursHandler(hours hoursService) *HoursHandler {
	return &HoursHandler{hours: hours}
}

// Mine godoc
// @Summary Credited volunteer hours of the caller
// @Tags Hours
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /me/hours [get]
func (h *HoursHandler) Mine(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	summary, err := h.hours.Summary(c.Request.Context(), actor.SubjectID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}
