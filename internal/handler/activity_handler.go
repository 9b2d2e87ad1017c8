package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/volunteer-hours-api/internal/authz"
	"github.com/noah-isme/volunteer-hours-api/internal/dto"
	"github.com/noah-isme/volunteer-hours-api/internal/models"
	"github.com/noah-isme/volunteer-hours-api/pkg/response"
)

type activityService interface {
	List(ctx context.Context, filter models.ActivityFilter) ([]models.Activity, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.Activity, error)
	Create(ctx context.Context, actor authz.Actor, req dto.CreateActivityRequest) (*models.Activity, error)
	Update(ctx context.Context, actor authz.Actor, id string, req dto.UpdateActivityRequest) (*models.Activity, error)
	ChangeStatus(ctx context.Context, actor authz.Actor, id string, req dto.ChangeActivityStatusRequest) (*models.Activity, error)
	Delete(ctx context.Context, actor authz.Actor, id string) error
}

// ActivityHandler exposes activity endpoints.
type ActivityHandler struct {
	activities activityService
}

// NewActivityHandler constructs ActivityHandler.
func NewActivityHandler(activities activityService) *ActivityHandler {
	return &ActivityHandler{activities: activities}
}

// List godoc
// @Summary List activities
// @Tags Activities
// @Produce json
// @Param status query string false "DRAFT, OPEN or CLOSED"
// @Param coordinator_id query string false "Filter by coordinator"
// @Param search query string false "Title search"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /activities [get]
func (h *ActivityHandler) List(c *gin.Context) {
	filter := models.ActivityFilter{
		Status:        models.ActivityStatus(strings.ToUpper(c.Query("status"))),
		CoordinatorID: c.Query("coordinator_id"),
		Search:        c.Query("search"),
		SortBy:        c.Query("sort"),
		SortOrder:     c.Query("order"),
	}
	filter.Page, filter.PageSize = pageParams(c)

	activities, pagination, err := h.activities.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, activities, pagination)
}

// Get godoc
// @Summary Get activity
// @Tags Activities
// @Produce json
// @Param id path string true "Activity ID"
// @Success 200 {object} response.Envelope
// @Router /activities/{id} [get]
func (h *ActivityHandler) Get(c *gin.Context) {
	activity, err := h.activities.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, activity, nil)
}

// Create godoc
// @Summary Create activity
// @Tags Activities
// @Accept json
// @Produce json
// @Param payload body dto.CreateActivityRequest true "Activity payload"
// @Success 201 {object} response.Envelope
// @Router /activities [post]
func (h *ActivityHandler) Create(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req dto.CreateActivityRequest
	if !bindJSON(c, &req) {
		return
	}
	activity, err := h.activities.Create(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, activity)
}

// Update godoc
// @Summary Update activity
// @Tags Activities
// @Accept json
// @Produce json
// @Param id path string true "Activity ID"
// @Param payload body dto.UpdateActivityRequest true "Fields to change"
// @Success 200 {object} response.Envelope
// @Router /activities/{id} [put]
func (h *ActivityHandler) Update(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req dto.UpdateActivityRequest
	if !bindJSON(c, &req) {
		return
	}
	activity, err := h.activities.Update(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, activity, nil)
}

// ChangeStatus godoc
// @Summary Open, close or reopen an activity
// @Tags Activities
// @Accept json
// @Produce json
// @Param id path string true "Activity ID"
// @Param payload body dto.ChangeActivityStatusRequest true "Target status"
// @Success 200 {object} response.Envelope
// @Router /activities/{id}/status [post]
func (h *ActivityHandler) ChangeStatus(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req dto.ChangeActivityStatusRequest
	if !bindJSON(c, &req) {
		return
	}
	req.Status = strings.ToUpper(strings.TrimSpace(req.Status))
	activity, err := h.activities.ChangeStatus(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, activity, nil)
}

// Delete godoc
// @Summary Delete activity
// @Tags Activities
// @Param id path string true "Activity ID"
// @Success 204
// @Router /activities/{id} [delete]
func (h *ActivityHandler) Delete(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	if err := h.activities.Delete(c.Request.Context(), actor, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
