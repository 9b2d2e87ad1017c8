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

type enrollmentService interface {
	Enroll(ctx context.Context, actor authz.Actor, activityID string, req dto.EnrollRequest) (*models.Enrollment, error)
	Accept(ctx context.Context, actor authz.Actor, enrollmentID string, req dto.AcceptEnrollmentRequest) (*models.Enrollment, error)
	BulkAccept(ctx context.Context, actor authz.Actor, activityID string, req dto.BulkAcceptRequest) (*dto.BulkAcceptResult, error)
	Reject(ctx context.Context, actor authz.Actor, enrollmentID string, req dto.RejectEnrollmentRequest) (*models.Enrollment, error)
	BulkReject(ctx context.Context, actor authz.Actor, req dto.BulkRejectRequest) (*models.BulkResult, error)
	Cancel(ctx context.Context, actor authz.Actor, enrollmentID string) (*dto.CancelEnrollmentResult, error)
	Get(ctx context.Context, actor authz.Actor, enrollmentID string) (*models.Enrollment, error)
	List(ctx context.Context, actor authz.Actor, activityID string, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error)
	ListMine(ctx context.Context, actor authz.Actor, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error)
}

// EnrollmentHandler exposes enrollment endpoints.
type EnrollmentHandler struct {
	enrollments enrollmentService
}

// NewEnrollmentHandler constructs EnrollmentHandler.
func NewEnrollmentHandler(enrollments enrollmentService) *EnrollmentHandler {
	return &EnrollmentHandler{enrollments: enrollments}
}

func enrollmentFilter(c *gin.Context) models.EnrollmentFilter {
	filter := models.EnrollmentFilter{
		Status:    models.EnrollmentStatus(strings.ToUpper(c.Query("status"))),
		SortBy:    c.Query("sort"),
		SortOrder: c.Query("order"),
	}
	filter.Page, filter.PageSize = pageParams(c)
	return filter
}

// List godoc
// @Summary List enrollments of an activity
// @Tags Enrollments
// @Produce json
// @Param id path string true "Activity ID"
// @Param status query string false "Filter by status"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /activities/{id}/enrollments [get]
func (h *EnrollmentHandler) List(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	enrollments, pagination, err := h.enrollments.List(c.Request.Context(), actor, c.Param("id"), enrollmentFilter(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollments, pagination)
}

// Mine godoc
// @Summary List the caller's enrollments
// @Tags Enrollments
// @Produce json
// @Param activity_id query string false "Filter by activity"
// @Param status query string false "Filter by status"
// @Success 200 {object} response.Envelope
// @Router /enrollments/me [get]
func (h *EnrollmentHandler) Mine(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	filter := enrollmentFilter(c)
	filter.ActivityID = c.Query("activity_id")
	enrollments, pagination, err := h.enrollments.ListMine(c.Request.Context(), actor, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollments, pagination)
}

// Get godoc
// @Summary Get enrollment
// @Tags Enrollments
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id} [get]
func (h *EnrollmentHandler) Get(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	enrollment, err := h.enrollments.Get(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment, nil)
}

// Enroll godoc
// @Summary Apply to an activity
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param id path string true "Activity ID"
// @Param payload body dto.EnrollRequest true "Application"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /activities/{id}/enrollments [post]
func (h *EnrollmentHandler) Enroll(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req dto.EnrollRequest
	if !bindJSON(c, &req) {
		return
	}
	enrollment, err := h.enrollments.Enroll(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, enrollment)
}

// Accept godoc
// @Summary Confirm an enrollment
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param id path string true "Enrollment ID"
// @Param payload body dto.AcceptEnrollmentRequest false "Optional message"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /enrollments/{id}/accept [post]
func (h *EnrollmentHandler) Accept(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req dto.AcceptEnrollmentRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}
	enrollment, err := h.enrollments.Accept(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment, nil)
}

// BulkAccept godoc
// @Summary Confirm several enrollments of an activity
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param id path string true "Activity ID"
// @Param payload body dto.BulkAcceptRequest true "Enrollment ids"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /activities/{id}/enrollments/bulk-accept [post]
func (h *EnrollmentHandler) BulkAccept(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req dto.BulkAcceptRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := h.enrollments.BulkAccept(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Reject godoc
// @Summary Reject an enrollment or move it to the waitlist
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param id path string true "Enrollment ID"
// @Param payload body dto.RejectEnrollmentRequest true "Reason"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/reject [post]
func (h *EnrollmentHandler) Reject(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req dto.RejectEnrollmentRequest
	if !bindJSON(c, &req) {
		return
	}
	enrollment, err := h.enrollments.Reject(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment, nil)
}

// BulkReject godoc
// @Summary Reject several enrollments
// @Description Each id is processed independently; failures are reported per item.
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param payload body dto.BulkRejectRequest true "Enrollment ids and reason"
// @Success 200 {object} response.Envelope
// @Router /enrollments/bulk-reject [post]
func (h *EnrollmentHandler) BulkReject(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req dto.BulkRejectRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := h.enrollments.BulkReject(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Cancel godoc
// @Summary Withdraw a confirmed enrollment
// @Tags Enrollments
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/cancel [post]
func (h *EnrollmentHandler) Cancel(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	result, err := h.enrollments.Cancel(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
