package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/volunteer-hours-api/internal/authz"
	"github.com/noah-isme/volunteer-hours-api/internal/dto"
	"github.com/noah-isme/volunteer-hours-api/internal/models"
	"github.com/noah-isme/volunteer-hours-api/pkg/response"
)

type sessionService interface {
	Create(ctx context.Context, actor authz.Actor, activityID string, req dto.CreateSessionRequest) ([]models.Session, error)
	List(ctx context.Context, filter models.SessionFilter) ([]models.Session, error)
	Reschedule(ctx context.Context, actor authz.Actor, sessionID string, req dto.RescheduleSessionRequest) (*models.Session, error)
	Cancel(ctx context.Context, actor authz.Actor, sessionID string) (*models.Session, error)
	Delete(ctx context.Context, actor authz.Actor, sessionID string) error
}

// SessionHandler exposes session scheduling endpoints.
type SessionHandler struct {
	sessions sessionService
}

// NewSessionHandler constructs SessionHandler.
func NewSessionHandler(sessions sessionService) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// List godoc
// @Summary List sessions of an activity
// @Tags Sessions
// @Produce json
// @Param id path string true "Activity ID"
// @Param include_cancelled query bool false "Include cancelled sessions"
// @Success 200 {object} response.Envelope
// @Router /activities/{id}/sessions [get]
func (h *SessionHandler) List(c *gin.Context) {
	includeCancelled, _ := strconv.ParseBool(c.DefaultQuery("include_cancelled", "false"))
	sessions, err := h.sessions.List(c.Request.Context(), models.SessionFilter{
		ActivityID:       c.Param("id"),
		IncludeCancelled: includeCancelled,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sessions, nil)
}

// Create godoc
// @Summary Schedule a session or a weekly series
// @Tags Sessions
// @Accept json
// @Produce json
// @Param id path string true "Activity ID"
// @Param payload body dto.CreateSessionRequest true "Schedule"
// @Success 201 {object} response.Envelope
// @Router /activities/{id}/sessions [post]
func (h *SessionHandler) Create(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req dto.CreateSessionRequest
	if !bindJSON(c, &req) {
		return
	}
	sessions, err := h.sessions.Create(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, sessions)
}

// Reschedule godoc
// @Summary Move a session
// @Tags Sessions
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body dto.RescheduleSessionRequest true "New schedule"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id} [put]
func (h *SessionHandler) Reschedule(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req dto.RescheduleSessionRequest
	if !bindJSON(c, &req) {
		return
	}
	session, err := h.sessions.Reschedule(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}

// Cancel godoc
// @Summary Cancel a session
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/cancel [post]
func (h *SessionHandler) Cancel(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	session, err := h.sessions.Cancel(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}

// Delete godoc
// @Summary Delete a session
// @Tags Sessions
// @Param id path string true "Session ID"
// @Success 204
// @Router /sessions/{id} [delete]
func (h *SessionHandler) Delete(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	if err := h.sessions.Delete(c.Request.Context(), actor, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
