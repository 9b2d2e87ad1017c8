package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/volunteer-hours-api/internal/authz"
	"github.com/noah-isme/volunteer-hours-api/internal/dto"
	"github.com/noah-isme/volunteer-hours-api/internal/models"
	"github.com/noah-isme/volunteer-hours-api/internal/service"
	"github.com/noah-isme/volunteer-hours-api/pkg/response"
)

type checkInService interface {
	IssueToken(ctx context.Context, actor authz.Actor, sessionID string) (*dto.CheckInTokenResponse, error)
	CheckIn(ctx context.Context, actor authz.Actor, req dto.CheckInRequest) (*dto.CheckInResult, error)
	RecordManual(ctx context.Context, actor authz.Actor, sessionID string, req dto.ManualCheckInRequest) (*dto.CheckInResult, error)
	ListAttendance(ctx context.Context, actor authz.Actor, sessionID string) ([]models.Attendance, error)
}

type attendanceExporter interface {
	AttendanceSheet(ctx context.Context, actor authz.Actor, sessionID, format string) (*service.ExportFile, error)
}

// CheckInHandler exposes the QR check-in protocol and attendance endpoints.
type CheckInHandler struct {
	checkIns checkInService
	exporter attendanceExporter
}

// NewCheckInHandler constructs CheckInHandler.
func NewCheckInHandler(checkIns checkInService, exporter attendanceExporter) *CheckInHandler {
	return &CheckInHandler{checkIns: checkIns, exporter: exporter}
}

// IssueToken godoc
// @Summary Rotate the check-in token of a session
// @Description Invalidates the previously issued token. Clients poll this to refresh the QR code.
// @Tags Check-in
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/token [post]
func (h *CheckInHandler) IssueToken(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	token, err := h.checkIns.IssueToken(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, token, nil)
}

// CheckIn godoc
// @Summary Check in with a scanned token
// @Tags Check-in
// @Accept json
// @Produce json
// @Param payload body dto.CheckInRequest true "Scanned token"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 410 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /check-in [post]
func (h *CheckInHandler) CheckIn(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req dto.CheckInRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := h.checkIns.CheckIn(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// RecordManual godoc
// @Summary Record attendance on behalf of a volunteer
// @Tags Check-in
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body dto.ManualCheckInRequest true "Volunteer"
// @Success 201 {object} response.Envelope
// @Router /sessions/{id}/attendance [post]
func (h *CheckInHandler) RecordManual(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req dto.ManualCheckInRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := h.checkIns.RecordManual(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// ListAttendance godoc
// @Summary List the attendance of a session
// @Tags Check-in
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/attendance [get]
func (h *CheckInHandler) ListAttendance(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	rows, err := h.checkIns.ListAttendance(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, nil)
}

// Export godoc
// @Summary Download the attendance sheet of a session
// @Tags Check-in
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Session ID"
// @Param format query string false "csv or pdf"
// @Success 200 {file} file
// @Router /sessions/{id}/attendance/export [get]
func (h *CheckInHandler) Export(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	file, err := h.exporter.AttendanceSheet(c.Request.Context(), actor, c.Param("id"), c.DefaultQuery("format", service.ExportFormatCSV))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Body)
}
