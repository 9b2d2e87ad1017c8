package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/volunteer-hours-api/internal/authz"
	"github.com/noah-isme/volunteer-hours-api/internal/models"
	appErrors "github.com/noah-isme/volunteer-hours-api/pkg/errors"
	"github.com/noah-isme/volunteer-hours-api/pkg/export"
)

// Export formats.
const (
	ExportFormatCSV = "csv"
	ExportFormatPDF = "pdf"
)

type attendanceSheetSource interface {
	SessionAttendance(ctx context.Context, actor authz.Actor, sessionID string) (*models.Session, *models.Activity, []models.Attendance, error)
}

type datasetRenderer interface {
	Render(data export.Dataset) ([]byte, error)
	ContentType() string
	Extension() string
}

// ExportFile is a rendered download.
type ExportFile struct {
	Filename    string
	ContentType string
	Body        []byte
}

// ExportService renders session attendance sheets.
type ExportService struct {
	source    attendanceSheetSource
	renderers map[string]datasetRenderer
	location  *time.Location
	logger    *zap.Logger
}

// NewExportService constructs an ExportService with CSV and PDF renderers.
func NewExportService(source attendanceSheetSource, location *time.Location, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if location == nil {
		location = time.UTC
	}
	return &ExportService{
		source: source,
		renderers: map[string]datasetRenderer{
			ExportFormatCSV: export.NewCSVExporter(),
			ExportFormatPDF: export.NewPDFExporter(),
		},
		location: location,
		logger:   logger,
	}
}

// AttendanceSheet renders the attendance of a session in format.
func (s *ExportService) AttendanceSheet(ctx context.Context, actor authz.Actor, sessionID, format string) (*ExportFile, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = ExportFormatCSV
	}
	renderer, ok := s.renderers[format]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}

	session, activity, rows, err := s.source.SessionAttendance(ctx, actor, sessionID)
	if err != nil {
		return nil, err
	}
	data := s.dataset(session, activity, rows)
	body, err := renderer.Render(data)
	if err != nil {
		s.logger.Error("render attendance sheet", zap.String("session_id", sessionID), zap.String("format", format), zap.Error(err))
		return nil, appErrors.Internal(err, "failed to render attendance sheet")
	}
	return &ExportFile{
		Filename:    fmt.Sprintf("attendance-%s-%s.%s", session.Date.Format("20060102"), session.ID, renderer.Extension()),
		ContentType: renderer.ContentType(),
		Body:        body,
	}, nil
}

func (s *ExportService) dataset(session *models.Session, activity *models.Activity, rows []models.Attendance) export.Dataset {
	var total float64
	records := make([]map[string]string, 0, len(rows))
	for _, row := range rows {
		total += row.HoursCredited
		recordedBy := ""
		if row.RecordedBy != nil {
			recordedBy = *row.RecordedBy
		}
		records = append(records, map[string]string{
			"subject_id":    row.SubjectID,
			"enrollment_id": row.EnrollmentID,
			"method":        string(row.Method),
			"checked_in_at": row.CheckedInAt.In(s.location).Format(time.RFC3339),
			"hours":         strconv.FormatFloat(row.HoursCredited, 'f', 2, 64),
			"recorded_by":   recordedBy,
		})
	}
	return export.Dataset{
		Title: fmt.Sprintf("%s attendance", activity.Title),
		Summary: []string{
			fmt.Sprintf("Session: %s %s-%s", session.Date.Format("2006-01-02"), session.StartTime, session.EndTime),
			fmt.Sprintf("Location: %s", session.Location),
			fmt.Sprintf("Attendees: %d, hours credited: %.2f", len(rows), total),
		},
		Headers: []string{"subject_id", "enrollment_id", "method", "checked_in_at", "hours", "recorded_by"},
		Rows:    records,
	}
}
