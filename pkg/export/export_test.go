package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func attendanceSheet() Dataset {
	return Dataset{
		Title:   "Beach cleanup - 2024-05-04",
		Summary: []string{"Present: 2"},
		Headers: []string{"subject_id", "method", "hours"},
		Rows: []map[string]string{
			{"subject_id": "stu-1", "method": "QR", "hours": "1.50"},
			{"subject_id": "stu-2", "hours": "1.50", "method": "MANUAL"},
		},
	}
}

func TestCSVExporterOrdersColumnsByHeader(t *testing.T) {
	out, err := NewCSVExporter().Render(attendanceSheet())
	require.NoError(t, err)
	assert.Equal(t, "subject_id,method,hours\nstu-1,QR,1.50\nstu-2,MANUAL,1.50\n", string(out))
}

func TestCSVExporterRequiresHeaders(t *testing.T) {
	_, err := NewCSVExporter().Render(Dataset{})
	assert.Error(t, err)
}

func TestPDFExporterProducesDocument(t *testing.T) {
	out, err := NewPDFExporter().Render(attendanceSheet())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")))
}
