package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civitasfix/civitasfix-api/internal/dto"
	"github.com/civitasfix/civitasfix-api/internal/models"
	appErrors "github.com/civitasfix/civitasfix-api/pkg/errors"
)

type fakeReportLister struct {
	reports    []models.Report
	lastFilter models.ReportFilter
}

func (f *fakeReportLister) ListAll(_ context.Context, filter models.ReportFilter) ([]models.Report, error) {
	f.lastFilter = filter
	return f.reports, nil
}

func exportFixture() (*ExportService, *fakeReportLister) {
	lister := &fakeReportLister{reports: []models.Report{{
		ID:        "r1",
		Title:     "Broken chair",
		Location:  "Room 101",
		Category:  models.CategoryFurniture,
		Priority:  models.PriorityHigh,
		Status:    models.ReportStatusConfirmed,
		CreatedAt: time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC),
		User:      &models.UserSummary{Name: "Siti"},
		Repairs:   []models.Repair{{Lecturer: &models.UserSummary{Name: "Dosen"}}},
	}}}
	svc := NewExportService(lister, nil)
	svc.now = func() time.Time { return time.Date(2024, 5, 2, 9, 30, 0, 0, time.UTC) }
	return svc, lister
}

func TestExportServiceCSV(t *testing.T) {
	svc, lister := exportFixture()

	file, err := svc.Reports(context.Background(), &models.Principal{ID: "s1", Role: models.RoleStudent}, dto.ReportQuery{Format: "csv", Status: models.ReportStatusConfirmed})
	require.NoError(t, err)
	assert.Equal(t, "reports-20240502-093000.csv", file.Filename)
	assert.Equal(t, "text/csv; charset=utf-8", file.ContentType)
	assert.Equal(t, "s1", lister.lastFilter.OwnerID)
	assert.Equal(t, models.ReportStatusConfirmed, lister.lastFilter.Status)

	content := string(file.Content)
	assert.True(t, strings.HasPrefix(content, "ID,Title,Location"))
	assert.Contains(t, content, "Broken chair")
	assert.Contains(t, content, "Dosen")
}

func TestExportServicePDF(t *testing.T) {
	svc, lister := exportFixture()

	file, err := svc.Reports(context.Background(), &models.Principal{ID: "a1", Role: models.RoleAdmin}, dto.ReportQuery{Format: "PDF"})
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", file.ContentType)
	assert.True(t, strings.HasPrefix(string(file.Content), "%PDF"))
	assert.Empty(t, lister.lastFilter.OwnerID)
}

func TestExportServiceXLSX(t *testing.T) {
	svc, _ := exportFixture()

	file, err := svc.Reports(context.Background(), &models.Principal{ID: "a1", Role: models.RoleAdmin}, dto.ReportQuery{Format: "xlsx"})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(file.Filename, ".xlsx"))
	assert.True(t, strings.HasPrefix(string(file.Content), "PK"))
}

func TestExportServiceRejectsUnknownFormat(t *testing.T) {
	svc, _ := exportFixture()

	_, err := svc.Reports(context.Background(), &models.Principal{ID: "a1", Role: models.RoleAdmin}, dto.ReportQuery{Format: "docx"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}
