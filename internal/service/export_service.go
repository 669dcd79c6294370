package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/civitasfix/civitasfix-api/internal/dto"
	"github.com/civitasfix/civitasfix-api/internal/models"
	appErrors "github.com/civitasfix/civitasfix-api/pkg/errors"
	"github.com/civitasfix/civitasfix-api/pkg/export"
)

var reportExportHeaders = []string{"ID", "Title", "Location", "Category", "Priority", "Status", "Reporter", "Lecturer", "Created At"}

type reportLister interface {
	ListAll(ctx context.Context, filter models.ReportFilter) ([]models.Report, error)
}

// ExportFile is a rendered export ready to stream.
type ExportFile struct {
	Filename    string
	ContentType string
	Content     []byte
}

// ExportService renders the caller's visible reports as CSV or PDF.
type ExportService struct {
	reports reportLister
	logger  *zap.Logger
	now     func() time.Time
}

// NewExportService constructs an ExportService.
func NewExportService(reports reportLister, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{reports: reports, logger: logger, now: time.Now}
}

// Reports renders every report matching query within the caller's scope.
func (s *ExportService) Reports(ctx context.Context, principal *models.Principal, query dto.ReportQuery) (*ExportFile, error) {
	format, err := export.ParseFormat(query.Format)
	if err != nil {
		return nil, appErrors.Validation(err.Error())
	}
	filter, err := buildFilter(principal, query)
	if err != nil {
		return nil, err
	}

	reports, err := s.reports.ListAll(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load reports for export")
	}

	now := s.now()
	dataset := export.Dataset{
		Title:   fmt.Sprintf("CivitasFix Reports %s", now.Format("2006-01-02")),
		Headers: reportExportHeaders,
		Rows:    make([]map[string]string, 0, len(reports)),
	}
	for _, report := range reports {
		dataset.Rows = append(dataset.Rows, reportRow(report))
	}

	content, err := export.Render(format, dataset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}
	s.logger.Info("reports exported", zap.String("format", string(format)), zap.Int("rows", len(reports)), zap.String("user_id", principal.ID))

	return &ExportFile{
		Filename:    fmt.Sprintf("reports-%s.%s", now.Format("20060102-150405"), format),
		ContentType: format.ContentType(),
		Content:     content,
	}, nil
}

func reportRow(report models.Report) map[string]string {
	reporter := ""
	if report.User != nil {
		reporter = report.User.Name
	}
	lecturers := make([]string, 0, len(report.Repairs))
	for _, repair := range report.Repairs {
		if repair.Lecturer != nil {
			lecturers = append(lecturers, repair.Lecturer.Name)
		}
	}
	return map[string]string{
		"ID":         report.ID,
		"Title":      report.Title,
		"Location":   report.Location,
		"Category":   string(report.Category),
		"Priority":   string(report.Priority),
		"Status":     string(report.Status),
		"Reporter":   reporter,
		"Lecturer":   strings.Join(lecturers, ", "),
		"Created At": report.CreatedAt.Format(time.RFC3339),
	}
}
