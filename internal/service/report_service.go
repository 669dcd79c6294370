package service

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/civitasfix/civitasfix-api/internal/dto"
	"github.com/civitasfix/civitasfix-api/internal/models"
	appErrors "github.com/civitasfix/civitasfix-api/pkg/errors"
	"github.com/civitasfix/civitasfix-api/pkg/mailer"
)

const (
	latestReportsLimit = 10
	statsCachePattern  = "stats:*"
	sniffLength        = 512
)

type reportStore interface {
	Create(ctx context.Context, report *models.Report) error
	FindByID(ctx context.Context, id string) (*models.Report, error)
	List(ctx context.Context, filter models.ReportFilter) ([]models.Report, int, error)
	Latest(ctx context.Context, ownerID string, limit int) ([]models.Report, error)
	ApplyStatusChange(ctx context.Context, change models.StatusChange) error
}

type repairStore interface {
	FindByReportAndLecturer(ctx context.Context, reportID, lecturerID string) (*models.Repair, error)
	UpdateProgress(ctx context.Context, repair *models.Repair) error
}

type reportNotifier interface {
	Notify(ctx context.Context, n Notice) error
	NotifyRoles(ctx context.Context, n Notice, roles ...models.UserRole) (int, error)
}

type mailDispatcher interface {
	Dispatch(ctx context.Context, msg mailer.Message) MailOutcome
}

type auditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type cacheInvalidator interface {
	Invalidate(ctx context.Context, pattern string)
}

type uploadStore interface {
	SaveUpload(originalName string, r io.Reader) (string, error)
	Delete(name string) error
}

// UploadPolicy bounds accepted report images.
type UploadPolicy struct {
	PublicPath   string
	MaxSizeBytes int64
	AllowedMIMEs []string
}

// ReportServiceParams groups constructor dependencies.
type ReportServiceParams struct {
	Reports       reportStore
	Repairs       repairStore
	Notifications reportNotifier
	Mail          mailDispatcher
	Audit         auditWriter
	Cache         cacheInvalidator
	Storage       uploadStore
	Metrics       *MetricsService
	Validator     *validator.Validate
	Logger        *zap.Logger
	Uploads       UploadPolicy
}

// ReportService runs the damage report workflow.
type ReportService struct {
	reports       reportStore
	repairs       repairStore
	notifications reportNotifier
	mail          mailDispatcher
	audit         auditWriter
	cache         cacheInvalidator
	storage       uploadStore
	metrics       *MetricsService
	validator     *validator.Validate
	logger        *zap.Logger
	uploads       UploadPolicy
	now           func() time.Time
}

// NewReportService constructs a ReportService with sane defaults.
func NewReportService(params ReportServiceParams) *ReportService {
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	validate := params.Validator
	if validate == nil {
		validate = validator.New()
	}
	uploads := params.Uploads
	if uploads.PublicPath == "" {
		uploads.PublicPath = "/uploads"
	}
	uploads.PublicPath = strings.TrimRight(uploads.PublicPath, "/")
	if uploads.MaxSizeBytes <= 0 {
		uploads.MaxSizeBytes = 5 << 20
	}
	if len(uploads.AllowedMIMEs) == 0 {
		uploads.AllowedMIMEs = []string{"image/jpeg", "image/png", "image/gif", "image/webp"}
	}
	return &ReportService{
		reports:       params.Reports,
		repairs:       params.Repairs,
		notifications: params.Notifications,
		mail:          params.Mail,
		audit:         params.Audit,
		cache:         params.Cache,
		storage:       params.Storage,
		metrics:       params.Metrics,
		validator:     validate,
		logger:        logger,
		uploads:       uploads,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Create files a new PENDING report owned by the calling student.
func (s *ReportService) Create(ctx context.Context, principal *models.Principal, req dto.CreateReportRequest, image *dto.ImageUpload) (*models.Report, error) {
	if err := authorize(principal, models.RoleStudent); err != nil {
		return nil, err
	}
	req.Title = strings.TrimSpace(req.Title)
	req.Description = strings.TrimSpace(req.Description)
	req.Location = strings.TrimSpace(req.Location)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "title, description and location are required")
	}
	if req.Category == "" {
		req.Category = models.CategoryOther
	}
	if !req.Category.Valid() {
		return nil, appErrors.Validation("invalid category")
	}
	if req.Priority == "" {
		req.Priority = models.PriorityMedium
	}
	if !req.Priority.Valid() {
		return nil, appErrors.Validation("invalid priority")
	}

	report := &models.Report{
		Title:       req.Title,
		Description: req.Description,
		Location:    req.Location,
		Category:    req.Category,
		Priority:    req.Priority,
		Status:      models.ReportStatusPending,
		UserID:      principal.ID,
	}

	var stored string
	if image != nil {
		name, err := s.saveImage(image)
		if err != nil {
			return nil, err
		}
		stored = name
		url := s.uploads.PublicPath + "/" + name
		report.ImageURL = &url
	}

	if err := s.reports.Create(ctx, report); err != nil {
		if stored != "" {
			if delErr := s.storage.Delete(stored); delErr != nil {
				s.logger.Warn("failed to remove orphaned upload", zap.String("file", stored), zap.Error(delErr))
			}
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create report")
	}
	report.User = &models.UserSummary{ID: principal.ID, Name: principal.Name, Email: principal.Email, Role: principal.Role}
	report.Repairs = []models.Repair{}

	reportID := report.ID
	s.notify(ctx, Notice{
		UserID:   principal.ID,
		Title:    "Report submitted",
		Message:  fmt.Sprintf("Your report %q has been submitted and is awaiting review.", report.Title),
		Type:     models.NotificationSuccess,
		ReportID: &reportID,
		Link:     reportLink(reportID),
	})
	if s.notifications != nil {
		if _, err := s.notifications.NotifyRoles(ctx, Notice{
			UserID:   principal.ID,
			Title:    "New report",
			Message:  fmt.Sprintf("%s reported %q at %s.", principal.Name, report.Title, report.Location),
			Type:     models.NotificationInfo,
			ReportID: &reportID,
			Link:     reportLink(reportID),
		}, models.RoleLecturer, models.RoleAdmin); err != nil {
			s.logger.Warn("failed to notify staff of new report", zap.String("report_id", reportID), zap.Error(err))
		}
	}

	s.record(ctx, principal.ID, models.AuditActionReportCreate, reportID, nil, report)
	s.invalidateStats(ctx)
	return report, nil
}

// List returns the caller's visible reports.
func (s *ReportService) List(ctx context.Context, principal *models.Principal, query dto.ReportQuery) ([]models.Report, *models.Pagination, error) {
	filter, err := buildFilter(principal, query)
	if err != nil {
		return nil, nil, err
	}
	filter.Normalize()
	reports, total, err := s.reports.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list reports")
	}
	return reports, models.NewPagination(filter.Page, filter.Limit, total), nil
}

// Latest returns the most recent visible reports.
func (s *ReportService) Latest(ctx context.Context, principal *models.Principal) ([]models.Report, error) {
	if principal == nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "authentication required")
	}
	reports, err := s.reports.Latest(ctx, scopeOwner(principal), latestReportsLimit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load latest reports")
	}
	return reports, nil
}

// Get returns a report the caller may see.
func (s *ReportService) Get(ctx context.Context, principal *models.Principal, id string) (*models.Report, error) {
	if principal == nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "authentication required")
	}
	report, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !principal.Role.Staff() && report.UserID != principal.ID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "you do not have access to this report")
	}
	return report, nil
}

// UpdateStatus transitions a report and applies its repair side effect atomically.
func (s *ReportService) UpdateStatus(ctx context.Context, principal *models.Principal, id string, req dto.UpdateStatusRequest) (*models.Report, error) {
	if err := authorize(principal, models.RoleLecturer, models.RoleAdmin); err != nil {
		return nil, err
	}
	if !req.Status.Valid() {
		return nil, appErrors.Validation("invalid status")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid status payload")
	}

	before, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	change := models.StatusChange{
		ReportID:      id,
		Status:        req.Status,
		LecturerID:    principal.ID,
		Notes:         req.Notes,
		EstimatedCost: req.EstimatedCost,
		At:            s.now(),
	}
	if err := s.reports.ApplyStatusChange(ctx, change); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "report not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update report status")
	}
	s.metrics.RecordTransition(string(req.Status))

	report, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	s.notify(ctx, Notice{
		UserID:   report.UserID,
		Title:    "Report status updated",
		Message:  fmt.Sprintf("Your report %q is now %s.", report.Title, req.Status.Label()),
		Type:     statusNotificationType(req.Status),
		ReportID: &report.ID,
		Link:     reportLink(report.ID),
	})
	if req.Status == models.ReportStatusConfirmed || req.Status == models.ReportStatusCompleted {
		s.email(ctx, report, fmt.Sprintf("Your report %q is now %s.", report.Title, req.Status.Label()))
	}

	s.record(ctx, principal.ID, models.AuditActionReportStatus, report.ID,
		map[string]models.ReportStatus{"status": before.Status},
		map[string]models.ReportStatus{"status": report.Status})
	s.invalidateStats(ctx)
	return report, nil
}

// UpdateRepair records the assigned lecturer's progress on a report.
func (s *ReportService) UpdateRepair(ctx context.Context, principal *models.Principal, reportID string, req dto.UpdateRepairRequest) (*models.Repair, error) {
	if err := authorize(principal, models.RoleLecturer, models.RoleAdmin); err != nil {
		return nil, err
	}
	if !models.ValidRepairStatus(req.Status) {
		return nil, appErrors.Validation("invalid repair status")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid repair payload")
	}

	repair, err := s.repairs.FindByReportAndLecturer(ctx, reportID, principal.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "repair not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load repair")
	}
	previous := repair.Status
	if previous == models.ReportStatusCompleted && req.Status != models.ReportStatusCompleted {
		return nil, appErrors.Validation("completed repair cannot be reopened")
	}

	now := s.now()
	repair.Status = req.Status
	if req.Notes != nil {
		repair.Notes = req.Notes
	}
	if req.ActualCost != nil {
		repair.ActualCost = req.ActualCost
	}
	if req.Status == models.ReportStatusCompleted {
		repair.CompletedAt = &now
	} else {
		repair.CompletedAt = nil
	}
	repair.UpdatedAt = now

	if err := s.repairs.UpdateProgress(ctx, repair); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "repair not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update repair")
	}
	s.metrics.RecordTransition(string(req.Status))

	if req.Status == models.ReportStatusInProgress || req.Status == models.ReportStatusCompleted {
		report, err := s.load(ctx, reportID)
		if err != nil {
			s.logger.Warn("failed to load report for repair notification", zap.String("report_id", reportID), zap.Error(err))
		} else {
			message := fmt.Sprintf("Repair of your report %q is %s.", report.Title, req.Status.Label())
			s.notify(ctx, Notice{
				UserID:   report.UserID,
				Title:    "Repair update",
				Message:  message,
				Type:     statusNotificationType(req.Status),
				ReportID: &report.ID,
				Link:     reportLink(report.ID),
			})
			if req.Status == models.ReportStatusCompleted {
				s.email(ctx, report, message)
			}
		}
	}

	s.record(ctx, principal.ID, models.AuditActionRepairUpdate, repair.ID,
		map[string]models.ReportStatus{"status": previous},
		map[string]models.ReportStatus{"status": repair.Status})
	s.invalidateStats(ctx)
	return repair, nil
}

func (s *ReportService) load(ctx context.Context, id string) (*models.Report, error) {
	report, err := s.reports.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "report not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load report")
	}
	return report, nil
}

func (s *ReportService) saveImage(image *dto.ImageUpload) (string, error) {
	if s.storage == nil {
		return "", appErrors.Clone(appErrors.ErrInternal, "uploads are not configured")
	}
	if image.Size > s.uploads.MaxSizeBytes {
		return "", appErrors.Clone(appErrors.ErrPayloadTooLarge, fmt.Sprintf("image exceeds %d bytes", s.uploads.MaxSizeBytes))
	}

	head := make([]byte, sniffLength)
	n, err := io.ReadFull(image.Content, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "failed to read image")
	}
	head = head[:n]
	if !s.allowedMIME(http.DetectContentType(head)) {
		return "", appErrors.Validation("only jpeg, png, gif and webp images are allowed")
	}

	content := io.LimitReader(io.MultiReader(bytes.NewReader(head), image.Content), s.uploads.MaxSizeBytes)
	name, err := s.storage.SaveUpload(image.Filename, content)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store image")
	}
	return name, nil
}

func (s *ReportService) allowedMIME(detected string) bool {
	for _, allowed := range s.uploads.AllowedMIMEs {
		if strings.EqualFold(detected, allowed) {
			return true
		}
	}
	return false
}

func (s *ReportService) notify(ctx context.Context, n Notice) {
	if s.notifications == nil {
		return
	}
	if err := s.notifications.Notify(ctx, n); err != nil {
		s.logger.Warn("failed to create notification", zap.String("user_id", n.UserID), zap.String("title", n.Title), zap.Error(err))
	}
}

func (s *ReportService) email(ctx context.Context, report *models.Report, body string) {
	if s.mail == nil || report.User == nil || report.User.Email == "" {
		return
	}
	outcome := s.mail.Dispatch(ctx, mailer.Message{
		To:      []string{report.User.Email},
		Subject: fmt.Sprintf("[CivitasFix] %s", report.Title),
		Body:    fmt.Sprintf("Hello %s,\n\n%s\n\nCivitasFix", report.User.Name, body),
	})
	s.logger.Debug("report email dispatched", zap.String("report_id", report.ID), zap.String("outcome", string(outcome)))
}

func (s *ReportService) record(ctx context.Context, userID, action, resourceID string, oldValues, newValues interface{}) {
	if s.audit == nil {
		return
	}
	entry := &models.AuditLog{
		UserID:     &userID,
		Action:     action,
		Resource:   "report",
		ResourceID: &resourceID,
	}
	if oldValues != nil {
		entry.OldValues, _ = json.Marshal(oldValues)
	}
	if newValues != nil {
		entry.NewValues, _ = json.Marshal(newValues)
	}
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to record report audit log", zap.String("action", action), zap.Error(err))
	}
}

func (s *ReportService) invalidateStats(ctx context.Context) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, statsCachePattern)
	}
}

func statusNotificationType(status models.ReportStatus) models.NotificationType {
	switch status {
	case models.ReportStatusConfirmed, models.ReportStatusCompleted:
		return models.NotificationSuccess
	case models.ReportStatusRejected:
		return models.NotificationWarning
	}
	return models.NotificationInfo
}

// buildFilter applies the caller's scope and validates the optional filters.
func buildFilter(principal *models.Principal, query dto.ReportQuery) (models.ReportFilter, error) {
	if principal == nil {
		return models.ReportFilter{}, appErrors.Clone(appErrors.ErrUnauthorized, "authentication required")
	}
	if query.Status != "" && !query.Status.Valid() {
		return models.ReportFilter{}, appErrors.Validation("invalid status filter")
	}
	if query.Category != "" && !query.Category.Valid() {
		return models.ReportFilter{}, appErrors.Validation("invalid category filter")
	}
	return models.ReportFilter{
		OwnerID:  scopeOwner(principal),
		Status:   query.Status,
		Category: query.Category,
		Page:     query.Page,
		Limit:    query.Limit,
	}, nil
}
