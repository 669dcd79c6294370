package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/civitasfix/civitasfix-api/internal/models"
	appErrors "github.com/civitasfix/civitasfix-api/pkg/errors"
)

type notificationStore interface {
	CreateMany(ctx context.Context, items []models.Notification) error
	List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, int, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	MarkRead(ctx context.Context, id, userID string) error
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	Delete(ctx context.Context, id, userID string) error
}

type roleDirectory interface {
	ListByRoles(ctx context.Context, roles ...models.UserRole) ([]models.User, error)
}

// Notice describes a notification to deliver.
type Notice struct {
	UserID   string
	Title    string
	Message  string
	Type     models.NotificationType
	ReportID *string
	Link     *string
}

func (n Notice) toModel(userID string) models.Notification {
	kind := n.Type
	if kind == "" {
		kind = models.NotificationInfo
	}
	link := n.Link
	if link == nil && n.ReportID != nil && *n.ReportID != "" {
		link = reportLink(*n.ReportID)
	}
	return models.Notification{
		UserID:   userID,
		Title:    n.Title,
		Message:  n.Message,
		Type:     kind,
		Link:     link,
		ReportID: n.ReportID,
	}
}

// NotificationService writes and serves in-app notifications.
type NotificationService struct {
	repo    notificationStore
	users   roleDirectory
	metrics *MetricsService
	logger  *zap.Logger
}

// NewNotificationService constructs a NotificationService.
func NewNotificationService(repo notificationStore, users roleDirectory, metrics *MetricsService, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{repo: repo, users: users, metrics: metrics, logger: logger}
}

// Notify writes one notification for n.UserID.
func (s *NotificationService) Notify(ctx context.Context, n Notice) error {
	if n.UserID == "" {
		return appErrors.Validation("notification recipient is required")
	}
	err := s.repo.CreateMany(ctx, []models.Notification{n.toModel(n.UserID)})
	s.metrics.RecordNotification(string(n.toModel("").Type), 1, err)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create notification")
	}
	return nil
}

// NotifyRoles fans n out to every verified user holding one of roles, skipping n.UserID.
func (s *NotificationService) NotifyRoles(ctx context.Context, n Notice, roles ...models.UserRole) (int, error) {
	users, err := s.users.ListByRoles(ctx, roles...)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve recipients")
	}
	items := make([]models.Notification, 0, len(users))
	for _, u := range users {
		if u.ID == n.UserID {
			continue
		}
		items = append(items, n.toModel(u.ID))
	}
	if len(items) == 0 {
		return 0, nil
	}
	err = s.repo.CreateMany(ctx, items)
	s.metrics.RecordNotification(string(items[0].Type), len(items), err)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create notifications")
	}
	return len(items), nil
}

// List returns a page of the caller's notifications.
func (s *NotificationService) List(ctx context.Context, userID string, unreadOnly bool, page, limit int) ([]models.Notification, *models.Pagination, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	items, total, err := s.repo.List(ctx, models.NotificationFilter{UserID: userID, UnreadOnly: unreadOnly, Page: page, Limit: limit})
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}
	return items, models.NewPagination(page, limit, total), nil
}

// UnreadCount returns the caller's unread notification count.
func (s *NotificationService) UnreadCount(ctx context.Context, userID string) (int, error) {
	count, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count notifications")
	}
	return count, nil
}

// MarkRead flags one of the caller's notifications read. Another user's notification is
// reported as not found.
func (s *NotificationService) MarkRead(ctx context.Context, userID, id string) error {
	if err := s.repo.MarkRead(ctx, id, userID); err != nil {
		return s.ownedErr(err, "failed to mark notification read")
	}
	return nil
}

// MarkAllRead flags every unread notification of the caller.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	n, err := s.repo.MarkAllRead(ctx, userID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notifications read")
	}
	return n, nil
}

// Delete removes one of the caller's notifications.
func (s *NotificationService) Delete(ctx context.Context, userID, id string) error {
	if err := s.repo.Delete(ctx, id, userID); err != nil {
		return s.ownedErr(err, "failed to delete notification")
	}
	return nil
}

func (s *NotificationService) ownedErr(err error, message string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, "notification not found")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}

// reportLink is the client route of a report detail page.
func reportLink(reportID string) *string {
	link := "/reports/" + reportID
	return &link
}
