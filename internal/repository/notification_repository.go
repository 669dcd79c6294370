package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/civitasfix/civitasfix-api/internal/models"
)

type notificationRow struct {
	models.Notification
	ReportTitle  *string `db:"report_title"`
	ReportStatus *string `db:"report_status"`
}

// NotificationRepository stores in-app notifications. Every read and mutation is
// scoped to the owning user.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository creates a notification repository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// CreateMany inserts a batch of notifications in a single statement.
func (r *NotificationRepository) CreateMany(ctx context.Context, items []models.Notification) error {
	if len(items) == 0 {
		return nil
	}
	now := time.Now().UTC()
	for i := range items {
		if items[i].ID == "" {
			items[i].ID = uuid.NewString()
		}
		if items[i].CreatedAt.IsZero() {
			items[i].CreatedAt = now
		}
	}
	const query = `INSERT INTO notifications (id, user_id, title, message, type, link, report_id, is_read, created_at) VALUES (:id, :user_id, :title, :message, :type, :link, :report_id, :is_read, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, items); err != nil {
		return fmt.Errorf("create notifications: %w", err)
	}
	return nil
}

// List returns a page of the user's notifications, newest first, with the total count.
func (r *NotificationRepository) List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, int, error) {
	where := ` WHERE n.user_id = $1`
	if filter.UnreadOnly {
		where += ` AND n.is_read = FALSE`
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM notifications n`+where, filter.UserID); err != nil {
		return nil, 0, fmt.Errorf("count notifications: %w", err)
	}

	offset := (filter.Page - 1) * filter.Limit
	query := fmt.Sprintf(`SELECT n.id, n.user_id, n.title, n.message, n.type, n.link, n.report_id, n.is_read, n.created_at,
rp.title AS report_title, rp.status AS report_status
FROM notifications n LEFT JOIN reports rp ON rp.id = n.report_id%s ORDER BY n.created_at DESC LIMIT %d OFFSET %d`, where, filter.Limit, offset)

	rows := []notificationRow{}
	if err := r.db.SelectContext(ctx, &rows, query, filter.UserID); err != nil {
		return nil, 0, fmt.Errorf("list notifications: %w", err)
	}
	items := make([]models.Notification, 0, len(rows))
	for _, row := range rows {
		n := row.Notification
		if n.ReportID != nil && row.ReportTitle != nil {
			n.Report = &models.NotificationReport{ID: *n.ReportID, Title: *row.ReportTitle}
			if row.ReportStatus != nil {
				n.Report.Status = models.ReportStatus(*row.ReportStatus)
			}
		}
		items = append(items, n)
	}
	return items, total, nil
}

// CountUnread returns how many unread notifications the user has.
func (r *NotificationRepository) CountUnread(ctx context.Context, userID string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND is_read = FALSE`, userID); err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return count, nil
}

// MarkRead flags one notification read. Repeating the call is harmless; a missing or
// foreign notification yields sql.ErrNoRows.
func (r *NotificationRepository) MarkRead(ctx context.Context, id, userID string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE notifications SET is_read = TRUE WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	return expectAffected(res)
}

// MarkAllRead flags every unread notification of the user and returns how many changed.
func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE notifications SET is_read = TRUE WHERE user_id = $1 AND is_read = FALSE`, userID)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// Delete removes one of the user's notifications.
func (r *NotificationRepository) Delete(ctx context.Context, id, userID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM notifications WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	return expectAffected(res)
}
