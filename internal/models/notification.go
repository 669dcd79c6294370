package models

import "time"

// NotificationType drives how the client renders a notification.
type NotificationType string

const (
	NotificationInfo    NotificationType = "INFO"
	NotificationSuccess NotificationType = "SUCCESS"
	NotificationWarning NotificationType = "WARNING"
	NotificationError   NotificationType = "ERROR"
)

// Notification is an in-app message addressed to one user.
type Notification struct {
	ID        string           `db:"id" json:"id"`
	UserID    string           `db:"user_id" json:"userId"`
	Title     string           `db:"title" json:"title"`
	Message   string           `db:"message" json:"message"`
	Type      NotificationType `db:"type" json:"type"`
	Link      *string          `db:"link" json:"link,omitempty"`
	ReportID  *string          `db:"report_id" json:"reportId,omitempty"`
	Read      bool             `db:"is_read" json:"isRead"`
	CreatedAt time.Time        `db:"created_at" json:"createdAt"`

	Report *NotificationReport `db:"-" json:"report,omitempty"`
}

// NotificationReport is the report summary embedded in notification listings.
type NotificationReport struct {
	ID     string       `json:"id"`
	Title  string       `json:"title"`
	Status ReportStatus `json:"status"`
}

// NotificationFilter scopes a notification listing to its owner.
type NotificationFilter struct {
	UserID     string
	UnreadOnly bool
	Page       int
	Limit      int
}
