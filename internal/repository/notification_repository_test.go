package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civitasfix/civitasfix-api/internal/models"
)

func TestCreateManyBatchesInsert(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	mock.ExpectExec(`INSERT INTO notifications .* VALUES \(.*\),\(.*\)`).WillReturnResult(sqlmock.NewResult(0, 2))

	items := []models.Notification{
		{UserID: "l1", Title: "New report", Message: "m", Type: models.NotificationInfo},
		{UserID: "a1", Title: "New report", Message: "m", Type: models.NotificationInfo},
	}
	require.NoError(t, repo.CreateMany(context.Background(), items))
	assert.NotEmpty(t, items[0].ID)
	assert.NotEqual(t, items[0].ID, items[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateManyEmpty(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	require.NoError(t, NewNotificationRepository(db).CreateMany(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListNotificationsUnreadOnly(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM notifications n WHERE n.user_id = $1 AND n.is_read = FALSE")).
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("LEFT JOIN reports rp ON rp.id = n.report_id WHERE n.user_id = $1 AND n.is_read = FALSE ORDER BY n.created_at DESC LIMIT 20 OFFSET 0")).
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "title", "message", "type", "link", "report_id", "is_read", "created_at", "report_title", "report_status"}).
			AddRow("n1", "s1", "Report confirmed", "m", "SUCCESS", "/reports/r1", "r1", false, now, "Broken chair", "CONFIRMED"))

	items, total, err := repo.List(context.Background(), models.NotificationFilter{UserID: "s1", UnreadOnly: true, Page: 1, Limit: 20})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, items, 1)
	require.NotNil(t, items[0].Report)
	assert.Equal(t, models.ReportStatusConfirmed, items[0].Report.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkReadIsScopedToOwner(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	query := regexp.QuoteMeta("UPDATE notifications SET is_read = TRUE WHERE id = $1 AND user_id = $2")
	mock.ExpectExec(query).WithArgs("n1", "s1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(query).WithArgs("n1", "s1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(query).WithArgs("n1", "intruder").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.MarkRead(context.Background(), "n1", "s1"))
	require.NoError(t, repo.MarkRead(context.Background(), "n1", "s1"))
	assert.ErrorIs(t, repo.MarkRead(context.Background(), "n1", "intruder"), sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkAllReadAndDelete(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	mock.ExpectExec("UPDATE notifications SET is_read = TRUE WHERE user_id").WithArgs("s1").WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM notifications WHERE id = $1 AND user_id = $2")).WithArgs("n1", "other").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT COUNT").WithArgs("s1").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	n, err := repo.MarkAllRead(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.ErrorIs(t, repo.Delete(context.Background(), "n1", "other"), sql.ErrNoRows)
	unread, err := repo.CountUnread(context.Background(), "s1")
	require.NoError(t, err)
	assert.Zero(t, unread)
	assert.NoError(t, mock.ExpectationsWereMet())
}
