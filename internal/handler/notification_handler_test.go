package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civitasfix/civitasfix-api/internal/models"
	appErrors "github.com/civitasfix/civitasfix-api/pkg/errors"
)

type fakeNotificationSvc struct {
	unreadOnly bool
	page       int
	limit      int
	owner      string
	read       map[string]bool
}

func (f *fakeNotificationSvc) List(_ context.Context, userID string, unreadOnly bool, page, limit int) ([]models.Notification, *models.Pagination, error) {
	f.owner, f.unreadOnly, f.page, f.limit = userID, unreadOnly, page, limit
	return []models.Notification{{ID: "n1", UserID: userID}}, models.NewPagination(1, 20, 1), nil
}

func (f *fakeNotificationSvc) UnreadCount(context.Context, string) (int, error) {
	return 3, nil
}

func (f *fakeNotificationSvc) MarkRead(_ context.Context, userID, id string) error {
	if userID != "s1" || id != "n1" {
		return appErrors.Clone(appErrors.ErrNotFound, "notification not found")
	}
	f.read[id] = true
	return nil
}

func (f *fakeNotificationSvc) MarkAllRead(context.Context, string) (int64, error) {
	return 2, nil
}

func (f *fakeNotificationSvc) Delete(_ context.Context, userID, id string) error {
	if userID != "s1" {
		return appErrors.Clone(appErrors.ErrNotFound, "notification not found")
	}
	return nil
}

func TestNotificationHandlerList(t *testing.T) {
	svc := &fakeNotificationSvc{}
	h := NewNotificationHandler(svc)
	c, rec := newContext(http.MethodGet, "/api/notifications?unreadOnly=true&page=3", nil, studentPrincipal)

	h.List(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "s1", svc.owner)
	assert.True(t, svc.unreadOnly)
	assert.Equal(t, 3, svc.page)
	assert.Zero(t, svc.limit)
}

func TestNotificationHandlerUnreadCount(t *testing.T) {
	h := NewNotificationHandler(&fakeNotificationSvc{})
	c, rec := newContext(http.MethodGet, "/api/notifications/unread-count", nil, studentPrincipal)

	h.UnreadCount(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"count":3}`, string(decode(t, rec).Data))
}

func TestNotificationHandlerMarkReadTwice(t *testing.T) {
	svc := &fakeNotificationSvc{read: map[string]bool{}}
	h := NewNotificationHandler(svc)

	for i := 0; i < 2; i++ {
		c, rec := newContext(http.MethodPatch, "/api/notifications/n1/read", nil, studentPrincipal)
		c.AddParam("id", "n1")
		h.MarkRead(c)
		assert.Equal(t, http.StatusOK, rec.Code)
	}
	assert.True(t, svc.read["n1"])
}

func TestNotificationHandlerDeleteForeign(t *testing.T) {
	h := NewNotificationHandler(&fakeNotificationSvc{})
	c, rec := newContext(http.MethodDelete, "/api/notifications/n1", nil, lecturerPrincipal)
	c.AddParam("id", "n1")

	h.Delete(c)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
