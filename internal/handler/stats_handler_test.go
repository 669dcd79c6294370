package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civitasfix/civitasfix-api/internal/middleware"
	"github.com/civitasfix/civitasfix-api/internal/models"
	appErrors "github.com/civitasfix/civitasfix-api/pkg/errors"
)

type fakeStatsSvc struct {
	summary *models.StatsSummary
	weekly  *models.WeeklyStats
	hit     bool
	err     error
}

func (f *fakeStatsSvc) Summary(context.Context, *models.Principal) (*models.StatsSummary, bool, error) {
	return f.summary, f.hit, f.err
}

func (f *fakeStatsSvc) Weekly(context.Context, *models.Principal) (*models.WeeklyStats, bool, error) {
	return f.weekly, f.hit, f.err
}

func TestStatsHandlerSummaryCacheHit(t *testing.T) {
	h := NewStatsHandler(&fakeStatsSvc{summary: &models.StatsSummary{Total: 4, Pending: 1}, hit: true})
	c, rec := newContext(http.MethodGet, "/api/stats/summary", nil, studentPrincipal)
	middleware.WithResponseMeta()(c)

	h.Summary(c)

	require.Equal(t, http.StatusOK, rec.Code)
	envelope := decode(t, rec)
	assert.Equal(t, true, envelope.Meta["cache_hit"])
	assert.JSONEq(t, `{"total":4,"pending":1,"confirmed":0,"inProgress":0,"completed":0,"rejected":0,"weekly":0,"monthly":0}`, string(envelope.Data))
}

func TestStatsHandlerWeeklyMiss(t *testing.T) {
	h := NewStatsHandler(&fakeStatsSvc{weekly: &models.WeeklyStats{Totals: models.WeeklyTotals{All: 2}}})
	c, rec := newContext(http.MethodGet, "/api/stats/weekly", nil, lecturerPrincipal)

	h.Weekly(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode(t, rec).Meta["cache_hit"])
}

func TestStatsHandlerError(t *testing.T) {
	h := NewStatsHandler(&fakeStatsSvc{err: appErrors.ErrInternal})
	c, rec := newContext(http.MethodGet, "/api/stats/summary", nil, studentPrincipal)

	h.Summary(c)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
