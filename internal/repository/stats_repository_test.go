package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civitasfix/civitasfix-api/internal/models"
)

func TestCountByStatus(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewStatsRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT status AS key, COUNT(*) AS count FROM reports WHERE ($1::text = '' OR user_id = $1) GROUP BY status")).
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows([]string{"key", "count"}).AddRow("PENDING", 2).AddRow("COMPLETED", 1))

	counts, err := repo.CountByStatus(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, counts[models.ReportStatusPending])
	assert.Equal(t, 1, counts[models.ReportStatusCompleted])
	assert.Zero(t, counts[models.ReportStatusRejected])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountByCategoryAllReports(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewStatsRepository(db)

	mock.ExpectQuery("GROUP BY category").
		WithArgs("").
		WillReturnRows(sqlmock.NewRows([]string{"key", "count"}).AddRow("FURNITURE", 4))

	counts, err := repo.CountByCategory(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 4, counts[models.CategoryFurniture])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountCreatedSince(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewStatsRepository(db)

	since := time.Now().Add(-7 * 24 * time.Hour)
	mock.ExpectQuery("created_at >= \\$1").WithArgs(since, "").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(5))

	count, err := repo.CountCreatedSince(context.Background(), "", since)
	require.NoError(t, err)
	assert.Equal(t, 5, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}
