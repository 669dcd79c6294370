package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/civitasfix/civitasfix-api/internal/models"
)

type bucketCount struct {
	Key   string `db:"key"`
	Count int    `db:"count"`
}

// StatsRepository runs the aggregate queries behind the dashboard. An empty ownerID means
// all reports.
type StatsRepository struct {
	db *sqlx.DB
}

// NewStatsRepository creates a stats repository.
func NewStatsRepository(db *sqlx.DB) *StatsRepository {
	return &StatsRepository{db: db}
}

// CountByStatus returns report counts keyed by status.
func (r *StatsRepository) CountByStatus(ctx context.Context, ownerID string) (map[models.ReportStatus]int, error) {
	rows, err := r.group(ctx, "status", ownerID)
	if err != nil {
		return nil, fmt.Errorf("count reports by status: %w", err)
	}
	result := make(map[models.ReportStatus]int, len(rows))
	for _, row := range rows {
		result[models.ReportStatus(row.Key)] = row.Count
	}
	return result, nil
}

// CountByCategory returns report counts keyed by category.
func (r *StatsRepository) CountByCategory(ctx context.Context, ownerID string) (map[models.ReportCategory]int, error) {
	rows, err := r.group(ctx, "category", ownerID)
	if err != nil {
		return nil, fmt.Errorf("count reports by category: %w", err)
	}
	result := make(map[models.ReportCategory]int, len(rows))
	for _, row := range rows {
		result[models.ReportCategory(row.Key)] = row.Count
	}
	return result, nil
}

// CountCreatedSince counts reports created at or after since.
func (r *StatsRepository) CountCreatedSince(ctx context.Context, ownerID string, since time.Time) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM reports WHERE created_at >= $1 AND ($2::text = '' OR user_id = $2)`
	if err := r.db.GetContext(ctx, &count, query, since, ownerID); err != nil {
		return 0, fmt.Errorf("count recent reports: %w", err)
	}
	return count, nil
}

func (r *StatsRepository) group(ctx context.Context, column, ownerID string) ([]bucketCount, error) {
	query := fmt.Sprintf(`SELECT %s AS key, COUNT(*) AS count FROM reports WHERE ($1::text = '' OR user_id = $1) GROUP BY %s`, column, column)
	rows := []bucketCount{}
	if err := r.db.SelectContext(ctx, &rows, query, ownerID); err != nil {
		return nil, err
	}
	return rows, nil
}
