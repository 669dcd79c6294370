package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/civitasfix/civitasfix-api/internal/models"
)

const reportSelect = `SELECT r.id, r.title, r.description, r.location, r.category, r.priority, r.status, r.image_url, r.user_id, r.created_at, r.updated_at,
u.name AS owner_name, u.email AS owner_email, u.role AS owner_role
FROM reports r JOIN users u ON u.id = r.user_id`

type reportRow struct {
	models.Report
	OwnerName  string          `db:"owner_name"`
	OwnerEmail string          `db:"owner_email"`
	OwnerRole  models.UserRole `db:"owner_role"`
}

func (row reportRow) toModel() models.Report {
	report := row.Report
	report.User = &models.UserSummary{ID: row.UserID, Name: row.OwnerName, Email: row.OwnerEmail, Role: row.OwnerRole}
	report.Repairs = []models.Repair{}
	return report
}

// ReportRepository persists damage reports and applies workflow transitions.
type ReportRepository struct {
	db      *sqlx.DB
	repairs *RepairRepository
}

// NewReportRepository creates a report repository.
func NewReportRepository(db *sqlx.DB) *ReportRepository {
	return &ReportRepository{db: db, repairs: NewRepairRepository(db)}
}

// Create inserts a new report.
func (r *ReportRepository) Create(ctx context.Context, report *models.Report) error {
	if report.ID == "" {
		report.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	report.CreatedAt = now
	report.UpdatedAt = now

	const query = `INSERT INTO reports (id, title, description, location, category, priority, status, image_url, user_id, created_at, updated_at) VALUES (:id, :title, :description, :location, :category, :priority, :status, :image_url, :user_id, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, report); err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	return nil
}

// FindByID returns a report with its owner and repairs.
func (r *ReportRepository) FindByID(ctx context.Context, id string) (*models.Report, error) {
	var row reportRow
	if err := r.db.GetContext(ctx, &row, reportSelect+` WHERE r.id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find report: %w", err)
	}
	report := row.toModel()
	repairs, err := r.repairs.ListByReportIDs(ctx, []string{report.ID})
	if err != nil {
		return nil, err
	}
	report.Repairs = repairs[report.ID]
	if report.Repairs == nil {
		report.Repairs = []models.Repair{}
	}
	return &report, nil
}

// List returns a page of reports, newest first, with the total match count.
func (r *ReportRepository) List(ctx context.Context, filter models.ReportFilter) ([]models.Report, int, error) {
	filter.Normalize()
	where, args := reportConditions(filter)

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM reports r`+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count reports: %w", err)
	}

	offset := (filter.Page - 1) * filter.Limit
	query := fmt.Sprintf("%s%s ORDER BY r.created_at DESC LIMIT %d OFFSET %d", reportSelect, where, filter.Limit, offset)
	reports, err := r.selectWithRepairs(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return reports, total, nil
}

// ListAll returns every matching report without paging, for exports.
func (r *ReportRepository) ListAll(ctx context.Context, filter models.ReportFilter) ([]models.Report, error) {
	where, args := reportConditions(filter)
	return r.selectWithRepairs(ctx, reportSelect+where+` ORDER BY r.created_at DESC`, args...)
}

// Latest returns the most recent reports within the owner scope.
func (r *ReportRepository) Latest(ctx context.Context, ownerID string, limit int) ([]models.Report, error) {
	where, args := reportConditions(models.ReportFilter{OwnerID: ownerID})
	query := fmt.Sprintf("%s%s ORDER BY r.created_at DESC LIMIT %d", reportSelect, where, limit)
	return r.selectWithRepairs(ctx, query, args...)
}

// ApplyStatusChange updates the report status and its repair side effect in one transaction.
// It returns sql.ErrNoRows when the report does not exist.
func (r *ReportRepository) ApplyStatusChange(ctx context.Context, change models.StatusChange) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin status change: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := updateReportStatusTx(ctx, tx, change.ReportID, change.Status, change.At); err != nil {
		return err
	}

	switch change.Status {
	case models.ReportStatusConfirmed:
		if err := r.repairs.upsertConfirmedTx(ctx, tx, change); err != nil {
			return err
		}
	case models.ReportStatusInProgress, models.ReportStatusCompleted:
		if err := r.repairs.mirrorStatusTx(ctx, tx, change.ReportID, change.Status, change.At); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit status change: %w", err)
	}
	return nil
}

func updateReportStatusTx(ctx context.Context, tx *sqlx.Tx, reportID string, status models.ReportStatus, at time.Time) error {
	res, err := tx.ExecContext(ctx, `UPDATE reports SET status = $2, updated_at = $3 WHERE id = $1`, reportID, status, at)
	if err != nil {
		return fmt.Errorf("update report status: %w", err)
	}
	return expectAffected(res)
}

func (r *ReportRepository) selectWithRepairs(ctx context.Context, query string, args ...interface{}) ([]models.Report, error) {
	rows := []reportRow{}
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	reports := make([]models.Report, 0, len(rows))
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		reports = append(reports, row.toModel())
		ids = append(ids, row.ID)
	}
	if len(ids) == 0 {
		return reports, nil
	}
	repairs, err := r.repairs.ListByReportIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range reports {
		if items, ok := repairs[reports[i].ID]; ok {
			reports[i].Repairs = items
		}
	}
	return reports, nil
}

func reportConditions(filter models.ReportFilter) (string, []interface{}) {
	var conditions []string
	var args []interface{}
	if filter.OwnerID != "" {
		args = append(args, filter.OwnerID)
		conditions = append(conditions, fmt.Sprintf("r.user_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("r.status = $%d", len(args)))
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		conditions = append(conditions, fmt.Sprintf("r.category = $%d", len(args)))
	}
	if len(conditions) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}
