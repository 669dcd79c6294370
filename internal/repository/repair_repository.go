package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/civitasfix/civitasfix-api/internal/models"
)

const repairSelect = `SELECT p.id, p.report_id, p.lecturer_id, p.notes, p.estimated_cost, p.actual_cost, p.status, p.completed_at, p.created_at, p.updated_at,
u.name AS lecturer_name, u.email AS lecturer_email, u.role AS lecturer_role
FROM repairs p JOIN users u ON u.id = p.lecturer_id`

type repairRow struct {
	models.Repair
	LecturerName  string          `db:"lecturer_name"`
	LecturerEmail string          `db:"lecturer_email"`
	LecturerRole  models.UserRole `db:"lecturer_role"`
}

func (row repairRow) toModel() models.Repair {
	repair := row.Repair
	repair.Lecturer = &models.UserSummary{ID: row.LecturerID, Name: row.LecturerName, Email: row.LecturerEmail, Role: row.LecturerRole}
	return repair
}

// RepairRepository persists repair records attached to reports.
type RepairRepository struct {
	db *sqlx.DB
}

// NewRepairRepository creates a repair repository.
func NewRepairRepository(db *sqlx.DB) *RepairRepository {
	return &RepairRepository{db: db}
}

// FindByReportAndLecturer returns the repair a lecturer owns on a report.
func (r *RepairRepository) FindByReportAndLecturer(ctx context.Context, reportID, lecturerID string) (*models.Repair, error) {
	var row repairRow
	if err := r.db.GetContext(ctx, &row, repairSelect+` WHERE p.report_id = $1 AND p.lecturer_id = $2`, reportID, lecturerID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find repair: %w", err)
	}
	repair := row.toModel()
	return &repair, nil
}

// ListByReportIDs groups repairs by report id.
func (r *RepairRepository) ListByReportIDs(ctx context.Context, reportIDs []string) (map[string][]models.Repair, error) {
	result := make(map[string][]models.Repair, len(reportIDs))
	if len(reportIDs) == 0 {
		return result, nil
	}
	query, args, err := sqlx.In(repairSelect+` WHERE p.report_id IN (?) ORDER BY p.created_at ASC`, reportIDs)
	if err != nil {
		return nil, fmt.Errorf("build list repairs: %w", err)
	}
	rows := []repairRow{}
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list repairs: %w", err)
	}
	for _, row := range rows {
		result[row.ReportID] = append(result[row.ReportID], row.toModel())
	}
	return result, nil
}

// UpdateProgress saves a lecturer's repair update. When the repair reaches COMPLETED the
// parent report is completed in the same transaction.
func (r *RepairRepository) UpdateProgress(ctx context.Context, repair *models.Repair) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin repair update: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const query = `UPDATE repairs SET status = :status, notes = :notes, actual_cost = :actual_cost, completed_at = :completed_at, updated_at = :updated_at WHERE id = :id`
	res, err := tx.NamedExecContext(ctx, query, repair)
	if err != nil {
		return fmt.Errorf("update repair: %w", err)
	}
	if err := expectAffected(res); err != nil {
		return err
	}

	if repair.Status == models.ReportStatusCompleted {
		if err := updateReportStatusTx(ctx, tx, repair.ReportID, models.ReportStatusCompleted, repair.UpdatedAt); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit repair update: %w", err)
	}
	return nil
}

// upsertConfirmedTx creates the repair for (report, lecturer) or refreshes the existing one.
func (r *RepairRepository) upsertConfirmedTx(ctx context.Context, tx *sqlx.Tx, change models.StatusChange) error {
	const query = `INSERT INTO repairs (id, report_id, lecturer_id, notes, estimated_cost, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
ON CONFLICT (report_id, lecturer_id) DO UPDATE SET
notes = COALESCE(EXCLUDED.notes, repairs.notes),
estimated_cost = COALESCE(EXCLUDED.estimated_cost, repairs.estimated_cost),
status = EXCLUDED.status, completed_at = NULL, updated_at = EXCLUDED.updated_at`
	if _, err := tx.ExecContext(ctx, query, uuid.NewString(), change.ReportID, change.LecturerID, change.Notes, change.EstimatedCost, models.ReportStatusConfirmed, change.At); err != nil {
		return fmt.Errorf("upsert repair: %w", err)
	}
	return nil
}

// mirrorStatusTx copies IN_PROGRESS or COMPLETED onto every open repair of the report.
func (r *RepairRepository) mirrorStatusTx(ctx context.Context, tx *sqlx.Tx, reportID string, status models.ReportStatus, at time.Time) error {
	var completedAt *time.Time
	if status == models.ReportStatusCompleted {
		completedAt = &at
	}
	const query = `UPDATE repairs SET status = $2, completed_at = COALESCE($3, completed_at), updated_at = $4 WHERE report_id = $1 AND status <> 'COMPLETED'`
	if _, err := tx.ExecContext(ctx, query, reportID, status, completedAt, at); err != nil {
		return fmt.Errorf("mirror repair status: %w", err)
	}
	return nil
}
