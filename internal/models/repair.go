package models

import "time"

// Repair records a lecturer's handling of a confirmed report.
type Repair struct {
	ID            string       `db:"id" json:"id"`
	ReportID      string       `db:"report_id" json:"reportId"`
	LecturerID    string       `db:"lecturer_id" json:"lecturerId"`
	Notes         *string      `db:"notes" json:"notes,omitempty"`
	EstimatedCost *float64     `db:"estimated_cost" json:"estimatedCost,omitempty"`
	ActualCost    *float64     `db:"actual_cost" json:"actualCost,omitempty"`
	Status        ReportStatus `db:"status" json:"status"`
	CompletedAt   *time.Time   `db:"completed_at" json:"completedAt,omitempty"`
	CreatedAt     time.Time    `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time    `db:"updated_at" json:"updatedAt"`

	Lecturer *UserSummary `db:"-" json:"lecturer,omitempty"`
}

// ValidRepairStatus limits repair updates to the in-flight statuses.
func ValidRepairStatus(s ReportStatus) bool {
	switch s {
	case ReportStatusConfirmed, ReportStatusInProgress, ReportStatusCompleted:
		return true
	}
	return false
}
