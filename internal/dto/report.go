package dto

import (
	"io"

	"github.com/civitasfix/civitasfix-api/internal/models"
)

// CreateReportRequest is the payload for filing a damage report. It binds from JSON or
// multipart form fields.
type CreateReportRequest struct {
	Title       string                `json:"title" form:"title" validate:"required"`
	Description string                `json:"description" form:"description" validate:"required"`
	Location    string                `json:"location" form:"location" validate:"required"`
	Category    models.ReportCategory `json:"category" form:"category"`
	Priority    models.ReportPriority `json:"priority" form:"priority"`
}

// ImageUpload carries an uploaded file from the transport layer.
type ImageUpload struct {
	Filename string
	Size     int64
	Content  io.Reader
}

// UpdateStatusRequest transitions a report.
type UpdateStatusRequest struct {
	Status        models.ReportStatus `json:"status"`
	Notes         *string             `json:"notes"`
	EstimatedCost *float64            `json:"estimatedCost" validate:"omitempty,gte=0"`
}

// UpdateRepairRequest records a lecturer's progress on an assigned repair.
type UpdateRepairRequest struct {
	Status     models.ReportStatus `json:"status"`
	Notes      *string             `json:"notes"`
	ActualCost *float64            `json:"actualCost" validate:"omitempty,gte=0"`
}

// ReportQuery holds list and export query parameters.
type ReportQuery struct {
	Page     int                   `form:"page"`
	Limit    int                   `form:"limit"`
	Status   models.ReportStatus   `form:"status"`
	Category models.ReportCategory `form:"category"`
	Format   string                `form:"format"`
}
