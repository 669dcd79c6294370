package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/civitasfix/civitasfix-api/internal/dto"
	"github.com/civitasfix/civitasfix-api/internal/models"
	"github.com/civitasfix/civitasfix-api/internal/service"
	appErrors "github.com/civitasfix/civitasfix-api/pkg/errors"
	"github.com/civitasfix/civitasfix-api/pkg/response"
)

type reportService interface {
	Create(ctx context.Context, principal *models.Principal, req dto.CreateReportRequest, image *dto.ImageUpload) (*models.Report, error)
	List(ctx context.Context, principal *models.Principal, query dto.ReportQuery) ([]models.Report, *models.Pagination, error)
	Latest(ctx context.Context, principal *models.Principal) ([]models.Report, error)
	Get(ctx context.Context, principal *models.Principal, id string) (*models.Report, error)
	UpdateStatus(ctx context.Context, principal *models.Principal, id string, req dto.UpdateStatusRequest) (*models.Report, error)
	UpdateRepair(ctx context.Context, principal *models.Principal, reportID string, req dto.UpdateRepairRequest) (*models.Repair, error)
}

type reportExporter interface {
	Reports(ctx context.Context, principal *models.Principal, query dto.ReportQuery) (*service.ExportFile, error)
}

// ReportHandler exposes the damage report workflow.
type ReportHandler struct {
	reports  reportService
	exporter reportExporter
}

// NewReportHandler constructs a ReportHandler.
func NewReportHandler(reports reportService, exporter reportExporter) *ReportHandler {
	return &ReportHandler{reports: reports, exporter: exporter}
}

// List godoc
// @Summary List reports
// @Description Students see their own reports; lecturers and admins see all
// @Tags Reports
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Param status query string false "Status filter"
// @Param category query string false "Category filter"
// @Success 200 {object} response.Envelope
// @Router /reports [get]
func (h *ReportHandler) List(c *gin.Context) {
	principal := principalFromContext(c)
	if principal == nil {
		return
	}
	reports, pagination, err := h.reports.List(c.Request.Context(), principal, reportQuery(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, reports, pagination)
}

// Latest godoc
// @Summary Latest reports
// @Tags Reports
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /reports/latest [get]
func (h *ReportHandler) Latest(c *gin.Context) {
	principal := principalFromContext(c)
	if principal == nil {
		return
	}
	reports, err := h.reports.Latest(c.Request.Context(), principal)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, reports, nil)
}

// Export godoc
// @Summary Export reports
// @Tags Reports
// @Produce text/csv
// @Produce application/pdf
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Security BearerAuth
// @Param format query string false "csv, pdf or xlsx"
// @Param status query string false "Status filter"
// @Param category query string false "Category filter"
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Router /reports/export [get]
func (h *ReportHandler) Export(c *gin.Context) {
	principal := principalFromContext(c)
	if principal == nil {
		return
	}
	if h.exporter == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	file, err := h.exporter.Reports(c.Request.Context(), principal, reportQuery(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Filename))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, file.ContentType, file.Content)
}

// Create godoc
// @Summary File a damage report
// @Description Accepts JSON or multipart/form-data with an optional image field
// @Tags Reports
// @Accept json
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param payload body dto.CreateReportRequest true "Report payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /reports [post]
func (h *ReportHandler) Create(c *gin.Context) {
	principal := principalFromContext(c)
	if principal == nil {
		return
	}

	var (
		req   dto.CreateReportRequest
		image *dto.ImageUpload
	)
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		if err := c.ShouldBind(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid report payload"))
			return
		}
		header, err := c.FormFile("image")
		switch {
		case err == nil:
			file, openErr := header.Open()
			if openErr != nil {
				response.Error(c, appErrors.Wrap(openErr, appErrors.ErrValidation.Code, http.StatusBadRequest, "unreadable image"))
				return
			}
			defer file.Close()
			image = &dto.ImageUpload{Filename: header.Filename, Size: header.Size, Content: file}
		case !errors.Is(err, http.ErrMissingFile):
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid image upload"))
			return
		}
	} else if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid report payload"))
		return
	}

	report, err := h.reports.Create(c.Request.Context(), principal, req, image)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, "Report created", report)
}

// Get godoc
// @Summary Report detail
// @Tags Reports
// @Produce json
// @Security BearerAuth
// @Param id path string true "Report ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /reports/{id} [get]
func (h *ReportHandler) Get(c *gin.Context) {
	principal := principalFromContext(c)
	if principal == nil {
		return
	}
	report, err := h.reports.Get(c.Request.Context(), principal, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// UpdateStatus godoc
// @Summary Transition report status
// @Tags Reports
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Report ID"
// @Param payload body dto.UpdateStatusRequest true "Status payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /reports/{id}/status [patch]
func (h *ReportHandler) UpdateStatus(c *gin.Context) {
	principal := principalFromContext(c)
	if principal == nil {
		return
	}
	var req dto.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid status payload"))
		return
	}
	report, err := h.reports.UpdateStatus(c.Request.Context(), principal, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, http.StatusOK, "Report status updated", report)
}

// UpdateRepair godoc
// @Summary Update repair progress
// @Tags Reports
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Report ID"
// @Param payload body dto.UpdateRepairRequest true "Repair payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /reports/{id}/repair [patch]
func (h *ReportHandler) UpdateRepair(c *gin.Context) {
	principal := principalFromContext(c)
	if principal == nil {
		return
	}
	var req dto.UpdateRepairRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid repair payload"))
		return
	}
	repair, err := h.reports.UpdateRepair(c.Request.Context(), principal, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, http.StatusOK, "Repair updated", repair)
}

func reportQuery(c *gin.Context) dto.ReportQuery {
	return dto.ReportQuery{
		Page:     queryInt(c, "page"),
		Limit:    queryInt(c, "limit"),
		Status:   models.ReportStatus(strings.ToUpper(strings.TrimSpace(c.Query("status")))),
		Category: models.ReportCategory(strings.ToUpper(strings.TrimSpace(c.Query("category")))),
		Format:   c.Query("format"),
	}
}
