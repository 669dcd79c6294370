package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/civitasfix/civitasfix-api/internal/dto"
	"github.com/civitasfix/civitasfix-api/internal/middleware"
	"github.com/civitasfix/civitasfix-api/internal/models"
	"github.com/civitasfix/civitasfix-api/internal/service"
	appErrors "github.com/civitasfix/civitasfix-api/pkg/errors"
)

type responseEnvelope struct {
	Success    bool                   `json:"success"`
	Message    string                 `json:"message"`
	Data       json.RawMessage        `json:"data"`
	Meta       map[string]interface{} `json:"meta"`
	Pagination *models.Pagination     `json:"pagination"`
	Error      *appErrors.Error       `json:"error"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) responseEnvelope {
	t.Helper()
	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	return envelope
}

func newContext(method, target string, body io.Reader, principal *models.Principal) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(method, target, body)
	if body != nil {
		c.Request.Header.Set("Content-Type", "application/json")
	}
	if principal != nil {
		c.Set(middleware.ContextUserKey, principal)
	}
	return c, rec
}

func jsonBody(raw string) io.Reader {
	return strings.NewReader(raw)
}

var (
	studentPrincipal  = &models.Principal{ID: "s1", Name: "Siti", Role: models.RoleStudent, Verified: true}
	lecturerPrincipal = &models.Principal{ID: "l1", Name: "Dosen", Role: models.RoleLecturer, Verified: true}
)

type fakeAuthSvc struct {
	registered models.RegisterRequest
	err        error
}

func (f *fakeAuthSvc) Register(_ context.Context, req models.RegisterRequest) (*models.AuthResponse, error) {
	f.registered = req
	if f.err != nil {
		return nil, f.err
	}
	return &models.AuthResponse{Token: "tok", ExpiresIn: 3600, User: &models.User{ID: "u1", Email: req.Email, Role: models.RoleStudent}}, nil
}

func (f *fakeAuthSvc) Login(_ context.Context, req models.LoginRequest) (*models.AuthResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.AuthResponse{Token: "tok", ExpiresIn: 3600, User: &models.User{ID: "u1", Email: req.Email}}, nil
}

func (f *fakeAuthSvc) Me(_ context.Context, userID string) (*models.User, error) {
	return &models.User{ID: userID}, f.err
}

type fakeReportSvc struct {
	created     dto.CreateReportRequest
	image       *dto.ImageUpload
	imageBytes  []byte
	statusReq   dto.UpdateStatusRequest
	lastQuery   dto.ReportQuery
	err         error
	statusCalls int
}

func (f *fakeReportSvc) Create(_ context.Context, principal *models.Principal, req dto.CreateReportRequest, image *dto.ImageUpload) (*models.Report, error) {
	if f.err != nil {
		return nil, f.err
	}
	if principal.Role != models.RoleStudent {
		return nil, appErrors.ErrForbidden
	}
	f.created = req
	f.image = image
	if image != nil {
		f.imageBytes, _ = io.ReadAll(image.Content)
	}
	return &models.Report{ID: "r1", Title: req.Title, Status: models.ReportStatusPending, UserID: principal.ID, Repairs: []models.Repair{}}, nil
}

func (f *fakeReportSvc) List(_ context.Context, principal *models.Principal, query dto.ReportQuery) ([]models.Report, *models.Pagination, error) {
	f.lastQuery = query
	return []models.Report{{ID: "r1", UserID: principal.ID}}, models.NewPagination(1, 10, 1), f.err
}

func (f *fakeReportSvc) Latest(context.Context, *models.Principal) ([]models.Report, error) {
	return []models.Report{}, f.err
}

func (f *fakeReportSvc) Get(_ context.Context, principal *models.Principal, id string) (*models.Report, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.Report{ID: id, UserID: principal.ID}, nil
}

func (f *fakeReportSvc) UpdateStatus(_ context.Context, principal *models.Principal, id string, req dto.UpdateStatusRequest) (*models.Report, error) {
	f.statusCalls++
	f.statusReq = req
	if principal.Role == models.RoleStudent {
		return nil, appErrors.ErrForbidden
	}
	if !req.Status.Valid() {
		return nil, appErrors.Validation("invalid status")
	}
	return &models.Report{ID: id, Status: req.Status}, f.err
}

func (f *fakeReportSvc) UpdateRepair(_ context.Context, _ *models.Principal, reportID string, req dto.UpdateRepairRequest) (*models.Repair, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.Repair{ReportID: reportID, Status: req.Status}, nil
}

type fakeExporter struct {
	query dto.ReportQuery
	err   error
}

func (f *fakeExporter) Reports(_ context.Context, _ *models.Principal, query dto.ReportQuery) (*service.ExportFile, error) {
	f.query = query
	if f.err != nil {
		return nil, f.err
	}
	return &service.ExportFile{Filename: "reports.csv", ContentType: "text/csv; charset=utf-8", Content: []byte("ID\nr1\n")}, nil
}
