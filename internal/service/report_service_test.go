package service

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civitasfix/civitasfix-api/internal/dto"
	"github.com/civitasfix/civitasfix-api/internal/models"
	appErrors "github.com/civitasfix/civitasfix-api/pkg/errors"
	"github.com/civitasfix/civitasfix-api/pkg/mailer"
)

type memoryReports struct {
	reports    map[string]*models.Report
	repairs    map[string]*models.Repair
	createErr  error
	applyCalls int
	lastFilter models.ReportFilter
	seq        int
}

func newMemoryReports() *memoryReports {
	return &memoryReports{reports: map[string]*models.Report{}, repairs: map[string]*models.Repair{}}
}

func (m *memoryReports) Create(_ context.Context, report *models.Report) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.seq++
	report.ID = fmt.Sprintf("r%d", m.seq)
	copied := *report
	m.reports[report.ID] = &copied
	return nil
}

func (m *memoryReports) FindByID(_ context.Context, id string) (*models.Report, error) {
	report, ok := m.reports[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *report
	copied.User = &models.UserSummary{ID: report.UserID, Name: "Owner", Email: report.UserID + "@campus.ac.id"}
	copied.Repairs = []models.Repair{}
	for _, repair := range m.repairs {
		if repair.ReportID == id {
			copied.Repairs = append(copied.Repairs, *repair)
		}
	}
	return &copied, nil
}

func (m *memoryReports) List(_ context.Context, filter models.ReportFilter) ([]models.Report, int, error) {
	m.lastFilter = filter
	var out []models.Report
	for _, report := range m.reports {
		if filter.OwnerID != "" && report.UserID != filter.OwnerID {
			continue
		}
		out = append(out, *report)
	}
	return out, len(out), nil
}

func (m *memoryReports) Latest(_ context.Context, ownerID string, limit int) ([]models.Report, error) {
	m.lastFilter = models.ReportFilter{OwnerID: ownerID, Limit: limit}
	return nil, nil
}

func (m *memoryReports) ApplyStatusChange(_ context.Context, change models.StatusChange) error {
	m.applyCalls++
	report, ok := m.reports[change.ReportID]
	if !ok {
		return sql.ErrNoRows
	}
	report.Status = change.Status
	key := change.ReportID + "/" + change.LecturerID
	switch change.Status {
	case models.ReportStatusConfirmed:
		if existing, ok := m.repairs[key]; ok {
			existing.Status = models.ReportStatusConfirmed
			return nil
		}
		m.repairs[key] = &models.Repair{ID: "rep-" + key, ReportID: change.ReportID, LecturerID: change.LecturerID, Status: models.ReportStatusConfirmed, Notes: change.Notes, EstimatedCost: change.EstimatedCost}
	case models.ReportStatusInProgress, models.ReportStatusCompleted:
		for _, repair := range m.repairs {
			if repair.ReportID == change.ReportID {
				repair.Status = change.Status
				if change.Status == models.ReportStatusCompleted {
					at := change.At
					repair.CompletedAt = &at
				}
			}
		}
	}
	return nil
}

func (m *memoryReports) FindByReportAndLecturer(_ context.Context, reportID, lecturerID string) (*models.Repair, error) {
	repair, ok := m.repairs[reportID+"/"+lecturerID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *repair
	return &copied, nil
}

func (m *memoryReports) UpdateProgress(_ context.Context, repair *models.Repair) error {
	key := repair.ReportID + "/" + repair.LecturerID
	if _, ok := m.repairs[key]; !ok {
		return sql.ErrNoRows
	}
	copied := *repair
	m.repairs[key] = &copied
	if repair.Status == models.ReportStatusCompleted {
		m.reports[repair.ReportID].Status = models.ReportStatusCompleted
	}
	return nil
}

type recordingMail struct {
	messages []mailer.Message
}

func (r *recordingMail) Dispatch(_ context.Context, msg mailer.Message) MailOutcome {
	r.messages = append(r.messages, msg)
	return MailQueued
}

type recordingAudit struct {
	entries []*models.AuditLog
}

func (r *recordingAudit) CreateAuditLog(_ context.Context, log *models.AuditLog) error {
	r.entries = append(r.entries, log)
	return nil
}

type recordingInvalidator struct {
	patterns []string
}

func (r *recordingInvalidator) Invalidate(_ context.Context, pattern string) {
	r.patterns = append(r.patterns, pattern)
}

type memoryUploads struct {
	saved   map[string][]byte
	deleted []string
}

func (m *memoryUploads) SaveUpload(originalName string, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	name := "1700000000000-abcdef" + originalName[strings.LastIndex(originalName, "."):]
	m.saved[name] = data
	return name, nil
}

func (m *memoryUploads) Delete(name string) error {
	m.deleted = append(m.deleted, name)
	delete(m.saved, name)
	return nil
}

type reportFixture struct {
	svc     *ReportService
	store   *memoryReports
	notes   *recordingNotifier
	mail    *recordingMail
	audit   *recordingAudit
	cache   *recordingInvalidator
	uploads *memoryUploads
}

func newReportFixture() *reportFixture {
	f := &reportFixture{
		store:   newMemoryReports(),
		notes:   &recordingNotifier{},
		mail:    &recordingMail{},
		audit:   &recordingAudit{},
		cache:   &recordingInvalidator{},
		uploads: &memoryUploads{saved: map[string][]byte{}},
	}
	f.svc = NewReportService(ReportServiceParams{
		Reports:       f.store,
		Repairs:       f.store,
		Notifications: f.notes,
		Mail:          f.mail,
		Audit:         f.audit,
		Cache:         f.cache,
		Storage:       f.uploads,
		Metrics:       NewMetricsService(),
		Uploads:       UploadPolicy{PublicPath: "/uploads/", MaxSizeBytes: 1024},
	})
	return f
}

var (
	studentCaller  = &models.Principal{ID: "s1", Name: "Siti", Email: "s1@campus.ac.id", Role: models.RoleStudent}
	otherStudent   = &models.Principal{ID: "s2", Name: "Budi", Email: "s2@campus.ac.id", Role: models.RoleStudent}
	lecturerCaller = &models.Principal{ID: "l1", Name: "Dosen", Email: "l1@campus.ac.id", Role: models.RoleLecturer}
)

func brokenChair() dto.CreateReportRequest {
	return dto.CreateReportRequest{Title: "Broken chair", Description: "Leg snapped", Location: "Room 101"}
}

func TestReportServiceCreateDefaults(t *testing.T) {
	f := newReportFixture()

	report, err := f.svc.Create(context.Background(), studentCaller, brokenChair(), nil)
	require.NoError(t, err)
	assert.Equal(t, models.ReportStatusPending, report.Status)
	assert.Equal(t, models.CategoryOther, report.Category)
	assert.Equal(t, models.PriorityMedium, report.Priority)
	assert.Equal(t, "s1", report.UserID)
	assert.Nil(t, report.ImageURL)

	require.Len(t, f.notes.notices, 2)
	assert.Equal(t, "Report submitted", f.notes.notices[0].Title)
	assert.Equal(t, models.NotificationSuccess, f.notes.notices[0].Type)
	assert.Equal(t, "New report", f.notes.notices[1].Title)
	for _, n := range f.notes.notices {
		require.NotNil(t, n.Link)
		assert.Equal(t, "/reports/"+report.ID, *n.Link)
	}
	assert.Equal(t, []models.UserRole{models.RoleLecturer, models.RoleAdmin}, f.notes.roles[0])
	assert.Equal(t, []string{statsCachePattern}, f.cache.patterns)
	require.Len(t, f.audit.entries, 1)
	assert.Equal(t, models.AuditActionReportCreate, f.audit.entries[0].Action)
}

func TestReportServiceCreateRejectsNonStudent(t *testing.T) {
	f := newReportFixture()

	_, err := f.svc.Create(context.Background(), lecturerCaller, brokenChair(), nil)
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
	assert.Empty(t, f.store.reports)
}

func TestReportServiceCreateValidation(t *testing.T) {
	f := newReportFixture()

	req := brokenChair()
	req.Title = "   "
	_, err := f.svc.Create(context.Background(), studentCaller, req, nil)
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	req = brokenChair()
	req.Category = "SPACESHIP"
	_, err = f.svc.Create(context.Background(), studentCaller, req, nil)
	assert.ErrorIs(t, err, appErrors.ErrValidation)
	assert.Empty(t, f.store.reports)
}

func TestReportServiceCreateWithImage(t *testing.T) {
	f := newReportFixture()
	png := append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 32)...)

	report, err := f.svc.Create(context.Background(), studentCaller, brokenChair(), &dto.ImageUpload{Filename: "chair.png", Size: int64(len(png)), Content: bytes.NewReader(png)})
	require.NoError(t, err)
	require.NotNil(t, report.ImageURL)
	assert.Equal(t, "/uploads/1700000000000-abcdef.png", *report.ImageURL)
	assert.Equal(t, png, f.uploads.saved["1700000000000-abcdef.png"])
}

func TestReportServiceCreateRejectsBadImage(t *testing.T) {
	f := newReportFixture()

	_, err := f.svc.Create(context.Background(), studentCaller, brokenChair(), &dto.ImageUpload{Filename: "notes.txt", Size: 5, Content: strings.NewReader("hello")})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = f.svc.Create(context.Background(), studentCaller, brokenChair(), &dto.ImageUpload{Filename: "big.png", Size: 4096, Content: strings.NewReader("x")})
	assert.ErrorIs(t, err, appErrors.ErrPayloadTooLarge)
	assert.Empty(t, f.uploads.saved)
}

func TestReportServiceCreateRemovesUploadOnFailure(t *testing.T) {
	f := newReportFixture()
	f.store.createErr = errors.New("insert failed")
	png := append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 32)...)

	_, err := f.svc.Create(context.Background(), studentCaller, brokenChair(), &dto.ImageUpload{Filename: "chair.png", Size: int64(len(png)), Content: bytes.NewReader(png)})
	assert.ErrorIs(t, err, appErrors.ErrInternal)
	assert.Equal(t, []string{"1700000000000-abcdef.png"}, f.uploads.deleted)
}

func TestReportServiceListScopesStudents(t *testing.T) {
	f := newReportFixture()
	_, err := f.svc.Create(context.Background(), studentCaller, brokenChair(), nil)
	require.NoError(t, err)
	_, err = f.svc.Create(context.Background(), otherStudent, brokenChair(), nil)
	require.NoError(t, err)

	reports, pagination, err := f.svc.List(context.Background(), studentCaller, dto.ReportQuery{})
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, "s1", reports[0].UserID)
	assert.Equal(t, 10, pagination.Limit)

	reports, _, err = f.svc.List(context.Background(), lecturerCaller, dto.ReportQuery{})
	require.NoError(t, err)
	assert.Len(t, reports, 2)

	_, _, err = f.svc.List(context.Background(), lecturerCaller, dto.ReportQuery{Status: "BOGUS"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestReportServiceLatestScope(t *testing.T) {
	f := newReportFixture()

	_, err := f.svc.Latest(context.Background(), studentCaller)
	require.NoError(t, err)
	assert.Equal(t, "s1", f.store.lastFilter.OwnerID)
	assert.Equal(t, latestReportsLimit, f.store.lastFilter.Limit)

	_, err = f.svc.Latest(context.Background(), lecturerCaller)
	require.NoError(t, err)
	assert.Empty(t, f.store.lastFilter.OwnerID)
}

func TestReportServiceGetForbidsOtherStudents(t *testing.T) {
	f := newReportFixture()
	report, err := f.svc.Create(context.Background(), studentCaller, brokenChair(), nil)
	require.NoError(t, err)

	_, err = f.svc.Get(context.Background(), otherStudent, report.ID)
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	got, err := f.svc.Get(context.Background(), lecturerCaller, report.ID)
	require.NoError(t, err)
	assert.Equal(t, report.ID, got.ID)

	_, err = f.svc.Get(context.Background(), lecturerCaller, "missing")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestReportServiceConfirmCreatesRepairAndNotifies(t *testing.T) {
	f := newReportFixture()
	report, err := f.svc.Create(context.Background(), studentCaller, brokenChair(), nil)
	require.NoError(t, err)
	f.notes.notices = nil
	cost := 150000.0

	updated, err := f.svc.UpdateStatus(context.Background(), lecturerCaller, report.ID, dto.UpdateStatusRequest{Status: models.ReportStatusConfirmed, EstimatedCost: &cost})
	require.NoError(t, err)
	assert.Equal(t, models.ReportStatusConfirmed, updated.Status)
	require.Len(t, updated.Repairs, 1)
	assert.Equal(t, "l1", updated.Repairs[0].LecturerID)

	require.Len(t, f.notes.notices, 1)
	assert.Equal(t, "s1", f.notes.notices[0].UserID)
	assert.Equal(t, models.NotificationSuccess, f.notes.notices[0].Type)
	require.NotNil(t, f.notes.notices[0].Link)
	assert.Equal(t, "/reports/"+report.ID, *f.notes.notices[0].Link)
	require.Len(t, f.mail.messages, 1)
	assert.Equal(t, []string{"s1@campus.ac.id"}, f.mail.messages[0].To)

	_, err = f.svc.UpdateStatus(context.Background(), lecturerCaller, report.ID, dto.UpdateStatusRequest{Status: models.ReportStatusConfirmed})
	require.NoError(t, err)
	assert.Len(t, f.store.repairs, 1)
}

func TestReportServiceRejectSendsWarningWithoutEmail(t *testing.T) {
	f := newReportFixture()
	report, err := f.svc.Create(context.Background(), studentCaller, brokenChair(), nil)
	require.NoError(t, err)
	f.notes.notices = nil

	_, err = f.svc.UpdateStatus(context.Background(), lecturerCaller, report.ID, dto.UpdateStatusRequest{Status: models.ReportStatusRejected})
	require.NoError(t, err)
	require.Len(t, f.notes.notices, 1)
	assert.Equal(t, models.NotificationWarning, f.notes.notices[0].Type)
	assert.Empty(t, f.mail.messages)
	assert.Empty(t, f.store.repairs)
}

func TestReportServiceInvalidStatusLeavesReportUntouched(t *testing.T) {
	f := newReportFixture()
	report, err := f.svc.Create(context.Background(), studentCaller, brokenChair(), nil)
	require.NoError(t, err)

	_, err = f.svc.UpdateStatus(context.Background(), lecturerCaller, report.ID, dto.UpdateStatusRequest{Status: "BOGUS"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
	assert.Zero(t, f.store.applyCalls)
	assert.Equal(t, models.ReportStatusPending, f.store.reports[report.ID].Status)
}

func TestReportServiceStudentCannotTransition(t *testing.T) {
	f := newReportFixture()
	report, err := f.svc.Create(context.Background(), studentCaller, brokenChair(), nil)
	require.NoError(t, err)

	_, err = f.svc.UpdateStatus(context.Background(), studentCaller, report.ID, dto.UpdateStatusRequest{Status: models.ReportStatusCompleted})
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
	assert.Zero(t, f.store.applyCalls)
}

func TestReportServiceTransitionUnknownReport(t *testing.T) {
	f := newReportFixture()

	_, err := f.svc.UpdateStatus(context.Background(), lecturerCaller, "missing", dto.UpdateStatusRequest{Status: models.ReportStatusConfirmed})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestReportServiceCompletedMirrorsRepairs(t *testing.T) {
	f := newReportFixture()
	report, err := f.svc.Create(context.Background(), studentCaller, brokenChair(), nil)
	require.NoError(t, err)
	_, err = f.svc.UpdateStatus(context.Background(), lecturerCaller, report.ID, dto.UpdateStatusRequest{Status: models.ReportStatusConfirmed})
	require.NoError(t, err)

	updated, err := f.svc.UpdateStatus(context.Background(), lecturerCaller, report.ID, dto.UpdateStatusRequest{Status: models.ReportStatusCompleted})
	require.NoError(t, err)
	require.Len(t, updated.Repairs, 1)
	assert.Equal(t, models.ReportStatusCompleted, updated.Repairs[0].Status)
	assert.NotNil(t, updated.Repairs[0].CompletedAt)
}

func TestReportServiceUpdateRepairCascades(t *testing.T) {
	f := newReportFixture()
	report, err := f.svc.Create(context.Background(), studentCaller, brokenChair(), nil)
	require.NoError(t, err)
	_, err = f.svc.UpdateStatus(context.Background(), lecturerCaller, report.ID, dto.UpdateStatusRequest{Status: models.ReportStatusConfirmed})
	require.NoError(t, err)
	f.notes.notices = nil
	f.mail.messages = nil
	actual := 90000.0

	repair, err := f.svc.UpdateRepair(context.Background(), lecturerCaller, report.ID, dto.UpdateRepairRequest{Status: models.ReportStatusCompleted, ActualCost: &actual})
	require.NoError(t, err)
	assert.Equal(t, models.ReportStatusCompleted, repair.Status)
	assert.NotNil(t, repair.CompletedAt)
	assert.Equal(t, models.ReportStatusCompleted, f.store.reports[report.ID].Status)
	require.Len(t, f.notes.notices, 1)
	assert.Equal(t, "s1", f.notes.notices[0].UserID)
	assert.Len(t, f.mail.messages, 1)
}

func TestReportServiceUpdateRepairRequiresAssignment(t *testing.T) {
	f := newReportFixture()
	report, err := f.svc.Create(context.Background(), studentCaller, brokenChair(), nil)
	require.NoError(t, err)

	_, err = f.svc.UpdateRepair(context.Background(), lecturerCaller, report.ID, dto.UpdateRepairRequest{Status: models.ReportStatusInProgress})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	_, err = f.svc.UpdateRepair(context.Background(), lecturerCaller, report.ID, dto.UpdateRepairRequest{Status: models.ReportStatusRejected})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestReportServiceCompletedRepairCannotReopen(t *testing.T) {
	f := newReportFixture()
	report, err := f.svc.Create(context.Background(), studentCaller, brokenChair(), nil)
	require.NoError(t, err)
	_, err = f.svc.UpdateStatus(context.Background(), lecturerCaller, report.ID, dto.UpdateStatusRequest{Status: models.ReportStatusConfirmed})
	require.NoError(t, err)
	_, err = f.svc.UpdateRepair(context.Background(), lecturerCaller, report.ID, dto.UpdateRepairRequest{Status: models.ReportStatusCompleted})
	require.NoError(t, err)

	_, err = f.svc.UpdateRepair(context.Background(), lecturerCaller, report.ID, dto.UpdateRepairRequest{Status: models.ReportStatusInProgress})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	stored := f.store.repairs[report.ID+"/"+lecturerCaller.ID]
	assert.Equal(t, models.ReportStatusCompleted, stored.Status)
	assert.NotNil(t, stored.CompletedAt)
	assert.Equal(t, models.ReportStatusCompleted, f.store.reports[report.ID].Status)
}

func TestReportServiceRepairProgressClearsCompletion(t *testing.T) {
	f := newReportFixture()
	report, err := f.svc.Create(context.Background(), studentCaller, brokenChair(), nil)
	require.NoError(t, err)
	_, err = f.svc.UpdateStatus(context.Background(), lecturerCaller, report.ID, dto.UpdateStatusRequest{Status: models.ReportStatusConfirmed})
	require.NoError(t, err)

	repair, err := f.svc.UpdateRepair(context.Background(), lecturerCaller, report.ID, dto.UpdateRepairRequest{Status: models.ReportStatusInProgress})
	require.NoError(t, err)
	assert.Equal(t, models.ReportStatusInProgress, repair.Status)
	assert.Nil(t, repair.CompletedAt)
}
