package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/civitasfix/civitasfix-api/internal/models"
	"github.com/civitasfix/civitasfix-api/internal/repository"
	appErrors "github.com/civitasfix/civitasfix-api/pkg/errors"
)

const (
	minNIMLength  = 8
	minNIDNLength = 10
)

type userRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	ListByRoles(ctx context.Context, roles ...models.UserRole) ([]models.User, error)
	UpdateProfile(ctx context.Context, user *models.User) error
	UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type statusCounter interface {
	CountByStatus(ctx context.Context, ownerID string) (map[models.ReportStatus]int, error)
}

// UserService handles profile workflows.
type UserService struct {
	repo      userRepository
	stats     statusCounter
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUserService creates an instance of UserService.
func NewUserService(repo userRepository, stats statusCounter, validate *validator.Validate, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &UserService{repo: repo, stats: stats, validator: validate, logger: logger}
}

// Profile returns the caller's account together with their report activity.
func (s *UserService) Profile(ctx context.Context, principal *models.Principal) (*models.Profile, error) {
	user, err := s.load(ctx, principal.ID)
	if err != nil {
		return nil, err
	}
	counts, err := s.stats.CountByStatus(ctx, scopeOwner(principal))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load profile statistics")
	}

	profile := &models.Profile{User: user}
	for _, n := range counts {
		profile.Statistics.Total += n
	}
	profile.Statistics.Active = counts[models.ReportStatusConfirmed] + counts[models.ReportStatusInProgress]
	profile.Statistics.Completed = counts[models.ReportStatusCompleted]
	profile.Statistics.Pending = counts[models.ReportStatusPending]
	return profile, nil
}

// UpdateProfile edits the caller's name and role-specific identifier.
func (s *UserService) UpdateProfile(ctx context.Context, principal *models.Principal, req models.UpdateProfileRequest) (*models.User, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid profile payload")
	}

	user, err := s.load(ctx, principal.ID)
	if err != nil {
		return nil, err
	}
	before, _ := json.Marshal(user)

	user.Name = req.Name
	switch user.Role {
	case models.RoleStudent:
		if nim := optionalString(req.NIM); nim != nil {
			if len(*nim) < minNIMLength {
				return nil, appErrors.Validation("nim must be at least 8 characters")
			}
			user.NIM = nim
		}
	case models.RoleLecturer:
		if nidn := optionalString(req.NIDN); nidn != nil {
			if len(*nidn) < minNIDNLength {
				return nil, appErrors.Validation("nidn must be at least 10 characters")
			}
			user.NIDN = nidn
		}
	}

	if err := s.repo.UpdateProfile(ctx, user); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicate):
			return nil, appErrors.Clone(appErrors.ErrConflict, "identifier is already in use")
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update profile")
	}

	after, _ := json.Marshal(user)
	if err := s.repo.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &user.ID,
		Action:     models.AuditActionProfileUpdate,
		Resource:   "user",
		ResourceID: &user.ID,
		OldValues:  before,
		NewValues:  after,
	}); err != nil {
		s.logger.Warn("failed to record profile audit log", zap.Error(err))
	}
	return user, nil
}

// ChangePassword replaces the caller's password after checking the current one.
func (s *UserService) ChangePassword(ctx context.Context, userID string, req models.ChangePasswordRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid change password payload")
	}

	user, err := s.load(ctx, userID)
	if err != nil {
		return err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.CurrentPassword)); err != nil {
		return appErrors.Validation("current password is incorrect")
	}
	if req.CurrentPassword == req.NewPassword {
		return appErrors.Validation("new password must differ from the current password")
	}

	newHash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	if err := s.repo.UpdatePassword(ctx, userID, string(newHash), time.Now().UTC()); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update password")
	}

	if err := s.repo.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &userID,
		Action:     models.AuditActionPasswordChange,
		Resource:   "auth",
		ResourceID: &userID,
		NewValues:  []byte(`{"status":"changed"}`),
	}); err != nil {
		s.logger.Warn("failed to record password change audit log", zap.Error(err))
	}
	return nil
}

// Lecturers lists verified lecturers ordered by name.
func (s *UserService) Lecturers(ctx context.Context) ([]models.User, error) {
	users, err := s.repo.ListByRoles(ctx, models.RoleLecturer)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list lecturers")
	}
	return users, nil
}

// Get returns another account; only staff may look users up.
func (s *UserService) Get(ctx context.Context, principal *models.Principal, id string) (*models.User, error) {
	if err := authorize(principal, models.RoleLecturer, models.RoleAdmin); err != nil {
		return nil, err
	}
	return s.load(ctx, id)
}

func (s *UserService) load(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return user, nil
}

// scopeOwner narrows report queries to the caller unless they are staff.
func scopeOwner(principal *models.Principal) string {
	if principal.Role.Staff() {
		return ""
	}
	return principal.ID
}

func authorize(principal *models.Principal, allowed ...models.UserRole) error {
	if principal == nil {
		return appErrors.Clone(appErrors.ErrUnauthorized, "authentication required")
	}
	for _, role := range allowed {
		if principal.Role == role {
			return nil
		}
	}
	return appErrors.Clone(appErrors.ErrForbidden, "insufficient permissions")
}
