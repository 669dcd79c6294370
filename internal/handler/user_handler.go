package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/civitasfix/civitasfix-api/internal/models"
	appErrors "github.com/civitasfix/civitasfix-api/pkg/errors"
	"github.com/civitasfix/civitasfix-api/pkg/response"
)

type userService interface {
	Profile(ctx context.Context, principal *models.Principal) (*models.Profile, error)
	UpdateProfile(ctx context.Context, principal *models.Principal, req models.UpdateProfileRequest) (*models.User, error)
	ChangePassword(ctx context.Context, userID string, req models.ChangePasswordRequest) error
	Lecturers(ctx context.Context) ([]models.User, error)
	Get(ctx context.Context, principal *models.Principal, id string) (*models.User, error)
}

// UserHandler exposes profile endpoints.
type UserHandler struct {
	service userService
}

// NewUserHandler constructs a UserHandler.
func NewUserHandler(svc userService) *UserHandler {
	return &UserHandler{service: svc}
}

// Profile godoc
// @Summary Current user's profile
// @Tags Users
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /users/profile [get]
func (h *UserHandler) Profile(c *gin.Context) {
	principal := principalFromContext(c)
	if principal == nil {
		return
	}
	profile, err := h.service.Profile(c.Request.Context(), principal)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, profile, nil)
}

// UpdateProfile godoc
// @Summary Update profile
// @Tags Users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body models.UpdateProfileRequest true "Profile payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /users/profile [put]
func (h *UserHandler) UpdateProfile(c *gin.Context) {
	principal := principalFromContext(c)
	if principal == nil {
		return
	}
	var req models.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid profile payload"))
		return
	}
	user, err := h.service.UpdateProfile(c.Request.Context(), principal, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, http.StatusOK, "Profile updated", user)
}

// ChangePassword godoc
// @Summary Change password
// @Tags Users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body models.ChangePasswordRequest true "Password payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /users/change-password [post]
func (h *UserHandler) ChangePassword(c *gin.Context) {
	principal := principalFromContext(c)
	if principal == nil {
		return
	}
	var req models.ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid change password payload"))
		return
	}
	if err := h.service.ChangePassword(c.Request.Context(), principal.ID, req); err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, http.StatusOK, "Password changed", nil)
}

// Lecturers godoc
// @Summary List lecturers
// @Tags Users
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /users/lecturers [get]
func (h *UserHandler) Lecturers(c *gin.Context) {
	users, err := h.service.Lecturers(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, users, nil)
}

// Get godoc
// @Summary Get user by id
// @Tags Users
// @Produce json
// @Security BearerAuth
// @Param id path string true "User ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /users/{id} [get]
func (h *UserHandler) Get(c *gin.Context) {
	principal := principalFromContext(c)
	if principal == nil {
		return
	}
	user, err := h.service.Get(c.Request.Context(), principal, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, user, nil)
}
