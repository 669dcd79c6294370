package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/civitasfix/civitasfix-api/internal/models"
	appErrors "github.com/civitasfix/civitasfix-api/pkg/errors"
	"github.com/civitasfix/civitasfix-api/pkg/response"
)

// Authorize reports whether role is among allowed.
func Authorize(role models.UserRole, allowed ...models.UserRole) error {
	for _, candidate := range allowed {
		if role == candidate {
			return nil
		}
	}
	return appErrors.Clone(appErrors.ErrForbidden, "insufficient permissions")
}

// RequireRoles rejects requests whose principal holds none of roles.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := CurrentUser(c)
		if !ok {
			response.Abort(c, appErrors.ErrUnauthorized)
			return
		}
		if err := Authorize(principal.Role, roles...); err != nil {
			response.Abort(c, err)
			return
		}
		c.Next()
	}
}
