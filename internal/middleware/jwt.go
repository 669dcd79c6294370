package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/civitasfix/civitasfix-api/internal/models"
	appErrors "github.com/civitasfix/civitasfix-api/pkg/errors"
	"github.com/civitasfix/civitasfix-api/pkg/response"
)

// ContextUserKey is the gin context key storing the authenticated principal.
const ContextUserKey = "currentUser"

// Authenticator resolves a bearer token to the account behind it.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*models.Principal, error)
}

// JWT protects routes by requiring a valid access token for an existing, verified user.
func JWT(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Abort(c, appErrors.Clone(appErrors.ErrUnauthorized, "access token required"))
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			response.Abort(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid authorization header"))
			return
		}

		principal, err := auth.Authenticate(c.Request.Context(), strings.TrimSpace(parts[1]))
		if err != nil {
			response.Abort(c, err)
			return
		}

		c.Set(ContextUserKey, principal)
		c.Next()
	}
}

// CurrentUser returns the principal stored by JWT, if any.
func CurrentUser(c *gin.Context) (*models.Principal, bool) {
	value, exists := c.Get(ContextUserKey)
	if !exists {
		return nil, false
	}
	principal, ok := value.(*models.Principal)
	return principal, ok && principal != nil
}
