package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/civitasfix/civitasfix-api/internal/middleware"
	"github.com/civitasfix/civitasfix-api/internal/models"
	appErrors "github.com/civitasfix/civitasfix-api/pkg/errors"
	"github.com/civitasfix/civitasfix-api/pkg/response"
)

// principalFromContext returns the caller or writes a 401 and returns nil.
func principalFromContext(c *gin.Context) *models.Principal {
	principal, ok := middleware.CurrentUser(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return nil
	}
	return principal
}

func queryInt(c *gin.Context, key string) int {
	value, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return 0
	}
	return value
}
