package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/civitasfix/civitasfix-api/internal/middleware"
	"github.com/civitasfix/civitasfix-api/internal/models"
	"github.com/civitasfix/civitasfix-api/pkg/response"
)

type statsService interface {
	Summary(ctx context.Context, principal *models.Principal) (*models.StatsSummary, bool, error)
	Weekly(ctx context.Context, principal *models.Principal) (*models.WeeklyStats, bool, error)
}

// StatsHandler serves dashboard statistics.
type StatsHandler struct {
	service statsService
}

// NewStatsHandler constructs the handler.
func NewStatsHandler(service statsService) *StatsHandler {
	return &StatsHandler{service: service}
}

// Summary godoc
// @Summary Report statistics summary
// @Tags Stats
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /stats/summary [get]
func (h *StatsHandler) Summary(c *gin.Context) {
	principal := principalFromContext(c)
	if principal == nil {
		return
	}
	summary, hit, err := h.service.Summary(c.Request.Context(), principal)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, summary, nil, middleware.ExtractMeta(c))
}

// Weekly godoc
// @Summary Report breakdown by status and category
// @Tags Stats
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /stats/weekly [get]
func (h *StatsHandler) Weekly(c *gin.Context) {
	principal := principalFromContext(c)
	if principal == nil {
		return
	}
	stats, hit, err := h.service.Weekly(c.Request.Context(), principal)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, stats, nil, middleware.ExtractMeta(c))
}
